package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/deusflow/dailyinfo/internal/config"
	"github.com/deusflow/dailyinfo/internal/logger"
)

type options struct {
	Config string `short:"c" long:"config" env:"DAILYINFO_CONFIG" default:"config.yaml" description:"Path to the YAML configuration file"`
	Debug  bool   `long:"debug" description:"Enable debug logging"`
}

var opts options

type runCommand struct{}

type scheduleCommand struct{}

type statusCommand struct{}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = true
	parser.AddCommand("run", "Run one cycle now", "Collect, evaluate and deliver once, then exit.", &runCommand{})
	parser.AddCommand("schedule", "Run daily at daily_run_time (default)", "Start the daemon and run one cycle per day.", &scheduleCommand{})
	parser.AddCommand("status", "Print a configuration summary", "Load and validate the configuration without running.", &statusCommand{})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}

	if parser.Active == nil {
		if err := (&scheduleCommand{}).Execute(nil); err != nil {
			os.Exit(1)
		}
	}
}

// loadConfig reads and validates the configuration and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		logger.Init("info")
		logger.Error("failed to load configuration", "path", opts.Config, "error", err)
		return nil, err
	}
	if opts.Debug {
		cfg.LogLevel = "debug"
	}
	logger.Init(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "path", opts.Config, "error", err)
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (c *runCommand) Execute([]string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, logger.Logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer a.Close()

	res, err := a.pipeline.RunOnce(ctx)
	if err != nil {
		logger.Error("run failed", "run_id", res.RunID, "error", err)
		return err
	}
	return nil
}

func (c *scheduleCommand) Execute([]string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, logger.Logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer a.Close()

	if cfg.Monitoring.Enabled {
		srv := startMonitoringServer(cfg.Monitoring.Port, logger.Logger)
		defer shutdownMonitoringServer(srv, logger.Logger)
	}

	sched, err := a.scheduler(cfg)
	if err != nil {
		return err
	}
	logger.Info("scheduler started", "daily_run_time", cfg.DailyRunTime, "timezone", cfg.Timezone)
	sched.Run(ctx)
	logger.Info("scheduler stopped")
	return nil
}

func (c *statusCommand) Execute([]string) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return err
	}
	printStatus(os.Stdout, cfg, cfg.Validate())
	return nil
}
