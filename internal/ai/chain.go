package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/dailyinfo/internal/ratelimit"
	"github.com/deusflow/dailyinfo/internal/retry"
)

// Trace records how a chain call was served.
type Trace struct {
	Provider string
	Attempts int
	Raw      string
}

// ChainConfig controls per-provider retries and call timeouts.
type ChainConfig struct {
	Attempts int           // per provider
	Delay    time.Duration // linear backoff base
	Timeout  time.Duration // per call
}

// Chain tries providers in order, each with its own retry budget.
type Chain struct {
	providers []Provider
	cfg       ChainConfig
	limiter   *ratelimit.AIRateLimiter
	log       *slog.Logger
}

// NewChain builds a chain. limiter may be nil.
func NewChain(providers []Provider, cfg ChainConfig, limiter *ratelimit.AIRateLimiter, log *slog.Logger) *Chain {
	if cfg.Attempts < 1 {
		cfg.Attempts = 2
	}
	if log == nil {
		log = slog.Default()
	}
	return &Chain{providers: providers, cfg: cfg, limiter: limiter, log: log}
}

// Providers returns provider names in preference order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

func (c *Chain) Evaluate(ctx context.Context, req EvalRequest) (Judgement, Trace, error) {
	return run(ctx, c, "evaluate", func(ctx context.Context, p Provider) (Judgement, string, error) {
		j, err := p.Evaluate(ctx, req)
		return j, j.Raw, err
	})
}

func (c *Chain) Optimize(ctx context.Context, req OptimizeRequest) (Optimized, Trace, error) {
	return run(ctx, c, "optimize", func(ctx context.Context, p Provider) (Optimized, string, error) {
		o, err := p.Optimize(ctx, req)
		return o, o.Raw, err
	})
}

func run[T any](ctx context.Context, c *Chain, op string, call func(context.Context, Provider) (T, string, error)) (T, Trace, error) {
	var zero T
	var trace Trace
	var lastErr error

	for _, p := range c.providers {
		name := p.Name()
		if c.limiter != nil && !c.limiter.CanUse(name) {
			lastErr = fmt.Errorf("%s: %w", name, ErrBudgetExceeded)
			c.log.Warn("skipping provider, budget spent", "provider", name, "op", op)
			continue
		}

		var result T
		attempts, err := retry.WithRetry(ctx, retry.RetryConfig{
			MaxAttempts: c.cfg.Attempts,
			Delay:       c.cfg.Delay,
			Backoff:     true,
		}, func(attempt int) error {
			if c.limiter != nil {
				if err := c.limiter.Use(name); err != nil {
					return retry.Permanent(fmt.Errorf("%s: %w: %v", name, ErrBudgetExceeded, err))
				}
			}

			callCtx := ctx
			if c.cfg.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
				defer cancel()
			}

			res, raw, err := call(callCtx, p)
			if raw != "" {
				trace.Raw = raw
			}
			if err != nil {
				c.log.Debug("AI call failed", "provider", name, "op", op, "attempt", attempt, "error", err)
				if errors.Is(err, ErrInvalidData) {
					return retry.Permanent(err)
				}
				return err
			}
			result = res
			return nil
		})
		trace.Provider = name
		trace.Attempts += attempts

		switch {
		case err == nil:
			return result, trace, nil
		case errors.Is(err, ErrInvalidData):
			return zero, trace, err
		case ctx.Err() != nil:
			return zero, trace, ctx.Err()
		}
		lastErr = err
		c.log.Warn("provider exhausted, falling back", "provider", name, "op", op, "attempts", attempts, "error", err)
	}

	if lastErr == nil {
		lastErr = errors.New("no providers configured")
	}
	return zero, trace, fmt.Errorf("%w: %w", ErrAllProvidersExhausted, lastErr)
}
