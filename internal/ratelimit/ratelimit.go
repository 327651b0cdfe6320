package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrLimitExceeded is returned by Use when a provider or the total budget is spent.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// TotalKey is the budget key shared by every provider.
const TotalKey = "total"

// AIRateLimiter keeps per-provider request budgets that reset every period.
// A limit of zero or less means unlimited.
type AIRateLimiter struct {
	mu        sync.Mutex
	limits    map[string]int
	counts    map[string]int
	maxTotal  int
	total     int
	period    time.Duration
	resetTime time.Time
	now       func() time.Time
	log       *slog.Logger
}

// NewAIRateLimiter builds a limiter from a budget map. The "total" key, if
// present, caps requests across all providers.
func NewAIRateLimiter(budgets map[string]int, log *slog.Logger) *AIRateLimiter {
	if log == nil {
		log = slog.Default()
	}
	limits := make(map[string]int, len(budgets))
	maxTotal := 0
	for k, v := range budgets {
		if k == TotalKey {
			maxTotal = v
			continue
		}
		limits[k] = v
	}
	rl := &AIRateLimiter{
		limits:   limits,
		counts:   make(map[string]int),
		maxTotal: maxTotal,
		period:   24 * time.Hour,
		now:      time.Now,
		log:      log,
	}
	rl.resetTime = rl.now().Add(rl.period)
	return rl
}

// CanUse reports whether provider still has budget.
func (rl *AIRateLimiter) CanUse(provider string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()
	return rl.check(provider) == nil
}

// Use consumes one request from provider's budget and the total budget.
func (rl *AIRateLimiter) Use(provider string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()
	if err := rl.check(provider); err != nil {
		rl.log.Warn("AI budget exhausted", "provider", provider, "error", err)
		return err
	}

	rl.counts[provider]++
	rl.total++
	rl.log.Debug("AI usage", "provider", provider, "used", rl.counts[provider],
		"limit", rl.limits[provider], "total", rl.total, "total_limit", rl.maxTotal)
	return nil
}

func (rl *AIRateLimiter) check(provider string) error {
	if limit := rl.limits[provider]; limit > 0 && rl.counts[provider] >= limit {
		return fmt.Errorf("%s: %w (%d/%d)", provider, ErrLimitExceeded, rl.counts[provider], limit)
	}
	if rl.maxTotal > 0 && rl.total >= rl.maxTotal {
		return fmt.Errorf("total: %w (%d/%d)", ErrLimitExceeded, rl.total, rl.maxTotal)
	}
	return nil
}

// GetStats returns current usage per provider.
func (rl *AIRateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stats := map[string]interface{}{
		"total_used":  rl.total,
		"total_limit": rl.maxTotal,
		"reset_time":  rl.resetTime,
	}
	for p, limit := range rl.limits {
		stats[p+"_limit"] = limit
	}
	for p, n := range rl.counts {
		stats[p+"_used"] = n
	}
	return stats
}

// checkReset resets counters if reset time has passed
func (rl *AIRateLimiter) checkReset() {
	if rl.now().After(rl.resetTime) {
		rl.log.Info("resetting AI rate limiter counters", "total_used", rl.total)
		rl.counts = make(map[string]int)
		rl.total = 0
		rl.resetTime = rl.now().Add(rl.period)
	}
}
