package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetry(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name         string
		cfg          RetryConfig
		failures     int
		permanentAt  int
		wantAttempts int
		wantErr      error
	}{
		{name: "first try", cfg: RetryConfig{MaxAttempts: 3}, wantAttempts: 1},
		{name: "succeeds on third", cfg: RetryConfig{MaxAttempts: 3, Delay: time.Millisecond, Backoff: true}, failures: 2, wantAttempts: 3},
		{name: "exhausted", cfg: RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}, failures: 5, wantAttempts: 2, wantErr: boom},
		{name: "permanent stops early", cfg: RetryConfig{MaxAttempts: 5, Delay: time.Millisecond}, failures: 5, permanentAt: 2, wantAttempts: 2, wantErr: boom},
		{name: "zero attempts means one", cfg: RetryConfig{}, failures: 5, wantAttempts: 1, wantErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts, err := WithRetry(context.Background(), tt.cfg, func(attempt int) error {
				if attempt == tt.permanentAt {
					return Permanent(boom)
				}
				if attempt <= tt.failures {
					return boom
				}
				return nil
			})
			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && IsPermanent(err) {
				t.Errorf("returned error still marked permanent")
			}
		})
	}
}

func TestWithRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, err := WithRetry(ctx, RetryConfig{MaxAttempts: 3, Delay: time.Hour}, func(int) error {
		return errors.New("transient")
	})
	if attempts != 1 || !errors.Is(err, context.Canceled) {
		t.Fatalf("got (%d, %v), want (1, context.Canceled)", attempts, err)
	}
}
