package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ConnectPolicy bounds the startup connection loop. Each failed attempt is
// reported as a state transition (disconnected -> reconnecting -> connected)
// rather than retried silently.
type ConnectPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultConnectPolicy() ConnectPolicy {
	return ConnectPolicy{
		MaxAttempts: 5,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
	}
}

// OpenWithRetry opens a pool, retrying with exponential backoff up to
// policy.MaxAttempts. It never recurses; it fails for good once the budget
// is spent or the context is cancelled.
func OpenWithRetry(ctx context.Context, databaseURL string, policy ConnectPolicy, logger *slog.Logger) (*Pool, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.BaseBackoff <= 0 {
		policy.BaseBackoff = 500 * time.Millisecond
	}
	if policy.MaxBackoff < policy.BaseBackoff {
		policy.MaxBackoff = policy.BaseBackoff
	}

	var lastErr error
	backoff := policy.BaseBackoff
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		pool, err := Open(ctx, databaseURL)
		if err == nil {
			logger.Info("db state transition", "state", "connected", "attempt", attempt)
			return pool, nil
		}
		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}

		logger.Warn("db state transition",
			"state", "reconnecting",
			"attempt", attempt,
			"backoff", backoff.String(),
			"err", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	logger.Error("db state transition", "state", "disconnected", "attempts", policy.MaxAttempts, "err", lastErr)
	return nil, fmt.Errorf("db connect failed after %d attempts: %w", policy.MaxAttempts, lastErr)
}
