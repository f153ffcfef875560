package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"formflow-backend/internal/config"
	"formflow-backend/internal/instrument"
	"formflow-backend/internal/store"
)

// RetryPolicy bounds retries of transient storage errors. Anything that is
// not store.ErrTransient fails on the first attempt.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

func NewRetryPolicy(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: time.Duration(cfg.InitialIntervalMs) * time.Millisecond,
	}
}

// Do runs fn until it succeeds, returns a non-transient error, or the
// attempts are used up. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	operation := func() error {
		err := fn()
		if err != nil && !errors.Is(err, store.ErrTransient) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		instrument.StorageRetries.WithLabelValues(op).Inc()
		logger.Warn("retrying transient storage error",
			zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
	}

	return backoff.RetryNotify(operation, b, notify)
}
