package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"formflow-backend/internal/config"
	"formflow-backend/internal/store"
)

func TestRetryPolicy_RetriesTransient(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), zap.NewNop(), "test", func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("exec: %w", store.ErrTransient)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_GivesUpAfterMaxAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), zap.NewNop(), "test", func() error {
		calls++
		return store.ErrTransient
	})
	assert.ErrorIs(t, err, store.ErrTransient)
	assert.Equal(t, 2, calls)

	// Exhausted retries surface as storage unavailability.
	var appErr *AppError
	assert.True(t, errors.As(TranslateError(err), &appErr))
	assert.Equal(t, CodeStorageUnavailable, appErr.Code)
}

func TestRetryPolicy_PermanentErrorsFailFast(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialInterval: time.Millisecond}
	calls := 0
	conflict := ConflictError("taken")
	err := p.Do(context.Background(), zap.NewNop(), "test", func() error {
		calls++
		return conflict
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, conflict)
}

func TestNewRetryPolicy(t *testing.T) {
	p := NewRetryPolicy(config.RetryConfig{MaxAttempts: 4, InitialIntervalMs: 20})
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 20*time.Millisecond, p.InitialInterval)
}
