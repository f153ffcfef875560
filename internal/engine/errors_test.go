package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formflow-backend/internal/store"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"unique", fmt.Errorf("insert: %w", store.ErrUniqueViolation), CodeConflict, 409},
		{"foreign key", fmt.Errorf("insert: %w", store.ErrForeignKeyViolation), CodeValidationFailed, 422},
		{"transient", store.ErrTransient, CodeStorageUnavailable, 503},
		{"other", errors.New("connection refused"), CodeStorageUnavailable, 503},
		{"app error passes", NotFoundError("Form", 3), CodeNotFound, 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var appErr *AppError
			require.True(t, errors.As(TranslateError(tt.err), &appErr))
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.HTTPStatus())
		})
	}
	assert.NoError(t, TranslateError(nil))
}

func TestTranslateError_KeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := TranslateError(cause)
	assert.ErrorIs(t, err, cause)
}
