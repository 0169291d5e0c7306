package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "infra-chatops/internal/common/errors"
	"infra-chatops/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	log := logger.NewTestLogger(t)

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := retry(context.Background(), fastRetry(), log, "connect", func() error {
			calls++
			if calls < 3 {
				return errors.New("rpc error: code = Unavailable desc = connection refused")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := retry(context.Background(), fastRetry(), log, "connect", func() error {
			calls++
			return errors.New("connection refused")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Contains(t, err.Error(), "connect failed")
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		calls := 0
		err := retry(context.Background(), fastRetry(), log, "connect", func() error {
			calls++
			return errors.New("invalid gateway address")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rc := &RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
		err := retry(ctx, rc, log, "connect", func() error { return errors.New("timeout") })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMapZeebeError(t *testing.T) {
	tests := []struct {
		msg  string
		code apperrors.ErrorCode
	}{
		{"context deadline exceeded", apperrors.ErrCodeTimeout},
		{"rpc error: code = PermissionDenied desc = permission denied", apperrors.ErrCodeAccessDenied},
		{"connection refused", apperrors.ErrCodeExternalServiceError},
		{"something else", apperrors.ErrCodeExternalServiceError},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			stdErr := apperrors.AsStandardError(mapZeebeError(errors.New(tt.msg), "connect"))
			assert.Equal(t, tt.code, stdErr.Code)
		})
	}
}
