package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "embed", 3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryNonTransientSurfacesImmediately(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "embed", 5, time.Millisecond, func() error {
		calls++
		return errors.New("401 invalid api key")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, FailAuth, pe.Kind)
	assert.False(t, pe.Transient())
}

func TestWithRetryExhaustion(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "generate", 3, time.Millisecond, func() error {
		calls++
		return errors.New("429 rate limit exceeded")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, FailExhausted, pe.Kind)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  string
		kind FailKind
	}{
		{"429 too many requests", FailRateLimited},
		{"resource exhausted: quota", FailRateLimited},
		{"500 internal server error", FailUnavailable},
		{"connection refused", FailUnavailable},
		{"403 permission denied", FailAuth},
		{"400 invalid request", FailInvalidInput},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, classify(errors.New(tc.err)), tc.err)
	}
	assert.Equal(t, FailTimeout, classify(context.DeadlineExceeded))
}

func TestWithRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := withRetry(ctx, "embed", 3, 50*time.Millisecond, func() error {
		return errors.New("503 unavailable")
	})
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, FailTimeout, pe.Kind)
}
