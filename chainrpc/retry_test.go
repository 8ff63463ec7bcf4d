package chainrpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := withRetryBackoff(context.Background(), time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := withRetryBackoff(context.Background(), time.Millisecond, func() error {
		attempts++
		return errors.New("still down")
	})
	require.Error(t, err)
	require.Equal(t, maxRetryAttempts, attempts)
}

func TestWithRetryRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := withRetryBackoff(ctx, time.Second, func() error {
		attempts++
		return errors.New("down")
	})
	require.Error(t, err)
	require.LessOrEqual(t, attempts, 1)
}
