package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lycosa9527/MindGraph-sub001/types"
)

func TestDo_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultPolicy(), nil, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesRetryableError(t *testing.T) {
	calls := 0
	policy := DefaultPolicy()
	policy.InitialDelay = time.Millisecond
	policy.MaxDelay = 2 * time.Millisecond

	err := Do(context.Background(), policy, nil, func() error {
		calls++
		if calls < 3 {
			return types.NewError(types.ErrUpstreamError, "transient").WithRetryable(true)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryableError(t *testing.T) {
	calls := 0
	nonRetryable := types.NewError(types.ErrQuotaExceeded, "quota")

	err := Do(context.Background(), DefaultPolicy(), nil, func() error {
		calls++
		return nonRetryable
	})
	assert.Equal(t, nonRetryable, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	policy := Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
	calls := 0
	retryable := types.NewError(types.ErrUpstreamError, "down").WithRetryable(true)

	err := Do(context.Background(), policy, nil, func() error {
		calls++
		return retryable
	})
	assert.Equal(t, retryable, err)
	assert.Equal(t, 3, calls) // initial + 2 retries
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	policy := Policy{MaxRetries: 5, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, policy, nil, func() error {
		calls++
		return types.NewError(types.ErrUpstreamError, "down").WithRetryable(true)
	})
	assert.Equal(t, ErrCancelled, err)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(types.NewError(types.ErrUpstreamError, "x").WithRetryable(true)))
	assert.False(t, IsRetryable(types.NewError(types.ErrQuotaExceeded, "x")))
	assert.True(t, IsRetryable(errors.New("unclassified transport blip")))
}
