package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/common"
)

func TestExecute_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Execute(context.Background(), Policy{MaxRetries: 3, Delay: time.Millisecond, Backoff: 2}, func(_ context.Context, forceReconnect bool) (string, error) {
		calls++
		assert.False(t, forceReconnect)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	result, err := Execute(context.Background(), Policy{MaxRetries: 3, Delay: time.Millisecond, Backoff: 2}, func(_ context.Context, forceReconnect bool) (string, error) {
		calls++
		if calls == 1 {
			assert.False(t, forceReconnect)
			return "", common.NewTaskError(common.KindTransient, "dial", errors.New("connection refused"))
		}
		assert.True(t, forceReconnect)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, calls)
}

func TestExecute_NonTransientErrorIsNotRetried(t *testing.T) {
	calls := 0
	_, err := Execute(context.Background(), Policy{MaxRetries: 5, Delay: time.Millisecond, Backoff: 2}, func(context.Context, bool) (string, error) {
		calls++
		return "", common.NewTaskError(common.KindValidation, "parse", errors.New("bad payload"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, Exhausted(err))
}

func TestExecute_ExhaustsRetriesAndWrapsLastError(t *testing.T) {
	calls := 0
	_, err := Execute(context.Background(), Policy{MaxRetries: 3, Delay: time.Millisecond, Backoff: 2}, func(context.Context, bool) (string, error) {
		calls++
		return "", common.NewTaskError(common.KindTransient, "dial", errors.New("timeout"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, Exhausted(err))
}

func TestPolicy_MergeTakesMaxOfEachField(t *testing.T) {
	kv := Policy{MaxRetries: 3, Delay: 100 * time.Millisecond, Backoff: 2}
	docs := Policy{MaxRetries: 5, Delay: 50 * time.Millisecond, Backoff: 1.5}

	merged := kv.Merge(docs)

	assert.Equal(t, 5, merged.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, merged.Delay)
	assert.Equal(t, 2.0, merged.Backoff)
}

func TestExecute_ContextCancellationDuringBackoffAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := Execute(ctx, Policy{MaxRetries: 10, Delay: time.Second, Backoff: 2}, func(context.Context, bool) (string, error) {
		calls++
		return "", common.NewTaskError(common.KindTransient, "dial", errors.New("down"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
