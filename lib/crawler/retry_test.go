package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"readtx/lib/browser"
)

func TestRetrySucceedsEventually(t *testing.T) {
	base := watchBase(t)

	attempts := 0
	ok := base.Retry(context.Background(), "click submit", RetryOptions{Wait: time.Millisecond}, func(ctx context.Context) Result {
		attempts++
		if attempts < 3 {
			return TimedOut(&browser.TimeoutError{Strategy: browser.ByID, Selector: "submit"})
		}
		return OK()
	})
	require.True(t, ok)
	require.Equal(t, 3, attempts)
}

func TestRetryExhaustsBudget(t *testing.T) {
	base := watchBase(t)

	attempts := 0
	ok := base.Retry(context.Background(), "click submit", RetryOptions{MaxAttempts: 2, Wait: time.Millisecond}, func(ctx context.Context) Result {
		attempts++
		return Failed(errors.New("boom"))
	})
	require.False(t, ok)
	require.Equal(t, 2, attempts)
}

func TestRetryCanceledContext(t *testing.T) {
	base := watchBase(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	ok := base.Retry(ctx, "click submit", RetryOptions{MaxAttempts: 5, Wait: time.Minute}, func(ctx context.Context) Result {
		attempts++
		return Failed(errors.New("boom"))
	})
	require.False(t, ok)
	require.LessOrEqual(t, attempts, 1)
}

func TestResultOf(t *testing.T) {
	require.Equal(t, OutcomeOK, ResultOf(nil).Outcome)

	timeout := &browser.TimeoutError{Strategy: browser.ByID, Selector: "email", After: time.Second}
	require.Equal(t, OutcomeTimeout, ResultOf(timeout).Outcome)
	require.Equal(t, OutcomeTimeout, ResultOf(context.DeadlineExceeded).Outcome)

	require.Equal(t, OutcomeError, ResultOf(errors.New("boom")).Outcome)
}
