package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/chatgate/pkg/provider"
)

// instantTimer records requested delays and fires immediately.
type instantTimer struct {
	delays []time.Duration
	c      chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.delays = append(t.delays, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

func loading() error {
	return &provider.Error{Kind: provider.KindModelLoading, StatusCode: 503}
}

func TestRetryThenSuccess(t *testing.T) {
	timer := &instantTimer{}
	e := New(DefaultPolicy(), WithTimer(timer))

	calls := 0
	got, outcome, err := Do(context.Background(), e, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", loading()
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, outcome.Delays)
	assert.GreaterOrEqual(t, outcome.Waited(), 3*time.Second)
	assert.Equal(t, outcome.Delays, timer.delays)
}

func TestFatalShortCircuits(t *testing.T) {
	timer := &instantTimer{}
	e := New(DefaultPolicy(), WithTimer(timer))

	calls := 0
	_, outcome, err := Do(context.Background(), e, func(ctx context.Context) (string, error) {
		calls++
		return "", &provider.Error{Kind: provider.KindUnauthorized, StatusCode: 401}
	})
	var pe *provider.Error
	require.True(t, errors.As(err, &pe), "permanent wrapper must be removed")
	assert.Equal(t, provider.KindUnauthorized, pe.Kind)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Empty(t, timer.delays)
}

func TestUnclassifiedErrorIsFatal(t *testing.T) {
	e := New(DefaultPolicy(), WithTimer(&instantTimer{}))
	calls := 0
	_, _, err := Do(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, calls)
}

func TestRetriesExhausted(t *testing.T) {
	timer := &instantTimer{}
	e := New(DefaultPolicy(), WithTimer(timer))

	calls := 0
	_, outcome, err := Do(context.Background(), e, func(ctx context.Context) (string, error) {
		calls++
		return "", &provider.Error{Kind: provider.KindRateLimited, StatusCode: 429, Message: "attempt"}
	})
	require.Error(t, err)
	assert.True(t, provider.IsTransient(err), "last transient error is propagated")
	assert.Equal(t, 4, calls, "one attempt plus three retries")
	assert.Equal(t, 4, outcome.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, timer.delays)
}

func TestRetryAfterHint(t *testing.T) {
	timer := &instantTimer{}
	e := New(DefaultPolicy(), WithTimer(timer))

	calls := 0
	_, _, err := Do(context.Background(), e, func(ctx context.Context) (string, error) {
		calls++
		switch calls {
		case 1:
			return "", &provider.Error{Kind: provider.KindRateLimited, RetryAfter: 7 * time.Second}
		case 2:
			return "", &provider.Error{Kind: provider.KindRateLimited, RetryAfter: time.Hour}
		case 3:
			return "", loading()
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second, 30 * time.Second, 3 * time.Second}, timer.delays)
}

func TestRetryAfterIgnoredWhenDisabled(t *testing.T) {
	timer := &instantTimer{}
	p := DefaultPolicy()
	p.HonorRetryAfter = false
	e := New(p, WithTimer(timer))

	calls := 0
	_, _, err := Do(context.Background(), e, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &provider.Error{Kind: provider.KindRateLimited, RetryAfter: 7 * time.Second}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second}, timer.delays)
}

func TestZeroRetries(t *testing.T) {
	p := DefaultPolicy()
	p.MaxRetries = 0
	e := New(p)

	calls := 0
	_, outcome, err := Do(context.Background(), e, func(ctx context.Context) (string, error) {
		calls++
		return "", loading()
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, outcome.Attempts)
}

func TestContextCancelStopsWaiting(t *testing.T) {
	p := DefaultPolicy()
	p.BackoffBase = time.Hour
	p.MaxDelay = 0
	e := New(p)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, _, err := Do(ctx, e, func(ctx context.Context) (string, error) {
		return "", loading()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNotifyCallback(t *testing.T) {
	var seen []int
	e := New(DefaultPolicy(), WithTimer(&instantTimer{}), WithNotify(func(err error, attempt int, delay time.Duration) {
		seen = append(seen, attempt)
	}))
	calls := 0
	_, _, _ = Do(context.Background(), e, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", loading()
		}
		return "ok", nil
	})
	assert.Equal(t, []int{1, 2}, seen)
}
