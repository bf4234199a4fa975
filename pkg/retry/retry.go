// Package retry re-runs transport calls that failed transiently, waiting a
// linearly growing delay between attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pario-ai/chatgate/pkg/provider"
)

// Policy configures retry behavior.
type Policy struct {
	MaxRetries      int           // additional attempts after the first
	BackoffBase     time.Duration // delay before retry n is BackoffBase*n
	MaxDelay        time.Duration // cap on any single delay; 0 means no cap
	HonorRetryAfter bool          // use a 429's Retry-After instead of the linear step
}

// DefaultPolicy waits 1s, 2s, 3s across three retries.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		BackoffBase:     time.Second,
		MaxDelay:        30 * time.Second,
		HonorRetryAfter: true,
	}
}

// Outcome describes how an execution went.
type Outcome struct {
	Attempts int
	Delays   []time.Duration
}

// Waited is the total time spent in backoff.
func (o Outcome) Waited() time.Duration {
	var total time.Duration
	for _, d := range o.Delays {
		total += d
	}
	return total
}

// Executor runs operations under a Policy.
type Executor struct {
	policy  Policy
	timer   backoff.Timer
	onRetry func(err error, attempt int, delay time.Duration)
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimer replaces the timer used to wait between attempts.
func WithTimer(t backoff.Timer) Option {
	return func(e *Executor) {
		e.timer = t
	}
}

// WithNotify registers a callback invoked before each retry wait.
func WithNotify(fn func(err error, attempt int, delay time.Duration)) Option {
	return func(e *Executor) {
		e.onRetry = fn
	}
}

// New creates an Executor.
func New(policy Policy, opts ...Option) *Executor {
	e := &Executor{policy: policy}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs fn until it succeeds, fails fatally, or the retry budget is spent.
// Transient failures (see provider.IsTransient) are retried; everything else
// is returned after the first attempt. When retries run out the last error is
// returned. Cancelling ctx stops any pending wait.
func Do[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error)) (T, Outcome, error) {
	var (
		result  T
		outcome Outcome
	)

	linear := &linearBackOff{
		base:  e.policy.BackoffBase,
		max:   e.policy.MaxDelay,
		honor: e.policy.HonorRetryAfter,
	}

	op := func() error {
		outcome.Attempts++
		r, err := fn(ctx)
		if err == nil {
			result = r
			return nil
		}
		linear.lastErr = err
		if !provider.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if e.policy.MaxRetries <= 0 {
		// WithMaxRetries(b, 0) would mean unlimited.
		err := op()
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return result, outcome, err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(linear, uint64(e.policy.MaxRetries)), ctx)
	notify := func(err error, delay time.Duration) {
		outcome.Delays = append(outcome.Delays, delay)
		log.Debugf("retry: attempt %d failed (%v), waiting %v", outcome.Attempts, err, delay)
		if e.onRetry != nil {
			e.onRetry(err, outcome.Attempts, delay)
		}
	}

	err := backoff.RetryNotifyWithTimer(op, b, notify, e.timer)
	if err != nil {
		var zero T
		return zero, outcome, err
	}
	return result, outcome, nil
}

// linearBackOff yields base, 2*base, 3*base... A 429 carrying Retry-After
// replaces the step when honor is set.
type linearBackOff struct {
	base    time.Duration
	max     time.Duration
	honor   bool
	attempt int
	lastErr error
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	d := b.base * time.Duration(b.attempt)
	if b.honor {
		var pe *provider.Error
		if errors.As(b.lastErr, &pe) && pe.Kind == provider.KindRateLimited && pe.RetryAfter > 0 {
			d = pe.RetryAfter
		}
	}
	if b.max > 0 && d > b.max {
		d = b.max
	}
	return d
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}
