package ratelimit

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrRateLimited is returned when the sliding window is saturated.
var ErrRateLimited = errors.New("rate limited")

// Defaults for the outbound request window.
const (
	DefaultMaxRequests = 30
	DefaultWindow      = time.Minute
)

// Limiter counts outbound requests over a trailing window. Expired
// timestamps are purged lazily on every check.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

// New creates a Limiter allowing max requests per window. Non-positive
// arguments fall back to the defaults.
func New(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{max: max, window: window, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Record appends the current time to the window.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamps = append(l.stamps, l.now())
}

// IsLimited purges expired entries and reports whether the remaining count
// has reached the ceiling.
func (l *Limiter) IsLimited() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.purge() >= l.max
}

// Check returns ErrRateLimited, annotated with the wait until a slot frees
// up, if the window is saturated.
func (l *Limiter) Check() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.purge() < l.max {
		return nil
	}
	wait := l.stamps[0].Add(l.window).Sub(l.now())
	return errors.Wrapf(ErrRateLimited, "%d requests in the last %s, retry in %s",
		len(l.stamps), l.window, wait.Round(time.Second))
}

// Count returns the number of requests within the current window.
func (l *Limiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.purge()
}

// Reset empties the window.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamps = nil
}

// purge drops timestamps that have aged out and returns what remains.
// Timestamps are appended in order, so everything expired is a prefix.
func (l *Limiter) purge() int {
	cutoff := l.now().Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
	return len(l.stamps)
}
