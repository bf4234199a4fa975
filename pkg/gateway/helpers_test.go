package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pario-ai/chatgate/pkg/cache"
	"github.com/pario-ai/chatgate/pkg/models"
	"github.com/pario-ai/chatgate/pkg/provider"
	"github.com/pario-ai/chatgate/pkg/ratelimit"
	"github.com/pario-ai/chatgate/pkg/registry"
	"github.com/pario-ai/chatgate/pkg/retry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// instantTimer records requested backoff delays and fires at once.
type instantTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delays = append(t.delays, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Time{}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c
}

func (t *instantTimer) recorded() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.delays...)
}

type handlerFunc func(ctx context.Context, n int, req models.ProviderRequest) (provider.Result, error)

// fakeTransport counts calls and delegates to handle; n is 1-based.
type fakeTransport struct {
	mu     sync.Mutex
	reqs   []models.ProviderRequest
	handle handlerFunc
}

func (f *fakeTransport) Generate(ctx context.Context, modelPath string, req models.ProviderRequest) (provider.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	n := len(f.reqs)
	h := f.handle
	f.mu.Unlock()
	if h == nil {
		return provider.Result{Shape: provider.ShapeList, Text: "answer: " + req.Inputs, Items: 1}, nil
	}
	return h(ctx, n, req)
}

func (f *fakeTransport) setHandler(h handlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handle = h
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeTransport) last() models.ProviderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (r *memoryRecorder) Log(ctx context.Context, e models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memoryRecorder) states() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		out = append(out, e.State)
	}
	return out
}

type harness struct {
	client    *Client
	transport *fakeTransport
	clock     *fakeClock
	timer     *instantTimer
	recorder  *memoryRecorder
}

func newHarness(t *testing.T, transport Transport, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:    newFakeClock(),
		timer:    &instantTimer{},
		recorder: &memoryRecorder{},
	}
	if transport == nil {
		h.transport = &fakeTransport{}
		transport = h.transport
	}
	base := []Option{
		WithClock(h.clock.Now),
		WithCache(cache.NewMemory(cache.DefaultTTL, 0).WithClock(h.clock.Now)),
		WithLimiter(ratelimit.New(30, time.Minute).WithClock(h.clock.Now)),
		WithRetry(retry.New(retry.DefaultPolicy(), retry.WithTimer(h.timer))),
		WithRecorder(h.recorder),
		WithSessionID("test-session"),
	}
	h.client = New(registry.New(nil), transport, append(base, opts...)...)
	return h
}

// connect selects id, which costs one probe call.
func (h *harness) connect(t *testing.T, id string) {
	t.Helper()
	_, err := h.client.SelectModel(context.Background(), id)
	require.NoError(t, err)
}
