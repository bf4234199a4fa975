// Package gateway orchestrates a chat session against a remote model: it
// validates, consults the cache and rate limiter, sends through the retry
// executor under a cancellation token, normalizes the reply and degrades to
// a canned fallback instead of failing.
package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pario-ai/chatgate/pkg/cache"
	"github.com/pario-ai/chatgate/pkg/cancel"
	"github.com/pario-ai/chatgate/pkg/fallback"
	"github.com/pario-ai/chatgate/pkg/models"
	"github.com/pario-ai/chatgate/pkg/provider"
	"github.com/pario-ai/chatgate/pkg/ratelimit"
	"github.com/pario-ai/chatgate/pkg/registry"
	"github.com/pario-ai/chatgate/pkg/retry"
)

// ProbeMessage is sent once by SelectModel to confirm the endpoint answers.
const ProbeMessage = "hello"

// DefaultEchoMarker is stripped from replies when a model declares none.
const DefaultEchoMarker = "ASSISTANT:"

// Transport performs one generation call.
type Transport interface {
	Generate(ctx context.Context, modelPath string, req models.ProviderRequest) (provider.Result, error)
}

// Recorder receives one entry per SendMessage outcome.
type Recorder interface {
	Log(ctx context.Context, entry models.AuditEntry) error
}

// State is the terminal state of one SendMessage call.
type State string

const (
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFallback  State = "fallback"
	StateRejected  State = "rejected"
)

// Reply is the result of SendMessage. Message is empty when State is
// StateCancelled.
type Reply struct {
	Message   models.Message `json:"message"`
	State     State          `json:"state"`
	CacheHit  bool           `json:"cache_hit"`
	Attempts  int            `json:"attempts"`
	RequestID string         `json:"request_id"`
}

// Delivered reports whether the reply belongs in the conversation. Its
// request was still the live one when it settled.
func (r Reply) Delivered() bool {
	return r.State == StateCompleted || r.State == StateFallback
}

// Client is the gateway for one user session. Create it once per session.
type Client struct {
	registry  *registry.Registry
	transport Transport
	cache     cache.Cache
	limiter   *ratelimit.Limiter
	retry     *retry.Executor
	fallback  *fallback.Responder
	recorder  Recorder
	sessionID string
	now       func() time.Time

	tokens cancel.Source

	mu     sync.Mutex
	active *models.ModelDescriptor
}

// Option configures a Client.
type Option func(*Client)

// WithCache sets the response cache. A nil cache disables caching.
func WithCache(c cache.Cache) Option {
	return func(cl *Client) {
		cl.cache = c
	}
}

// WithLimiter sets the outbound rate limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(cl *Client) {
		cl.limiter = l
	}
}

// WithRetry sets the retry executor.
func WithRetry(e *retry.Executor) Option {
	return func(cl *Client) {
		cl.retry = e
	}
}

// WithFallback replaces the fallback responder.
func WithFallback(r *fallback.Responder) Option {
	return func(cl *Client) {
		cl.fallback = r
	}
}

// WithRecorder sets the audit recorder.
func WithRecorder(r Recorder) Option {
	return func(cl *Client) {
		cl.recorder = r
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(cl *Client) {
		cl.sessionID = id
	}
}

// WithClock sets the time source used to stamp replies and measure latency.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		cl.now = now
	}
}

// New creates a Client. Unset collaborators get defaults: an unbounded
// in-memory cache with a 5 minute TTL, a 30 per minute limiter and the
// default retry policy.
func New(reg *registry.Registry, transport Transport, opts ...Option) *Client {
	c := &Client{
		registry:  reg,
		transport: transport,
		cache:     cache.NewMemory(cache.DefaultTTL, 0),
		limiter:   ratelimit.New(ratelimit.DefaultMaxRequests, ratelimit.DefaultWindow),
		retry:     retry.New(retry.DefaultPolicy()),
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fallback == nil {
		c.fallback = fallback.New(reg.List()).WithClock(c.now)
	}
	return c
}

// SessionID identifies this client in audit and history records.
func (c *Client) SessionID() string {
	return c.sessionID
}

// AvailableModels lists the catalog.
func (c *Client) AvailableModels() []models.ModelDescriptor {
	return c.registry.List()
}

// ActiveModel returns the selected model, or ErrDisconnected.
func (c *Client) ActiveModel() (models.ModelDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return models.ModelDescriptor{}, ErrDisconnected
	}
	return *c.active, nil
}

// SelectModel resolves id and probes its endpoint once. On success the model
// becomes active; on failure the client is left disconnected. The probe is
// neither cached nor counted against the rate limit. The cache and the rate
// window survive a model switch.
func (c *Client) SelectModel(ctx context.Context, id string) (models.ModelDescriptor, error) {
	d, err := c.registry.Get(id)
	if err != nil {
		return models.ModelDescriptor{}, err
	}

	req, err := c.registry.BuildPayload(d, ProbeMessage, models.GenerationOptions{MaxNewTokens: models.Int(10)})
	if err != nil {
		return models.ModelDescriptor{}, err
	}

	// A reply still in flight belongs to the previous model.
	c.tokens.Cancel()

	if _, err := c.transport.Generate(ctx, d.Path, req); err != nil {
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
		log.WithField("model", d.ID).Warnf("gateway: probe failed: %v", err)
		return models.ModelDescriptor{}, &ProbeError{Model: d.ID, Err: err}
	}

	c.mu.Lock()
	c.active = &d
	c.mu.Unlock()
	log.WithFields(log.Fields{"model": d.ID, "path": d.Path}).Info("gateway: model selected")
	return d, nil
}

// SendMessage sends message to the active model.
//
// Only validation failures (*ValidationError) and a saturated local rate
// window (ratelimit.ErrRateLimited) are returned as errors. Every provider
// or network failure yields a Reply in StateFallback whose message carries
// Error=true. A call superseded by a newer one, or cancelled, yields
// StateCancelled with no message; nothing it produced is cached. Any other
// reply has already settled and is Delivered.
func (c *Client) SendMessage(ctx context.Context, message string, opts models.GenerationOptions) (Reply, error) {
	start := c.now()
	reply := Reply{RequestID: uuid.NewString()}

	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	entry := models.AuditEntry{
		RequestID:   reply.RequestID,
		SessionID:   c.sessionID,
		PromptChars: len(message),
		CreatedAt:   start,
	}
	if active != nil {
		entry.Model = active.ID
		entry.ModelPath = active.Path
	}

	if active == nil {
		c.reject(ctx, entry, ErrNoModelSelected)
		return reply, ErrNoModelSelected
	}
	if strings.TrimSpace(message) == "" {
		c.reject(ctx, entry, ErrEmptyMessage)
		return reply, ErrEmptyMessage
	}
	d := *active
	logger := log.WithFields(log.Fields{"request": reply.RequestID, "model": d.ID})

	key := cache.Key(d.Path, message, opts)
	if c.cache != nil {
		if msg, ok := c.cache.Get(key); ok {
			// A hit still supersedes whatever is in flight.
			if !c.tokens.Finish(c.tokens.NewToken(ctx)) {
				reply.State = StateCancelled
				c.finish(ctx, entry, reply, nil, start)
				return reply, nil
			}
			msg.Timestamp = c.now()
			reply.Message = msg
			reply.State = StateCompleted
			reply.CacheHit = true
			logger.Debug("gateway: cache hit")
			c.finish(ctx, entry, reply, nil, start)
			return reply, nil
		}
	}

	if err := c.limiter.Check(); err != nil {
		c.reject(ctx, entry, err)
		return reply, err
	}

	req, err := c.registry.BuildPayload(d, message, opts)
	if err != nil {
		// The active descriptor always comes from the registry.
		return reply, errors.Wrap(err, "build payload")
	}

	tok := c.tokens.NewToken(ctx)
	c.limiter.Record()
	result, outcome, err := retry.Do(tok.Context(), c.retry, func(ctx context.Context) (provider.Result, error) {
		return c.transport.Generate(ctx, d.Path, req)
	})
	reply.Attempts = outcome.Attempts

	// Settle before anything is cached or stamped: once Finish succeeds the
	// reply is delivered even if a newer request starts right after.
	ctxErr := tok.Context().Err()
	if !c.tokens.Finish(tok) || ctxErr != nil {
		reply.State = StateCancelled
		logger.WithField("generation", tok.ID()).Debug("gateway: reply discarded, request superseded or cancelled")
		c.finish(ctx, entry, reply, nil, start)
		return reply, nil
	}

	var text string
	if err == nil {
		text = StripEcho(result.Text, echoMarker(d))
		if text == "" {
			err = &provider.Error{Kind: provider.KindMalformed, Message: "empty generated text"}
		}
	}
	if err != nil {
		logger.Warnf("gateway: falling back after %d attempt(s): %v", outcome.Attempts, err)
		reply.Message = c.fallback.Respond(d.ID, err.Error())
		reply.Message.Model = d.Name
		reply.State = StateFallback
		c.finish(ctx, entry, reply, err, start)
		return reply, nil
	}

	reply.Message = models.AssistantMessage(text, d.Name, c.now())
	reply.State = StateCompleted
	if c.cache != nil {
		if err := c.cache.Set(key, d.ID, reply.Message); err != nil {
			logger.Errorf("gateway: cache set: %v", err)
		}
	}
	c.finish(ctx, entry, reply, nil, start)
	return reply, nil
}

// CancelRequest silences the in-flight request, if any.
func (c *Client) CancelRequest() {
	c.tokens.Cancel()
}

// Disconnect cancels any in-flight request and clears the active model.
func (c *Client) Disconnect() {
	c.tokens.Cancel()
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
}

// ClearCache empties the response cache.
func (c *Client) ClearCache() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Clear()
}

// CacheStats reports the response cache counters.
func (c *Client) CacheStats() (models.CacheStats, error) {
	if c.cache == nil {
		return models.CacheStats{}, nil
	}
	return c.cache.Stats()
}

// Stats returns a snapshot of the client's state.
func (c *Client) Stats() models.Stats {
	var s models.Stats
	c.mu.Lock()
	if c.active != nil {
		s.CurrentModel = c.active.Name
	}
	c.mu.Unlock()
	if c.cache != nil {
		s.CacheSize = c.cache.Len()
	}
	s.RequestsInLastMinute = c.limiter.Count()
	s.RateLimitActive = c.limiter.IsLimited()
	return s
}

// StripEcho removes a replayed prompt from text: everything up to and
// including the first occurrence of marker is dropped. The rest is trimmed.
func StripEcho(text, marker string) string {
	if marker != "" {
		if i := strings.Index(text, marker); i >= 0 {
			text = text[i+len(marker):]
		}
	}
	return strings.TrimSpace(text)
}

func echoMarker(d models.ModelDescriptor) string {
	if d.EchoMarker != "" {
		return d.EchoMarker
	}
	return DefaultEchoMarker
}

func (c *Client) reject(ctx context.Context, entry models.AuditEntry, err error) {
	entry.State = string(StateRejected)
	entry.ErrorMessage = err.Error()
	c.record(ctx, entry)
}

func (c *Client) finish(ctx context.Context, entry models.AuditEntry, r Reply, err error, start time.Time) {
	entry.State = string(r.State)
	entry.CacheHit = r.CacheHit
	entry.Attempts = r.Attempts
	entry.ResponseChars = len(r.Message.Content)
	entry.LatencyMs = c.now().Sub(start).Milliseconds()
	if err != nil {
		entry.ErrorMessage = err.Error()
		var pe *provider.Error
		if errors.As(err, &pe) {
			entry.StatusCode = pe.StatusCode
		}
	}
	c.record(ctx, entry)
}

func (c *Client) record(ctx context.Context, entry models.AuditEntry) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Log(context.WithoutCancel(ctx), entry); err != nil {
		log.Errorf("gateway: audit log: %v", err)
	}
}
