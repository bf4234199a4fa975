package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pario-ai/chatgate/pkg/models"
)

// HistoryStore persists a session's transcript.
type HistoryStore interface {
	Touch(sessionID, model string, at time.Time) error
	Append(sessionID string, msg models.Message) error
	Clear(sessionID string) error
}

// Session is the caller-owned conversation around a Client. It appends only
// replies whose request is still live when they arrive.
type Session struct {
	client *Client
	store  HistoryStore
	now    func() time.Time

	mu         sync.Mutex
	transcript []models.Message
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHistory persists every appended message to store.
func WithHistory(store HistoryStore) SessionOption {
	return func(s *Session) {
		s.store = store
	}
}

// NewSession wraps client.
func NewSession(client *Client, opts ...SessionOption) *Session {
	s := &Session{client: client, now: client.now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying gateway client.
func (s *Session) Client() *Client {
	return s.client
}

// ID returns the session id shared with the client's audit records.
func (s *Session) ID() string {
	return s.client.SessionID()
}

// SelectModel activates a model and greets the user with its welcome line.
func (s *Session) SelectModel(ctx context.Context, id string) (models.ModelDescriptor, error) {
	d, err := s.client.SelectModel(ctx, id)
	if err != nil {
		return d, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		if err := s.store.Touch(s.ID(), d.ID, s.now()); err != nil {
			log.Errorf("session: history touch: %v", err)
		}
	}
	s.appendLocked(s.welcome(d))
	return d, nil
}

// Send sends text and appends the exchange if the reply was delivered.
// Errors are the client's validation and rate limit errors; the transcript
// is untouched in that case. A superseded reply is returned with
// StateCancelled and is not appended.
func (s *Session) Send(ctx context.Context, text string, opts models.GenerationOptions) (Reply, error) {
	sent := s.now()
	reply, err := s.client.SendMessage(ctx, text, opts)
	if err != nil {
		return reply, err
	}

	if !reply.Delivered() {
		return reply, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(models.UserMessage(text, sent))
	s.appendLocked(reply.Message)
	return reply, nil
}

// Cancel silences the in-flight request.
func (s *Session) Cancel() {
	s.client.CancelRequest()
}

// ClearConversation empties the transcript and, if a model is active,
// re-emits its welcome line.
func (s *Session) ClearConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
	if s.store != nil {
		if err := s.store.Clear(s.ID()); err != nil {
			log.Errorf("session: history clear: %v", err)
		}
	}
	if d, err := s.client.ActiveModel(); err == nil {
		s.appendLocked(s.welcome(d))
	}
}

// DisconnectModel cancels any in-flight request, clears the transcript and
// leaves the client disconnected.
func (s *Session) DisconnectModel() {
	s.client.Disconnect()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// ExportConversation renders the transcript as plain text.
func (s *Session) ExportConversation() string {
	model := ""
	if d, err := s.client.ActiveModel(); err == nil {
		model = d.Name
	}
	return FormatTranscript(model, s.Transcript(), s.now())
}

// FormatTranscript renders messages as a human-readable transcript.
func FormatTranscript(model string, messages []models.Message, exportedAt time.Time) string {
	var b strings.Builder
	if model != "" {
		fmt.Fprintf(&b, "Conversation with %s\n", model)
	} else {
		b.WriteString("Conversation\n")
	}
	fmt.Fprintf(&b, "Exported %s\n\n", exportedAt.Format(time.RFC3339))
	for _, m := range messages {
		speaker := "You"
		if m.Role == models.RoleAssistant {
			speaker = m.Model
			if speaker == "" {
				speaker = "Assistant"
			}
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), speaker, m.Content)
		if m.Error {
			fmt.Fprintf(&b, "  (error: %s)\n", m.ErrorMessage)
		}
	}
	return b.String()
}

func (s *Session) welcome(d models.ModelDescriptor) models.Message {
	return models.AssistantMessage(d.WelcomeMessage(), d.Name, s.now())
}

func (s *Session) appendLocked(msg models.Message) {
	s.transcript = append(s.transcript, msg)
	if s.store == nil {
		return
	}
	if err := s.store.Append(s.ID(), msg); err != nil {
		log.Errorf("session: history append: %v", err)
	}
}
