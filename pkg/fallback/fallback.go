// Package fallback produces the canned reply returned when a model cannot
// answer. It never touches the network.
package fallback

import (
	"time"

	"github.com/pario-ai/chatgate/pkg/models"
)

// Generic is used for models the responder does not know.
const Generic = "I'm unable to respond right now. Please try again in a moment."

// specialtyText flavours the reply for models that carry no fallback text of
// their own.
var specialtyText = map[string]string{
	"spiritual-guidance": "Let us pause for a moment. Sit quietly, breathe, and we will continue shortly.",
	"wellness":           "I can't respond right now. Take a short break, drink some water, and try again soon.",
	"productivity":       "I'm offline for a moment. Use the time to finish one small task, then check back.",
	"creative-writing":   "Inspiration is taking a detour. Keep writing and ask me again in a minute.",
	"general":            Generic,
}

// Responder maps model ids to canned replies.
type Responder struct {
	replies map[string]string
	names   map[string]string
	now     func() time.Time
}

// New builds a Responder from descriptors. A descriptor's own Fallback text
// wins over its specialty's default.
func New(descriptors []models.ModelDescriptor) *Responder {
	r := &Responder{
		replies: make(map[string]string, len(descriptors)),
		names:   make(map[string]string, len(descriptors)),
		now:     time.Now,
	}
	for _, d := range descriptors {
		text := d.Fallback
		if text == "" {
			text = specialtyText[d.Specialty]
		}
		if text == "" {
			text = Generic
		}
		r.replies[d.ID] = text
		r.names[d.ID] = d.Name
	}
	return r
}

// WithClock sets the clock used to timestamp replies.
func (r *Responder) WithClock(now func() time.Time) *Responder {
	r.now = now
	return r
}

// Text returns the canned reply for modelID.
func (r *Responder) Text(modelID string) string {
	if text, ok := r.replies[modelID]; ok {
		return text
	}
	return Generic
}

// Respond builds an assistant message for modelID flagged as an error.
func (r *Responder) Respond(modelID, errorMessage string) models.Message {
	name := r.names[modelID]
	if name == "" {
		name = modelID
	}
	msg := models.AssistantMessage(r.Text(modelID), name, r.now())
	msg.Error = true
	msg.ErrorMessage = errorMessage
	return msg
}
