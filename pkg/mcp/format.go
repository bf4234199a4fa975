package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/chatgate/pkg/gateway"
	"github.com/pario-ai/chatgate/pkg/models"
)

// formatModels formats the catalog as a text table.
func formatModels(list []models.ModelDescriptor, active string) string {
	if len(list) == 0 {
		return "No models configured."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "  %-28s %-28s %-20s %s\n", "ID", "Name", "Specialty", "Aliases")
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for _, d := range list {
		marker := " "
		if d.ID == active {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %-28s %-28s %-20s %s\n",
			marker, d.ID, d.Name, d.Specialty, strings.Join(d.Aliases, ", "))
	}
	return b.String()
}

func formatReply(r gateway.Reply) string {
	if r.State == gateway.StateCancelled {
		return "The request was superseded or cancelled; no reply."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", r.Message.Model, r.Message.Content)
	if r.Message.Error {
		fmt.Fprintf(&b, "\n(fallback reply: %s)\n", r.Message.ErrorMessage)
	}
	if r.CacheHit {
		b.WriteString("\n(cached)\n")
	}
	return b.String()
}

func formatTranscript(msgs []models.Message) string {
	if len(msgs) == 0 {
		return "Conversation is empty."
	}
	var b strings.Builder
	for _, m := range msgs {
		who := "You"
		if m.Role == models.RoleAssistant {
			who = m.Model
		}
		fmt.Fprintf(&b, "%s: %s\n", who, m.Content)
	}
	return b.String()
}

func formatStats(s models.Stats, cs models.CacheStats) string {
	model := s.CurrentModel
	if model == "" {
		model = "(disconnected)"
	}
	var hitRate float64
	if total := cs.Hits + cs.Misses; total > 0 {
		hitRate = float64(cs.Hits) / float64(total) * 100
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Current model:     %s\n", model)
	fmt.Fprintf(&b, "Cache entries:     %d\n", s.CacheSize)
	fmt.Fprintf(&b, "Cache hit rate:    %.1f%% (%d hits, %d misses)\n", hitRate, cs.Hits, cs.Misses)
	fmt.Fprintf(&b, "Requests (60s):    %d\n", s.RequestsInLastMinute)
	fmt.Fprintf(&b, "Rate limit active: %t\n", s.RateLimitActive)
	return b.String()
}

// formatAuditEntries formats request log entries as a text table.
func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-26s %-10s %5s %8s %6s %-20s\n",
		"Request ID", "Model", "State", "Tries", "Latency", "Status", "Time")
	b.WriteString(strings.Repeat("-", 120) + "\n")
	for _, e := range entries {
		state := e.State
		if e.CacheHit {
			state += "*"
		}
		fmt.Fprintf(&b, "%-36s %-26s %-10s %5d %6dms %6d %-20s\n",
			e.RequestID, e.Model, state, e.Attempts, e.LatencyMs, e.StatusCode,
			e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
