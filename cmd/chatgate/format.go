package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/chatgate/pkg/models"
)

func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-22s %-10s %5s %6s %8s %-20s\n",
		"REQUEST ID", "MODEL", "STATE", "TRIES", "STATUS", "LATENCY", "TIME")
	b.WriteString(strings.Repeat("-", 116) + "\n")
	for _, e := range entries {
		state := e.State
		if e.CacheHit {
			state += "*"
		}
		fmt.Fprintf(&b, "%-38s %-22s %-10s %5d %6d %6dms %-20s\n",
			e.RequestID, e.Model, state, e.Attempts, e.StatusCode,
			e.LatencyMs, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatAuditEntry(e models.AuditEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request ID:    %s\n", e.RequestID)
	fmt.Fprintf(&b, "Model:         %s\n", e.Model)
	if e.ModelPath != "" {
		fmt.Fprintf(&b, "Path:          %s\n", e.ModelPath)
	}
	fmt.Fprintf(&b, "Session:       %s\n", e.SessionID)
	fmt.Fprintf(&b, "State:         %s\n", e.State)
	fmt.Fprintf(&b, "Cache hit:     %t\n", e.CacheHit)
	fmt.Fprintf(&b, "Attempts:      %d\n", e.Attempts)
	fmt.Fprintf(&b, "Status:        %d\n", e.StatusCode)
	fmt.Fprintf(&b, "Latency:       %dms\n", e.LatencyMs)
	fmt.Fprintf(&b, "Chars:         %d prompt / %d response\n", e.PromptChars, e.ResponseChars)
	fmt.Fprintf(&b, "Time:          %s\n", e.CreatedAt.Format(time.RFC3339))
	if e.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error:         %s\n", e.ErrorMessage)
	}
	return b.String()
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %-12s %-10s %8s\n", "MODEL", "DAY", "STATE", "COUNT")
	b.WriteString(strings.Repeat("-", 58) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-25s %-12s %-10s %8d\n", s.Model, s.Day, s.State, s.Count)
	}
	return b.String()
}

func formatSessions(sessions []models.Session) string {
	if len(sessions) == 0 {
		return "No sessions found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-22s %8s %-20s\n", "SESSION", "MODEL", "MESSAGES", "LAST ACTIVITY")
	b.WriteString(strings.Repeat("-", 91) + "\n")
	for _, s := range sessions {
		fmt.Fprintf(&b, "%-38s %-22s %8d %-20s\n",
			s.ID, s.Model, s.MessageCount, s.LastActivity.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
