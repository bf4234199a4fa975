package models

import "time"

// Session is a persisted conversation.
type Session struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// HistoryRecord is one persisted transcript line within a session.
type HistoryRecord struct {
	ID        int64   `json:"id"`
	SessionID string  `json:"session_id"`
	Seq       int     `json:"seq"`
	Message   Message `json:"message"`
}
