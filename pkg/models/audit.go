package models

import "time"

// AuditEntry records the terminal outcome of one sendMessage call.
type AuditEntry struct {
	RequestID     string    `json:"request_id"`
	SessionID     string    `json:"session_id,omitempty"`
	Model         string    `json:"model"`
	ModelPath     string    `json:"model_path,omitempty"`
	State         string    `json:"state"`
	CacheHit      bool      `json:"cache_hit"`
	Attempts      int       `json:"attempts"`
	StatusCode    int       `json:"status_code,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	PromptChars   int       `json:"prompt_chars"`
	ResponseChars int       `json:"response_chars"`
	LatencyMs     int64     `json:"latency_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Model     string
	State     string
	SessionID string
	RequestID string
	Since     time.Time
	Limit     int
}

// AuditStat holds aggregate counts for a model/day/state combination.
type AuditStat struct {
	Model string
	Day   string
	State string
	Count int
}
