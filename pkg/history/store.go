// Package history persists conversation transcripts so a session can be
// listed and exported after the process exits.
package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/chatgate/pkg/models"
)

// ErrSessionNotFound is returned when a session id has no record.
var ErrSessionNotFound = errors.New("session not found")

// Store is a SQLite transcript store.
type Store struct {
	db *sql.DB
}

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id TEXT PRIMARY KEY,
	model TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	last_activity INTEGER NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0
);
`

const createMessagesTable = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	is_error INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, seq);
`

// New opens the store at dbPath and runs auto-migration.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "open history db")
	}
	// One writer keeps seq allocation race free.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createSessionsTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate sessions table")
	}
	if _, err := db.Exec(createMessagesTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate messages table")
	}
	return &Store{db: db}, nil
}

// Touch creates the session if needed and records the model now in use.
func (s *Store) Touch(sessionID, model string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO chat_sessions (id, model, started_at, last_activity) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET model = excluded.model, last_activity = excluded.last_activity`,
		sessionID, model, at.UnixMilli(), at.UnixMilli(),
	)
	return errors.Wrap(err, "touch session")
}

// Append adds msg to the end of the session's transcript.
func (s *Store) Append(sessionID string, msg models.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin append")
	}
	defer tx.Rollback()

	at := msg.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	_, err = tx.Exec(
		`INSERT INTO chat_sessions (id, model, started_at, last_activity) VALUES (?, '', ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		sessionID, at.UnixMilli(), at.UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(err, "ensure session")
	}

	var seq int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_messages WHERE session_id = ?`, sessionID).Scan(&seq); err != nil {
		return errors.Wrap(err, "next seq")
	}

	_, err = tx.Exec(
		`INSERT INTO chat_messages (session_id, seq, role, content, model, is_error, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, seq, string(msg.Role), msg.Content, msg.Model, msg.Error, msg.ErrorMessage, at.UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(err, "insert message")
	}

	_, err = tx.Exec(
		`UPDATE chat_sessions SET last_activity = ?, message_count = message_count + 1 WHERE id = ?`,
		at.UnixMilli(), sessionID,
	)
	if err != nil {
		return errors.Wrap(err, "update session counters")
	}
	return errors.Wrap(tx.Commit(), "commit append")
}

// Clear removes a session's messages but keeps the session row.
func (s *Store) Clear(sessionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin clear")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chat_messages WHERE session_id = ?`, sessionID); err != nil {
		return errors.Wrap(err, "clear messages")
	}
	if _, err := tx.Exec(`UPDATE chat_sessions SET message_count = 0 WHERE id = ?`, sessionID); err != nil {
		return errors.Wrap(err, "reset session counters")
	}
	return errors.Wrap(tx.Commit(), "commit clear")
}

// Session returns a single session.
func (s *Store) Session(ctx context.Context, sessionID string) (models.Session, error) {
	var (
		sess                  models.Session
		startedAt, lastActive int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, model, started_at, last_activity, message_count FROM chat_sessions WHERE id = ?`,
		sessionID,
	).Scan(&sess.ID, &sess.Model, &startedAt, &lastActive, &sess.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, errors.Wrapf(ErrSessionNotFound, "%q", sessionID)
	}
	if err != nil {
		return models.Session{}, errors.Wrap(err, "get session")
	}
	sess.StartedAt = time.UnixMilli(startedAt)
	sess.LastActivity = time.UnixMilli(lastActive)
	return sess, nil
}

// ListSessions returns sessions, most recently active first. A non-positive
// limit returns all of them.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]models.Session, error) {
	query := `SELECT id, model, started_at, last_activity, message_count FROM chat_sessions ORDER BY last_activity DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var (
			sess                  models.Session
			startedAt, lastActive int64
		)
		if err := rows.Scan(&sess.ID, &sess.Model, &startedAt, &lastActive, &sess.MessageCount); err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		sess.StartedAt = time.UnixMilli(startedAt)
		sess.LastActivity = time.UnixMilli(lastActive)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Messages returns a session's transcript in order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]models.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, seq, role, content, model, is_error, error_message, created_at
		 FROM chat_messages WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query messages")
	}
	defer rows.Close()

	var records []models.HistoryRecord
	for rows.Next() {
		var (
			r         models.HistoryRecord
			role      string
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Seq, &role, &r.Message.Content, &r.Message.Model,
			&r.Message.Error, &r.Message.ErrorMessage, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		r.Message.Role = models.Role(role)
		r.Message.Timestamp = time.UnixMilli(createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
