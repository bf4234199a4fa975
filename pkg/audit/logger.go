// Package audit keeps a SQLite log of every sendMessage outcome.
package audit

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/chatgate/pkg/models"
)

// Logger writes and queries audit entries in a dedicated SQLite database.
type Logger struct {
	db   *sql.DB
	cfg  models.AuditConfig
	now  func() time.Time
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the audit SQLite database, creates the schema and starts the
// hourly retention sweep.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "open audit db")
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate audit db")
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		now:  time.Now,
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS request_log (
		request_id     TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL DEFAULT '',
		model          TEXT NOT NULL DEFAULT '',
		model_path     TEXT NOT NULL DEFAULT '',
		state          TEXT NOT NULL,
		cache_hit      INTEGER NOT NULL DEFAULT 0,
		attempts       INTEGER NOT NULL DEFAULT 0,
		status_code    INTEGER NOT NULL DEFAULT 0,
		error_message  TEXT NOT NULL DEFAULT '',
		prompt_chars   INTEGER NOT NULL DEFAULT 0,
		response_chars INTEGER NOT NULL DEFAULT 0,
		latency_ms     INTEGER NOT NULL DEFAULT 0,
		created_at     INTEGER NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_request_model ON request_log(model)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_request_created ON request_log(created_at)`)
	return err
}

// Log inserts an entry. A nil Logger discards it.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO request_log (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.SessionID, entry.Model, entry.ModelPath,
		entry.State, entry.CacheHit, entry.Attempts,
		entry.StatusCode, entry.ErrorMessage, entry.PromptChars, entry.ResponseChars,
		entry.LatencyMs, entry.CreatedAt.UnixMilli(),
	)
	return errors.Wrap(err, "insert audit entry")
}

const entryColumns = `request_id, session_id, model, model_path, state, cache_hit, attempts,
	status_code, error_message, prompt_chars, response_chars, latency_ms, created_at`

// Query returns entries matching opts, newest first. Limit defaults to 100.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	filter := func(clause string, v any) {
		where = append(where, clause)
		args = append(args, v)
	}
	if opts.RequestID != "" {
		filter("request_id = ?", opts.RequestID)
	}
	if opts.Model != "" {
		filter("model = ?", opts.Model)
	}
	if opts.State != "" {
		filter("state = ?", opts.State)
	}
	if opts.SessionID != "" {
		filter("session_id = ?", opts.SessionID)
	}
	if !opts.Since.IsZero() {
		filter("created_at >= ?", opts.Since.UnixMilli())
	}

	q := "SELECT " + entryColumns + " FROM request_log"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query audit")
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (models.AuditEntry, error) {
	var (
		e         models.AuditEntry
		createdAt int64
	)
	err := rows.Scan(
		&e.RequestID, &e.SessionID, &e.Model, &e.ModelPath, &e.State, &e.CacheHit, &e.Attempts,
		&e.StatusCode, &e.ErrorMessage, &e.PromptChars, &e.ResponseChars, &e.LatencyMs, &createdAt,
	)
	if err != nil {
		return e, errors.Wrap(err, "scan audit row")
	}
	e.CreatedAt = time.UnixMilli(createdAt)
	return e, nil
}

// Stats returns counts grouped by model, UTC day and terminal state.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT model, date(created_at / 1000, 'unixepoch') AS day, state, count(*) AS cnt
		 FROM request_log GROUP BY model, day, state ORDER BY day DESC, model, state`)
	if err != nil {
		return nil, errors.Wrap(err, "audit stats")
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var day sql.NullString
		if err := rows.Scan(&s.Model, &day, &s.State, &s.Count); err != nil {
			return nil, errors.Wrap(err, "scan audit stat")
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the retention period. A non-positive
// retention keeps everything.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	if l.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := l.now().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM request_log WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "audit cleanup")
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			n, err := l.Cleanup(context.Background())
			if err != nil {
				log.Errorf("audit: %v", err)
			} else if n > 0 {
				log.Debugf("audit: removed %d expired entries", n)
			}
		}
	}
}
