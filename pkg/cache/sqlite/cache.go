package sqlite

import (
	"database/sql"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/chatgate/pkg/cache"
	"github.com/pario-ai/chatgate/pkg/models"
)

// Cache is a persistent exact-match reply cache backed by SQLite. It
// satisfies cache.Cache.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS reply_cache (
	cache_key TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	response BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
`

// New creates a Cache with the given database path and TTL. A non-positive
// ttl means cache.DefaultTTL.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open cache db")
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate cache db")
	}

	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// WithClock replaces the time source. Intended for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get retrieves a cached reply. Returns false if not found or expired.
func (c *Cache) Get(key string) (models.Message, bool) {
	var response []byte
	var createdAt int64

	err := c.db.QueryRow(
		`SELECT response, created_at FROM reply_cache WHERE cache_key = ?`, key,
	).Scan(&response, &createdAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Errorf("cache get: %v", err)
		}
		c.misses.Add(1)
		return models.Message{}, false
	}

	if c.now().Sub(time.Unix(0, createdAt)) > c.ttl {
		c.misses.Add(1)
		return models.Message{}, false
	}

	var msg models.Message
	if err := json.Unmarshal(response, &msg); err != nil {
		log.Errorf("cache decode %s: %v", key, err)
		c.misses.Add(1)
		return models.Message{}, false
	}

	c.hits.Add(1)
	return msg, true
}

// Set stores a reply in the cache.
func (c *Cache) Set(key, model string, resp models.Message) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "cache encode")
	}
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO reply_cache (cache_key, model, response, created_at)
		 VALUES (?, ?, ?, ?)`,
		key, model, data, c.now().UnixNano(),
	)
	if err != nil {
		return errors.Wrap(err, "cache put")
	}
	return nil
}

// Len returns the number of stored rows.
func (c *Cache) Len() int {
	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM reply_cache`).Scan(&count); err != nil {
		log.Errorf("cache len: %v", err)
		return 0
	}
	return count
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRow(`SELECT COUNT(*) FROM reply_cache`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, errors.Wrap(err, "cache stats")
	}
	return models.CacheStats{
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	if _, err := c.db.Exec(`DELETE FROM reply_cache`); err != nil {
		return errors.Wrap(err, "cache clear")
	}
	return nil
}

// ClearExpired removes only entries older than the TTL and reports how many
// were deleted.
func (c *Cache) ClearExpired() (int64, error) {
	cutoff := c.now().Add(-c.ttl).UnixNano()
	res, err := c.db.Exec(`DELETE FROM reply_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "cache clear expired")
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
