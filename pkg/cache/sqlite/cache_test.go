package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/chatgate/pkg/cache"
	"github.com/pario-ai/chatgate/pkg/models"
)

var _ cache.Cache = (*Cache)(nil)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *fakeClock) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := New(dbPath, ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return c.WithClock(clock.Now), clock
}

func TestSetAndGet(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	key := cache.Key("org/model", "hi", models.GenerationOptions{})
	want := models.AssistantMessage("hello", "krishna-saarthi-counselor", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, c.Set(key, "krishna-saarthi-counselor", want))

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, want.Content, got.Content)
	assert.Equal(t, want.Model, got.Model)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))

	_, ok = c.Get(cache.Key("org/other", "hi", models.GenerationOptions{}))
	assert.False(t, ok, "different model path must miss")
}

func TestTTLExpiration(t *testing.T) {
	c, clock := newTestCache(t, 5*time.Minute)
	require.NoError(t, c.Set("k", "m", models.AssistantMessage("data", "m", time.Time{})))

	clock.Advance(5*time.Minute + time.Second)

	_, ok := c.Get("k")
	assert.False(t, ok, "expected cache miss after TTL expiration")
}

func TestZeroTTLUsesDefault(t *testing.T) {
	c, clock := newTestCache(t, 0)
	require.NoError(t, c.Set("k", "m", models.AssistantMessage("data", "m", time.Time{})))

	clock.Advance(cache.DefaultTTL - time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok, "entry must survive until the default TTL")

	clock.Advance(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)

	require.NoError(t, c.Set("h1", "m", models.AssistantMessage("data", "m", time.Time{})))
	c.Get("h1") // hit
	c.Get("h2") // miss

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, models.CacheStats{Entries: 1, Hits: 1, Misses: 1}, stats)
	assert.Equal(t, 1, c.Len())
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	require.NoError(t, c.Set("h1", "m", models.AssistantMessage("a", "m", time.Time{})))
	require.NoError(t, c.Set("h2", "m", models.AssistantMessage("b", "m", time.Time{})))

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Len())
}

func TestClearExpired(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)
	require.NoError(t, c.Set("old", "m", models.AssistantMessage("a", "m", time.Time{})))
	clock.Advance(2 * time.Minute)
	require.NoError(t, c.Set("fresh", "m", models.AssistantMessage("b", "m", time.Time{})))

	n, err := c.ClearExpired()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, ok := c.Get("fresh")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}
