package cache

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/chatgate/pkg/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemory(maxEntries int) (*Memory, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewMemory(DefaultTTL, maxEntries).WithClock(clock.Now), clock
}

func reply(text string) models.Message {
	return models.AssistantMessage(text, "test", time.Time{})
}

func TestKeyIsStable(t *testing.T) {
	opts := models.GenerationOptions{Temperature: models.Float(0.5)}
	k1 := Key("org/model", "hello there", opts)
	k2 := Key("org/model", "  hello \n there ", opts)
	assert.Equal(t, k1, k2, "whitespace differences normalize away")

	assert.NotEqual(t, k1, Key("org/other", "hello there", opts))
	assert.NotEqual(t, k1, Key("org/model", "hello there", models.GenerationOptions{}))
	assert.NotEqual(t, k1, Key("org/model", "Hello there", opts))
}

func TestGetSet(t *testing.T) {
	c, _ := newTestMemory(0)
	_, ok := c.Get("k")
	assert.False(t, ok)

	require.NoError(t, c.Set("k", "m", reply("hi")))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "hi", got.Content)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, models.CacheStats{Entries: 1, Hits: 1, Misses: 1}, stats)
}

func TestExpiry(t *testing.T) {
	c, clock := newTestMemory(0)
	require.NoError(t, c.Set("k", "m", reply("stale")))

	clock.Advance(DefaultTTL)
	_, ok := c.Get("k")
	assert.True(t, ok, "entry is live at exactly the TTL")

	clock.Advance(time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry older than the TTL is never returned")
	assert.Equal(t, 0, c.Len())
}

func TestUnboundedByDefault(t *testing.T) {
	c, _ := newTestMemory(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, c.Set(Key("p", "message "+strconv.Itoa(i), models.GenerationOptions{}), "m", reply("x")))
	}
	assert.Equal(t, 1000, c.Len())
}

func TestLRUEviction(t *testing.T) {
	c, _ := newTestMemory(2)
	require.NoError(t, c.Set("a", "m", reply("a")))
	require.NoError(t, c.Set("b", "m", reply("b")))
	_, _ = c.Get("a") // a is now most recently used
	require.NoError(t, c.Set("c", "m", reply("c")))

	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestClear(t *testing.T) {
	c, _ := newTestMemory(0)
	require.NoError(t, c.Set("a", "m", reply("a")))
	require.NoError(t, c.Set("b", "m", reply("b")))
	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Len())
}
