package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pario-ai/chatgate/pkg/models"
)

type memoryEntry struct {
	key       string
	model     string
	resp      models.Message
	createdAt time.Time
}

// Memory is an in-process Cache. With maxEntries <= 0 it is bounded only by
// TTL; otherwise the least recently used entry is evicted on overflow.
type Memory struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List
	now        func() time.Time
	hits       atomic.Int64
	misses     atomic.Int64
}

// NewMemory creates an in-memory cache.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Get returns a live entry. Expired entries are dropped on sight.
func (m *Memory) Get(key string) (models.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		m.misses.Add(1)
		return models.Message{}, false
	}
	e := el.Value.(*memoryEntry)
	if m.now().Sub(e.createdAt) > m.ttl {
		m.remove(el)
		m.misses.Add(1)
		return models.Message{}, false
	}
	m.order.MoveToFront(el)
	m.hits.Add(1)
	return e.resp, true
}

// Set stores or refreshes an entry.
func (m *Memory) Set(key, model string, resp models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		e := el.Value.(*memoryEntry)
		e.model, e.resp, e.createdAt = model, resp, m.now()
		m.order.MoveToFront(el)
		return nil
	}
	el := m.order.PushFront(&memoryEntry{key: key, model: model, resp: resp, createdAt: m.now()})
	m.entries[key] = el
	if m.maxEntries > 0 {
		for m.order.Len() > m.maxEntries {
			m.remove(m.order.Back())
		}
	}
	return nil
}

// Clear removes every entry. Hit and miss counters are kept.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*list.Element)
	m.order.Init()
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Stats returns cache performance metrics.
func (m *Memory) Stats() (models.CacheStats, error) {
	return models.CacheStats{
		Entries: int64(m.Len()),
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}, nil
}

func (m *Memory) remove(el *list.Element) {
	m.order.Remove(el)
	delete(m.entries, el.Value.(*memoryEntry).key)
}
