package dispatcher

import (
	"sync"
	"time"

	"github.com/ebusd-go/ebusd/catalog"
	"github.com/ebusd-go/ebusd/internal/metrics"
)

// Cache tracks every message the dispatcher has ever seen complete, so
// listeners can enumerate messages whose last_change_time falls within a
// window without scanning the whole catalog (spec.md §4.5 "Cache and
// notifications"). Grounded on cache/cache.go's map-backed tracking,
// adapted from a netlink-cookie key to an eBUS identity key; unlike the
// teacher's current/previous generation swap (there is no notion of
// "cycle" here), entries are simply upserted as telegrams complete.
type Cache struct {
	mu   sync.RWMutex
	byID map[catalog.Key]*catalog.Message
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{byID: make(map[catalog.Key]*catalog.Message)}
}

// Touch records m as seen, keyed by its own identity key.
func (c *Cache) Touch(m *catalog.Message) {
	c.mu.Lock()
	c.byID[m.Key(catalog.SourceAny)] = m
	n := len(c.byID)
	c.mu.Unlock()
	metrics.CacheSizeGauge.Set(float64(n))
}

// ChangedSince returns every tracked message whose LastChangeTime falls
// within [since, until), per spec.md §4.5.
func (c *Cache) ChangedSince(since, until time.Time) []*catalog.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*catalog.Message
	for _, m := range c.byID {
		m.Mu.Lock()
		t := m.LastChangeTime
		m.Mu.Unlock()
		if !t.Before(since) && t.Before(until) {
			out = append(out, m)
		}
	}
	return out
}

// Len reports how many distinct messages have been tracked.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
