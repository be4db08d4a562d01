package sqlkit

import (
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// QueryCache memoizes compiled SQL text keyed by a deterministic
// serialization of builder state. It is bounded: once full it refuses new
// insertions instead of evicting, because compiled text for a given state
// never goes stale.
type QueryCache struct {
	mu      sync.Mutex
	cap     int
	entries map[string]string
}

func NewQueryCache(capacity int) *QueryCache {
	return &QueryCache{
		cap:     capacity,
		entries: make(map[string]string, capacity),
	}
}

func (c *QueryCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sql, ok := c.entries[key]
	return sql, ok
}

func (c *QueryCache) Put(key, sql string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.cap {
		return
	}
	c.entries[key] = sql
}

func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// stateKey is the canonical snapshot of everything that influences compiled
// SQL text. Bind values are deliberately absent: the emitted fragments
// already encode their placeholder counts.
type stateKey struct {
	Driver    string
	Distinct  bool
	Select    []string
	From      string
	Joins     []string
	Wheres    []string
	GroupBys  []string
	Havings   []string
	OrderBys  []string
	Limit     int
	Offset    int
	CTEs      []string
	Recursive bool
	Unions    []string
}

func (k stateKey) encode() (string, error) {
	raw, err := msgpack.Marshal(k)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
