package runtime

import lru "github.com/hashicorp/golang-lru/v2"

// queryCache maps query text to its embedding with least-recently-used
// eviction. A non-positive capacity disables caching.
type queryCache struct {
	entries *lru.Cache[string, []float32]
}

func newQueryCache(capacity int) *queryCache {
	c := &queryCache{}
	if capacity > 0 {
		// New only fails for a non-positive size.
		c.entries, _ = lru.New[string, []float32](capacity)
	}
	return c
}

func (c *queryCache) get(query string) ([]float32, bool) {
	if c.entries == nil {
		return nil, false
	}
	return c.entries.Get(query)
}

func (c *queryCache) put(query string, vec []float32) {
	if c.entries != nil {
		c.entries.Add(query, vec)
	}
}

func (c *queryCache) clear() {
	if c.entries != nil {
		c.entries.Purge()
	}
}

func (c *queryCache) len() int {
	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}
