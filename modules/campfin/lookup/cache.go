// Package lookup provides a read-through cache for get-or-create lookups that
// lives for one batch and is passed explicitly to the code that uses it.
package lookup

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "campfin",
	Subsystem: "lookup",
	Name:      "cache_requests_total",
	Help:      "Lookup cache requests by kind and result (hit, miss).",
}, []string{"kind", "result"})

type Key struct {
	Kind    string
	Natural string
}

type Cache struct {
	values map[Key]int64
	hits   int
	misses int
}

func New() *Cache {
	return &Cache{values: make(map[Key]int64)}
}

// GetOrLoad returns the cached id for (kind, natural) or calls load and
// remembers its result. Failed loads are not cached.
func (c *Cache) GetOrLoad(ctx context.Context, kind, natural string, load func(context.Context) (int64, error)) (int64, error) {
	k := Key{Kind: kind, Natural: natural}
	if id, ok := c.values[k]; ok {
		c.hits++
		cacheRequests.WithLabelValues(kind, "hit").Inc()
		return id, nil
	}
	c.misses++
	cacheRequests.WithLabelValues(kind, "miss").Inc()
	id, err := load(ctx)
	if err != nil {
		return 0, err
	}
	c.values[k] = id
	return id, nil
}

// Put records an id learned elsewhere, e.g. from an insert.
func (c *Cache) Put(kind, natural string, id int64) {
	c.values[Key{Kind: kind, Natural: natural}] = id
}

// Forget drops every entry of kind. Used when rows of that kind are deleted
// mid-batch.
func (c *Cache) Forget(kind string) {
	for k := range c.values {
		if k.Kind == kind {
			delete(c.values, k)
		}
	}
}

// Reset empties the cache at the end of a batch.
func (c *Cache) Reset() {
	clear(c.values)
	c.hits, c.misses = 0, 0
}

func (c *Cache) Len() int { return len(c.values) }

func (c *Cache) Stats() (hits, misses int) {
	return c.hits, c.misses
}
