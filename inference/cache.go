package inference

import (
	"slices"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedPredictor memoizes predictions by symptom set. Cached values are
// shared between callers and must not be modified.
type CachedPredictor struct {
	next       Predictor
	cache      *lru.Cache[entryKey, *Prediction]
	generation atomic.Uint64
	hits       atomic.Int64
	misses     atomic.Int64
}

// entryKey scopes a symptom set to the generation it was computed in, so a
// miss that finishes after Purge is never served.
type entryKey struct {
	generation uint64
	symptoms   string
}

func NewCachedPredictor(next Predictor, size int) (*CachedPredictor, error) {
	cache, err := lru.New[entryKey, *Prediction](size)
	if err != nil {
		return nil, err
	}
	return &CachedPredictor{next: next, cache: cache}, nil
}

func (c *CachedPredictor) Predict(symptoms []string) (*Prediction, error) {
	// The generation is read before next runs; Purge bumps it only after the
	// new model is in place.
	key := entryKey{generation: c.generation.Load(), symptoms: cacheKey(symptoms)}
	if p, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return p, nil
	}
	c.misses.Add(1)
	p, err := c.next.Predict(symptoms)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, p)
	return p, nil
}

// Purge drops every cached prediction, e.g. after the model is replaced.
// Misses still in flight store under the old generation and are unreachable.
func (c *CachedPredictor) Purge() {
	c.generation.Add(1)
	c.cache.Purge()
}

func (c *CachedPredictor) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// cacheKey canonicalizes a symptom set: order and duplicates do not matter.
func cacheKey(symptoms []string) string {
	set := slices.Clone(symptoms)
	slices.Sort(set)
	return strings.Join(slices.Compact(set), "\x00")
}
