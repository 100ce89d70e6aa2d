// Package unit holds SourceUnits and the content-hash keyed cache that lets
// identical content be parsed once per engine lifetime.
package unit

import (
	"fmt"
	"sync"

	"archguard/internal/engine/facts"
	"archguard/internal/engine/parser"
	"archguard/internal/shared/observability"

	"github.com/zeebo/xxh3"
)

// Key identifies path-independent analysis results.
type Key struct {
	Language string
	Hash     uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%016x", k.Language, k.Hash)
}

// HashContent returns the xxh3 content hash used for cache keys.
func HashContent(content []byte) uint64 {
	return xxh3.Hash(content)
}

// Analysis is the path-independent result of parsing one content blob.
// Exactly one of Err or (Syntax, Facts) is set.
type Analysis struct {
	Key    Key
	Syntax *parser.Syntax
	Facts  *facts.FileFacts
	Err    error
}

func (a *Analysis) release() {
	if a != nil && a.Syntax != nil {
		a.Syntax.Close()
	}
}

// SourceUnit is one file of a run: identity plus shared analysis.
type SourceUnit struct {
	Path     string // absolute
	RelPath  string // slash path relative to the run root
	Language string
	Module   string
	Hash     uint64
	Analysis *Analysis
}

// Facts returns the unit's facts or nil when the file was unparsable.
func (u *SourceUnit) Facts() *facts.FileFacts {
	if u == nil || u.Analysis == nil {
		return nil
	}
	return u.Analysis.Facts
}

// Parsed reports whether the unit has a structural tree.
func (u *SourceUnit) Parsed() bool {
	return u != nil && u.Analysis != nil && u.Analysis.Err == nil && u.Analysis.Facts != nil
}

// Cache maps (language, content hash) to analyses. Lookups are safe for
// concurrent use; the first writer of a key wins and later writers release
// their redundant work. Evicted analyses are retired, not closed, until
// Sweep is called at a point where no reader holds them.
type Cache struct {
	lru *lruCache[Key, *Analysis]

	mu      sync.Mutex
	retired []*Analysis
}

func NewCache(capacity int) *Cache {
	c := &Cache{}
	c.lru = newLRUCache[Key, *Analysis](capacity, func(_ Key, a *Analysis) {
		c.mu.Lock()
		c.retired = append(c.retired, a)
		c.mu.Unlock()
	})
	return c
}

// GetOrCreate returns the cached analysis for key, building it on a miss.
// build runs outside any lock, so concurrent misses may both build; only the
// first stored result survives.
func (c *Cache) GetOrCreate(key Key, build func() *Analysis) (a *Analysis, hit bool) {
	if cached, ok := c.lru.Get(key); ok {
		observability.UnitCacheLookups.WithLabelValues("hit").Inc()
		return cached, true
	}
	observability.UnitCacheLookups.WithLabelValues("miss").Inc()

	fresh := build()
	fresh.Key = key
	stored, inserted := c.lru.PutIfAbsent(key, fresh)
	if !inserted {
		observability.UnitCacheLookups.WithLabelValues("discarded").Inc()
		fresh.release()
	}
	return stored, false
}

func (c *Cache) Len() int { return c.lru.Len() }

// Sweep releases analyses evicted since the last sweep.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	retired := c.retired
	c.retired = nil
	c.mu.Unlock()
	for _, a := range retired {
		a.release()
	}
	return len(retired)
}

// Purge drops and releases everything.
func (c *Cache) Purge() {
	c.lru.Purge()
	c.Sweep()
}
