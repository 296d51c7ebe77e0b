// Package cache provides the in-process resume cache used by candidate
// recall. One engine run shares a single cache so the industry-filter
// query hits storage at most once per prefix set within the TTL.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/adhil-payingalil/resumatch/internal/interfaces"
	"github.com/adhil-payingalil/resumatch/internal/models"
)

// allIndustriesKey is the cache key when no industry prefixes are
// configured and recall loads the whole corpus.
const allIndustriesKey = "all_industries"

type entry struct {
	resumes  []*models.Resume
	cachedAt time.Time
}

// ResumeCache is a TTL cache keyed by the sorted industry-prefix set.
// Entries are immutable once stored; callers must not mutate the returned
// slice. Safe for concurrent use.
type ResumeCache struct {
	ttl    time.Duration
	clock  interfaces.Clock
	logger arbor.ILogger

	mu      sync.Mutex
	entries map[string]entry
}

// NewResumeCache creates a cache with the given TTL. A zero or negative
// TTL disables caching entirely.
func NewResumeCache(ttl time.Duration, clock interfaces.Clock, logger arbor.ILogger) *ResumeCache {
	return &ResumeCache{
		ttl:     ttl,
		clock:   clock,
		logger:  logger,
		entries: make(map[string]entry),
	}
}

// Key derives the cache key for a prefix set. The set is sorted and
// deduplicated so logically equal filters share an entry regardless of
// configuration order.
func Key(prefixes []string) string {
	if len(prefixes) == 0 {
		return allIndustriesKey
	}

	unique := make([]string, 0, len(prefixes))
	seen := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	if len(unique) == 0 {
		return allIndustriesKey
	}

	sort.Strings(unique)
	return strings.Join(unique, ",")
}

// Get returns the cached resumes for the key, or (nil, false) when the
// entry is absent or older than the TTL. Expired entries are evicted on
// read.
func (c *ResumeCache) Get(key string) ([]*models.Resume, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(e.cachedAt) >= c.ttl {
		delete(c.entries, key)
		c.logger.Debug().Str("key", key).Msg("Resume cache entry expired")
		return nil, false
	}

	return e.resumes, true
}

// Set stores resumes under the key, stamping the current time.
func (c *ResumeCache) Set(key string, resumes []*models.Resume) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	c.entries[key] = entry{resumes: resumes, cachedAt: c.clock.Now()}
	c.mu.Unlock()

	c.logger.Debug().Str("key", key).Int("resumes", len(resumes)).Msg("Resume cache entry stored")
}

// Clear drops all entries.
func (c *ResumeCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of live entries, counting expired ones that have
// not been evicted yet.
func (c *ResumeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
