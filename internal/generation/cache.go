package generation

import (
	"context"
	"regexp"
	"strconv"
	"sync"
	"time"

	"flash-study/internal/models"
)

const (
	// DefaultCacheTTL is how long a generated set stays reusable.
	DefaultCacheTTL = 5 * time.Minute

	fingerprintPrefixLen = 50
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Cache memoizes generated flashcard sets by input text.
type Cache interface {
	Get(ctx context.Context, text string) ([]models.Flashcard, bool)
	Put(ctx context.Context, text string, cards []models.Flashcard)
}

// Fingerprint derives the cache key for text: its length in characters plus
// the first 50 characters with whitespace runs collapsed to "_". Distinct texts
// sharing length and prefix collide; that false-hit risk is accepted.
func Fingerprint(text string) string {
	runes := []rune(text)
	prefix := runes
	if len(prefix) > fingerprintPrefixLen {
		prefix = prefix[:fingerprintPrefixLen]
	}
	return strconv.Itoa(len(runes)) + "_" + whitespaceRun.ReplaceAllString(string(prefix), "_")
}

type cacheEntry struct {
	cards     []models.Flashcard
	createdAt time.Time
}

// MemoryCache is a process-local Cache. Entries expire after TTL. With
// MaxEntries zero the map is unbounded apart from expiry; otherwise the oldest
// entry is evicted once the bound is reached.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	entries    map[string]cacheEntry
}

type MemoryCacheOption func(*MemoryCache)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) { c.now = now }
}

// WithMaxEntries bounds the number of live entries.
func WithMaxEntries(n int) MemoryCacheOption {
	return func(c *MemoryCache) { c.maxEntries = n }
}

func NewMemoryCache(ttl time.Duration, opts ...MemoryCacheOption) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, text string) ([]models.Flashcard, bool) {
	key := Fingerprint(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.createdAt) >= c.ttl {
		return nil, false
	}
	return cloneCards(entry.cards), true
}

func (c *MemoryCache) Put(_ context.Context, text string, cards []models.Flashcard) {
	key := Fingerprint(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = cacheEntry{cards: cloneCards(cards), createdAt: now}
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops expired entries, then the oldest one if still at capacity.
func (c *MemoryCache) evictLocked(now time.Time) {
	for key, entry := range c.entries {
		if now.Sub(entry.createdAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, entry := range c.entries {
		if oldestKey == "" || entry.createdAt.Before(oldestAt) {
			oldestKey, oldestAt = key, entry.createdAt
		}
	}
	delete(c.entries, oldestKey)
}

func cloneCards(cards []models.Flashcard) []models.Flashcard {
	if cards == nil {
		return nil
	}
	out := make([]models.Flashcard, len(cards))
	for i, card := range cards {
		out[i] = card
		if card.Options != nil {
			out[i].Options = append([]string(nil), card.Options...)
		}
	}
	return out
}

var _ Cache = (*MemoryCache)(nil)
