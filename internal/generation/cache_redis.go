package generation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"flash-study/internal/logger"
	"flash-study/internal/models"
)

const redisKeyPrefix = "flashcards:"

// RedisCache shares generated sets across server instances. Redis failures
// read as misses and are only logged.
type RedisCache struct {
	rdb *goredis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewRedisCache(rdb *goredis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisCache{rdb: rdb, ttl: ttl, log: log.With("component", "RedisCache")}
}

func (c *RedisCache) Get(ctx context.Context, text string) ([]models.Flashcard, bool) {
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+Fingerprint(text)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Warn("cache read failed", "error", err)
		}
		return nil, false
	}
	var cards []models.Flashcard
	if err := json.Unmarshal(raw, &cards); err != nil {
		c.log.Warn("cache entry undecodable", "error", err)
		return nil, false
	}
	return cards, len(cards) > 0
}

func (c *RedisCache) Put(ctx context.Context, text string, cards []models.Flashcard) {
	raw, err := json.Marshal(cards)
	if err != nil {
		c.log.Warn("cache encode failed", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+Fingerprint(text), raw, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", "error", err)
	}
}

var _ Cache = (*RedisCache)(nil)
