package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"exam-session-engine/internal/app"
	"exam-session-engine/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// AvailabilityCache keeps eligible-question counts in Redis, shared by every
// instance, and falls back to the catalogue on a miss.
// Entries are stored as: SET availability:{track|themes|difficulty|official|essential} {json}
//
// A Redis failure never fails the check; the catalogue is queried directly.
type AvailabilityCache struct {
	client  *redis.Client
	counter app.AvailabilityCounter
	ttl     time.Duration
	sf      singleflight.Group
	rnd     *rand.Rand
	rndMu   sync.Mutex
	logger  *slog.Logger
}

func NewAvailabilityCache(client *redis.Client, counter app.AvailabilityCounter, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{
		client:  client,
		counter: counter,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  slog.Default(),
	}
}

func (c *AvailabilityCache) CountEligible(ctx context.Context, f domain.Filter) (domain.Availability, error) {
	key := c.key(f)
	if a, ok := c.get(ctx, key); ok {
		return a, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if a, ok := c.get(ctx, key); ok {
			return a, nil
		}

		a, err := c.counter.CountEligible(ctx, f)
		if err != nil {
			return domain.Availability{}, err
		}

		if ttl := c.ttlWithJitter(); ttl > 0 {
			if raw, err := json.Marshal(a); err == nil {
				if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
					c.logger.WarnContext(ctx, "availability cache write failed", "key", key, "error", err)
				}
			}
		}
		return a, nil
	})
	if err != nil {
		return domain.Availability{}, err
	}
	return result.(domain.Availability), nil
}

func (c *AvailabilityCache) get(ctx context.Context, key string) (domain.Availability, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WarnContext(ctx, "availability cache read failed", "key", key, "error", err)
		}
		return domain.Availability{}, false
	}
	var a domain.Availability
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.Availability{}, false
	}
	return a, true
}

func (c *AvailabilityCache) key(f domain.Filter) string {
	return "availability:" + f.CacheKey()
}

func (c *AvailabilityCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
