package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"exam-session-engine/internal/app"
	"exam-session-engine/internal/domain"
	"golang.org/x/sync/singleflight"
)

// AvailabilityCache caches eligible-question counts with TTL to avoid repeated
// catalogue scans for popular filter combinations.
type AvailabilityCache struct {
	counter app.AvailabilityCounter
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group
	rnd     *rand.Rand
	rndMu   sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedAvailability
}

type cachedAvailability struct {
	availability domain.Availability
	expiresAt    time.Time
}

func NewAvailabilityCache(counter app.AvailabilityCounter, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{
		counter: counter,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedAvailability),
	}
}

func (c *AvailabilityCache) CountEligible(ctx context.Context, f domain.Filter) (domain.Availability, error) {
	key := f.CacheKey()
	if a, ok := c.lookup(key); ok {
		return a, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if a, ok := c.lookup(key); ok {
			return a, nil
		}

		a, err := c.counter.CountEligible(ctx, f)
		if err != nil {
			return domain.Availability{}, err
		}

		if ttl := c.ttlWithJitter(); ttl > 0 {
			c.mu.Lock()
			c.cache[key] = cachedAvailability{availability: a, expiresAt: c.clock().Add(ttl)}
			c.mu.Unlock()
		}
		return a, nil
	})
	if err != nil {
		return domain.Availability{}, err
	}
	return result.(domain.Availability), nil
}

func (c *AvailabilityCache) lookup(key string) (domain.Availability, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Availability{}, false
	}
	return entry.availability, true
}

func (c *AvailabilityCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
