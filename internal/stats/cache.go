package stats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache keeps computed snapshots in Redis for a short TTL. A nil *Cache
// is a no-op, so deployments without Redis just compute every time.
// Redis failures degrade to a miss and are logged, never propagated.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
	Log    *zap.Logger
}

func NewCache(url string, ttl time.Duration, log *zap.Logger) (*Cache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{Client: redis.NewClient(opt), TTL: ttl, Log: log}, nil
}

func cacheKey(userID uuid.UUID) string {
	return "stats:user:" + userID.String()
}

func (c *Cache) Get(ctx context.Context, userID uuid.UUID) (Snapshot, bool) {
	if c == nil {
		return Snapshot{}, false
	}
	val, err := c.Client.Get(ctx, cacheKey(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.Log.Warn("stats cache: get failed", zap.Error(err))
		}
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return Snapshot{}, false
	}
	return snap, true
}

func (c *Cache) Set(ctx context.Context, userID uuid.UUID, snap Snapshot) {
	if c == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.Client.Set(ctx, cacheKey(userID), data, c.TTL).Err(); err != nil {
		c.Log.Warn("stats cache: set failed", zap.Error(err))
	}
}

// Invalidate drops the user's cached snapshot. Satisfies the tracker's
// Invalidator dependency.
func (c *Cache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.Client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		c.Log.Warn("stats cache: invalidate failed", zap.Error(err))
	}
}
