// PATH: internal/infrastructure/redis/redis.go
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	Client *redis.Client
}

func New(addr, pass string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return &Cache{Client: rdb}
}

// NewFromClient is used by tests (miniredis) and by callers sharing a client.
func NewFromClient(c *redis.Client) *Cache {
	return &Cache{Client: c}
}

func eligibilityKey(optionID, userID uuid.UUID) string {
	return "booking:elig:" + optionID.String() + ":" + userID.String()
}

func (c *Cache) GetEligibility(ctx context.Context, optionID, userID uuid.UUID) (bool, error) {
	val, err := c.Client.Get(ctx, eligibilityKey(optionID, userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, domain.ErrCacheMiss
		}
		return false, err
	}
	return val == "1", nil
}

func (c *Cache) GetEligibilityMany(ctx context.Context, optionID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, eligibilityKey(optionID, id))
	}
	vals, err := c.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // nil = miss
		}
		out[userIDs[i]] = s == "1"
	}
	return out, nil
}

func (c *Cache) SetEligibility(ctx context.Context, optionID, userID uuid.UUID, eligible bool, ttl time.Duration) error {
	v := "0"
	if eligible {
		v = "1"
	}
	return c.Client.Set(ctx, eligibilityKey(optionID, userID), v, ttl).Err()
}

func (c *Cache) DeleteEligibility(ctx context.Context, optionID, userID uuid.UUID) error {
	return c.Client.Del(ctx, eligibilityKey(optionID, userID)).Err()
}

// AllowRequest: Simple Fixed Window Rate Limit
func (c *Cache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	key := "ratelimit:" + ip
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return true, nil // fail open
	}
	if count == 1 {
		_ = c.Client.Expire(ctx, key, window).Err()
	}
	return count <= int64(limit), nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
