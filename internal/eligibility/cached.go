package eligibility

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Cache interface {
	GetEligibility(ctx context.Context, optionID, userID uuid.UUID) (bool, error)
	SetEligibility(ctx context.Context, optionID, userID uuid.UUID, eligible bool, ttl time.Duration) error
	DeleteEligibility(ctx context.Context, optionID, userID uuid.UUID) error

	// GetEligibilityMany returns only the cached entries.
	GetEligibilityMany(ctx context.Context, optionID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

// Cached fronts a Checker with a read-through cache. Cache failures fall back to
// the inner checker. Capability writers call Invalidate after they commit.
type Cached struct {
	inner Checker
	cache Cache
	ttl   time.Duration
}

func NewCached(inner Checker, cache Cache, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{inner: inner, cache: cache, ttl: ttl}
}

func (c *Cached) IsEligible(ctx context.Context, optionID, userID uuid.UUID) (bool, error) {
	if v, err := c.cache.GetEligibility(ctx, optionID, userID); err == nil {
		return v, nil
	}
	// miss or redis trouble: ask the source

	ok, err := c.inner.IsEligible(ctx, optionID, userID)
	if err != nil {
		return false, err
	}
	_ = c.cache.SetEligibility(ctx, optionID, userID, ok, c.ttl)
	return ok, nil
}

// EligibleSet serves hits from the cache and resolves the misses in one pass.
func (c *Cached) EligibleSet(ctx context.Context, optionID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(userIDs))
	hits, err := c.cache.GetEligibilityMany(ctx, optionID, userIDs)
	if err != nil {
		hits = nil
	}

	var misses []uuid.UUID
	for _, id := range userIDs {
		if v, ok := hits[id]; ok {
			out[id] = v
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out, nil
	}

	resolved := make(map[uuid.UUID]bool, len(misses))
	if bc, ok := c.inner.(BatchChecker); ok {
		set, err := bc.EligibleSet(ctx, optionID, misses)
		if err != nil {
			return nil, err
		}
		for _, id := range misses {
			resolved[id] = set[id]
		}
	} else {
		for _, id := range misses {
			ok, err := c.inner.IsEligible(ctx, optionID, id)
			if err != nil {
				return nil, err
			}
			resolved[id] = ok
		}
	}

	for id, v := range resolved {
		out[id] = v
		_ = c.cache.SetEligibility(ctx, optionID, id, v, c.ttl)
	}
	return out, nil
}

// Invalidate drops the cached entry once a capability change has committed.
func (c *Cached) Invalidate(ctx context.Context, optionID, userID uuid.UUID) error {
	return c.cache.DeleteEligibility(ctx, optionID, userID)
}
