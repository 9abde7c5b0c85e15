package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	rediscache "github.com/baechuer/real-time-ressys/services/booking-service/internal/infrastructure/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*rediscache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return rediscache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestCache_Eligibility_GetSetAndMiss(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	optionID, userID := uuid.New(), uuid.New()

	// miss
	_, err := cache.GetEligibility(ctx, optionID, userID)
	require.True(t, errors.Is(err, domain.ErrCacheMiss))

	// set then get
	require.NoError(t, cache.SetEligibility(ctx, optionID, userID, true, time.Minute))
	got, err := cache.GetEligibility(ctx, optionID, userID)
	require.NoError(t, err)
	require.True(t, got)

	// a cached "no" is a hit, not a miss
	require.NoError(t, cache.SetEligibility(ctx, optionID, userID, false, time.Minute))
	got, err = cache.GetEligibility(ctx, optionID, userID)
	require.NoError(t, err)
	require.False(t, got)

	require.NoError(t, cache.DeleteEligibility(ctx, optionID, userID))
	_, err = cache.GetEligibility(ctx, optionID, userID)
	require.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestCache_Eligibility_TTL(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	optionID, userID := uuid.New(), uuid.New()

	require.NoError(t, cache.SetEligibility(ctx, optionID, userID, true, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := cache.GetEligibility(ctx, optionID, userID)
	require.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestCache_GetEligibilityMany_ReturnsOnlyHits(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	optionID := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, cache.SetEligibility(ctx, optionID, a, true, time.Minute))
	require.NoError(t, cache.SetEligibility(ctx, optionID, c, false, time.Minute))

	got, err := cache.GetEligibilityMany(ctx, optionID, []uuid.UUID{a, b, c})
	require.NoError(t, err)
	require.Equal(t, map[uuid.UUID]bool{a: true, c: false}, got)
}

func TestCache_AllowRequest_FixedWindow(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	for i := 0; i < 3; i++ {
		ok, err := cache.AllowRequest(ctx, "10.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := cache.AllowRequest(ctx, "10.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// other ip has its own window
	ok, err = cache.AllowRequest(ctx, "10.0.0.2", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = cache.AllowRequest(ctx, "10.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}
