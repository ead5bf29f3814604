package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemoryCurrentOwnerCache_StaleGenerationIsDropped(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCurrentOwnerCache(defaultTestTTL, 0)
	e, other := uuid.New(), uuid.New()
	owner := uuid.New()

	gen, ok := cache.Generation(ctx, e)
	require.True(t, ok)
	otherGen, _ := cache.Generation(ctx, other)

	cache.Invalidate(ctx, e)
	cache.Set(ctx, e, owner, gen)
	_, hit := cache.Get(ctx, e)
	require.False(t, hit)

	cache.Set(ctx, other, owner, otherGen)
	got, hit := cache.Get(ctx, other)
	require.True(t, hit)
	require.Equal(t, owner, got)

	gen, _ = cache.Generation(ctx, e)
	cache.Set(ctx, e, owner, gen)
	got, hit = cache.Get(ctx, e)
	require.True(t, hit)
	require.Equal(t, owner, got)
}
