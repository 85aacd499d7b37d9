package circuitbreaker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-network/wopr-platform/internal/gateway/circuitbreaker"
)

func TestCheck_TripsAfterMaxRequestsAndPauses(t *testing.T) {
	repo := circuitbreaker.NewMemoryRepository()
	cfg := circuitbreaker.Config{MaxRequestsPerWindow: 2, WindowMs: 60_000, PauseDurationMs: 1_000}

	var trips []string
	b := circuitbreaker.New(repo, cfg, func(scope string, count int64, until time.Time) {
		trips = append(trips, scope)
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := b.Check(ctx, "node-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := b.Check(ctx, "node-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.False(t, d.PausedUntil.IsZero())
	assert.Len(t, trips, 1)

	// Still paused: subsequent checks denied without firing onTrip again.
	d2, err := b.Check(ctx, "node-1")
	require.NoError(t, err)
	assert.False(t, d2.Allowed)
	assert.Len(t, trips, 1)
}

func TestCheck_ResumesAfterPauseElapses(t *testing.T) {
	repo := circuitbreaker.NewMemoryRepository()
	cfg := circuitbreaker.Config{MaxRequestsPerWindow: 1, WindowMs: 60_000, PauseDurationMs: 1}

	b := circuitbreaker.New(repo, cfg, nil)
	ctx := context.Background()

	d, err := b.Check(ctx, "scope-a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = b.Check(ctx, "scope-a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	time.Sleep(5 * time.Millisecond)

	d, err = b.Check(ctx, "scope-a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCheck_IndependentScopesTripIndependently(t *testing.T) {
	repo := circuitbreaker.NewMemoryRepository()
	cfg := circuitbreaker.Config{MaxRequestsPerWindow: 1, WindowMs: 60_000, PauseDurationMs: 60_000}
	b := circuitbreaker.New(repo, cfg, nil)
	ctx := context.Background()

	_, err := b.Check(ctx, "a")
	require.NoError(t, err)
	d, err := b.Check(ctx, "a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = b.Check(ctx, "b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
