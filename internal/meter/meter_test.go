package meter_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/meter"
)

func TestAppend_AssignsIDAndTimestamp(t *testing.T) {
	store := meter.NewMemoryStore()
	event, err := store.Append(context.Background(), domain.MeterEvent{
		Tenant:     "tenantA",
		Capability: domain.CapabilityTranscription,
		Provider:   "whisper",
		CostUSD:    decimal.NewFromFloat(0.01),
		ChargeUSD:  decimal.NewFromFloat(0.013),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestRangeByTenant_FiltersOtherTenants(t *testing.T) {
	store := meter.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, _ = store.Append(ctx, domain.MeterEvent{Tenant: "tenantA", Timestamp: now})
	_, _ = store.Append(ctx, domain.MeterEvent{Tenant: "tenantB", Timestamp: now})

	events, err := store.RangeByTenant(ctx, "tenantA", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "tenantA", events[0].Tenant)
}

func TestPrune_RemovesOnlyOlderEvents(t *testing.T) {
	store := meter.NewMemoryStore()
	ctx := context.Background()
	cutoff := time.Now().UTC()

	_, _ = store.Append(ctx, domain.MeterEvent{Tenant: "tenantA", Timestamp: cutoff.Add(-time.Hour)})
	_, _ = store.Append(ctx, domain.MeterEvent{Tenant: "tenantA", Timestamp: cutoff.Add(time.Hour)})

	removed, err := store.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, 1, store.CountForTenant("tenantA"))
}
