package budget_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/gateway/budget"
	"github.com/wopr-network/wopr-platform/internal/meter"
)

func TestCheck_SkipsWhenNoLimitsConfigured(t *testing.T) {
	meterStore := meter.NewMemoryStore()
	limits := budget.NewMemoryLimitsSource()

	c := budget.New(meterStore, limits, time.Millisecond)
	d, err := c.Check(context.Background(), "tenantA")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCheck_SkipsForBYOKTier(t *testing.T) {
	meterStore := meter.NewMemoryStore()
	limits := budget.NewMemoryLimitsSource()
	limits.Set("tenantA", budget.SpendLimits{MaxPerHour: decimal.NewFromInt(1)}, domain.TierBYOK)

	for i := 0; i < 5; i++ {
		_, err := meterStore.Append(context.Background(), domain.MeterEvent{
			Tenant: "tenantA", Capability: domain.CapabilityLLM, Provider: "openai",
			ChargeUSD: decimal.NewFromInt(10), Timestamp: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	c := budget.New(meterStore, limits, time.Millisecond)
	d, err := c.Check(context.Background(), "tenantA")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCheck_DeniesWhenHourlySpendExceedsLimit(t *testing.T) {
	meterStore := meter.NewMemoryStore()
	limits := budget.NewMemoryLimitsSource()
	limits.Set("tenantA", budget.SpendLimits{MaxPerHour: decimal.NewFromInt(10)}, domain.TierStandard)

	for i := 0; i < 3; i++ {
		_, err := meterStore.Append(context.Background(), domain.MeterEvent{
			Tenant: "tenantA", Capability: domain.CapabilityLLM, Provider: "openai",
			ChargeUSD: decimal.NewFromInt(5), Timestamp: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	c := budget.New(meterStore, limits, time.Millisecond)
	d, err := c.Check(context.Background(), "tenantA")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "hourly")
}

func TestCheck_CachesResultWithinTTL(t *testing.T) {
	meterStore := meter.NewMemoryStore()
	limits := budget.NewMemoryLimitsSource()
	limits.Set("tenantA", budget.SpendLimits{MaxPerHour: decimal.NewFromInt(100)}, domain.TierStandard)

	c := budget.New(meterStore, limits, time.Hour)
	d1, err := c.Check(context.Background(), "tenantA")
	require.NoError(t, err)
	assert.True(t, d1.Allowed)

	// Spend now exceeds the limit, but the cached decision should still
	// be returned within the TTL.
	_, err = meterStore.Append(context.Background(), domain.MeterEvent{
		Tenant: "tenantA", Capability: domain.CapabilityLLM, Provider: "openai",
		ChargeUSD: decimal.NewFromInt(1000), Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	d2, err := c.Check(context.Background(), "tenantA")
	require.NoError(t, err)
	assert.True(t, d2.Allowed)
}

func TestCheck_IndependentTenants(t *testing.T) {
	meterStore := meter.NewMemoryStore()
	limits := budget.NewMemoryLimitsSource()
	limits.Set("tenantA", budget.SpendLimits{MaxPerHour: decimal.NewFromInt(1)}, domain.TierStandard)
	limits.Set("tenantB", budget.SpendLimits{MaxPerHour: decimal.NewFromInt(100)}, domain.TierStandard)

	_, err := meterStore.Append(context.Background(), domain.MeterEvent{
		Tenant: "tenantA", Capability: domain.CapabilityLLM, Provider: "openai",
		ChargeUSD: decimal.NewFromInt(5), Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	c := budget.New(meterStore, limits, time.Millisecond)
	dA, err := c.Check(context.Background(), "tenantA")
	require.NoError(t, err)
	assert.False(t, dA.Allowed)

	dB, err := c.Check(context.Background(), "tenantB")
	require.NoError(t, err)
	assert.True(t, dB.Allowed)
}
