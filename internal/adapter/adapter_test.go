package adapter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-network/wopr-platform/internal/adapter"
	"github.com/wopr-network/wopr-platform/internal/adapter/providers"
	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/gateway/budget"
	"github.com/wopr-network/wopr-platform/internal/meter"
)

type allowAllBudget struct{}

func (allowAllBudget) Check(ctx context.Context, tenant string) (budget.Decision, error) {
	return budget.Decision{Allowed: true}, nil
}

type denyBudget struct{ reason string }

func (d denyBudget) Check(ctx context.Context, tenant string) (budget.Decision, error) {
	return budget.Decision{Allowed: false, Reason: d.reason}, nil
}

func TestExecute_SelectsExplicitAdapter(t *testing.T) {
	registry := adapter.NewRegistry()
	a1 := providers.NewMockProvider("alpha", true, domain.CapabilityLLM)
	a2 := providers.NewMockProvider("beta", false, domain.CapabilityLLM)
	registry.Register(a1)
	registry.Register(a2)

	meterStore := meter.NewMemoryStore()
	socket := adapter.New(registry, allowAllBudget{}, meterStore, nil)

	_, err := socket.Execute(context.Background(), adapter.ExecuteRequest{
		Tenant: "t1", Capability: domain.CapabilityLLM, Adapter: "beta",
	})
	require.NoError(t, err)
	assert.Len(t, a2.Calls, 1)
	assert.Empty(t, a1.Calls)
}

func TestExecute_ExplicitAdapterMissingCapabilityErrors(t *testing.T) {
	registry := adapter.NewRegistry()
	registry.Register(providers.NewMockProvider("alpha", true, domain.CapabilityTTS))
	socket := adapter.New(registry, allowAllBudget{}, meter.NewMemoryStore(), nil)

	_, err := socket.Execute(context.Background(), adapter.ExecuteRequest{
		Tenant: "t1", Capability: domain.CapabilityLLM, Adapter: "alpha",
	})
	assert.ErrorIs(t, err, adapter.ErrCapabilityNotDeclared)
}

func TestExecute_StandardTierPrefersSelfHosted(t *testing.T) {
	registry := adapter.NewRegistry()
	hosted := providers.NewMockProvider("hosted", true, domain.CapabilityLLM)
	external := providers.NewMockProvider("external", false, domain.CapabilityLLM)
	registry.Register(external)
	registry.Register(hosted)

	socket := adapter.New(registry, allowAllBudget{}, meter.NewMemoryStore(), nil)
	_, err := socket.Execute(context.Background(), adapter.ExecuteRequest{
		Tenant: "t1", Capability: domain.CapabilityLLM, PricingTier: domain.TierStandard,
	})
	require.NoError(t, err)
	assert.Len(t, hosted.Calls, 1)
	assert.Empty(t, external.Calls)
}

func TestExecute_PremiumTierPrefersExternal(t *testing.T) {
	registry := adapter.NewRegistry()
	hosted := providers.NewMockProvider("hosted", true, domain.CapabilityLLM)
	external := providers.NewMockProvider("external", false, domain.CapabilityLLM)
	registry.Register(hosted)
	registry.Register(external)

	socket := adapter.New(registry, allowAllBudget{}, meter.NewMemoryStore(), nil)
	_, err := socket.Execute(context.Background(), adapter.ExecuteRequest{
		Tenant: "t1", Capability: domain.CapabilityLLM, PricingTier: domain.TierPremium,
	})
	require.NoError(t, err)
	assert.Len(t, external.Calls, 1)
	assert.Empty(t, hosted.Calls)
}

func TestExecute_BudgetDeniedBlocksCallAndMeter(t *testing.T) {
	registry := adapter.NewRegistry()
	mock := providers.NewMockProvider("alpha", true, domain.CapabilityLLM)
	registry.Register(mock)
	meterStore := meter.NewMemoryStore()

	socket := adapter.New(registry, denyBudget{reason: "hourly spend limit exceeded"}, meterStore, nil)
	_, err := socket.Execute(context.Background(), adapter.ExecuteRequest{
		Tenant: "t1", Capability: domain.CapabilityLLM,
	})

	var budgetErr *adapter.BudgetDeniedError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, 429, budgetErr.HTTPStatus)
	assert.Empty(t, mock.Calls)
	assert.Equal(t, 0, meterStore.CountForTenant("t1"))
}

func TestExecute_BYOKSkipsBudgetAndZeroesMeterAmounts(t *testing.T) {
	registry := adapter.NewRegistry()
	mock := providers.NewMockProvider("alpha", true, domain.CapabilityLLM)
	mock.Cost = decimal.NewFromFloat(5)
	registry.Register(mock)
	meterStore := meter.NewMemoryStore()

	socket := adapter.New(registry, denyBudget{reason: "should never be consulted"}, meterStore, nil)
	_, err := socket.Execute(context.Background(), adapter.ExecuteRequest{
		Tenant: "t1", Capability: domain.CapabilityLLM, BYOK: true,
	})
	require.NoError(t, err)

	events, _ := meterStore.RangeByTenant(context.Background(), "t1", time.Time{}, time.Now().Add(time.Hour))
	require.Len(t, events, 1)
	assert.True(t, events[0].CostUSD.IsZero())
	assert.True(t, events[0].ChargeUSD.IsZero())
}

func TestExecute_AdapterFailurePropagatesAndSkipsMeter(t *testing.T) {
	registry := adapter.NewRegistry()
	mock := providers.NewMockProvider("alpha", true, domain.CapabilityLLM)
	mock.FailWith = errors.New("upstream timeout")
	registry.Register(mock)
	meterStore := meter.NewMemoryStore()

	socket := adapter.New(registry, allowAllBudget{}, meterStore, nil)
	_, err := socket.Execute(context.Background(), adapter.ExecuteRequest{
		Tenant: "t1", Capability: domain.CapabilityLLM,
	})
	assert.Error(t, err)
	assert.Equal(t, 0, meterStore.CountForTenant("t1"))
}

func TestExecute_ChargeDefaultsToCostTimesMargin(t *testing.T) {
	registry := adapter.NewRegistry()
	mock := providers.NewMockProvider("alpha", true, domain.CapabilityLLM)
	mock.Cost = decimal.NewFromFloat(1)
	registry.Register(mock)
	meterStore := meter.NewMemoryStore()

	socket := adapter.New(registry, allowAllBudget{}, meterStore, nil)
	_, err := socket.Execute(context.Background(), adapter.ExecuteRequest{
		Tenant: "t1", Capability: domain.CapabilityLLM,
	})
	require.NoError(t, err)

	events, _ := meterStore.RangeByTenant(context.Background(), "t1", time.Time{}, time.Now().Add(time.Hour))
	require.Len(t, events, 1)
	assert.True(t, events[0].ChargeUSD.Equal(decimal.NewFromFloat(1.3)))
}
