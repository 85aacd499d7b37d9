package budget

import (
	"context"
	"sync"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

type tenantLimits struct {
	limits SpendLimits
	tier   domain.PricingTier
}

// MemoryLimitsSource is an in-process LimitsSource for tests and for
// single-instance deployments without a tenant-config store wired in yet.
type MemoryLimitsSource struct {
	mu     sync.Mutex
	byTenant map[string]tenantLimits
}

func NewMemoryLimitsSource() *MemoryLimitsSource {
	return &MemoryLimitsSource{byTenant: make(map[string]tenantLimits)}
}

func (m *MemoryLimitsSource) Set(tenant string, limits SpendLimits, tier domain.PricingTier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byTenant[tenant] = tenantLimits{limits: limits, tier: tier}
}

func (m *MemoryLimitsSource) SpendLimitsFor(ctx context.Context, tenant string) (SpendLimits, domain.PricingTier, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tl, ok := m.byTenant[tenant]
	if !ok {
		return SpendLimits{}, "", false, nil
	}
	return tl.limits, tl.tier, true, nil
}
