// Package budget implements the BudgetChecker admission gate: it sums a
// tenant's recent charge_usd against configured spend limits before an
// AdapterSocket call is allowed (section 4.D.1).
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// MeterReader is the slice of meter.Store the gate needs to sum spend.
type MeterReader interface {
	RangeByTenant(ctx context.Context, tenant string, from, to time.Time) ([]domain.MeterEvent, error)
}

// SpendLimits is the tenant's configured spend ceiling; a zero value in
// either field means that window is not limited.
type SpendLimits struct {
	MaxPerHour  decimal.Decimal
	MaxPerMonth decimal.Decimal
}

// LimitsSource resolves a tenant's configured limits. Tenants with no
// limits configured, or on the BYOK tier, skip the gate entirely.
type LimitsSource interface {
	SpendLimitsFor(ctx context.Context, tenant string) (limits SpendLimits, tier domain.PricingTier, found bool, err error)
}

type cacheEntry struct {
	result    Decision
	expiresAt time.Time
}

// Checker is the BudgetChecker gate. It caches a tenant's result for a
// short TTL: this is a cache of a read (the trailing-window sum), not
// shared state, so an in-process sync.Map is sufficient and avoids a
// Redis round trip on the hot path.
type Checker struct {
	meter MeterReader
	limits LimitsSource
	ttl   time.Duration

	cache sync.Map // tenant -> cacheEntry
}

// New constructs a Checker. ttl defaults to one second when <= 0.
func New(meter MeterReader, limits LimitsSource, ttl time.Duration) *Checker {
	if ttl <= 0 {
		ttl = time.Second
	}
	return &Checker{meter: meter, limits: limits, ttl: ttl}
}

// Decision reports whether the tenant may proceed, and which window (if
// any) is over its limit.
type Decision struct {
	Allowed     bool
	Reason      string
	HourSpend   decimal.Decimal
	MonthSpend  decimal.Decimal
}

// Check returns a cached Decision when one is still fresh, otherwise
// recomputes by summing charge_usd over the trailing hour and month.
func (c *Checker) Check(ctx context.Context, tenant string) (Decision, error) {
	if v, ok := c.cache.Load(tenant); ok {
		entry := v.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.result, nil
		}
	}

	limits, tier, found, err := c.limits.SpendLimitsFor(ctx, tenant)
	if err != nil {
		return Decision{}, fmt.Errorf("budget: resolving spend limits: %w", err)
	}
	if !found || tier == domain.TierBYOK {
		decision := Decision{Allowed: true}
		c.store(tenant, decision)
		return decision, nil
	}

	now := time.Now().UTC()
	hourSpend, err := c.sumSince(ctx, tenant, now.Add(-time.Hour))
	if err != nil {
		return Decision{}, err
	}
	monthSpend, err := c.sumSince(ctx, tenant, now.AddDate(0, 0, -30))
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{Allowed: true, HourSpend: hourSpend, MonthSpend: monthSpend}
	if !limits.MaxPerHour.IsZero() && hourSpend.GreaterThan(limits.MaxPerHour) {
		decision.Allowed = false
		decision.Reason = "hourly spend limit exceeded"
	} else if !limits.MaxPerMonth.IsZero() && monthSpend.GreaterThan(limits.MaxPerMonth) {
		decision.Allowed = false
		decision.Reason = "monthly spend limit exceeded"
	}

	c.store(tenant, decision)
	return decision, nil
}

func (c *Checker) sumSince(ctx context.Context, tenant string, from time.Time) (decimal.Decimal, error) {
	events, err := c.meter.RangeByTenant(ctx, tenant, from, time.Now().UTC())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("budget: ranging meter events: %w", err)
	}
	total := decimal.Zero
	for _, e := range events {
		total = total.Add(e.ChargeUSD)
	}
	return total, nil
}

func (c *Checker) store(tenant string, decision Decision) {
	c.cache.Store(tenant, cacheEntry{result: decision, expiresAt: time.Now().Add(c.ttl)})
}
