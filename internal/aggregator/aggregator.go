// Package aggregator implements UsageAggregator: the periodic pass that
// collapses MeterEvents into BillingPeriodSummary rows and drives external
// usage reporting to the payment processor.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/wopr-network/wopr-platform/internal/billing"
	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/meter"
)

// MeterReader is the slice of meter.Store the aggregator needs: a range
// scan by timestamp, independent of any one tenant.
type MeterReader interface {
	RangeByTimestamp(ctx context.Context, from, to time.Time) ([]domain.MeterEvent, error)
}

// UsageAggregator runs on a timer (a robfig/cron @every entry, matching the
// pack's scheduled-service idiom) and drains raw usage into billing
// summaries and external-processor reports.
type UsageAggregator struct {
	meterStore MeterReader
	store      Store
	processor  billing.PaymentProcessor
	logger     *slog.Logger

	periodLen time.Duration
	grace     time.Duration

	processedThrough time.Time

	cron      *cron.Cron
	entryID   cron.EntryID
}

// New constructs an UsageAggregator. periodLen is the billing-period
// length (default 5 minutes per section 3); grace is how long the
// aggregator waits past a period's end before materializing it, to absorb
// late-arriving events.
func New(meterStore MeterReader, store Store, processor billing.PaymentProcessor, periodLen, grace time.Duration, logger *slog.Logger) *UsageAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if processor == nil {
		processor = billing.NoopProcessor{}
	}
	if periodLen <= 0 {
		periodLen = 5 * time.Minute
	}
	return &UsageAggregator{
		meterStore: meterStore,
		store:      store,
		processor:  processor,
		logger:     logger,
		periodLen:  periodLen,
		grace:      grace,
	}
}

// NewFromMeterStore is a convenience constructor for the common case where
// the aggregator reads directly from a meter.Store.
func NewFromMeterStore(meterStore *meter.PostgresStore, store Store, processor billing.PaymentProcessor, periodLen, grace time.Duration, logger *slog.Logger) *UsageAggregator {
	return New(meterStore, store, processor, periodLen, grace, logger)
}

// Start schedules RunOnce on a robfig/cron `@every <period>` entry. The
// returned cron.Cron must be stopped by the caller for graceful shutdown;
// Stop waits for any in-flight tick only up to the cron library's own
// shutdown semantics (cron.Stop's returned context).
func (a *UsageAggregator) Start(ctx context.Context) *cron.Cron {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", a.periodLen)
	id, err := c.AddFunc(spec, func() {
		if err := a.RunOnce(ctx); err != nil {
			a.logger.Error("aggregator: tick failed", "error", err)
		}
	})
	if err != nil {
		a.logger.Error("aggregator: failed to schedule tick", "error", err)
	}
	a.cron = c
	a.entryID = id
	c.Start()
	return c
}

type bucketKey struct {
	tenant      string
	capability  domain.Capability
	provider    string
	periodStart time.Time
}

type bucketAgg struct {
	count  int64
	cost   decimal.Decimal
	charge decimal.Decimal
	end    time.Time
}

// RunOnce is the unit a cron entry calls; exported so tests can drive a
// single tick deterministically.
func (a *UsageAggregator) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.Add(-a.grace).Truncate(a.periodLen)

	from := a.processedThrough
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if !cutoff.After(from) {
		return nil
	}

	events, err := a.meterStore.RangeByTimestamp(ctx, from, cutoff)
	if err != nil {
		return fmt.Errorf("aggregator: reading meter events: %w", err)
	}

	buckets := a.bucketEvents(events)
	for key, agg := range buckets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		summary := domain.BillingPeriodSummary{
			Tenant:      key.tenant,
			Capability:  key.capability,
			Provider:    key.provider,
			PeriodStart: key.periodStart,
			PeriodEnd:   agg.end,
			EventCount:  agg.count,
			TotalCost:   agg.cost,
			TotalCharge: agg.charge,
		}
		if _, err := a.store.UpsertSummary(ctx, summary); err != nil {
			a.logger.Error("aggregator: upserting billing period summary failed, stopping tick",
				"tenant", key.tenant, "capability", key.capability, "error", err)
			return fmt.Errorf("aggregator: upserting summary: %w", err)
		}
	}

	a.processedThrough = cutoff
	return a.reportPending(ctx)
}

func (a *UsageAggregator) bucketEvents(events []domain.MeterEvent) map[bucketKey]bucketAgg {
	buckets := make(map[bucketKey]bucketAgg)
	for _, e := range events {
		start := e.Timestamp.Truncate(a.periodLen)
		key := bucketKey{tenant: e.Tenant, capability: e.Capability, provider: e.Provider, periodStart: start}
		agg := buckets[key]
		agg.count++
		agg.cost = agg.cost.Add(e.CostUSD)
		agg.charge = agg.charge.Add(e.ChargeUSD)
		agg.end = start.Add(a.periodLen)
		buckets[key] = agg
	}
	return buckets
}

// reportPending submits every BillingPeriodSummary with no matching
// ExternalUsageReport. Failure on one period stops the pass (the next
// tick resumes; retries are implicit via the uniqueness of the reported
// key) to avoid hammering the external processor.
func (a *UsageAggregator) reportPending(ctx context.Context) error {
	pending, err := a.store.UnreportedSummaries(ctx)
	if err != nil {
		return fmt.Errorf("aggregator: listing unreported summaries: %w", err)
	}

	for _, summary := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		report := domain.ExternalUsageReport{
			Tenant:      summary.Tenant,
			Capability:  summary.Capability,
			Provider:    summary.Provider,
			PeriodStart: summary.PeriodStart,
			ReportedAt:  time.Now().UTC(),
		}

		// Zero-value periods are mark-only: no external call.
		if summary.EventCount == 0 && summary.TotalCharge.IsZero() {
			if err := a.store.RecordReport(ctx, report); err != nil {
				a.logger.Error("aggregator: recording zero-value report failed", "tenant", summary.Tenant, "error", err)
				return fmt.Errorf("aggregator: recording report: %w", err)
			}
			continue
		}

		ref, err := a.processor.ReportUsage(ctx, summary)
		if err != nil {
			a.logger.Error("aggregator: external usage report failed, stopping pass",
				"tenant", summary.Tenant, "period_start", summary.PeriodStart, "error", err)
			return fmt.Errorf("aggregator: reporting usage: %w", err)
		}

		report.ExternalRef = ref
		if err := a.store.RecordReport(ctx, report); err != nil {
			return fmt.Errorf("aggregator: recording report: %w", err)
		}
	}
	return nil
}

// Stop stops the underlying cron scheduler if Start was called.
func (a *UsageAggregator) Stop() {
	if a.cron != nil {
		a.cron.Stop()
	}
}
