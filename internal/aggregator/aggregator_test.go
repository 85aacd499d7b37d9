package aggregator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-network/wopr-platform/internal/aggregator"
	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/meter"
)

type fakeProcessor struct {
	reports []domain.BillingPeriodSummary
	failAll bool
}

func (f *fakeProcessor) ReportUsage(ctx context.Context, summary domain.BillingPeriodSummary) (string, error) {
	if f.failAll {
		return "", errors.New("processor unavailable")
	}
	f.reports = append(f.reports, summary)
	return "ext-" + summary.Tenant, nil
}

func (f *fakeProcessor) DeleteCustomer(ctx context.Context, tenant string) error {
	return nil
}

func seedEvents(t *testing.T, store *meter.MemoryStore, tenant string, n int, ts time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := store.Append(context.Background(), domain.MeterEvent{
			Tenant:     tenant,
			Capability: domain.CapabilityLLM,
			Provider:   "openai",
			CostUSD:    decimal.NewFromFloat(0.01),
			ChargeUSD:  decimal.NewFromFloat(0.013),
			Timestamp:  ts,
		})
		require.NoError(t, err)
	}
}

func TestRunOnce_MaterializesSummaryExactlyOnce(t *testing.T) {
	meterStore := meter.NewMemoryStore()
	billingStore := aggregator.NewMemoryStore()
	processor := &fakeProcessor{}

	periodStart := time.Now().UTC().Add(-time.Hour).Truncate(5 * time.Minute)
	seedEvents(t, meterStore, "tenantA", 3, periodStart.Add(time.Minute))

	agg := aggregator.New(meterStore, billingStore, processor, 5*time.Minute, time.Second, nil)

	require.NoError(t, agg.RunOnce(context.Background()))
	assert.Equal(t, 1, billingStore.SummaryCount())
	assert.Equal(t, 1, billingStore.ReportCount())
	require.Len(t, processor.reports, 1)
	assert.Equal(t, int64(3), processor.reports[0].EventCount)

	// second tick: nothing new, summary/report counts unchanged
	require.NoError(t, agg.RunOnce(context.Background()))
	assert.Equal(t, 1, billingStore.SummaryCount())
	assert.Equal(t, 1, billingStore.ReportCount())
}

func TestRunOnce_ReportFailureStopsPassButKeepsSummary(t *testing.T) {
	meterStore := meter.NewMemoryStore()
	billingStore := aggregator.NewMemoryStore()
	processor := &fakeProcessor{failAll: true}

	periodStart := time.Now().UTC().Add(-time.Hour).Truncate(5 * time.Minute)
	seedEvents(t, meterStore, "tenantA", 1, periodStart.Add(time.Minute))

	agg := aggregator.New(meterStore, billingStore, processor, 5*time.Minute, time.Second, nil)

	err := agg.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, billingStore.SummaryCount())
	assert.Equal(t, 0, billingStore.ReportCount())
}

func TestRunOnce_RespectsLateArrivalGrace(t *testing.T) {
	meterStore := meter.NewMemoryStore()
	billingStore := aggregator.NewMemoryStore()
	processor := &fakeProcessor{}

	// Event inside the grace window must not be materialized yet.
	seedEvents(t, meterStore, "tenantA", 1, time.Now().UTC())

	agg := aggregator.New(meterStore, billingStore, processor, 5*time.Minute, time.Hour, nil)
	require.NoError(t, agg.RunOnce(context.Background()))
	assert.Equal(t, 0, billingStore.SummaryCount())
}
