package aggregator

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

type summaryKey struct {
	tenant, capability, provider string
	periodStart                 int64
}

func keyFor(tenant string, capability domain.Capability, provider string, periodStartUnix int64) summaryKey {
	return summaryKey{tenant: tenant, capability: string(capability), provider: provider, periodStart: periodStartUnix}
}

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu        sync.Mutex
	summaries map[summaryKey]domain.BillingPeriodSummary
	reports   map[summaryKey]domain.ExternalUsageReport
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		summaries: make(map[summaryKey]domain.BillingPeriodSummary),
		reports:   make(map[summaryKey]domain.ExternalUsageReport),
	}
}

func (s *MemoryStore) UpsertSummary(ctx context.Context, summary domain.BillingPeriodSummary) (domain.BillingPeriodSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	k := keyFor(summary.Tenant, summary.Capability, summary.Provider, summary.PeriodStart.Unix())
	if existing, ok := s.summaries[k]; ok {
		summary.ID = existing.ID
	}
	s.summaries[k] = summary
	return summary, nil
}

func (s *MemoryStore) UnreportedSummaries(ctx context.Context) ([]domain.BillingPeriodSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BillingPeriodSummary
	for k, sm := range s.summaries {
		if _, reported := s.reports[k]; !reported {
			out = append(out, sm)
		}
	}
	return out, nil
}

func (s *MemoryStore) RecordReport(ctx context.Context, report domain.ExternalUsageReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyFor(report.Tenant, report.Capability, report.Provider, report.PeriodStart.Unix())
	if _, ok := s.reports[k]; ok {
		return nil
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	s.reports[k] = report
	return nil
}

// SummaryCount is a test helper.
func (s *MemoryStore) SummaryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.summaries)
}

// ReportCount is a test helper.
func (s *MemoryStore) ReportCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}
