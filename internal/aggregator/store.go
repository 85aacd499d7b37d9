package aggregator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// Store is the persistence boundary UsageAggregator drives: it upserts
// BillingPeriodSummary rows and records ExternalUsageReport rows once
// reporting succeeds. Both tables carry a unique constraint on
// (tenant, capability, provider, period_start), guaranteeing exactly-once
// materialization and exactly-once reporting.
type Store interface {
	UpsertSummary(ctx context.Context, summary domain.BillingPeriodSummary) (domain.BillingPeriodSummary, error)
	UnreportedSummaries(ctx context.Context) ([]domain.BillingPeriodSummary, error)
	RecordReport(ctx context.Context, report domain.ExternalUsageReport) error
}

// PostgresStore implements Store over the billing_period_summaries and
// external_usage_reports tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS billing_period_summaries (
	id            TEXT PRIMARY KEY,
	tenant        TEXT NOT NULL,
	capability    TEXT NOT NULL,
	provider      TEXT NOT NULL,
	period_start  TIMESTAMPTZ NOT NULL,
	period_end    TIMESTAMPTZ NOT NULL,
	event_count   BIGINT NOT NULL,
	total_cost    NUMERIC(20,8) NOT NULL,
	total_charge  NUMERIC(20,8) NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant, capability, provider, period_start)
);
CREATE TABLE IF NOT EXISTS external_usage_reports (
	id            TEXT PRIMARY KEY,
	tenant        TEXT NOT NULL,
	capability    TEXT NOT NULL,
	provider      TEXT NOT NULL,
	period_start  TIMESTAMPTZ NOT NULL,
	external_ref  TEXT NOT NULL DEFAULT '',
	reported_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant, capability, provider, period_start)
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *PostgresStore) UpsertSummary(ctx context.Context, summary domain.BillingPeriodSummary) (domain.BillingPeriodSummary, error) {
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	const q = `
INSERT INTO billing_period_summaries (id, tenant, capability, provider, period_start, period_end, event_count, total_cost, total_charge)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (tenant, capability, provider, period_start)
DO UPDATE SET event_count = EXCLUDED.event_count, total_cost = EXCLUDED.total_cost, total_charge = EXCLUDED.total_charge, period_end = EXCLUDED.period_end
RETURNING id
`
	err := s.db.QueryRowContext(ctx, q,
		summary.ID, summary.Tenant, string(summary.Capability), summary.Provider,
		summary.PeriodStart, summary.PeriodEnd, summary.EventCount,
		summary.TotalCost.String(), summary.TotalCharge.String(),
	).Scan(&summary.ID)
	if err != nil {
		return domain.BillingPeriodSummary{}, fmt.Errorf("aggregator: upserting summary: %w", err)
	}
	return summary, nil
}

func (s *PostgresStore) UnreportedSummaries(ctx context.Context) ([]domain.BillingPeriodSummary, error) {
	const q = `
SELECT s.id, s.tenant, s.capability, s.provider, s.period_start, s.period_end, s.event_count, s.total_cost, s.total_charge
FROM billing_period_summaries s
LEFT JOIN external_usage_reports r
	ON r.tenant = s.tenant AND r.capability = s.capability AND r.provider = s.provider AND r.period_start = s.period_start
WHERE r.id IS NULL
ORDER BY s.period_start ASC
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("aggregator: querying unreported summaries: %w", err)
	}
	defer rows.Close()

	var out []domain.BillingPeriodSummary
	for rows.Next() {
		var sm domain.BillingPeriodSummary
		var capability, cost, charge string
		if err := rows.Scan(&sm.ID, &sm.Tenant, &capability, &sm.Provider, &sm.PeriodStart, &sm.PeriodEnd, &sm.EventCount, &cost, &charge); err != nil {
			return nil, fmt.Errorf("aggregator: scanning summary row: %w", err)
		}
		sm.Capability = domain.Capability(capability)
		costDec, err := decimal.NewFromString(cost)
		if err != nil {
			return nil, err
		}
		chargeDec, err := decimal.NewFromString(charge)
		if err != nil {
			return nil, err
		}
		sm.TotalCost = costDec
		sm.TotalCharge = chargeDec
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecordReport(ctx context.Context, report domain.ExternalUsageReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	const q = `
INSERT INTO external_usage_reports (id, tenant, capability, provider, period_start, external_ref)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := s.db.ExecContext(ctx, q, report.ID, report.Tenant, string(report.Capability), report.Provider, report.PeriodStart, report.ExternalRef)
	if err != nil {
		if isUniqueViolation(err) {
			return nil // already reported; treat as success per exactly-once semantics
		}
		return fmt.Errorf("aggregator: recording external usage report: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}
