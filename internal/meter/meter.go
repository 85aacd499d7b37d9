// Package meter implements MeterEventStore: the durable, append-only log of
// per-request usage events that UsageAggregator later drains into billing
// summaries.
package meter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// Store is the MeterEventStore contract. Append must be total and
// durable — failure to persist is surfaced to AdapterSocket.execute's
// caller, not swallowed.
type Store interface {
	Append(ctx context.Context, event domain.MeterEvent) (domain.MeterEvent, error)
	RangeByTenant(ctx context.Context, tenant string, from, to time.Time) ([]domain.MeterEvent, error)
	RangeByTimestamp(ctx context.Context, from, to time.Time) ([]domain.MeterEvent, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// PostgresStore persists meter events to the meter_events table, indexed
// for both query shapes named in section 4.A: (tenant, timestamp) for
// per-tenant history and (timestamp) for aggregation sweeps.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS meter_events (
	id          TEXT PRIMARY KEY,
	tenant      TEXT NOT NULL,
	capability  TEXT NOT NULL,
	provider    TEXT NOT NULL,
	cost_usd    NUMERIC(20,8) NOT NULL,
	charge_usd  NUMERIC(20,8) NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	session_id  TEXT NOT NULL DEFAULT '',
	tier        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS meter_events_tenant_timestamp_idx ON meter_events (tenant, timestamp);
CREATE INDEX IF NOT EXISTS meter_events_timestamp_idx ON meter_events (timestamp);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, event domain.MeterEvent) (domain.MeterEvent, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	const q = `
INSERT INTO meter_events (id, tenant, capability, provider, cost_usd, charge_usd, timestamp, session_id, tier)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := s.db.ExecContext(ctx, q,
		event.ID, event.Tenant, string(event.Capability), event.Provider,
		event.CostUSD.String(), event.ChargeUSD.String(), event.Timestamp,
		event.SessionID, string(event.Tier),
	)
	if err != nil {
		return domain.MeterEvent{}, fmt.Errorf("meter: appending event: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) RangeByTenant(ctx context.Context, tenant string, from, to time.Time) ([]domain.MeterEvent, error) {
	const q = `
SELECT id, tenant, capability, provider, cost_usd, charge_usd, timestamp, session_id, tier
FROM meter_events
WHERE tenant = $1 AND timestamp >= $2 AND timestamp < $3
ORDER BY timestamp ASC
`
	rows, err := s.db.QueryContext(ctx, q, tenant, from, to)
	if err != nil {
		return nil, fmt.Errorf("meter: ranging by tenant: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) RangeByTimestamp(ctx context.Context, from, to time.Time) ([]domain.MeterEvent, error) {
	const q = `
SELECT id, tenant, capability, provider, cost_usd, charge_usd, timestamp, session_id, tier
FROM meter_events
WHERE timestamp >= $1 AND timestamp < $2
ORDER BY timestamp ASC
`
	rows, err := s.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("meter: ranging by timestamp: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meter_events WHERE timestamp < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("meter: pruning: %w", err)
	}
	return res.RowsAffected()
}

func scanEvents(rows *sql.Rows) ([]domain.MeterEvent, error) {
	var out []domain.MeterEvent
	for rows.Next() {
		var e domain.MeterEvent
		var capability, tier, cost, charge string
		if err := rows.Scan(&e.ID, &e.Tenant, &capability, &e.Provider, &cost, &charge, &e.Timestamp, &e.SessionID, &tier); err != nil {
			return nil, fmt.Errorf("meter: scanning row: %w", err)
		}
		e.Capability = domain.Capability(capability)
		e.Tier = domain.PricingTier(tier)
		costDec, err := decimal.NewFromString(cost)
		if err != nil {
			return nil, fmt.Errorf("meter: parsing cost_usd: %w", err)
		}
		chargeDec, err := decimal.NewFromString(charge)
		if err != nil {
			return nil, fmt.Errorf("meter: parsing charge_usd: %w", err)
		}
		e.CostUSD = costDec
		e.ChargeUSD = chargeDec
		out = append(out, e)
	}
	return out, rows.Err()
}
