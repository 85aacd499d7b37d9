package budget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// PostgresLimitsSource is the LimitsSource backing Checker in production,
// mirroring ledger.PostgresStore's shape: one small table, $1-placeholder
// queries, its own Migrate.
type PostgresLimitsSource struct {
	db *sql.DB
}

// NewPostgresLimitsSource wraps an already-open connection, sharing the
// pool the rest of the platform container uses for meter/ledger/aggregator.
func NewPostgresLimitsSource(db *sql.DB) *PostgresLimitsSource {
	return &PostgresLimitsSource{db: db}
}

const limitsSchemaSQL = `
CREATE TABLE IF NOT EXISTS tenant_spend_limits (
	tenant        TEXT PRIMARY KEY,
	tier          TEXT NOT NULL,
	max_per_hour  NUMERIC,
	max_per_month NUMERIC,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the spend limits table if it does not already exist.
func (s *PostgresLimitsSource) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, limitsSchemaSQL)
	return err
}

func (s *PostgresLimitsSource) SpendLimitsFor(ctx context.Context, tenant string) (SpendLimits, domain.PricingTier, bool, error) {
	const q = `SELECT tier, max_per_hour, max_per_month FROM tenant_spend_limits WHERE tenant = $1`
	var tier string
	var maxPerHour, maxPerMonth sql.NullString
	err := s.db.QueryRowContext(ctx, q, tenant).Scan(&tier, &maxPerHour, &maxPerMonth)
	if errors.Is(err, sql.ErrNoRows) {
		return SpendLimits{}, "", false, nil
	}
	if err != nil {
		return SpendLimits{}, "", false, fmt.Errorf("budget: querying spend limits: %w", err)
	}

	limits := SpendLimits{}
	if maxPerHour.Valid {
		d, err := decimal.NewFromString(maxPerHour.String)
		if err != nil {
			return SpendLimits{}, "", false, fmt.Errorf("budget: parsing max_per_hour: %w", err)
		}
		limits.MaxPerHour = d
	}
	if maxPerMonth.Valid {
		d, err := decimal.NewFromString(maxPerMonth.String)
		if err != nil {
			return SpendLimits{}, "", false, fmt.Errorf("budget: parsing max_per_month: %w", err)
		}
		limits.MaxPerMonth = d
	}
	return limits, domain.PricingTier(tier), true, nil
}

// SetSpendLimits upserts a tenant's configured limits, used by the admin
// endpoint that configures spend_limits.
func (s *PostgresLimitsSource) SetSpendLimits(ctx context.Context, tenant string, limits SpendLimits, tier domain.PricingTier) error {
	const q = `
INSERT INTO tenant_spend_limits (tenant, tier, max_per_hour, max_per_month, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (tenant) DO UPDATE SET
	tier = EXCLUDED.tier,
	max_per_hour = EXCLUDED.max_per_hour,
	max_per_month = EXCLUDED.max_per_month,
	updated_at = now()
`
	_, err := s.db.ExecContext(ctx, q, tenant, string(tier), nullableDecimal(limits.MaxPerHour), nullableDecimal(limits.MaxPerMonth))
	if err != nil {
		return fmt.Errorf("budget: upserting spend limits: %w", err)
	}
	return nil
}

func nullableDecimal(d decimal.Decimal) interface{} {
	if d.IsZero() {
		return nil
	}
	return d.String()
}
