package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

const pqDriverName = "postgres"

// PostgresStore is the Store implementation backing CreditLedger in
// production. credit_transactions carries a unique index on
// (tenant, reference_id) WHERE reference_id IS NOT NULL, enforcing
// idempotent top-ups at the storage layer in addition to the ledger's
// in-process per-tenant serialization.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open(pqDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ledger: pinging database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS credit_transactions (
	id             TEXT PRIMARY KEY,
	tenant         TEXT NOT NULL,
	amount         BIGINT NOT NULL,
	balance_after  BIGINT NOT NULL,
	type           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	reference_id   TEXT,
	funding_source TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	seq            BIGSERIAL
);
CREATE UNIQUE INDEX IF NOT EXISTS credit_transactions_tenant_reference_id_uidx
	ON credit_transactions (tenant, reference_id) WHERE reference_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS credit_transactions_tenant_seq_idx
	ON credit_transactions (tenant, seq);
`

// Migrate creates the ledger's table if it does not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *PostgresStore) LastBalance(ctx context.Context, tenant string) (domain.Credit, bool, error) {
	const q = `SELECT balance_after FROM credit_transactions WHERE tenant = $1 ORDER BY seq DESC LIMIT 1`
	var balance int64
	err := s.db.QueryRowContext(ctx, q, tenant).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying last balance: %w", err)
	}
	return domain.Credit(balance), true, nil
}

func (s *PostgresStore) Insert(ctx context.Context, tx domain.CreditTransaction) error {
	const q = `
INSERT INTO credit_transactions (id, tenant, amount, balance_after, type, description, reference_id, funding_source)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
`
	_, err := s.db.ExecContext(ctx, q,
		tx.ID, tx.Tenant, int64(tx.Amount), int64(tx.BalanceAfter), string(tx.Type),
		tx.Description, tx.ReferenceID, tx.FundingSource,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("inserting credit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) HasReferenceID(ctx context.Context, tenant, referenceID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM credit_transactions WHERE tenant = $1 AND reference_id = $2)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, q, tenant, referenceID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking reference_id: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) History(ctx context.Context, tenant string, opts HistoryOptions) ([]domain.CreditTransaction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, tenant, amount, balance_after, type, description, COALESCE(reference_id, ''), funding_source, created_at
FROM credit_transactions
WHERE tenant = $1
ORDER BY seq DESC
LIMIT $2 OFFSET $3
`
	rows, err := s.db.QueryContext(ctx, q, tenant, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []domain.CreditTransaction
	for rows.Next() {
		var tx domain.CreditTransaction
		var amount, balanceAfter int64
		var txType string
		if err := rows.Scan(&tx.ID, &tx.Tenant, &amount, &balanceAfter, &txType,
			&tx.Description, &tx.ReferenceID, &tx.FundingSource, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		tx.Amount = domain.Credit(amount)
		tx.BalanceAfter = domain.Credit(balanceAfter)
		tx.Type = domain.TransactionType(txType)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// isUniqueViolation recognizes a Postgres unique_violation (SQLSTATE 23505)
// surfaced by lib/pq as a *pq.Error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	return errors.Is(err, ErrDuplicateReference)
}
