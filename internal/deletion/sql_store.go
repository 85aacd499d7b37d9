package deletion

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// SQLStore is the Postgres-backed Store, one statement per pipeline
// step. Table names follow the conventions already established by
// ledger, meter, and aggregator's own stores.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("deletion: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("deletion: pinging database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// NewSQLStoreFromDB wraps an already-open connection, so the platform
// container can share one pool across the meter, ledger, aggregator, and
// deletion stores instead of opening a dedicated one here.
func NewSQLStoreFromDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) exec(ctx context.Context, query string, tenant string) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, tenant)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) DeleteBotInstances(ctx context.Context, tenant string) (int64, error) {
	return s.exec(ctx, `DELETE FROM bot_instances WHERE tenant = $1`, tenant)
}

func (s *SQLStore) DeleteCreditLedger(ctx context.Context, tenant string) (int64, error) {
	var total int64
	for _, q := range []string{
		`DELETE FROM credit_transactions WHERE tenant = $1`,
		`DELETE FROM credit_balances WHERE tenant = $1`,
		`DELETE FROM credit_adjustments WHERE tenant = $1`,
	} {
		n, err := s.exec(ctx, q, tenant)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *SQLStore) DeleteUsageData(ctx context.Context, tenant string) (int64, error) {
	var total int64
	for _, q := range []string{
		`DELETE FROM meter_events WHERE tenant = $1`,
		`DELETE FROM billing_period_summaries WHERE tenant = $1`,
		`DELETE FROM external_usage_reports WHERE tenant = $1`,
	} {
		n, err := s.exec(ctx, q, tenant)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *SQLStore) DeleteNotificationData(ctx context.Context, tenant string) (int64, error) {
	var total int64
	for _, q := range []string{
		`DELETE FROM notification_queue WHERE tenant = $1`,
		`DELETE FROM notification_preferences WHERE tenant = $1`,
		`DELETE FROM notification_history WHERE tenant = $1`,
	} {
		n, err := s.exec(ctx, q, tenant)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *SQLStore) DeleteUserAuditLog(ctx context.Context, tenant string) (int64, error) {
	return s.exec(ctx, `DELETE FROM user_audit_log WHERE tenant = $1`, tenant)
}

// AnonymizeAdminAuditLog never deletes rows in admin_audit_log; it
// overwrites the tenant/user identifying columns with the anonymized
// sentinel, because those rows are retained for regulatory reasons.
func (s *SQLStore) AnonymizeAdminAuditLog(ctx context.Context, tenant string) (int64, error) {
	const q = `UPDATE admin_audit_log SET target_tenant = $2, target_user = $2 WHERE target_tenant = $1`
	res, err := s.db.ExecContext(ctx, q, tenant, anonymizedSentinel)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) DeleteAdminNotes(ctx context.Context, tenant string) (int64, error) {
	return s.exec(ctx, `DELETE FROM admin_notes WHERE tenant = $1`, tenant)
}

func (s *SQLStore) ListSnapshotObjectKeys(ctx context.Context, tenant string) ([]SnapshotRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, object_key FROM snapshots WHERE tenant = $1`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []SnapshotRef
	for rows.Next() {
		var ref SnapshotRef
		if err := rows.Scan(&ref.ID, &ref.ObjectKey); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *SQLStore) DeleteSnapshotRows(ctx context.Context, tenant string) (int64, error) {
	return s.exec(ctx, `DELETE FROM snapshots WHERE tenant = $1`, tenant)
}

func (s *SQLStore) DeleteBackupStatus(ctx context.Context, tenant string) (int64, error) {
	return s.exec(ctx, `DELETE FROM backup_status WHERE tenant = $1`, tenant)
}

func (s *SQLStore) DeleteExternalProcessorCharges(ctx context.Context, tenant string) (int64, error) {
	return s.exec(ctx, `DELETE FROM external_processor_charges WHERE tenant = $1`, tenant)
}

func (s *SQLStore) DeleteTenantStatus(ctx context.Context, tenant string) (int64, error) {
	return s.exec(ctx, `DELETE FROM tenant_status WHERE tenant = $1`, tenant)
}

func (s *SQLStore) DeleteUserRoles(ctx context.Context, tenant string) (int64, error) {
	var total int64
	for _, q := range []string{
		`DELETE FROM user_roles WHERE tenant = $1`,
		`DELETE FROM tenant_roles WHERE tenant = $1`,
	} {
		n, err := s.exec(ctx, q, tenant)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *SQLStore) DeleteCustomerMapping(ctx context.Context, tenant string) (int64, error) {
	return s.exec(ctx, `DELETE FROM customer_mapping WHERE tenant = $1`, tenant)
}

func (s *SQLStore) DeleteAuthRecords(ctx context.Context, tenant string) (int64, error) {
	var total int64
	for _, q := range []string{
		`DELETE FROM sessions WHERE tenant = $1`,
		`DELETE FROM accounts WHERE tenant = $1`,
		`DELETE FROM verification_tokens WHERE tenant = $1`,
		`DELETE FROM users WHERE tenant = $1`,
	} {
		n, err := s.exec(ctx, q, tenant)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
