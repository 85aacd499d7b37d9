package deletion

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a hand-written fake Store for tests: it tracks rows per
// tenant per table and lets a test inject a failure for any step by
// name, mirroring the pack's preference for fakes over a mocking
// framework.
type MemoryStore struct {
	mu sync.Mutex

	rows      map[string]map[string]int64 // table -> tenant -> count
	snapshots map[string][]SnapshotRef
	failWith  map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:      make(map[string]map[string]int64),
		snapshots: make(map[string][]SnapshotRef),
		failWith:  make(map[string]error),
	}
}

// Seed sets the row count for a table/tenant pair, as if rows existed
// prior to deletion.
func (m *MemoryStore) Seed(table, tenant string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[table] == nil {
		m.rows[table] = make(map[string]int64)
	}
	m.rows[table][tenant] = count
}

func (m *MemoryStore) SeedSnapshots(tenant string, refs []SnapshotRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[tenant] = refs
}

// FailStep makes the named step return err every time it runs.
func (m *MemoryStore) FailStep(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith[table] = err
}

func (m *MemoryStore) delete(table, tenant string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failWith[table]; err != nil {
		return 0, err
	}
	count := m.rows[table][tenant]
	delete(m.rows[table], tenant)
	return count, nil
}

func (m *MemoryStore) DeleteBotInstances(ctx context.Context, tenant string) (int64, error) {
	return m.delete("bot_instances", tenant)
}

func (m *MemoryStore) DeleteCreditLedger(ctx context.Context, tenant string) (int64, error) {
	return m.delete("credit_ledger", tenant)
}

func (m *MemoryStore) DeleteUsageData(ctx context.Context, tenant string) (int64, error) {
	return m.delete("usage_data", tenant)
}

func (m *MemoryStore) DeleteNotificationData(ctx context.Context, tenant string) (int64, error) {
	return m.delete("notification_data", tenant)
}

func (m *MemoryStore) DeleteUserAuditLog(ctx context.Context, tenant string) (int64, error) {
	return m.delete("user_audit_log", tenant)
}

// AnonymizeAdminAuditLog keeps the admin audit rows: the tenant's count is
// moved under the anonymization sentinel instead of being deleted.
func (m *MemoryStore) AnonymizeAdminAuditLog(ctx context.Context, tenant string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failWith["admin_audit_log"]; err != nil {
		return 0, err
	}
	count := m.rows["admin_audit_log"][tenant]
	if count > 0 {
		delete(m.rows["admin_audit_log"], tenant)
		m.rows["admin_audit_log"][anonymizedSentinel] += count
	}
	return count, nil
}

func (m *MemoryStore) DeleteAdminNotes(ctx context.Context, tenant string) (int64, error) {
	return m.delete("admin_notes", tenant)
}

func (m *MemoryStore) ListSnapshotObjectKeys(ctx context.Context, tenant string) ([]SnapshotRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWith["snapshots_list"]; err != nil {
		return nil, err
	}
	return m.snapshots[tenant], nil
}

func (m *MemoryStore) DeleteSnapshotRows(ctx context.Context, tenant string) (int64, error) {
	m.mu.Lock()
	count := int64(len(m.snapshots[tenant]))
	delete(m.snapshots, tenant)
	m.mu.Unlock()
	return count, nil
}

func (m *MemoryStore) DeleteBackupStatus(ctx context.Context, tenant string) (int64, error) {
	return m.delete("backup_status", tenant)
}

func (m *MemoryStore) DeleteExternalProcessorCharges(ctx context.Context, tenant string) (int64, error) {
	return m.delete("external_processor_charges", tenant)
}

func (m *MemoryStore) DeleteTenantStatus(ctx context.Context, tenant string) (int64, error) {
	return m.delete("tenant_status", tenant)
}

func (m *MemoryStore) DeleteUserRoles(ctx context.Context, tenant string) (int64, error) {
	return m.delete("user_roles", tenant)
}

func (m *MemoryStore) DeleteCustomerMapping(ctx context.Context, tenant string) (int64, error) {
	return m.delete("customer_mapping", tenant)
}

func (m *MemoryStore) DeleteAuthRecords(ctx context.Context, tenant string) (int64, error) {
	return m.delete("auth_records", tenant)
}

// MemoryObjectStore is a fake ObjectStore: it records deleted keys and
// can be told to fail a specific key.
type MemoryObjectStore struct {
	mu       sync.Mutex
	Deleted  []string
	failKeys map[string]error
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{failKeys: make(map[string]error)}
}

func (m *MemoryObjectStore) FailKey(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failKeys[key] = err
}

func (m *MemoryObjectStore) Delete(ctx context.Context, objectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failKeys[objectKey]; err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	m.Deleted = append(m.Deleted, objectKey)
	return nil
}
