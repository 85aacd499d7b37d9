// Package deletion implements the ordered, resilient tenant purge: a
// single pipeline that runs every step regardless of earlier failures
// and reports what happened rather than aborting partway through.
package deletion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wopr-network/wopr-platform/internal/billing"
)

// ObjectStore abstracts the object store holding snapshot blobs. The
// choice of concrete store is out of scope; only this interface is
// exercised, and only a fake implementation ships.
type ObjectStore interface {
	Delete(ctx context.Context, objectKey string) error
}

// Store is the SQL surface DeletionExecutor drives. One method per
// pipeline step, each returning the number of rows it touched.
type Store interface {
	DeleteBotInstances(ctx context.Context, tenant string) (int64, error)
	DeleteCreditLedger(ctx context.Context, tenant string) (int64, error)
	DeleteUsageData(ctx context.Context, tenant string) (int64, error)
	DeleteNotificationData(ctx context.Context, tenant string) (int64, error)
	DeleteUserAuditLog(ctx context.Context, tenant string) (int64, error)
	AnonymizeAdminAuditLog(ctx context.Context, tenant string) (int64, error)
	DeleteAdminNotes(ctx context.Context, tenant string) (int64, error)
	ListSnapshotObjectKeys(ctx context.Context, tenant string) ([]SnapshotRef, error)
	DeleteSnapshotRows(ctx context.Context, tenant string) (int64, error)
	DeleteBackupStatus(ctx context.Context, tenant string) (int64, error)
	DeleteExternalProcessorCharges(ctx context.Context, tenant string) (int64, error)
	DeleteTenantStatus(ctx context.Context, tenant string) (int64, error)
	DeleteUserRoles(ctx context.Context, tenant string) (int64, error)
	DeleteCustomerMapping(ctx context.Context, tenant string) (int64, error)
	DeleteAuthRecords(ctx context.Context, tenant string) (int64, error)
}

// SnapshotRef is one row from the snapshots table: enough to delete its
// backing object before the row itself goes.
type SnapshotRef struct {
	ID        string
	ObjectKey string
}

// anonymizedSentinel is written into admin audit log target columns in
// place of deleting the row; those rows are retained for regulatory
// reasons.
const anonymizedSentinel = "[deleted]"

// Summary is the result of one Execute call: per-step row counts, and
// any per-step errors, none of which abort the pipeline.
type Summary struct {
	DeletedCounts map[string]int64
	Errors        []string
	StartedAt     time.Time
	FinishedAt    time.Time
}

type step struct {
	name string
	run  func(ctx context.Context, tenant string) (int64, error)
}

// Executor runs the fixed 15-step tenant purge pipeline.
type Executor struct {
	store    Store
	payments billing.PaymentProcessor
	objects  ObjectStore
	logger   *slog.Logger
}

func New(store Store, payments billing.PaymentProcessor, objects ObjectStore, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, payments: payments, objects: objects, logger: logger}
}

// Execute runs every step in fixed order for tenant, regardless of
// earlier step failures, and returns a summary of what happened. The
// outer call always succeeds; failure is reported per step.
func (e *Executor) Execute(ctx context.Context, tenant string) Summary {
	summary := Summary{
		DeletedCounts: make(map[string]int64),
		StartedAt:     time.Now().UTC(),
	}

	steps := []step{
		{"stripe_customer", func(ctx context.Context, tenant string) (int64, error) {
			if e.payments == nil {
				return 0, nil
			}
			if err := e.payments.DeleteCustomer(ctx, tenant); err != nil {
				return 0, err
			}
			return 1, nil
		}},
		{"bot_instances", e.store.DeleteBotInstances},
		{"credit_ledger", e.store.DeleteCreditLedger},
		{"usage_data", e.store.DeleteUsageData},
		{"notification_data", e.store.DeleteNotificationData},
		{"user_audit_log", e.store.DeleteUserAuditLog},
		{"admin_audit_log", e.store.AnonymizeAdminAuditLog},
		{"admin_notes", e.store.DeleteAdminNotes},
		{"snapshots", func(ctx context.Context, tenant string) (int64, error) {
			return e.deleteSnapshots(ctx, tenant, &summary)
		}},
		{"backup_status", e.store.DeleteBackupStatus},
		{"external_processor_charges", e.store.DeleteExternalProcessorCharges},
		{"tenant_status", e.store.DeleteTenantStatus},
		{"user_roles", e.store.DeleteUserRoles},
		{"customer_mapping", e.store.DeleteCustomerMapping},
		{"auth_records", e.store.DeleteAuthRecords},
	}

	for _, s := range steps {
		e.runStep(ctx, tenant, s, &summary)
	}

	summary.FinishedAt = time.Now().UTC()
	return summary
}

// runStep wraps a single pipeline step with panic recovery, so a bug in
// one step's query building cannot abort the rest of the purge.
func (e *Executor) runStep(ctx context.Context, tenant string, s step, summary *Summary) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("deletion: step panicked", "step", s.name, "tenant", tenant, "panic", r)
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: panic: %v", s.name, r))
		}
	}()

	count, err := s.run(ctx, tenant)
	if err != nil {
		e.logger.Error("deletion: step failed", "step", s.name, "tenant", tenant, "error", err)
		summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", s.name, err))
		return
	}
	summary.DeletedCounts[s.name] = count
}

// deleteSnapshots lists snapshot object keys, deletes each blob from the
// object store (failures recorded per-object as their own errors entry,
// not fatal to the step), then deletes the snapshot rows themselves.
func (e *Executor) deleteSnapshots(ctx context.Context, tenant string, summary *Summary) (int64, error) {
	refs, err := e.store.ListSnapshotObjectKeys(ctx, tenant)
	if err != nil {
		return 0, fmt.Errorf("listing snapshots: %w", err)
	}

	for _, ref := range refs {
		if e.objects == nil {
			continue
		}
		if err := e.objects.Delete(ctx, ref.ObjectKey); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("s3_snapshot(%s): %v", ref.ID, err))
			continue
		}
		summary.DeletedCounts["s3_object:"+ref.ID] = 1
	}

	return e.store.DeleteSnapshotRows(ctx, tenant)
}
