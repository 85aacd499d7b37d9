package deletion_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-network/wopr-platform/internal/billing"
	"github.com/wopr-network/wopr-platform/internal/deletion"
	"github.com/wopr-network/wopr-platform/internal/domain"
)

func TestExecute_DeletesAcrossAllStepsAndAnonymizesAdminAuditLog(t *testing.T) {
	store := deletion.NewMemoryStore()
	store.Seed("bot_instances", "tenant-a", 3)
	store.Seed("credit_ledger", "tenant-a", 5)
	store.Seed("admin_audit_log", "tenant-a", 2)

	exec := deletion.New(store, billing.NoopProcessor{}, deletion.NewMemoryObjectStore(), nil)
	summary := exec.Execute(context.Background(), "tenant-a")

	require.Empty(t, summary.Errors)
	assert.Equal(t, int64(3), summary.DeletedCounts["bot_instances"])
	assert.Equal(t, int64(5), summary.DeletedCounts["credit_ledger"])
	assert.Equal(t, int64(2), summary.DeletedCounts["admin_audit_log"])
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))
}

// TestExecute_SnapshotObjectFailureIsRecordedButPipelineContinues is the
// deletion-with-partial-failure scenario: one snapshot's object delete
// fails, the other succeeds, and every later step still runs.
func TestExecute_SnapshotObjectFailureIsRecordedButPipelineContinues(t *testing.T) {
	store := deletion.NewMemoryStore()
	store.SeedSnapshots("tenant-a", []deletion.SnapshotRef{
		{ID: "snap-fail", ObjectKey: "tenant-a/snap-fail.bin"},
		{ID: "snap-ok", ObjectKey: "tenant-a/snap-ok.bin"},
	})
	store.Seed("tenant_status", "tenant-a", 1)

	objects := deletion.NewMemoryObjectStore()
	objects.FailKey("tenant-a/snap-fail.bin", errors.New("remove rejected"))

	exec := deletion.New(store, billing.NoopProcessor{}, objects, nil)
	summary := exec.Execute(context.Background(), "tenant-a")

	var sawFailure bool
	for _, e := range summary.Errors {
		if e == "s3_snapshot(snap-fail): object store: remove rejected" {
			sawFailure = true
		}
	}
	assert.True(t, sawFailure, "expected an s3_snapshot(snap-fail) error, got %v", summary.Errors)
	assert.Equal(t, int64(1), summary.DeletedCounts["s3_object:snap-ok"])
	assert.NotContains(t, summary.DeletedCounts, "s3_object:snap-fail")

	refs, err := store.ListSnapshotObjectKeys(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Empty(t, refs)

	// A step after snapshots must still have run.
	assert.Equal(t, int64(1), summary.DeletedCounts["tenant_status"])
}

func TestExecute_StepFailureDoesNotAbortPipeline(t *testing.T) {
	store := deletion.NewMemoryStore()
	store.FailStep("credit_ledger", errors.New("connection reset"))
	store.Seed("auth_records", "tenant-a", 1)

	exec := deletion.New(store, billing.NoopProcessor{}, deletion.NewMemoryObjectStore(), nil)
	summary := exec.Execute(context.Background(), "tenant-a")

	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "credit_ledger")
	assert.Contains(t, summary.Errors[0], "connection reset")
	assert.Equal(t, int64(1), summary.DeletedCounts["auth_records"])
}

func TestExecute_PaymentProcessorFailureIsRecordedAsStripeCustomer(t *testing.T) {
	store := deletion.NewMemoryStore()
	exec := deletion.New(store, failingProcessor{}, deletion.NewMemoryObjectStore(), nil)

	summary := exec.Execute(context.Background(), "tenant-a")

	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "stripe_customer")
}

type failingProcessor struct{}

func (failingProcessor) ReportUsage(ctx context.Context, _ domain.BillingPeriodSummary) (string, error) {
	return "", nil
}

func (failingProcessor) DeleteCustomer(ctx context.Context, tenant string) error {
	return errors.New("processor unavailable")
}
