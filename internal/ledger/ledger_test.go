package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/ledger"
)

func TestCredit_IdempotentReference(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	ctx := context.Background()

	tx1, err := l.Credit(ctx, "tenantA", 1000, domain.TransactionPurchase, "", "stripe_cs_XYZ", "stripe")
	require.NoError(t, err)
	assert.Equal(t, domain.Credit(1000), tx1.BalanceAfter)

	_, err = l.Credit(ctx, "tenantA", 1000, domain.TransactionPurchase, "", "stripe_cs_XYZ", "stripe")
	assert.ErrorIs(t, err, ledger.ErrDuplicateReference)

	balance, err := l.Balance(ctx, "tenantA")
	require.NoError(t, err)
	assert.Equal(t, domain.Credit(1000), balance)
}

func TestDebit_AllowsNegativeBalance(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	ctx := context.Background()

	_, err := l.Debit(ctx, "tenantA", 500, domain.TransactionConsumption, "", "")
	require.NoError(t, err)

	balance, err := l.Balance(ctx, "tenantA")
	require.NoError(t, err)
	assert.Equal(t, domain.Credit(-500), balance)
}

func TestRecord_RejectsZeroAmount(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	_, err := l.Credit(context.Background(), "tenantA", 0, domain.TransactionCorrection, "", "", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestBalance_RunningSumInvariant(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	ctx := context.Background()

	amounts := []domain.Credit{500, -200, 1000, -50}
	var want domain.Credit
	for i, amt := range amounts {
		want += amt
		tx, err := l.Credit(ctx, "tenantA", amt, domain.TransactionCorrection, "", "", "")
		require.NoError(t, err)
		assert.Equal(t, want, tx.BalanceAfter, "transaction %d", i)
	}

	balance, err := l.Balance(ctx, "tenantA")
	require.NoError(t, err)
	assert.Equal(t, want, balance)
}

func TestPerTenantSerialization_ConcurrentWritersSameTenant(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := l.Credit(ctx, "tenantA", 1, domain.TransactionCorrection, "", "", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := l.Balance(ctx, "tenantA")
	require.NoError(t, err)
	assert.Equal(t, domain.Credit(writers), balance)

	history, err := l.History(ctx, "tenantA", ledger.HistoryOptions{Limit: writers})
	require.NoError(t, err)
	require.Len(t, history, writers)

	seen := make(map[domain.Credit]bool)
	for _, tx := range history {
		assert.False(t, seen[tx.BalanceAfter], "duplicate balance_after %d", tx.BalanceAfter)
		seen[tx.BalanceAfter] = true
	}
}

func TestDifferentTenants_IndependentBalances(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	ctx := context.Background()

	_, err := l.Credit(ctx, "tenantA", 100, domain.TransactionPurchase, "", "", "")
	require.NoError(t, err)
	_, err = l.Credit(ctx, "tenantB", 200, domain.TransactionPurchase, "", "", "")
	require.NoError(t, err)

	balA, err := l.Balance(ctx, "tenantA")
	require.NoError(t, err)
	balB, err := l.Balance(ctx, "tenantB")
	require.NoError(t, err)

	assert.Equal(t, domain.Credit(100), balA)
	assert.Equal(t, domain.Credit(200), balB)
}

type failingStore struct {
	ledger.Store
}

func (failingStore) LastBalance(ctx context.Context, tenant string) (domain.Credit, bool, error) {
	return 0, false, errors.New("connection reset")
}

func TestCredit_StorageFailureWrapped(t *testing.T) {
	l := ledger.New(failingStore{})
	_, err := l.Credit(context.Background(), "tenantA", 100, domain.TransactionPurchase, "", "", "")
	assert.ErrorIs(t, err, ledger.ErrStorageFailure)
}
