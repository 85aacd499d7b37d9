// Package ledger implements the authoritative, double-entry credit
// bookkeeping described for CreditLedger: ordered per-tenant debits,
// idempotent top-ups via reference_id, and a queryable history.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// Errors returned by CreditLedger operations. StorageFailure is retryable;
// DuplicateReference is the expected outcome of a repeated idempotent
// top-up and callers should treat it as success; InvalidAmount rejects a
// zero amount or one outside signed 64-bit credit range.
var (
	ErrStorageFailure     = errors.New("ledger: storage failure")
	ErrDuplicateReference = errors.New("ledger: duplicate reference_id")
	ErrInvalidAmount      = errors.New("ledger: invalid amount")
)

// HistoryOptions bounds a history query.
type HistoryOptions struct {
	Limit  int
	Offset int
}

// Store is the persistence boundary a CreditLedger drives. Implementations
// must support the unique (tenant, reference_id) constraint described in
// section 4.C invariant 4 — Insert should itself fail on a duplicate rather
// than relying solely on the ledger's in-process lock, since the
// constraint also has to hold across instances.
type Store interface {
	// LastBalance returns the balance_after of the tenant's most recent
	// transaction, or zero with ok=false if the tenant has none.
	LastBalance(ctx context.Context, tenant string) (balance domain.Credit, ok bool, err error)
	// Insert persists tx. It must return ErrDuplicateReference if
	// tx.ReferenceID is non-empty and a row already exists for
	// (tx.Tenant, tx.ReferenceID).
	Insert(ctx context.Context, tx domain.CreditTransaction) error
	HasReferenceID(ctx context.Context, tenant, referenceID string) (bool, error)
	History(ctx context.Context, tenant string, opts HistoryOptions) ([]domain.CreditTransaction, error)
}

// Ledger is the CreditLedger implementation. Per-tenant serialization is a
// striped mutex map (sharded actor-per-tenant, per the design notes' first
// implementation option) rather than a single global lock — concurrent
// writers for different tenants proceed in parallel; writers for the same
// tenant observe a total order.
type Ledger struct {
	store Store

	stripeMu sync.Mutex
	stripes  map[string]*sync.Mutex
}

func New(store Store) *Ledger {
	return &Ledger{
		store:   store,
		stripes: make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) lockFor(tenant string) *sync.Mutex {
	l.stripeMu.Lock()
	defer l.stripeMu.Unlock()
	m, ok := l.stripes[tenant]
	if !ok {
		m = &sync.Mutex{}
		l.stripes[tenant] = m
	}
	return m
}

func validateAmount(amount domain.Credit) error {
	if amount == 0 {
		return fmt.Errorf("%w: amount must be non-zero", ErrInvalidAmount)
	}
	return nil
}

// Credit records a positive ledger entry (or negative, for corrections —
// the sign lives in amount). Description, referenceID, and fundingSource
// are optional.
func (l *Ledger) Credit(ctx context.Context, tenant string, amount domain.Credit, txType domain.TransactionType, description, referenceID, fundingSource string) (domain.CreditTransaction, error) {
	return l.record(ctx, tenant, amount, txType, description, referenceID, fundingSource)
}

// Debit records a negative ledger entry. Debits do not reject on
// insufficient balance — the ledger lets balance go negative; enforcement
// is BudgetChecker's job, not the ledger's (section 4.C invariant 3).
func (l *Ledger) Debit(ctx context.Context, tenant string, amount domain.Credit, txType domain.TransactionType, description, referenceID string) (domain.CreditTransaction, error) {
	if amount > 0 {
		amount = -amount
	}
	return l.record(ctx, tenant, amount, txType, description, referenceID, "")
}

func (l *Ledger) record(ctx context.Context, tenant string, amount domain.Credit, txType domain.TransactionType, description, referenceID, fundingSource string) (domain.CreditTransaction, error) {
	if err := validateAmount(amount); err != nil {
		return domain.CreditTransaction{}, err
	}

	mu := l.lockFor(tenant)
	mu.Lock()
	defer mu.Unlock()

	prev, _, err := l.store.LastBalance(ctx, tenant)
	if err != nil {
		return domain.CreditTransaction{}, fmt.Errorf("%w: reading prior balance: %v", ErrStorageFailure, err)
	}

	tx := domain.CreditTransaction{
		ID:            uuid.NewString(),
		Tenant:        tenant,
		Amount:        amount,
		BalanceAfter:  prev + amount,
		Type:          txType,
		Description:   description,
		ReferenceID:   referenceID,
		FundingSource: fundingSource,
	}

	if err := l.store.Insert(ctx, tx); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return domain.CreditTransaction{}, ErrDuplicateReference
		}
		return domain.CreditTransaction{}, fmt.Errorf("%w: inserting transaction: %v", ErrStorageFailure, err)
	}

	return tx, nil
}

// Balance returns the tenant's current balance: the balance_after of its
// most recent transaction, or zero if it has none.
func (l *Ledger) Balance(ctx context.Context, tenant string) (domain.Credit, error) {
	balance, _, err := l.store.LastBalance(ctx, tenant)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return balance, nil
}

func (l *Ledger) HasReferenceID(ctx context.Context, tenant, referenceID string) (bool, error) {
	ok, err := l.store.HasReferenceID(ctx, tenant, referenceID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return ok, nil
}

func (l *Ledger) History(ctx context.Context, tenant string, opts HistoryOptions) ([]domain.CreditTransaction, error) {
	txs, err := l.store.History(ctx, tenant, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return txs, nil
}
