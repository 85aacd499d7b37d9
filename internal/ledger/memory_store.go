package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// MemoryStore is an in-process Store used by tests and single-instance dev
// mode, mirroring the teacher's mutex-guarded map idiom
// (internal/economics/wallet.go's BillingEngine).
type MemoryStore struct {
	mu   sync.Mutex
	rows []domain.CreditTransaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LastBalance(ctx context.Context, tenant string) (domain.Credit, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].Tenant == tenant {
			return s.rows[i].BalanceAfter, true, nil
		}
	}
	return 0, false, nil
}

func (s *MemoryStore) Insert(ctx context.Context, tx domain.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ReferenceID != "" {
		for _, row := range s.rows {
			if row.Tenant == tx.Tenant && row.ReferenceID == tx.ReferenceID {
				return ErrDuplicateReference
			}
		}
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	s.rows = append(s.rows, tx)
	return nil
}

func (s *MemoryStore) HasReferenceID(ctx context.Context, tenant, referenceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.Tenant == tenant && row.ReferenceID == referenceID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) History(ctx context.Context, tenant string, opts HistoryOptions) ([]domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.CreditTransaction
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].Tenant == tenant {
			matched = append(matched, s.rows[i])
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	start := opts.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}
