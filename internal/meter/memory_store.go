package meter

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// MemoryStore is an in-process Store used by tests and by AdapterSocket
// integration tests that don't need a real database.
type MemoryStore struct {
	mu     sync.Mutex
	events []domain.MeterEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, event domain.MeterEvent) (domain.MeterEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.events = append(s.events, event)
	return event, nil
}

func (s *MemoryStore) RangeByTenant(ctx context.Context, tenant string, from, to time.Time) ([]domain.MeterEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MeterEvent
	for _, e := range s.events {
		if e.Tenant == tenant && !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) RangeByTimestamp(ctx context.Context, from, to time.Time) ([]domain.MeterEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MeterEvent
	for _, e := range s.events {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []domain.MeterEvent
	var removed int64
	for _, e := range s.events {
		if e.Timestamp.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, nil
}

// CountForTenant is a test helper: total events recorded for tenant.
func (s *MemoryStore) CountForTenant(tenant string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, e := range s.events {
		if e.Tenant == tenant {
			n++
		}
	}
	return n
}
