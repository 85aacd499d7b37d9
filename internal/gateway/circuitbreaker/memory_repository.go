package circuitbreaker

import (
	"context"
	"sync"
	"time"
)

type scopeState struct {
	count       int64
	windowStart time.Time
	pausedUntil time.Time
}

// MemoryRepository is a single-instance Repository fallback.
type MemoryRepository struct {
	mu     sync.Mutex
	scopes map[string]*scopeState
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{scopes: make(map[string]*scopeState)}
}

func (m *MemoryRepository) get(scope string) *scopeState {
	s, ok := m.scopes[scope]
	if !ok {
		s = &scopeState{}
		m.scopes[scope] = s
	}
	return s
}

func (m *MemoryRepository) Record(ctx context.Context, scope string, windowMs int64) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(scope)
	now := time.Now()
	if s.windowStart.IsZero() || now.Sub(s.windowStart) >= time.Duration(windowMs)*time.Millisecond {
		s.windowStart = now
		s.count = 1
		return s.count, s.windowStart, nil
	}
	s.count++
	return s.count, s.windowStart, nil
}

func (m *MemoryRepository) PausedUntil(ctx context.Context, scope string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(scope).pausedUntil, nil
}

func (m *MemoryRepository) SetPausedUntil(ctx context.Context, scope string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(scope).pausedUntil = until
	return nil
}
