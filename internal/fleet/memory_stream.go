package fleet

import (
	"context"
	"sync"
)

// MemoryStream is a hand-written fake Stream for tests, recording every
// message sent to it rather than writing to a real socket.
type MemoryStream struct {
	mu       sync.Mutex
	Sent     [][]byte
	closed   bool
	OnSend   func(message []byte) error
}

func NewMemoryStream() *MemoryStream {
	return &MemoryStream{}
}

func (s *MemoryStream) Send(ctx context.Context, message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OnSend != nil {
		if err := s.OnSend(message); err != nil {
			return err
		}
	}
	s.Sent = append(s.Sent, message)
	return nil
}

func (s *MemoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
