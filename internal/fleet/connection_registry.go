// Package fleet implements FleetOrchestrator: the Node-connection registry,
// heartbeat and registration processing, command dispatch, and the
// watchdog/recovery state machine (section 4.F).
package fleet

import (
	"context"
	"fmt"
	"sync"
)

// Stream is anything a command or message can be written to; satisfied by
// a websocket connection wrapper in the httpapi layer.
type Stream interface {
	Send(ctx context.Context, message []byte) error
	Close() error
}

// ConnectionRegistry holds the at-most-one live stream per node, per
// section 4.F.1. Grounded on fabric.Hub's spoke-registry shape, narrowed
// to one entity (Node) instead of Hub's multi-index spoke/capability/tenant
// registry since FleetOrchestrator routes by node id only.
type ConnectionRegistry struct {
	mu      sync.RWMutex
	streams map[string]Stream
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{streams: make(map[string]Stream)}
}

// Accept installs stream as the live connection for nodeID, closing and
// replacing any previous connection for the same node.
func (r *ConnectionRegistry) Accept(nodeID string, stream Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.streams[nodeID]; ok {
		prev.Close()
	}
	r.streams[nodeID] = stream
}

// Close removes and closes the node's connection, if any.
func (r *ConnectionRegistry) Close(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.streams[nodeID]; ok {
		s.Close()
		delete(r.streams, nodeID)
	}
}

// Send writes message to the node's live stream, erroring if none exists.
func (r *ConnectionRegistry) Send(ctx context.Context, nodeID string, message []byte) error {
	r.mu.RLock()
	s, ok := r.streams[nodeID]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("fleet: no live connection for node %s", nodeID)
	}
	return s.Send(ctx, message)
}

// Connected reports whether a node currently has a live stream.
func (r *ConnectionRegistry) Connected(nodeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.streams[nodeID]
	return ok
}
