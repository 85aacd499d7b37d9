package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// HeartbeatProcessor implements §4.F.2: per-node state updates driven by
// heartbeat messages, serialized per node (a per-node lock, matching the
// orchestrator's stated concurrency requirement that HeartbeatProcessor and
// Watchdog may run concurrently but must serialize writes to the same node).
type HeartbeatProcessor struct {
	nodes NodeRepo

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewHeartbeatProcessor(nodes NodeRepo) *HeartbeatProcessor {
	return &HeartbeatProcessor{nodes: nodes, locks: make(map[string]*sync.Mutex)}
}

func (p *HeartbeatProcessor) lockFor(nodeID string) *sync.Mutex {
	p.locksMu.Lock()
	defer p.locksMu.Unlock()
	l, ok := p.locks[nodeID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[nodeID] = l
	}
	return l
}

// Process applies a heartbeat message to the node's persisted state.
func (p *HeartbeatProcessor) Process(ctx context.Context, msg domain.HeartbeatMessage) error {
	lock := p.lockFor(msg.NodeID)
	lock.Lock()
	defer lock.Unlock()

	node, found, err := p.nodes.Get(ctx, msg.NodeID)
	if err != nil {
		return fmt.Errorf("fleet: loading node %s: %w", msg.NodeID, err)
	}
	if !found {
		return fmt.Errorf("fleet: heartbeat for unregistered node %s", msg.NodeID)
	}

	var usedMB int64
	for _, c := range msg.ContainerSummary {
		usedMB += c.SizeMB
	}

	node.LastHeartbeatAt = time.Now().UTC()
	node.UsedMB = usedMB

	switch node.Status {
	case domain.NodeProvisioning:
		node.Status = domain.NodeActive
	case domain.NodeDegraded, domain.NodeUnreachable:
		node.Status = domain.NodeActive
	}

	return p.nodes.Upsert(ctx, node)
}
