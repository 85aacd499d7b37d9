package fleet

import (
	"context"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// NodeRepo is the persisted Node store (shared mutable state per §4.F).
type NodeRepo interface {
	Get(ctx context.Context, nodeID string) (domain.Node, bool, error)
	Upsert(ctx context.Context, node domain.Node) error
	List(ctx context.Context) ([]domain.Node, error)
}

// InstanceRepo lists the BotInstance containers recorded for a node.
// HeartbeatProcessor does not read it: used_mb comes from the heartbeat's
// own container_summary.
type InstanceRepo interface {
	ContainersForNode(ctx context.Context, nodeID string) ([]domain.ContainerSummary, error)
}
