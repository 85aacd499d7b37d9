package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// NodeRegistrar implements §4.F.3: idempotent register() handling.
type NodeRegistrar struct {
	nodes NodeRepo
}

func NewNodeRegistrar(nodes NodeRepo) *NodeRegistrar {
	return &NodeRegistrar{nodes: nodes}
}

// Register inserts or updates the node identified by msg.NodeID.
func (r *NodeRegistrar) Register(ctx context.Context, msg domain.RegisterMessage) (domain.Node, error) {
	node, found, err := r.nodes.Get(ctx, msg.NodeID)
	if err != nil {
		return domain.Node{}, fmt.Errorf("fleet: loading node %s: %w", msg.NodeID, err)
	}
	if !found {
		node = domain.Node{
			ID:             msg.NodeID,
			Status:         domain.NodeProvisioning,
			ProvisionStage: "registered",
		}
	}

	node.Host = msg.Host
	node.CapacityMB = msg.CapacityMB
	node.AgentVersion = msg.AgentVersion
	node.LastHeartbeatAt = time.Now().UTC()

	if err := r.nodes.Upsert(ctx, node); err != nil {
		return domain.Node{}, fmt.Errorf("fleet: upserting node %s: %w", msg.NodeID, err)
	}
	return node, nil
}
