package fleet

import (
	"context"
	"sync"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// MemoryNodeRepo is an in-process NodeRepo for tests.
type MemoryNodeRepo struct {
	mu    sync.Mutex
	nodes map[string]domain.Node
}

func NewMemoryNodeRepo() *MemoryNodeRepo {
	return &MemoryNodeRepo{nodes: make(map[string]domain.Node)}
}

func (r *MemoryNodeRepo) Get(ctx context.Context, nodeID string) (domain.Node, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[nodeID]
	return n, ok, nil
}

func (r *MemoryNodeRepo) Upsert(ctx context.Context, node domain.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[node.ID] = node
	return nil
}

func (r *MemoryNodeRepo) List(ctx context.Context) ([]domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out, nil
}

// MemoryInstanceRepo is an in-process InstanceRepo for tests.
type MemoryInstanceRepo struct {
	mu         sync.Mutex
	containers map[string][]domain.ContainerSummary
}

func NewMemoryInstanceRepo() *MemoryInstanceRepo {
	return &MemoryInstanceRepo{containers: make(map[string][]domain.ContainerSummary)}
}

func (r *MemoryInstanceRepo) SetContainers(nodeID string, containers []domain.ContainerSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[nodeID] = containers
}

func (r *MemoryInstanceRepo) ContainersForNode(ctx context.Context, nodeID string) ([]domain.ContainerSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.containers[nodeID], nil
}
