package fleet_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/fleet"
)

func TestConnectionRegistry_AcceptReplacesPreviousStream(t *testing.T) {
	registry := fleet.NewConnectionRegistry()
	first := fleet.NewMemoryStream()
	second := fleet.NewMemoryStream()

	registry.Accept("node-1", first)
	registry.Accept("node-1", second)

	assert.True(t, first.Closed())
	assert.False(t, second.Closed())
	assert.True(t, registry.Connected("node-1"))
}

func TestHeartbeatProcessor_TransitionsProvisioningToActive(t *testing.T) {
	nodes := fleet.NewMemoryNodeRepo()
	ctx := context.Background()
	require.NoError(t, nodes.Upsert(ctx, domain.Node{ID: "node-1", Status: domain.NodeProvisioning}))

	p := fleet.NewHeartbeatProcessor(nodes)
	err := p.Process(ctx, domain.HeartbeatMessage{
		NodeID:           "node-1",
		ContainerSummary: []domain.ContainerSummary{{BotInstanceID: "b1", SizeMB: 512}},
	})
	require.NoError(t, err)

	node, _, _ := nodes.Get(ctx, "node-1")
	assert.Equal(t, domain.NodeActive, node.Status)
	assert.Equal(t, int64(512), node.UsedMB)
}

func TestNodeRegistrar_RegisterIsIdempotent(t *testing.T) {
	nodes := fleet.NewMemoryNodeRepo()
	ctx := context.Background()
	r := fleet.NewNodeRegistrar(nodes)

	_, err := r.Register(ctx, domain.RegisterMessage{NodeID: "node-1", Host: "10.0.0.1", CapacityMB: 4096, AgentVersion: "1.0.0"})
	require.NoError(t, err)

	node, err := r.Register(ctx, domain.RegisterMessage{NodeID: "node-1", Host: "10.0.0.2", CapacityMB: 8192, AgentVersion: "1.1.0"})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.2", node.Host)
	assert.Equal(t, int64(8192), node.CapacityMB)

	all, err := nodes.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCommandBus_DispatchResolvesOnMatchingResult(t *testing.T) {
	registry := fleet.NewConnectionRegistry()
	stream := fleet.NewMemoryStream()
	registry.Accept("node-1", stream)

	bus := fleet.NewCommandBus(registry, nil)

	var sentID string
	stream.OnSend = func(message []byte) error {
		var cmd domain.Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			return err
		}
		sentID = cmd.ID
		go bus.Resolve(domain.CommandResult{ID: sentID, Success: true})
		return nil
	}

	result, err := bus.Dispatch(context.Background(), "node-1", domain.Command{Command: "start_bot"}, time.Second)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestCommandBus_DispatchTimesOutAndEvictsFuture(t *testing.T) {
	registry := fleet.NewConnectionRegistry()
	stream := fleet.NewMemoryStream()
	registry.Accept("node-1", stream)

	bus := fleet.NewCommandBus(registry, nil)

	var sentID string
	stream.OnSend = func(message []byte) error {
		var cmd domain.Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			return err
		}
		sentID = cmd.ID
		return nil
	}

	_, err := bus.Dispatch(context.Background(), "node-1", domain.Command{Command: "drain"}, 10*time.Millisecond)
	assert.Error(t, err)

	// A late result for the evicted id must be dropped, not panic.
	assert.NotPanics(t, func() {
		bus.Resolve(domain.CommandResult{ID: sentID, Success: true})
	})
}

func TestWatchdog_TransitionsActiveToDegradedToUnreachable(t *testing.T) {
	nodes := fleet.NewMemoryNodeRepo()
	ctx := context.Background()

	staleTime := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, nodes.Upsert(ctx, domain.Node{ID: "node-1", Status: domain.NodeActive, LastHeartbeatAt: staleTime}))

	var recovered []string
	wd := fleet.NewWatchdog(nodes, time.Minute, 2*time.Minute, func(ctx context.Context, node domain.Node) {
		recovered = append(recovered, node.ID)
	}, nil)

	require.NoError(t, wd.Scan(ctx))
	node, _, _ := nodes.Get(ctx, "node-1")
	assert.Equal(t, domain.NodeDegraded, node.Status)
	assert.Empty(t, recovered)

	require.NoError(t, wd.Scan(ctx))
	node, _, _ = nodes.Get(ctx, "node-1")
	assert.Equal(t, domain.NodeUnreachable, node.Status)
	assert.Equal(t, []string{"node-1"}, recovered)
}

func TestWatchdog_UnreachableNodeReturnsToActiveOnHeartbeat(t *testing.T) {
	nodes := fleet.NewMemoryNodeRepo()
	ctx := context.Background()
	require.NoError(t, nodes.Upsert(ctx, domain.Node{ID: "node-1", Status: domain.NodeUnreachable, LastHeartbeatAt: time.Now().UTC().Add(-time.Hour)}))

	p := fleet.NewHeartbeatProcessor(nodes)
	require.NoError(t, p.Process(ctx, domain.HeartbeatMessage{NodeID: "node-1"}))

	node, _, _ := nodes.Get(ctx, "node-1")
	assert.Equal(t, domain.NodeActive, node.Status)
}
