package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// CommandBus implements §4.F.4: dispatch associates a fresh command id
// with a pending future, sends the command through the ConnectionRegistry,
// and resolves the future when a matching command_result arrives.
// Unmatched or late results are dropped with a warning.
type CommandBus struct {
	registry *ConnectionRegistry
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]chan domain.CommandResult
}

func NewCommandBus(registry *ConnectionRegistry, logger *slog.Logger) *CommandBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandBus{
		registry: registry,
		logger:   logger,
		pending:  make(map[string]chan domain.CommandResult),
	}
}

// Dispatch sends a command to nodeID and blocks until a matching result
// arrives, ctx is cancelled, or timeout elapses (whichever first). On
// timeout the pending future is evicted so a late result is dropped.
func (b *CommandBus) Dispatch(ctx context.Context, nodeID string, command domain.Command, timeout time.Duration) (domain.CommandResult, error) {
	command.ID = uuid.NewString()
	command.Type = "command"

	resultCh := make(chan domain.CommandResult, 1)
	b.mu.Lock()
	b.pending[command.ID] = resultCh
	b.mu.Unlock()

	defer b.evict(command.ID)

	payload, err := json.Marshal(command)
	if err != nil {
		return domain.CommandResult{}, fmt.Errorf("fleet: marshaling command: %w", err)
	}

	if err := b.registry.Send(ctx, nodeID, payload); err != nil {
		return domain.CommandResult{}, fmt.Errorf("fleet: sending command to node %s: %w", nodeID, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		return result, nil
	case <-ctx.Done():
		return domain.CommandResult{}, ctx.Err()
	case <-timer.C:
		return domain.CommandResult{}, fmt.Errorf("fleet: command %s to node %s timed out after %s", command.ID, nodeID, timeout)
	}
}

func (b *CommandBus) evict(commandID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, commandID)
}

// Resolve is called by the node stream's read loop when a command_result
// frame arrives.
func (b *CommandBus) Resolve(result domain.CommandResult) {
	b.mu.Lock()
	ch, ok := b.pending[result.ID]
	if ok {
		delete(b.pending, result.ID)
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Warn("fleet: dropping unmatched or late command result", "command_id", result.ID)
		return
	}
	ch <- result
}
