package fleet

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// EventPublisher is the slice of a Pub/Sub-backed event bus the recovery
// manager needs to emit node.recovery.triggered events.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// RecoveryManager implements the minimal behavior §4.F.5 names:
// attempting a reconnection ping through CommandBus if a stream still
// exists, and emitting a recovery event. Migrating BotInstances off an
// unreachable node is explicitly out of scope (left to an operator or a
// future component).
type RecoveryManager struct {
	registry *ConnectionRegistry
	commands *CommandBus
	events   EventPublisher
	logger   *slog.Logger
}

func NewRecoveryManager(registry *ConnectionRegistry, commands *CommandBus, events EventPublisher, logger *slog.Logger) *RecoveryManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryManager{registry: registry, commands: commands, events: events, logger: logger}
}

// Recover is the RecoveryHook passed to Watchdog.
func (m *RecoveryManager) Recover(ctx context.Context, node domain.Node) {
	if m.registry.Connected(node.ID) {
		go func() {
			pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := m.commands.Dispatch(pingCtx, node.ID, domain.Command{Command: "ping"}, 10*time.Second); err != nil {
				m.logger.Warn("fleet: recovery ping failed", "node_id", node.ID, "error", err)
			}
		}()
	}

	event := domain.HealthEvent{
		Type:   "node.recovery.triggered",
		NodeID: node.ID,
		Reason: "heartbeat missed past unreachable threshold",
	}
	if m.events == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("fleet: marshaling recovery event", "error", err)
		return
	}
	if err := m.events.Publish(ctx, "node.recovery.triggered", payload); err != nil {
		m.logger.Error("fleet: publishing recovery event", "node_id", node.ID, "error", err)
	}
}
