package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/fleet"
)

const (
	nodePongWait   = 60 * time.Second
	nodePingPeriod = 30 * time.Second
	nodeWriteWait  = 10 * time.Second
)

var nodeUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsStream adapts a *websocket.Conn to fleet.Stream.
type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Send(ctx context.Context, message []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(nodeWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, message)
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}

// handleNodeStream upgrades GET /internal/nodes/{node_id}/ws to a
// websocket, accepts it into the ConnectionRegistry, and pumps inbound
// frames (register, heartbeat, command_result, health_event) to the
// right fleet component. Grounded on fabric/websocket.go's
// upgrade-then-ping/pong-keepalive-then-read-loop shape.
func (s *Server) handleNodeStream(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["node_id"]

	if !s.authenticateNode(r.Context(), nodeID, r) {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	conn, err := nodeUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("httpapi: node websocket upgrade failed", "node_id", nodeID, "error", err)
		return
	}

	stream := &wsStream{conn: conn}
	s.connections.Accept(nodeID, stream)

	conn.SetReadDeadline(time.Now().Add(nodePongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(nodePongWait))
		return nil
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(nodePingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(nodeWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	defer func() {
		close(done)
		s.connections.Close(nodeID)
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info("httpapi: node stream closed", "node_id", nodeID, "error", err)
			return
		}
		s.dispatchNodeFrame(r.Context(), nodeID, payload)
	}
}

// authenticateNode checks the node stream's bearer token against either
// the static platform-wide NODE_SECRET or the node's own persisted
// secret, per §6's upgrade handshake.
func (s *Server) authenticateNode(ctx context.Context, nodeID string, r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}

	if s.nodeSecret != "" && token == s.nodeSecret {
		return true
	}

	if s.nodes != nil {
		node, found, err := s.nodes.Get(ctx, nodeID)
		if err == nil && found && node.Secret != "" && token == node.Secret {
			return true
		}
	}

	return false
}

func (s *Server) dispatchNodeFrame(ctx context.Context, nodeID string, payload []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn("httpapi: invalid node frame", "node_id", nodeID, "error", err)
		return
	}

	switch envelope.Type {
	case "register":
		var msg domain.RegisterMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Warn("httpapi: invalid register frame", "node_id", nodeID, "error", err)
			return
		}
		if _, err := s.registrar.Register(ctx, msg); err != nil {
			s.logger.Error("httpapi: node registration failed", "node_id", nodeID, "error", err)
		}
	case "heartbeat":
		var msg domain.HeartbeatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Warn("httpapi: invalid heartbeat frame", "node_id", nodeID, "error", err)
			return
		}
		if err := s.heartbeats.Process(ctx, msg); err != nil {
			s.logger.Error("httpapi: heartbeat processing failed", "node_id", nodeID, "error", err)
		}
	case "command_result":
		var result domain.CommandResult
		if err := json.Unmarshal(payload, &result); err != nil {
			s.logger.Warn("httpapi: invalid command_result frame", "node_id", nodeID, "error", err)
			return
		}
		s.commands.Resolve(result)
	case "health_event":
		var event domain.HealthEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			s.logger.Warn("httpapi: invalid health_event frame", "node_id", nodeID, "error", err)
			return
		}
		s.logger.Info("httpapi: node health event", "node_id", nodeID, "reason", event.Reason)
	default:
		s.logger.Warn("httpapi: unknown node frame type", "node_id", nodeID, "type", envelope.Type)
	}
}

var _ fleet.Stream = (*wsStream)(nil)
