// Command agent is the reference Node-side process: it connects to the
// platform's node websocket endpoint, registers, sends periodic
// heartbeats, and executes dispatched commands against local Docker
// containers. Not itself required by the platform's specification, but
// supplemental: something has to run on a Node for FleetOrchestrator to
// orchestrate.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	"github.com/gorilla/websocket"

	"github.com/wopr-network/wopr-platform/internal/agentruntime"
	"github.com/wopr-network/wopr-platform/internal/domain"
)

func main() {
	nodeID := os.Getenv("AGENT_NODE_ID")
	platformURL := os.Getenv("PLATFORM_WS_URL")
	nodeSecret := os.Getenv("NODE_SECRET")
	botImage := os.Getenv("AGENT_BOT_IMAGE")

	if nodeID == "" || platformURL == "" || nodeSecret == "" {
		slog.Error("agent: AGENT_NODE_ID, PLATFORM_WS_URL, and NODE_SECRET are required")
		os.Exit(1)
	}
	if botImage == "" {
		botImage = "wopr/bot-runtime:latest"
	}

	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		slog.Error("agent: failed to create docker client", "error", err)
		os.Exit(1)
	}
	defer docker.Close()

	executor := agentruntime.NewExecutor(docker, botImage, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoint, err := url.Parse(platformURL)
	if err != nil {
		slog.Error("agent: invalid PLATFORM_WS_URL", "error", err)
		os.Exit(1)
	}
	endpoint.Path = fmt.Sprintf("/internal/nodes/%s/ws", nodeID)

	header := make(map[string][]string)
	header["Authorization"] = []string{"Bearer " + nodeSecret}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		slog.Error("agent: failed to connect to platform", "url", endpoint.String(), "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := sendRegister(conn, nodeID); err != nil {
		slog.Error("agent: registration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("agent: connected and registered", "node_id", nodeID)

	go heartbeatLoop(ctx, conn, nodeID)
	readLoop(ctx, conn, executor)
}

func sendRegister(conn *websocket.Conn, nodeID string) error {
	msg := domain.RegisterMessage{
		Type:         "register",
		NodeID:       nodeID,
		CapacityMB:   hostCapacityMB(),
		AgentVersion: "0.1.0",
	}
	return conn.WriteJSON(msg)
}

func heartbeatLoop(ctx context.Context, conn *websocket.Conn, nodeID string) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := domain.HeartbeatMessage{
				Type:      "heartbeat",
				NodeID:    nodeID,
				Timestamp: time.Now().UTC(),
			}
			if err := conn.WriteJSON(msg); err != nil {
				slog.Error("agent: heartbeat send failed", "error", err)
				return
			}
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, executor *agentruntime.Executor) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			slog.Error("agent: read failed, disconnecting", "error", err)
			return
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			slog.Warn("agent: invalid message frame", "error", err)
			continue
		}
		if envelope.Type != "command" {
			continue
		}

		var cmd domain.Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			slog.Warn("agent: invalid command frame", "error", err)
			continue
		}

		result := executor.Execute(ctx, cmd)
		if err := conn.WriteJSON(result); err != nil {
			slog.Error("agent: failed to send command result", "error", err)
			return
		}
	}
}

// hostCapacityMB reports a fixed capacity of 8192 MB; it does not read the
// host's actual memory.
func hostCapacityMB() int64 {
	return 8192
}
