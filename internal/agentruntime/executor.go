// Package agentruntime implements the reference Node-side agent's command
// execution: starting, stopping, and draining BotInstance containers via
// the Docker API. Adapted from the pack's ghostpool acquire/scrub/destroy
// container lifecycle, re-pointed at long-running BotInstance containers
// instead of a pre-warmed sandbox pool.
package agentruntime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// Executor runs the fixed command table dispatched by CommandBus:
// start_bot, stop_bot, drain, update_agent, ping.
type Executor struct {
	docker *client.Client
	image  string
	logger *slog.Logger
}

func NewExecutor(docker *client.Client, image string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{docker: docker, image: image, logger: logger}
}

// Execute runs the command and returns the CommandResult to report back
// through the node stream. The orchestrator treats command payloads as
// opaque; this table is this agent's own interpretation of them.
func (e *Executor) Execute(ctx context.Context, cmd domain.Command) domain.CommandResult {
	var err error
	switch cmd.Command {
	case "start_bot":
		err = e.startBot(ctx, cmd.Payload)
	case "stop_bot":
		err = e.stopBot(ctx, cmd.Payload)
	case "drain":
		err = e.drainBot(ctx, cmd.Payload)
	case "update_agent":
		err = fmt.Errorf("update_agent requires a supervisor restart, not handled in-process")
	case "ping":
		// no-op liveness probe used by RecoveryManager
	default:
		err = fmt.Errorf("agentruntime: unknown command %q", cmd.Command)
	}

	result := domain.CommandResult{Type: "command_result", ID: cmd.ID, Command: cmd.Command, Success: err == nil}
	if err != nil {
		result.Error = err.Error()
		e.logger.Error("agentruntime: command failed", "command", cmd.Command, "error", err)
	}
	return result
}

func botContainerName(botInstanceID string) string {
	return "wopr-bot-" + botInstanceID
}

func (e *Executor) startBot(ctx context.Context, payload interface{}) error {
	req, err := decodeBotPayload(payload)
	if err != nil {
		return err
	}

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory: req.SizeMB * 1024 * 1024,
		},
	}

	resp, err := e.docker.ContainerCreate(ctx, &container.Config{
		Image: e.image,
		Env:   []string{"BOT_INSTANCE_ID=" + req.BotInstanceID, "TENANT=" + req.Tenant},
	}, hostConfig, nil, nil, botContainerName(req.BotInstanceID))
	if err != nil {
		return fmt.Errorf("creating container: %w", err)
	}

	if err := e.docker.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("starting container: %w", err)
	}
	return nil
}

func (e *Executor) stopBot(ctx context.Context, payload interface{}) error {
	req, err := decodeBotPayload(payload)
	if err != nil {
		return err
	}
	timeout := 10
	if err := e.docker.ContainerStop(ctx, botContainerName(req.BotInstanceID), container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("stopping container: %w", err)
	}
	return nil
}

// drainBot stops accepting new sessions by signaling the container, but
// leaves it running until the orchestrator issues stop_bot once existing
// sessions end.
func (e *Executor) drainBot(ctx context.Context, payload interface{}) error {
	req, err := decodeBotPayload(payload)
	if err != nil {
		return err
	}
	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	execConfig := types.ExecConfig{
		Cmd:          []string{"/bin/sh", "-c", "touch /tmp/draining"},
		AttachStdout: true,
	}
	execID, err := e.docker.ContainerExecCreate(drainCtx, botContainerName(req.BotInstanceID), execConfig)
	if err != nil {
		return fmt.Errorf("creating drain exec: %w", err)
	}
	return e.docker.ContainerExecStart(drainCtx, execID.ID, types.ExecStartCheck{})
}
