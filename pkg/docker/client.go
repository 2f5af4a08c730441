// pkg/docker/client.go
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	dockerTypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerEvents "github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	dockerClient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/labelsched/labelsched/internal/types"
)

// ErrContainerGone reports an operation against a container that no
// longer exists.
var ErrContainerGone = errors.New("container gone")

// Container is a point-in-time snapshot of one container's identity
// and labels. It is read, never owned.
type Container struct {
	ID     string
	Name   string
	Labels map[string]string
}

// Client wraps the Docker API for the watcher and the execution
// engine. The underlying SDK client is safe for concurrent use, so a
// single Client is shared between event polling and exec workers.
type Client struct {
	api    *dockerClient.Client
	logger *zap.Logger
	shell  string
}

func NewClient(config *types.DockerConfig, shell string, logger *zap.Logger) (*Client, error) {
	var cli *dockerClient.Client
	var err error

	if config.SocketPath != "" {
		cli, err = dockerClient.NewClientWithOpts(
			dockerClient.WithHost("unix://"+config.SocketPath),
			dockerClient.WithAPIVersionNegotiation(),
		)
	} else {
		cli, err = dockerClient.NewClientWithOpts(
			dockerClient.WithHost(getDefaultSocketPath()),
			dockerClient.WithAPIVersionNegotiation(),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	// Test connection
	if _, err = cli.Ping(context.Background()); err != nil {
		logger.Warn("Docker connection test failed", zap.Error(err))
		logger.Info("Trying alternative Docker socket paths...")

		cli, err = tryAlternativeSocketPaths()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Docker: %w", err)
		}
	}

	if shell == "" {
		shell = "/bin/sh"
	}

	return &Client{
		api:    cli,
		logger: logger,
		shell:  shell,
	}, nil
}

func (c *Client) Close() error {
	return c.api.Close()
}

// ListRunning returns snapshots of all running containers.
func (c *Client) ListRunning(ctx context.Context) ([]Container, error) {
	summaries, err := c.api.ContainerList(ctx, container.ListOptions{
		All: false, // Only running containers
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	out := make([]Container, 0, len(summaries))
	for _, s := range summaries {
		name := ""
		if len(s.Names) > 0 {
			name = strings.TrimPrefix(s.Names[0], "/")
		}
		out = append(out, Container{
			ID:     s.ID,
			Name:   name,
			Labels: s.Labels,
		})
	}

	return out, nil
}

// Inspect fetches a fresh label snapshot for one container.
func (c *Client) Inspect(ctx context.Context, containerID string) (*Container, error) {
	containerJSON, err := c.api.ContainerInspect(ctx, containerID)
	if err != nil {
		if dockerClient.IsErrNotFound(err) {
			return nil, fmt.Errorf("inspect %s: %w", containerID[:min(12, len(containerID))], ErrContainerGone)
		}
		return nil, err
	}

	return &Container{
		ID:     containerJSON.ID,
		Name:   strings.TrimPrefix(containerJSON.Name, "/"),
		Labels: containerJSON.Config.Labels,
	}, nil
}

// Subscribe streams the container lifecycle events the scheduler
// cares about. The error channel delivers at most one error, after
// which the stream is dead and must be re-established.
func (c *Client) Subscribe(ctx context.Context) (<-chan dockerEvents.Message, <-chan error) {
	filter := filters.NewArgs()
	filter.Add("type", "container")
	for _, action := range []Action{
		ActionStart, ActionUpdate, ActionUnpause,
		ActionStop, ActionDie, ActionDestroy, ActionPause,
	} {
		filter.Add("event", string(action))
	}

	return c.api.Events(ctx, dockerTypes.EventsOptions{
		Filters: filter,
	})
}

// ExecuteCommand runs a command through the shell inside a container
// and returns its exit code and combined output. A non-zero exit is
// not an error; only transport failures are.
func (c *Client) ExecuteCommand(ctx context.Context, containerID string, command string) (int, string, error) {
	execConfig := dockerTypes.ExecConfig{
		Cmd:          []string{c.shell, "-c", command},
		AttachStdout: true,
		AttachStderr: true,
	}

	execID, err := c.api.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		if dockerClient.IsErrNotFound(err) {
			return 0, "", fmt.Errorf("exec create: %w", ErrContainerGone)
		}
		return 0, "", fmt.Errorf("failed to create exec: %w", err)
	}

	resp, err := c.api.ContainerExecAttach(ctx, execID.ID, dockerTypes.ExecStartCheck{})
	if err != nil {
		return 0, "", fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer resp.Close()

	// Exec output is multiplexed; fold stdout and stderr together.
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, resp.Reader); err != nil {
		return 0, buf.String(), fmt.Errorf("failed to read output: %w", err)
	}

	inspect, err := c.api.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return 0, buf.String(), fmt.Errorf("failed to inspect exec: %w", err)
	}

	return inspect.ExitCode, buf.String(), nil
}
