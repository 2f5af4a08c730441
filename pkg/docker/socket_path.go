package docker

import (
	"context"
	"fmt"
	"runtime"

	dockerClient "github.com/docker/docker/client"
)

// Get default Docker socket path based on OS
func getDefaultSocketPath() string {
	if runtime.GOOS == "windows" {
		// Docker Desktop usually uses a named pipe
		return "npipe:////./pipe/docker_engine"
	}
	// Linux/macOS path
	return "unix:///var/run/docker.sock"
}

// Try alternative socket paths
func tryAlternativeSocketPaths() (*dockerClient.Client, error) {
	alternativePaths := []string{
		"unix:///var/run/docker.sock",
		"unix:///run/docker.sock",
		// Rootless docker
		"unix:///run/user/1000/docker.sock",
		// Windows named pipe
		"npipe:////./pipe/docker_engine",
	}

	var lastErr error
	for _, path := range alternativePaths {
		cli, err := dockerClient.NewClientWithOpts(
			dockerClient.WithHost(path),
			dockerClient.WithAPIVersionNegotiation(),
		)
		if err != nil {
			lastErr = err
			continue
		}

		// Test connection
		if _, err = cli.Ping(context.Background()); err != nil {
			cli.Close()
			lastErr = err
			continue
		}

		return cli, nil
	}

	return nil, fmt.Errorf("failed to connect to Docker using any socket path. Last error: %w", lastErr)
}
