// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/labelsched/labelsched/internal/types"
	"github.com/spf13/viper"
)

// Default configuration values
var defaultConfig = types.Config{
	AppName:     "labelsched",
	Environment: "development",
	LogLevel:    "info",
	Docker: types.DockerConfig{
		SocketPath:          "/var/run/docker.sock",
		LabelPrefix:         "scheduler.",
		InspectRate:         20,
		InspectBurst:        10,
		ReconnectBackoff:    time.Second,
		ReconnectBackoffMax: 30 * time.Second,
		MaxReconnects:       10,
	},
	Scheduler: types.SchedulerConfig{
		TickInterval: time.Second,
		Timezone:     "",
	},
	Exec: types.ExecConfig{
		Shell:   "/bin/sh",
		Timeout: 0,
	},
	Shutdown: types.ShutdownConfig{
		Timeout: 30 * time.Second,
	},
	Logger: types.LoggerConfig{
		Level:    "info",
		Format:   "text",
		Output:   "stdout",
		FilePath: "",
	},
}

// getSystemConfigPath returns the OS-specific configuration directory
func getSystemConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = "C:\\ProgramData"
		}
		configDir = filepath.Join(programData, "labelsched")

	case "darwin":
		configDir = "/Library/Application Support/labelsched"

	case "linux", "freebsd", "openbsd", "netbsd":
		configDir = "/etc/labelsched"

	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return configDir, nil
}

// getConfigPaths returns all possible configuration file paths in order of precedence
func getConfigPaths() ([]string, error) {
	systemConfigDir, err := getSystemConfigPath()
	if err != nil {
		return nil, err
	}

	// Configuration search paths in order of precedence (first found wins):
	paths := []string{}

	// 1. Current directory (for development and testing)
	paths = append(paths, "labelsched.yaml")

	// 2. User's home directory (~/.config/labelsched/)
	if home, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(home, ".config", "labelsched")
		paths = append(paths, filepath.Join(userConfigDir, "labelsched.yaml"))
	}

	// 3. System-wide configuration directory
	paths = append(paths, filepath.Join(systemConfigDir, "labelsched.yaml"))

	return paths, nil
}

// Load loads configuration from file, environment variables, or defaults
func Load() (*types.Config, error) {
	configPaths, err := getConfigPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get config paths: %w", err)
	}
	return loadFrom(configPaths)
}

// loadFrom reads configuration searching only the given file paths.
func loadFrom(configPaths []string) (*types.Config, error) {
	v := viper.New()
	v.SetConfigName("labelsched") // Name of config file (without extension)
	v.SetConfigType("yaml")

	// Set default values
	v.SetDefault("app_name", defaultConfig.AppName)
	v.SetDefault("environment", defaultConfig.Environment)
	v.SetDefault("log_level", defaultConfig.LogLevel)
	v.SetDefault("docker.socket_path", defaultConfig.Docker.SocketPath)
	v.SetDefault("docker.label_prefix", defaultConfig.Docker.LabelPrefix)
	v.SetDefault("docker.inspect_rate", defaultConfig.Docker.InspectRate)
	v.SetDefault("docker.inspect_burst", defaultConfig.Docker.InspectBurst)
	v.SetDefault("docker.reconnect_backoff", defaultConfig.Docker.ReconnectBackoff)
	v.SetDefault("docker.reconnect_backoff_max", defaultConfig.Docker.ReconnectBackoffMax)
	v.SetDefault("docker.max_reconnects", defaultConfig.Docker.MaxReconnects)
	v.SetDefault("scheduler.tick_interval", defaultConfig.Scheduler.TickInterval)
	v.SetDefault("scheduler.timezone", defaultConfig.Scheduler.Timezone)
	v.SetDefault("exec.shell", defaultConfig.Exec.Shell)
	v.SetDefault("exec.timeout", defaultConfig.Exec.Timeout)
	v.SetDefault("shutdown.timeout", defaultConfig.Shutdown.Timeout)
	v.SetDefault("logger.level", defaultConfig.Logger.Level)
	v.SetDefault("logger.format", defaultConfig.Logger.Format)
	v.SetDefault("logger.output", defaultConfig.Logger.Output)
	v.SetDefault("logger.file_path", defaultConfig.Logger.FilePath)

	// Add configuration paths
	for _, path := range configPaths {
		v.AddConfigPath(filepath.Dir(path))
	}

	// Try to read configuration file
	if err := v.ReadInConfig(); err != nil {
		// If file doesn't exist, we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables
	v.SetEnvPrefix("LABELSCHED") // Environment variables will be prefixed with LABELSCHED_
	// Nested keys map dots to underscores: docker.socket_path becomes
	// LABELSCHED_DOCKER_SOCKET_PATH.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // Automatically override config with environment variables

	// Unmarshal configuration into struct
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// GetSystemConfigDir returns the system-wide configuration directory
func GetSystemConfigDir() (string, error) {
	return getSystemConfigPath()
}

// CreateDefaultConfig creates a default configuration file in the system config directory
func CreateDefaultConfig() error {
	systemConfigDir, err := getSystemConfigPath()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(systemConfigDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(systemConfigDir, "labelsched.yaml")

	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return errors.New("config file already exists")
	}

	if err := os.WriteFile(configPath, []byte(DEFAULT_CONFIG_YAML), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
