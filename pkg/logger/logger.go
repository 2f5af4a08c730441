// pkg/logger/logger.go
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/labelsched/labelsched/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger with the specified level and default settings
func New(level string) *zap.Logger {
	l, err := NewWithConfig(DefaultConfig(level))
	if err != nil {
		// Defaults write to stdout and cannot fail to open; parse errors
		// fall back to info level inside NewWithConfig.
		panic(err)
	}
	return l
}

// NewWithConfig builds a *zap.Logger from a LoggerConfig
func NewWithConfig(config *types.LoggerConfig) (*zap.Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch config.Format {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default: // "text"
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	ws, err := createSyncer(config)
	if err != nil {
		return nil, err
	}

	level := ParseLevel(config.Level)
	core := zapcore.NewCore(enc, ws, level)

	return zap.New(core), nil
}

// ParseLevel converts a level string to a zap level, defaulting to info
func ParseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// DefaultConfig returns the default logger configuration at the given level
func DefaultConfig(level string) *types.LoggerConfig {
	return &types.LoggerConfig{
		Level:    level,
		Format:   "text",
		Output:   "stdout",
		FilePath: "",
	}
}

// createSyncer creates the appropriate write syncer based on configuration
func createSyncer(config *types.LoggerConfig) (zapcore.WriteSyncer, error) {
	switch config.Output {
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	case "file":
		path := config.FilePath
		if path == "" {
			path = getDefaultLogPath()
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return zapcore.Lock(file), nil
	default: // "stdout"
		return zapcore.Lock(os.Stdout), nil
	}
}

// getDefaultLogPath returns the default log file path based on OS
func getDefaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = "C:\\ProgramData"
		}
		return filepath.Join(programData, "labelsched", "logs", "labelsched.log")
	default: // linux, darwin and other unix-like
		return "/var/log/labelsched.log"
	}
}
