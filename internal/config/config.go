package config

import (
	"errors"
	"fmt"
	"os"
)

// Compiled-in model contract. These must match the preprocessing used when
// the model artifact was trained.
const (
	ImageSize      = 128
	Channels       = 3
	MaxUploadBytes = 10 << 20

	DefaultPort      = 5000
	DefaultModelPath = "models/vegetable_classifier.onnx"

	Version = "1.0.0"
)

// Config holds the runtime settings that may come from flags or the
// environment.
type Config struct {
	Port           int
	ModelPath      string
	RuntimeLibPath string
	LogLevel       string // "debug", "info", "warn", "error"
	IntraOpThreads int
}

// Default returns a Config with the built-in defaults.
func Default() Config {
	return Config{
		Port:      DefaultPort,
		ModelPath: DefaultModelPath,
		LogLevel:  "info",
	}
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate checks the settings before anything is started.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ModelPath == "" {
		return errors.New("model path is required")
	}
	if c.IntraOpThreads < 0 {
		return fmt.Errorf("intra-op threads must be >= 0, got %d", c.IntraOpThreads)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.RuntimeLibPath != "" {
		if _, err := os.Stat(c.RuntimeLibPath); err != nil {
			return fmt.Errorf("onnxruntime library: %w", err)
		}
	}
	return nil
}
