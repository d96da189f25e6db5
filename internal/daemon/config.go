// Package daemon runs the reqfind background service. Clients talk to it over
// a Unix socket with newline-delimited JSON messages; worker tasks are funneled
// into one coordinator and collaborator events into the dispatch chain.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds configuration for the daemon service.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	// Default: ~/.reqfind/daemon.sock
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID.
	// Default: ~/.reqfind/daemon.pid
	PIDPath string

	// DataDir holds the index store and the document store.
	// Default: ~/.reqfind/data
	DataDir string

	// Timeout is the maximum duration for client-daemon communication.
	// Default: 30s
	Timeout time.Duration

	// ShutdownGracePeriod is the time to wait for graceful shutdown.
	// Default: 10s
	ShutdownGracePeriod time.Duration

	// DialRetries is how many times a client retries a refused connection.
	// Default: 2
	DialRetries int

	// MaxMessageSize bounds one message line in bytes.
	// Default: 16 MiB
	MaxMessageSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}

	baseDir := filepath.Join(home, ".reqfind")

	return Config{
		SocketPath:          filepath.Join(baseDir, "daemon.sock"),
		PIDPath:             filepath.Join(baseDir, "daemon.pid"),
		DataDir:             filepath.Join(baseDir, "data"),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
		DialRetries:         2,
		MaxMessageSize:      DefaultMaxMessageSize,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	if c.DialRetries < 0 {
		return fmt.Errorf("dial retries cannot be negative")
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("max message size cannot be negative")
	}
	return nil
}

// EnsureDir creates the directories for the socket, PID file and data.
func (c Config) EnsureDir() error {
	dirs := []string{filepath.Dir(c.SocketPath), filepath.Dir(c.PIDPath), c.DataDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
