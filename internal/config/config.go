package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete reqfind configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Paths    PathsConfig    `yaml:"paths" json:"paths"`
	Index    IndexConfig    `yaml:"index" json:"index"`
	Worker   WorkerConfig   `yaml:"worker" json:"worker"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Docstore DocstoreConfig `yaml:"docstore" json:"docstore"`
}

// PathsConfig configures where reqfind keeps its state.
type PathsConfig struct {
	// DataDir holds the index store (index.db) and the document store (docs/).
	// Default: ~/.reqfind/data
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// IndexConfig configures the URL index and its queries.
type IndexConfig struct {
	// DefaultType is the request type used when a command does not name one.
	DefaultType string `yaml:"default_type" json:"default_type"`

	// DefaultMode is the search mode used when a query does not name one:
	// "fast" (anchored prefix) or "detailed" (substring scan).
	DefaultMode string `yaml:"default_mode" json:"default_mode"`

	// BatchSize is the number of rows a store cursor reads per round trip.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// WorkerConfig configures the task coordinator.
type WorkerConfig struct {
	// QueryCacheSize bounds the query result cache. -1 disables it.
	QueryCacheSize int `yaml:"query_cache_size" json:"query_cache_size"`
}

// ServerConfig configures the daemon and the MCP server.
type ServerConfig struct {
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	PIDPath    string `yaml:"pid_path" json:"pid_path"`
	Timeout    string `yaml:"timeout" json:"timeout"`
	LogLevel   string `yaml:"log_level" json:"log_level"`

	// Transport selects the extra surface started by serve next to the
	// socket: "none" or "stdio" (MCP over stdin/stdout).
	Transport string `yaml:"transport" json:"transport"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr" json:"addr"`
}

// DocstoreConfig configures the request document store.
type DocstoreConfig struct {
	InMemory   bool   `yaml:"in_memory" json:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes" json:"sync_writes"`
	GCInterval string `yaml:"gc_interval" json:"gc_interval"`
}

// Known values.
var (
	validModes      = []string{"fast", "detailed"}
	validTransports = []string{"none", "stdio"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
)

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	base := defaultBaseDir()
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: filepath.Join(base, "data"),
		},
		Index: IndexConfig{
			DefaultType: "saved",
			DefaultMode: "fast",
			BatchSize:   256,
		},
		Worker: WorkerConfig{
			QueryCacheSize: 256,
		},
		Server: ServerConfig{
			SocketPath: filepath.Join(base, "daemon.sock"),
			PIDPath:    filepath.Join(base, "daemon.pid"),
			Timeout:    "30s",
			LogLevel:   "info",
			Transport:  "none",
		},
		Metrics: MetricsConfig{},
		Docstore: DocstoreConfig{
			SyncWrites: true,
			GCInterval: "5m",
		},
	}
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".reqfind")
	}
	return filepath.Join(home, ".reqfind")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory layout:
//   - $XDG_CONFIG_HOME/reqfind/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/reqfind/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "reqfind", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "reqfind", "config.yaml")
	}
	return filepath.Join(home, ".config", "reqfind", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var cfg Config
	if err := readYAML(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/reqfind/config.yaml)
//  3. Project config (.reqfind.yaml in dir)
//  4. Environment variables (REQFIND_*), including those from dir/.env
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := LoadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := LoadDotEnv(dir); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads dir/.env into the environment when present. Variables
// already set in the environment win.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadFromFile merges .reqfind.yaml or .reqfind.yml from dir.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".reqfind.yaml", ".reqfind.yml"} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		var parsed Config
		if err := readYAML(path, &parsed); err != nil {
			return err
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

func readYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
// Booleans can only be switched on by a file; use the environment to turn
// one off again.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	setString(&c.Paths.DataDir, other.Paths.DataDir)

	setString(&c.Index.DefaultType, other.Index.DefaultType)
	setString(&c.Index.DefaultMode, other.Index.DefaultMode)
	if other.Index.BatchSize != 0 {
		c.Index.BatchSize = other.Index.BatchSize
	}

	if other.Worker.QueryCacheSize != 0 {
		c.Worker.QueryCacheSize = other.Worker.QueryCacheSize
	}

	setString(&c.Server.SocketPath, other.Server.SocketPath)
	setString(&c.Server.PIDPath, other.Server.PIDPath)
	setString(&c.Server.Timeout, other.Server.Timeout)
	setString(&c.Server.LogLevel, other.Server.LogLevel)
	setString(&c.Server.Transport, other.Server.Transport)

	setString(&c.Metrics.Addr, other.Metrics.Addr)

	if other.Docstore.InMemory {
		c.Docstore.InMemory = true
	}
	if other.Docstore.SyncWrites {
		c.Docstore.SyncWrites = true
	}
	setString(&c.Docstore.GCInterval, other.Docstore.GCInterval)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// applyEnvOverrides applies REQFIND_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"REQFIND_DATA_DIR":     &c.Paths.DataDir,
		"REQFIND_DEFAULT_TYPE": &c.Index.DefaultType,
		"REQFIND_SEARCH_MODE":  &c.Index.DefaultMode,
		"REQFIND_SOCKET":       &c.Server.SocketPath,
		"REQFIND_PID_FILE":     &c.Server.PIDPath,
		"REQFIND_TIMEOUT":      &c.Server.Timeout,
		"REQFIND_LOG_LEVEL":    &c.Server.LogLevel,
		"REQFIND_TRANSPORT":    &c.Server.Transport,
		"REQFIND_METRICS_ADDR": &c.Metrics.Addr,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"REQFIND_BATCH_SIZE":       &c.Index.BatchSize,
		"REQFIND_QUERY_CACHE_SIZE": &c.Worker.QueryCacheSize,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", key, v)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"REQFIND_DOCSTORE_IN_MEMORY": &c.Docstore.InMemory,
		"REQFIND_DOCSTORE_SYNC":      &c.Docstore.SyncWrites,
	}
	for key, dst := range bools {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be a boolean, got %q", key, v)
		}
		*dst = b
	}
	return nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir is required")
	}
	if c.Index.DefaultType == "" {
		return fmt.Errorf("index.default_type is required")
	}
	if !slices.Contains(validModes, c.Index.DefaultMode) {
		return fmt.Errorf("index.default_mode must be one of %v, got %q", validModes, c.Index.DefaultMode)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be positive, got %d", c.Index.BatchSize)
	}
	if c.Worker.QueryCacheSize < -1 {
		return fmt.Errorf("worker.query_cache_size must be -1 (disabled) or more, got %d", c.Worker.QueryCacheSize)
	}
	if c.Server.SocketPath == "" {
		return fmt.Errorf("server.socket_path is required")
	}
	if c.Server.PIDPath == "" {
		return fmt.Errorf("server.pid_path is required")
	}
	if d, err := time.ParseDuration(c.Server.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("server.timeout must be a positive duration, got %q", c.Server.Timeout)
	}
	if !slices.Contains(validLogLevels, strings.ToLower(c.Server.LogLevel)) {
		return fmt.Errorf("server.log_level must be one of %v, got %q", validLogLevels, c.Server.LogLevel)
	}
	if !slices.Contains(validTransports, c.Server.Transport) {
		return fmt.Errorf("server.transport must be one of %v, got %q", validTransports, c.Server.Transport)
	}
	if c.Docstore.GCInterval != "" {
		if d, err := time.ParseDuration(c.Docstore.GCInterval); err != nil || d < 0 {
			return fmt.Errorf("docstore.gc_interval must be a duration, got %q", c.Docstore.GCInterval)
		}
	}
	return nil
}

// ServerTimeout returns server.timeout parsed. Validate guarantees it parses.
func (c *Config) ServerTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.Timeout)
	return d
}

// DocstoreGCInterval returns docstore.gc_interval parsed; 0 disables GC.
func (c *Config) DocstoreGCInterval() time.Duration {
	d, _ := time.ParseDuration(c.Docstore.GCInterval)
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeNewDefaults fills fields a previous version did not write.
// Returns the names of the fields that were added.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	fill := func(name string, dst *string, v string) {
		if *dst == "" {
			*dst = v
			added = append(added, name)
		}
	}
	fill("paths.data_dir", &c.Paths.DataDir, defaults.Paths.DataDir)
	fill("index.default_type", &c.Index.DefaultType, defaults.Index.DefaultType)
	fill("index.default_mode", &c.Index.DefaultMode, defaults.Index.DefaultMode)
	fill("server.socket_path", &c.Server.SocketPath, defaults.Server.SocketPath)
	fill("server.pid_path", &c.Server.PIDPath, defaults.Server.PIDPath)
	fill("server.timeout", &c.Server.Timeout, defaults.Server.Timeout)
	fill("server.log_level", &c.Server.LogLevel, defaults.Server.LogLevel)
	fill("server.transport", &c.Server.Transport, defaults.Server.Transport)
	fill("docstore.gc_interval", &c.Docstore.GCInterval, defaults.Docstore.GCInterval)

	if c.Index.BatchSize == 0 {
		c.Index.BatchSize = defaults.Index.BatchSize
		added = append(added, "index.batch_size")
	}
	if c.Worker.QueryCacheSize == 0 {
		c.Worker.QueryCacheSize = defaults.Worker.QueryCacheSize
		added = append(added, "worker.query_cache_size")
	}
	if c.Version == 0 {
		c.Version = defaults.Version
		added = append(added, "version")
	}
	return added
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
