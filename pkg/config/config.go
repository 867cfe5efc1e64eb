package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the LexFS configuration.
//
// One file configures every role: a process started as a name node reads the
// NameNode section, a storage node reads the StorageNode section, and the
// lexfsctl client reads the Client section. Shared sections (Logging,
// Metrics) apply to whichever role is running.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (LEXFS_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// NameNode configures the name node's two listeners and liveness policy
	NameNode NameNodeConfig `mapstructure:"namenode" yaml:"namenode"`

	// StorageNode configures a storage node's data directory and uplink
	StorageNode StorageNodeConfig `mapstructure:"storagenode" yaml:"storagenode"`

	// Client configures the lexfsctl command-line client
	Client ClientConfig `mapstructure:"client" yaml:"client"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics HTTP listener is started.
type MetricsConfig struct {
	// Enabled controls whether the metrics HTTP server is started
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// BindAddress is the interface the metrics server binds to
	// Default: "" (all interfaces)
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address,omitempty"`
}

// NameNodeConfig configures the name node.
//
// The name node runs two listeners: ClientPort accepts editor sessions and
// ControlPort accepts storage-node registrations and heartbeats.
type NameNodeConfig struct {
	// ClientPort is the TCP port for client sessions
	// Default: 5000
	ClientPort int `mapstructure:"client_port" validate:"omitempty,min=1,max=65535" yaml:"client_port"`

	// ControlPort is the TCP port for storage-node control connections
	// Default: 5001
	ControlPort int `mapstructure:"control_port" validate:"omitempty,min=1,max=65535" yaml:"control_port"`

	// BindAddress is the interface both listeners bind to
	// Default: "" (all interfaces)
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address,omitempty"`

	// ACLCachePath is where the access-control table is persisted.
	// The file is rewritten on every ACL mutation and replayed on start.
	// Empty disables persistence (ACLs live in memory only).
	// Default: acl_cache.txt
	ACLCachePath string `mapstructure:"acl_cache_path" yaml:"acl_cache_path"`

	// HeartbeatInterval is the cadence of liveness probes to silent
	// storage nodes. It doubles as the control-channel read timeout.
	// Default: 5s
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"omitempty,gt=0" yaml:"heartbeat_interval"`

	// HeartbeatGrace is how long a storage node may stay silent before it
	// is expelled and its files dropped from the routing table.
	// Default: 15s
	HeartbeatGrace time.Duration `mapstructure:"heartbeat_grace" validate:"omitempty,gt=0" yaml:"heartbeat_grace"`

	// MaxConnections caps concurrent client sessions.
	// Default: 100
	MaxConnections int `mapstructure:"max_connections" validate:"omitempty,gt=0" yaml:"max_connections"`
}

// StorageNodeConfig configures a storage node.
type StorageNodeConfig struct {
	// DataDir is the directory holding documents, metadata sidecars and
	// undo backups (required for the storagenode role)
	// Default: /tmp/lexfs-data
	DataDir string `mapstructure:"data_dir" validate:"required" yaml:"data_dir"`

	// ClientPort is the TCP port for redirected client sessions
	// Default: 6000
	ClientPort int `mapstructure:"client_port" validate:"omitempty,min=1,max=65535" yaml:"client_port"`

	// AdvertiseIP is the address announced to the name node during
	// registration. Clients are redirected to this address.
	// Default: 127.0.0.1
	AdvertiseIP string `mapstructure:"advertise_ip" yaml:"advertise_ip"`

	// NameNodeAddr is the name node's control endpoint (host:port)
	// Default: localhost:5001
	NameNodeAddr string `mapstructure:"namenode_addr" yaml:"namenode_addr"`

	// StreamDelay is the inter-word delay for STREAM playback
	// Default: 100ms
	StreamDelay time.Duration `mapstructure:"stream_delay" validate:"omitempty,gte=0" yaml:"stream_delay"`

	// RetryBackoff is the wait between control-channel reconnect attempts
	// Default: 500ms
	RetryBackoff time.Duration `mapstructure:"retry_backoff" validate:"omitempty,gt=0" yaml:"retry_backoff"`

	// MaxConnections caps concurrent client sessions.
	// Default: 100
	MaxConnections int `mapstructure:"max_connections" validate:"omitempty,gt=0" yaml:"max_connections"`
}

// ClientConfig configures the lexfsctl client.
type ClientConfig struct {
	// NameNodeAddr is the name node's client endpoint (host:port)
	// Default: localhost:5000
	NameNodeAddr string `mapstructure:"namenode_addr" yaml:"namenode_addr"`

	// Username identifies the session; alphanumeric plus underscore.
	// Overridable per invocation with --user.
	Username string `mapstructure:"username" yaml:"username,omitempty"`

	// Timeout bounds every network operation
	// Default: 30s
	Timeout time.Duration `mapstructure:"timeout" validate:"omitempty,gt=0" yaml:"timeout"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (LEXFS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use LEXFS_ prefix and underscores
	// Example: LEXFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("LEXFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/lexfs/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		// Other errors are problems
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		// Only handle conversion to time.Duration
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			// Parse duration string like "30s", "5m", "1h"
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "lexfs")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "lexfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}
