package config

import (
	"strings"
	"time"

	"github.com/lexfs/lexfs/internal/wire"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyShutdownTimeoutDefaults(cfg)
	applyNameNodeDefaults(&cfg.NameNode)
	applyStorageNodeDefaults(&cfg.StorageNode)
	applyClientDefaults(&cfg.Client)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyNameNodeDefaults sets name node defaults.
// Heartbeat timing defaults mirror the wire package's protocol constants.
func applyNameNodeDefaults(cfg *NameNodeConfig) {
	if cfg.ClientPort == 0 {
		cfg.ClientPort = 5000
	}
	if cfg.ControlPort == 0 {
		cfg.ControlPort = 5001
	}
	if cfg.ACLCachePath == "" {
		cfg.ACLCachePath = "acl_cache.txt"
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = wire.ControlTimeout
	}
	if cfg.HeartbeatGrace == 0 {
		cfg.HeartbeatGrace = wire.HeartbeatGrace
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 100
	}
}

// applyStorageNodeDefaults sets storage node defaults.
// DataDir has a default so a bare `lexfs storagenode` works out of the box;
// production deployments are expected to override it.
func applyStorageNodeDefaults(cfg *StorageNodeConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = "/tmp/lexfs-data"
	}
	if cfg.ClientPort == 0 {
		cfg.ClientPort = 6000
	}
	if cfg.AdvertiseIP == "" {
		cfg.AdvertiseIP = "127.0.0.1"
	}
	if cfg.NameNodeAddr == "" {
		cfg.NameNodeAddr = "localhost:5001"
	}
	if cfg.StreamDelay == 0 {
		cfg.StreamDelay = wire.StreamDelay
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 100
	}
}

// applyClientDefaults sets client defaults.
func applyClientDefaults(cfg *ClientConfig) {
	if cfg.NameNodeAddr == "" {
		cfg.NameNodeAddr = "localhost:5000"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = wire.ClientTimeout
	}
	// Username has no default - it identifies a person, not a process
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
