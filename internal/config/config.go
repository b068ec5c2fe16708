// Package config handles loading of the application settings and of the
// migration definitions file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BartekS5/cmigrate/internal/keymap"
	"github.com/BartekS5/cmigrate/internal/orchestrator"
)

var ErrMissingSetting = errors.New("missing setting")

const (
	EnvLegacySQLDriver = "LEGACY_SQL_DRIVER"
	EnvLegacySQLDSN    = "LEGACY_SQL_DSN"
	EnvMongoConn       = "MONGO_CONNECTION_STRING"
	EnvMongoDatabase   = "MONGO_DATABASE"
	EnvDestPGDSN       = "DEST_PG_DSN"
	EnvRPCEndpoint     = "RPC_ENDPOINT"
	EnvRPCUsername     = "RPC_USERNAME"
	EnvRPCPassword     = "RPC_PASSWORD"
	EnvRPCCacheDir     = "RPC_CACHE_DIR"
	EnvFlushMode       = "KEYMAP_FLUSH_MODE"
	EnvFanOutDelay     = "FANOUT_DELAY"
	EnvFanOutPolicy    = "FANOUT_POLICY"
	EnvLogFile         = "LOG_FILE"
)

// Config holds all configuration for the application, loaded from
// environment variables (populated by the .env file in main.go).
type Config struct {
	LegacySQLDriver string
	LegacySQLDSN    string
	MongoConnString string
	MongoDatabase   string
	DestPGDSN       string
	RPCEndpoint     string
	RPCUsername     string
	RPCPassword     string
	RPCCacheDir     string
	LogFile         string

	// FlushMode overrides the flush mode of every map when set.
	FlushMode    *keymap.FlushMode
	FanOutDelay  time.Duration
	FanOutPolicy orchestrator.FanOutPolicy
}

// LoadConfig reads the settings from the environment. Only malformed values
// fail here; settings a definition needs are checked with Require.
func LoadConfig() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		LegacySQLDriver: getenv(EnvLegacySQLDriver),
		LegacySQLDSN:    getenv(EnvLegacySQLDSN),
		MongoConnString: getenv(EnvMongoConn),
		MongoDatabase:   getenv(EnvMongoDatabase),
		DestPGDSN:       getenv(EnvDestPGDSN),
		RPCEndpoint:     getenv(EnvRPCEndpoint),
		RPCUsername:     getenv(EnvRPCUsername),
		RPCPassword:     getenv(EnvRPCPassword),
		RPCCacheDir:     getenv(EnvRPCCacheDir),
		LogFile:         getenv(EnvLogFile),
		FanOutDelay:     2 * time.Second,
	}
	if cfg.LegacySQLDriver == "" {
		cfg.LegacySQLDriver = "mysql"
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "cmigrate"
	}
	if cfg.RPCCacheDir == "" {
		cfg.RPCCacheDir = ".rpc-cache"
	}

	if v := getenv(EnvFlushMode); v != "" {
		mode, err := keymap.ParseFlushMode(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvFlushMode, err)
		}
		cfg.FlushMode = &mode
	}
	if v := getenv(EnvFanOutDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvFanOutDelay, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("%s: negative delay %s", EnvFanOutDelay, v)
		}
		cfg.FanOutDelay = d
	}
	policy, err := orchestrator.ParseFanOutPolicy(getenv(EnvFanOutPolicy))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvFanOutPolicy, err)
	}
	cfg.FanOutPolicy = policy
	return cfg, nil
}

func (c *Config) value(name string) string {
	switch name {
	case EnvLegacySQLDriver:
		return c.LegacySQLDriver
	case EnvLegacySQLDSN:
		return c.LegacySQLDSN
	case EnvMongoConn:
		return c.MongoConnString
	case EnvMongoDatabase:
		return c.MongoDatabase
	case EnvDestPGDSN:
		return c.DestPGDSN
	case EnvRPCEndpoint:
		return c.RPCEndpoint
	case EnvRPCUsername:
		return c.RPCUsername
	case EnvRPCPassword:
		return c.RPCPassword
	case EnvRPCCacheDir:
		return c.RPCCacheDir
	case EnvLogFile:
		return c.LogFile
	default:
		return ""
	}
}

// Require fails with ErrMissingSetting naming every empty setting.
func (c *Config) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if c.value(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}
	return nil
}
