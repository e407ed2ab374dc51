// Package config loads process-level settings for gopathways.
//
// Precedence, highest first: runtime overrides passed to Load, environment
// variables (GOPATHWAYS_*), the project config file, the user config file,
// built-in defaults. Job manifests are separate (see pkg/manifest) and take
// precedence over the store and sheets settings here when they set a value.
package config

import (
	"time"
)

// Identity names the application for config discovery and env prefixes.
type Identity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

// DefaultIdentity is the gopathways identity.
func DefaultIdentity() *Identity {
	return &Identity{
		BinaryName: "gopathways",
		EnvPrefix:  "GOPATHWAYS_",
		ConfigName: "gopathways",
	}
}

// Config is the resolved process configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Health  HealthConfig  `mapstructure:"health"`
	Debug   DebugConfig   `mapstructure:"debug"`
	Store   StoreConfig   `mapstructure:"store"`
	Sheets  SheetsConfig  `mapstructure:"sheets"`
	Export  ExportConfig  `mapstructure:"export"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig enables pprof routes on the feed server.
type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// StoreConfig is the fallback program store when a manifest names none.
type StoreConfig struct {
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
	Table     string `mapstructure:"table"`
}

// SheetsConfig is the fallback Sheets credential when a manifest names none.
type SheetsConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

// ExportConfig holds S3/GCS settings used when publishing feeds.
type ExportConfig struct {
	Destination    string `mapstructure:"destination"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// Defaults are keyed by viper path.
var Defaults = map[string]any{
	"server.host":             "localhost",
	"server.port":             8080,
	"server.read_timeout":     "30s",
	"server.write_timeout":    "30s",
	"server.idle_timeout":     "120s",
	"server.shutdown_timeout": "10s",

	"logging.level":  "info",
	"logging.format": "console",

	"health.enabled": true,

	"debug.enabled":       false,
	"debug.pprof_enabled": false,

	"store.table": "pathways_program",
}
