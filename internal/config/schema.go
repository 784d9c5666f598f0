// Package config provides configuration management for notebase.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration for notebase.
type Config struct {
	// Storage configures the event store (the write side).
	Storage StorageConfig `mapstructure:"storage" json:"storage"`
	// Projections configures the read database and catch-up.
	Projections ProjectionsConfig `mapstructure:"projections" json:"projections"`
	// Cache configures the query cache.
	Cache CacheConfig `mapstructure:"cache" json:"cache"`
	// Output configures logging and terminal output.
	Output OutputConfig `mapstructure:"output" json:"output"`
	// Server configures `notebase serve`.
	Server ServerConfig `mapstructure:"server" json:"server"`
	// Webhooks receive committed events.
	Webhooks []WebhookConfig `mapstructure:"webhooks" json:"webhooks,omitempty"`
}

// WebhookConfig is one outbound endpoint for committed events.
type WebhookConfig struct {
	Name string `mapstructure:"name" json:"name"`
	URL  string `mapstructure:"url" json:"url"`
	// Events selects event names; "todo.*" matches a prefix. Empty means all.
	Events []string `mapstructure:"events" json:"events,omitempty"`
	// Secret signs the body (X-Notebase-Signature). Supports ${ENV}.
	Secret  string            `mapstructure:"secret" json:"secret,omitempty"`
	Headers map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	Timeout time.Duration     `mapstructure:"timeout" json:"timeout,omitempty"`
	// RetryCount is the number of retries after the first attempt.
	RetryCount int           `mapstructure:"retry_count" json:"retry_count,omitempty"`
	RetryDelay time.Duration `mapstructure:"retry_delay" json:"retry_delay,omitempty"`
	// Disabled keeps the entry without sending to it.
	Disabled bool `mapstructure:"disabled" json:"disabled,omitempty"`
}

// StorageConfig configures the event store.
type StorageConfig struct {
	// Backend is one of memory, file or sqlite.
	Backend string `mapstructure:"backend" json:"backend"`
	// Path is the journal file or SQLite database path.
	Path string `mapstructure:"path" json:"path"`
	// ReadOnly opens the store without write access (file backend only).
	ReadOnly bool `mapstructure:"read_only" json:"read_only"`
}

// ProjectionsConfig configures the read side.
type ProjectionsConfig struct {
	// ReadDB is the SQLite read database path.
	ReadDB string `mapstructure:"read_db" json:"read_db"`
	// BatchSize is the number of records folded per page.
	BatchSize int `mapstructure:"batch_size" json:"batch_size"`
	// SyncTimeout bounds the catch-up run after each command.
	SyncTimeout time.Duration `mapstructure:"sync_timeout" json:"sync_timeout"`
	// FailureThreshold is the number of consecutive sync failures that opens
	// the breaker.
	FailureThreshold int `mapstructure:"failure_threshold" json:"failure_threshold"`
	// Cooldown is how long an open breaker skips syncs.
	Cooldown time.Duration `mapstructure:"cooldown" json:"cooldown"`
	// CheckOnStartup runs tree diagnostics when the container opens.
	CheckOnStartup bool `mapstructure:"check_on_startup" json:"check_on_startup"`
	// WatchInterval is the fallback sweep period of `projections watch`.
	WatchInterval time.Duration `mapstructure:"watch_interval" json:"watch_interval"`
}

// CacheConfig configures the query cache.
type CacheConfig struct {
	// Backend is one of none, memory or redis.
	Backend string        `mapstructure:"backend" json:"backend"`
	TTL     time.Duration `mapstructure:"ttl" json:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis" json:"redis"`
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
	// Password supports ${ENV} expansion.
	Password string `mapstructure:"password" json:"password,omitempty"`
	DB       int    `mapstructure:"db" json:"db"`
	Prefix   string `mapstructure:"prefix" json:"prefix"`
}

// OutputConfig configures output settings.
type OutputConfig struct {
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	// Color enables styled terminal output.
	Color bool `mapstructure:"color" json:"color"`
	// JSON switches logs and command output to JSON.
	JSON bool `mapstructure:"json" json:"json"`
	// Verbose prints a line for every committed event.
	Verbose bool `mapstructure:"verbose" json:"verbose"`
	// LogFile redirects logs to a file instead of stderr.
	LogFile string `mapstructure:"log_file" json:"log_file,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address      string        `mapstructure:"address" json:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`
	// CORSOrigins lists allowed browser origins. Empty means same-origin only.
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	// RateLimit is the number of requests per minute allowed per client.
	// Zero disables rate limiting.
	RateLimit int              `mapstructure:"rate_limit" json:"rate_limit"`
	Auth      ServerAuthConfig `mapstructure:"auth" json:"auth"`
}

// ServerAuthMode selects how API requests are authenticated.
type ServerAuthMode string

// Authentication modes.
const (
	ServerAuthNone   ServerAuthMode = "none"
	ServerAuthAPIKey ServerAuthMode = "api_key"
)

// ServerRole is a permission granted to an API key.
type ServerRole string

// Roles. Editors can run commands; viewers can only read.
const (
	ServerRoleViewer ServerRole = "viewer"
	ServerRoleEditor ServerRole = "editor"
)

// ServerAuthConfig configures API authentication.
type ServerAuthConfig struct {
	Mode    ServerAuthMode `mapstructure:"mode" json:"mode"`
	APIKeys []APIKeyConfig `mapstructure:"api_keys" json:"api_keys,omitempty"`
}

// APIKeyConfig is one accepted API key.
type APIKeyConfig struct {
	Name string `mapstructure:"name" json:"name"`
	// Key supports ${ENV} expansion.
	Key   string   `mapstructure:"key" json:"key"`
	Roles []string `mapstructure:"roles" json:"roles"`
}

// ConfigFileNames are the base names searched for a config file.
var ConfigFileNames = []string{"notebase", ".notebase"}

// ConfigFileExtensions are the extensions searched for a config file.
var ConfigFileExtensions = []string{"yaml", "yml", "toml", "json"}

// DefaultDataDir returns the directory that holds the journal and read
// database when no paths are configured.
func DefaultDataDir() string {
	if dir := os.Getenv("NOTEBASE_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".notebase"
	}
	return filepath.Join(home, ".local", "share", "notebase")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Storage: StorageConfig{
			Backend: "file",
			Path:    filepath.Join(dataDir, "events.jsonl"),
		},
		Projections: ProjectionsConfig{
			ReadDB:           filepath.Join(dataDir, "read.db"),
			BatchSize:        256,
			SyncTimeout:      2 * time.Second,
			FailureThreshold: 3,
			Cooldown:         30 * time.Second,
			CheckOnStartup:   false,
			WatchInterval:    30 * time.Second,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     30 * time.Second,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "notebase",
			},
		},
		Output: OutputConfig{
			LogLevel: "warn",
			Color:    true,
		},
		Server: ServerConfig{
			Address:      "127.0.0.1:7070",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			RateLimit:    600,
			Auth:         ServerAuthConfig{Mode: ServerAuthNone},
		},
	}
}
