package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/fileutil"
)

// Pre-compiled regex patterns for environment variable expansion.
var (
	// envVarPattern matches ${VAR} or ${VAR:-default} syntax
	envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)
	// simpleEnvVarPattern matches $VAR syntax
	simpleEnvVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// EnvPrefix prefixes every environment override, e.g. NOTEBASE_STORAGE_BACKEND.
const EnvPrefix = "NOTEBASE"

// Loader handles configuration loading and merging.
type Loader struct {
	v           *viper.Viper
	configPath  string
	searchPaths []string
}

// NewLoader creates a new configuration loader. It searches the working
// directory and $HOME/.config/notebase.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "notebase"))
	}
	return &Loader{
		v:           v,
		searchPaths: paths,
	}
}

// WithConfigPath sets an explicit config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithSearchPaths replaces the directories searched for a config file.
func (l *Loader) WithSearchPaths(paths ...string) *Loader {
	l.searchPaths = paths
	return l
}

// Load loads the configuration: defaults, then the config file, then
// NOTEBASE_* environment variables, then merged overrides.
func (l *Loader) Load() (*Config, error) {
	const op = "config.Load"

	l.setDefaults()

	if err := l.loadConfigFile(); err != nil {
		return nil, rperrors.ConfigWrap(err, op, "failed to load config file")
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, rperrors.ConfigWrap(err, op, "failed to unmarshal config")
	}

	expandEnvVars(cfg)
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// no config file sets it.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("storage.backend", defaults.Storage.Backend)
	l.v.SetDefault("storage.path", defaults.Storage.Path)
	l.v.SetDefault("storage.read_only", defaults.Storage.ReadOnly)

	l.v.SetDefault("projections.read_db", defaults.Projections.ReadDB)
	l.v.SetDefault("projections.batch_size", defaults.Projections.BatchSize)
	l.v.SetDefault("projections.sync_timeout", defaults.Projections.SyncTimeout)
	l.v.SetDefault("projections.failure_threshold", defaults.Projections.FailureThreshold)
	l.v.SetDefault("projections.cooldown", defaults.Projections.Cooldown)
	l.v.SetDefault("projections.check_on_startup", defaults.Projections.CheckOnStartup)
	l.v.SetDefault("projections.watch_interval", defaults.Projections.WatchInterval)

	l.v.SetDefault("cache.backend", defaults.Cache.Backend)
	l.v.SetDefault("cache.ttl", defaults.Cache.TTL)
	l.v.SetDefault("cache.redis.addr", defaults.Cache.Redis.Addr)
	l.v.SetDefault("cache.redis.password", defaults.Cache.Redis.Password)
	l.v.SetDefault("cache.redis.db", defaults.Cache.Redis.DB)
	l.v.SetDefault("cache.redis.prefix", defaults.Cache.Redis.Prefix)

	l.v.SetDefault("output.log_level", defaults.Output.LogLevel)
	l.v.SetDefault("output.color", defaults.Output.Color)
	l.v.SetDefault("output.json", defaults.Output.JSON)
	l.v.SetDefault("output.verbose", defaults.Output.Verbose)
	l.v.SetDefault("output.log_file", defaults.Output.LogFile)

	l.v.SetDefault("server.address", defaults.Server.Address)
	l.v.SetDefault("server.read_timeout", defaults.Server.ReadTimeout)
	l.v.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)
	l.v.SetDefault("server.idle_timeout", defaults.Server.IdleTimeout)
	l.v.SetDefault("server.cors_origins", defaults.Server.CORSOrigins)
	l.v.SetDefault("server.rate_limit", defaults.Server.RateLimit)
	l.v.SetDefault("server.auth.mode", string(defaults.Server.Auth.Mode))
}

// loadConfigFile loads the explicit config file or the first one found in
// the search paths. Having no config file is fine.
func (l *Loader) loadConfigFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", l.configPath, err)
		}
		return nil
	}

	configFile, err := FindConfigFile(l.searchPaths...)
	if err != nil {
		return nil
	}
	l.v.SetConfigFile(configFile)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", configFile, err)
	}
	return nil
}

// expandEnvVars expands environment variables and ~ in paths and secrets.
func expandEnvVars(cfg *Config) {
	cfg.Storage.Path = expandHome(expandEnvVar(cfg.Storage.Path))
	cfg.Projections.ReadDB = expandHome(expandEnvVar(cfg.Projections.ReadDB))
	cfg.Output.LogFile = expandHome(expandEnvVar(cfg.Output.LogFile))
	cfg.Cache.Redis.Addr = expandEnvVar(cfg.Cache.Redis.Addr)
	cfg.Cache.Redis.Password = expandEnvVar(cfg.Cache.Redis.Password)
	for i := range cfg.Server.Auth.APIKeys {
		cfg.Server.Auth.APIKeys[i].Key = expandEnvVar(cfg.Server.Auth.APIKeys[i].Key)
	}
	for i := range cfg.Webhooks {
		wh := &cfg.Webhooks[i]
		wh.URL = expandEnvVar(wh.URL)
		wh.Secret = expandEnvVar(wh.Secret)
		for k, v := range wh.Headers {
			wh.Headers[k] = expandEnvVar(v)
		}
	}
}

// expandEnvVar expands environment variables in a string.
// Supports both ${VAR} and $VAR syntax.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}

		varName := submatch[1]
		defaultValue := ""
		if len(submatch) > 2 {
			defaultValue = submatch[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})

	result = simpleEnvVarPattern.ReplaceAllStringFunc(result, func(match string) string {
		varName := match[1:]
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return match
	})

	return result
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// GetConfigPath returns the path to the loaded config file, if any.
func (l *Loader) GetConfigPath() string {
	return l.v.ConfigFileUsed()
}

// MergeConfig overrides configuration values by dotted key. Overrides win
// over the config file and the environment.
func (l *Loader) MergeConfig(values map[string]any) error {
	for key, value := range values {
		l.v.Set(key, value)
	}
	return nil
}

// fileConfig is the on-disk shape written by WriteConfig. Durations are
// rendered as strings ("30s") so files stay readable in every format.
type fileConfig struct {
	Storage struct {
		Backend  string `yaml:"backend" toml:"backend" json:"backend"`
		Path     string `yaml:"path" toml:"path" json:"path"`
		ReadOnly bool   `yaml:"read_only" toml:"read_only" json:"read_only"`
	} `yaml:"storage" toml:"storage" json:"storage"`
	Projections struct {
		ReadDB           string `yaml:"read_db" toml:"read_db" json:"read_db"`
		BatchSize        int    `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
		SyncTimeout      string `yaml:"sync_timeout" toml:"sync_timeout" json:"sync_timeout"`
		FailureThreshold int    `yaml:"failure_threshold" toml:"failure_threshold" json:"failure_threshold"`
		Cooldown         string `yaml:"cooldown" toml:"cooldown" json:"cooldown"`
		CheckOnStartup   bool   `yaml:"check_on_startup" toml:"check_on_startup" json:"check_on_startup"`
		WatchInterval    string `yaml:"watch_interval" toml:"watch_interval" json:"watch_interval"`
	} `yaml:"projections" toml:"projections" json:"projections"`
	Cache struct {
		Backend string `yaml:"backend" toml:"backend" json:"backend"`
		TTL     string `yaml:"ttl" toml:"ttl" json:"ttl"`
		Redis   struct {
			Addr     string `yaml:"addr" toml:"addr" json:"addr"`
			Password string `yaml:"password,omitempty" toml:"password,omitempty" json:"password,omitempty"`
			DB       int    `yaml:"db" toml:"db" json:"db"`
			Prefix   string `yaml:"prefix" toml:"prefix" json:"prefix"`
		} `yaml:"redis" toml:"redis" json:"redis"`
	} `yaml:"cache" toml:"cache" json:"cache"`
	Output struct {
		LogLevel string `yaml:"log_level" toml:"log_level" json:"log_level"`
		Color    bool   `yaml:"color" toml:"color" json:"color"`
		JSON     bool   `yaml:"json" toml:"json" json:"json"`
		Verbose  bool   `yaml:"verbose" toml:"verbose" json:"verbose"`
		LogFile  string `yaml:"log_file,omitempty" toml:"log_file,omitempty" json:"log_file,omitempty"`
	} `yaml:"output" toml:"output" json:"output"`
	Server struct {
		Address      string   `yaml:"address" toml:"address" json:"address"`
		ReadTimeout  string   `yaml:"read_timeout" toml:"read_timeout" json:"read_timeout"`
		WriteTimeout string   `yaml:"write_timeout" toml:"write_timeout" json:"write_timeout"`
		IdleTimeout  string   `yaml:"idle_timeout" toml:"idle_timeout" json:"idle_timeout"`
		CORSOrigins  []string `yaml:"cors_origins" toml:"cors_origins" json:"cors_origins"`
		RateLimit    int      `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"`
		Auth         struct {
			Mode    string `yaml:"mode" toml:"mode" json:"mode"`
			APIKeys []struct {
				Name  string   `yaml:"name" toml:"name" json:"name"`
				Key   string   `yaml:"key" toml:"key" json:"key"`
				Roles []string `yaml:"roles" toml:"roles" json:"roles"`
			} `yaml:"api_keys,omitempty" toml:"api_keys,omitempty" json:"api_keys,omitempty"`
		} `yaml:"auth" toml:"auth" json:"auth"`
	} `yaml:"server" toml:"server" json:"server"`
	Webhooks []fileWebhook `yaml:"webhooks,omitempty" toml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

type fileWebhook struct {
	Name       string            `yaml:"name" toml:"name" json:"name"`
	URL        string            `yaml:"url" toml:"url" json:"url"`
	Events     []string          `yaml:"events,omitempty" toml:"events,omitempty" json:"events,omitempty"`
	Secret     string            `yaml:"secret,omitempty" toml:"secret,omitempty" json:"secret,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty" toml:"headers,omitempty" json:"headers,omitempty"`
	Timeout    string            `yaml:"timeout,omitempty" toml:"timeout,omitempty" json:"timeout,omitempty"`
	RetryCount int               `yaml:"retry_count,omitempty" toml:"retry_count,omitempty" json:"retry_count,omitempty"`
	RetryDelay string            `yaml:"retry_delay,omitempty" toml:"retry_delay,omitempty" json:"retry_delay,omitempty"`
	Disabled   bool              `yaml:"disabled,omitempty" toml:"disabled,omitempty" json:"disabled,omitempty"`
}

func toFile(cfg *Config) fileConfig {
	var f fileConfig
	f.Storage.Backend = cfg.Storage.Backend
	f.Storage.Path = cfg.Storage.Path
	f.Storage.ReadOnly = cfg.Storage.ReadOnly
	f.Projections.ReadDB = cfg.Projections.ReadDB
	f.Projections.BatchSize = cfg.Projections.BatchSize
	f.Projections.SyncTimeout = formatDuration(cfg.Projections.SyncTimeout)
	f.Projections.FailureThreshold = cfg.Projections.FailureThreshold
	f.Projections.Cooldown = formatDuration(cfg.Projections.Cooldown)
	f.Projections.CheckOnStartup = cfg.Projections.CheckOnStartup
	f.Projections.WatchInterval = formatDuration(cfg.Projections.WatchInterval)
	f.Cache.Backend = cfg.Cache.Backend
	f.Cache.TTL = formatDuration(cfg.Cache.TTL)
	f.Cache.Redis.Addr = cfg.Cache.Redis.Addr
	f.Cache.Redis.Password = cfg.Cache.Redis.Password
	f.Cache.Redis.DB = cfg.Cache.Redis.DB
	f.Cache.Redis.Prefix = cfg.Cache.Redis.Prefix
	f.Output.LogLevel = cfg.Output.LogLevel
	f.Output.Color = cfg.Output.Color
	f.Output.JSON = cfg.Output.JSON
	f.Output.Verbose = cfg.Output.Verbose
	f.Output.LogFile = cfg.Output.LogFile
	f.Server.Address = cfg.Server.Address
	f.Server.ReadTimeout = formatDuration(cfg.Server.ReadTimeout)
	f.Server.WriteTimeout = formatDuration(cfg.Server.WriteTimeout)
	f.Server.IdleTimeout = formatDuration(cfg.Server.IdleTimeout)
	f.Server.CORSOrigins = append([]string{}, cfg.Server.CORSOrigins...)
	f.Server.RateLimit = cfg.Server.RateLimit
	f.Server.Auth.Mode = string(cfg.Server.Auth.Mode)
	for _, k := range cfg.Server.Auth.APIKeys {
		f.Server.Auth.APIKeys = append(f.Server.Auth.APIKeys, struct {
			Name  string   `yaml:"name" toml:"name" json:"name"`
			Key   string   `yaml:"key" toml:"key" json:"key"`
			Roles []string `yaml:"roles" toml:"roles" json:"roles"`
		}{Name: k.Name, Key: k.Key, Roles: k.Roles})
	}
	for _, wh := range cfg.Webhooks {
		fw := fileWebhook{
			Name:       wh.Name,
			URL:        wh.URL,
			Events:     wh.Events,
			Secret:     wh.Secret,
			Headers:    wh.Headers,
			RetryCount: wh.RetryCount,
			Disabled:   wh.Disabled,
		}
		if wh.Timeout > 0 {
			fw.Timeout = wh.Timeout.String()
		}
		if wh.RetryDelay > 0 {
			fw.RetryDelay = wh.RetryDelay.String()
		}
		f.Webhooks = append(f.Webhooks, fw)
	}
	return f
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	return d.String()
}

// Marshal renders cfg in format (yaml, toml or json).
func Marshal(cfg *Config, format string) ([]byte, error) {
	const op = "config.Marshal"

	doc := toFile(cfg)
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(format) {
	case "yaml", "yml":
		data, err = yaml.Marshal(doc)
	case "toml":
		data, err = toml.Marshal(doc)
	case "json":
		data, err = json.MarshalIndent(doc, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	default:
		return nil, rperrors.Config(op, fmt.Sprintf("unsupported config format %q (use yaml, toml or json)", format))
	}
	if err != nil {
		return nil, rperrors.ConfigWrap(err, op, "failed to encode config")
	}
	return data, nil
}

// WriteConfig writes cfg to path in the format implied by its extension.
// An existing file is only replaced when overwrite is set.
func WriteConfig(cfg *Config, path string, overwrite bool) error {
	const op = "config.WriteConfig"

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return rperrors.Config(op, fmt.Sprintf("config file %s already exists", path))
		}
	}

	data, err := Marshal(cfg, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return rperrors.IOWrap(err, op, "failed to create config directory")
		}
	}
	if err := fileutil.AtomicWriteFile(path, data, 0o600); err != nil {
		return rperrors.IOWrap(err, op, "failed to write config file")
	}
	return nil
}

// WriteDefaultConfig writes the default configuration to a file.
func WriteDefaultConfig(path string, overwrite bool) error {
	return WriteConfig(DefaultConfig(), path, overwrite)
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// FindConfigFile searches for a config file and returns its path.
func FindConfigFile(searchPaths ...string) (string, error) {
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}

	for _, searchPath := range searchPaths {
		for _, name := range ConfigFileNames {
			for _, ext := range ConfigFileExtensions {
				configFile := filepath.Join(searchPath, name+"."+ext)
				if _, err := os.Stat(configFile); err == nil {
					return configFile, nil
				}
			}
		}
	}

	return "", rperrors.NotFound("config.FindConfigFile", "no config file found")
}
