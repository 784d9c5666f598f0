package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	rperrors "github.com/relicta-tech/notebase/internal/errors"
)

// ValidationError contains all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string

	if len(e.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Errors:\n  - %s", strings.Join(e.Errors, "\n  - ")))
	}

	if len(e.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("Warnings:\n  - %s", strings.Join(e.Warnings, "\n  - ")))
	}

	return fmt.Sprintf("configuration validation failed:\n%s", strings.Join(parts, "\n"))
}

// HasErrors returns true if there are validation errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// HasWarnings returns true if there are validation warnings.
func (e *ValidationError) HasWarnings() bool {
	return len(e.Warnings) > 0
}

// Addf adds a formatted error to the validation error.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// Warnf adds a formatted warning to the validation error.
func (e *ValidationError) Warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// Validator validates configuration.
type Validator struct {
	errors *ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: &ValidationError{},
	}
}

// Validate validates the configuration. Warnings never fail validation;
// they are available from Warnings afterwards.
func (v *Validator) Validate(cfg *Config) error {
	v.validateStorage(cfg.Storage)
	v.validateProjections(cfg.Projections, cfg.Storage)
	v.validateCache(cfg.Cache)
	v.validateOutput(cfg.Output)
	v.validateServer(cfg.Server)
	v.validateWebhooks(cfg.Webhooks)

	if v.errors.HasErrors() {
		return rperrors.Validation("config.Validate", v.errors.Error())
	}
	return nil
}

// Warnings returns the warnings collected by the last Validate call.
func (v *Validator) Warnings() []string {
	return slices.Clone(v.errors.Warnings)
}

func (v *Validator) validateStorage(cfg StorageConfig) {
	validBackends := []string{"memory", "file", "sqlite"}
	if !slices.Contains(validBackends, cfg.Backend) {
		v.errors.Addf("storage.backend: must be one of %v, got %q", validBackends, cfg.Backend)
		return
	}
	if cfg.Backend != "memory" && strings.TrimSpace(cfg.Path) == "" {
		v.errors.Addf("storage.path: required for the %s backend", cfg.Backend)
	}
	if cfg.ReadOnly && cfg.Backend != "file" {
		v.errors.Addf("storage.read_only: only supported by the file backend")
	}
	if cfg.Backend == "memory" {
		v.errors.Warnf("storage.backend: memory keeps no history between runs")
	}
}

func (v *Validator) validateProjections(cfg ProjectionsConfig, storage StorageConfig) {
	if strings.TrimSpace(cfg.ReadDB) == "" {
		v.errors.Addf("projections.read_db: required")
	} else if storage.Backend != "memory" && cfg.ReadDB == storage.Path {
		v.errors.Addf("projections.read_db: must differ from storage.path")
	}
	if cfg.BatchSize <= 0 {
		v.errors.Addf("projections.batch_size: must be positive, got %d", cfg.BatchSize)
	}
	if cfg.SyncTimeout <= 0 {
		v.errors.Addf("projections.sync_timeout: must be positive, got %s", cfg.SyncTimeout)
	} else if cfg.SyncTimeout > time.Minute {
		v.errors.Warnf("projections.sync_timeout: %s blocks every command for a long time", cfg.SyncTimeout)
	}
	if cfg.FailureThreshold <= 0 {
		v.errors.Addf("projections.failure_threshold: must be positive, got %d", cfg.FailureThreshold)
	}
	if cfg.Cooldown < 0 {
		v.errors.Addf("projections.cooldown: cannot be negative")
	}
	if cfg.WatchInterval < time.Second {
		v.errors.Addf("projections.watch_interval: must be at least 1s, got %s", cfg.WatchInterval)
	}
}

func (v *Validator) validateCache(cfg CacheConfig) {
	validBackends := []string{"none", "memory", "redis"}
	if !slices.Contains(validBackends, cfg.Backend) {
		v.errors.Addf("cache.backend: must be one of %v, got %q", validBackends, cfg.Backend)
		return
	}
	if cfg.Backend != "none" && cfg.TTL <= 0 {
		v.errors.Addf("cache.ttl: must be positive, got %s", cfg.TTL)
	}
	if cfg.Backend == "redis" {
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			v.errors.Addf("cache.redis.addr: required for the redis backend")
		}
		if cfg.Redis.DB < 0 {
			v.errors.Addf("cache.redis.db: cannot be negative")
		}
	}
}

func (v *Validator) validateOutput(cfg OutputConfig) {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, cfg.LogLevel) {
		v.errors.Addf("output.log_level: must be one of %v, got %q", validLogLevels, cfg.LogLevel)
	}
}

func (v *Validator) validateServer(cfg ServerConfig) {
	if strings.TrimSpace(cfg.Address) == "" {
		v.errors.Addf("server.address: required")
	}
	if cfg.RateLimit < 0 {
		v.errors.Addf("server.rate_limit: cannot be negative")
	}
	for _, origin := range cfg.CORSOrigins {
		if origin == "*" {
			v.errors.Warnf("server.cors_origins: \"*\" lets any web page call the API")
		}
	}

	switch cfg.Auth.Mode {
	case ServerAuthNone:
		if !strings.HasPrefix(cfg.Address, "127.0.0.1:") && !strings.HasPrefix(cfg.Address, "localhost:") {
			v.errors.Warnf("server.auth.mode: none while listening on %s", cfg.Address)
		}
	case ServerAuthAPIKey:
		if len(cfg.Auth.APIKeys) == 0 {
			v.errors.Addf("server.auth.api_keys: at least one key is required for api_key mode")
		}
		validRoles := []string{string(ServerRoleViewer), string(ServerRoleEditor)}
		for i, k := range cfg.Auth.APIKeys {
			if strings.TrimSpace(k.Key) == "" {
				v.errors.Addf("server.auth.api_keys[%d].key: required", i)
			}
			for _, role := range k.Roles {
				if !slices.Contains(validRoles, role) {
					v.errors.Addf("server.auth.api_keys[%d].roles: must be one of %v, got %q", i, validRoles, role)
				}
			}
		}
	default:
		v.errors.Addf("server.auth.mode: must be one of [none api_key], got %q", cfg.Auth.Mode)
	}
}

func (v *Validator) validateWebhooks(hooks []WebhookConfig) {
	for i, wh := range hooks {
		u, err := url.Parse(wh.URL)
		switch {
		case strings.TrimSpace(wh.URL) == "":
			v.errors.Addf("webhooks[%d].url: required", i)
		case err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "":
			v.errors.Addf("webhooks[%d].url: must be an http(s) URL, got %q", i, wh.URL)
		case u.Scheme == "http" && wh.Secret != "":
			v.errors.Warnf("webhooks[%d]: signed payloads sent over plain http", i)
		}
		if wh.Timeout < 0 || wh.RetryDelay < 0 {
			v.errors.Addf("webhooks[%d]: timeout and retry_delay cannot be negative", i)
		}
		if wh.RetryCount < 0 || wh.RetryCount > 10 {
			v.errors.Addf("webhooks[%d].retry_count: must be between 0 and 10", i)
		}
		for _, e := range wh.Events {
			if strings.Contains(strings.TrimSuffix(e, "*"), "*") {
				v.errors.Addf("webhooks[%d].events: %q may only end in *", i, e)
			}
		}
	}
}

// Validate is a convenience function to validate configuration.
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// ValidateAndLoad loads and validates configuration.
func ValidateAndLoad() (*Config, error) {
	cfg, err := NewLoader().Load()
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
