package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	rperrors "github.com/relicta-tech/notebase/internal/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Setenv("NOTEBASE_HOME", t.TempDir())
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoader_DefaultsWithoutFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NOTEBASE_HOME", home)

	cfg, err := NewLoader().WithSearchPaths(t.TempDir()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("backend = %q, want file", cfg.Storage.Backend)
	}
	if want := filepath.Join(home, "events.jsonl"); cfg.Storage.Path != want {
		t.Errorf("storage path = %q, want %q", cfg.Storage.Path, want)
	}
	if cfg.Projections.SyncTimeout != 2*time.Second {
		t.Errorf("sync timeout = %s, want 2s", cfg.Projections.SyncTimeout)
	}
}

func TestLoader_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NOTEBASE_HOME", dir)
	t.Setenv("NOTEBASE_CACHE_BACKEND", "none")
	t.Setenv("REDIS_SECRET", "s3cret")

	content := `storage:
  backend: sqlite
  path: ${NOTEBASE_HOME}/events.db
projections:
  sync_timeout: 500ms
  check_on_startup: true
cache:
  backend: redis
  redis:
    password: ${REDIS_SECRET}
`
	if err := os.WriteFile(filepath.Join(dir, "notebase.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader().WithSearchPaths(dir)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
	if want := filepath.Join(dir, "events.db"); cfg.Storage.Path != want {
		t.Errorf("path = %q, want %q", cfg.Storage.Path, want)
	}
	if cfg.Projections.SyncTimeout != 500*time.Millisecond {
		t.Errorf("sync timeout = %s", cfg.Projections.SyncTimeout)
	}
	if !cfg.Projections.CheckOnStartup {
		t.Error("check_on_startup should be read from the file")
	}
	if cfg.Cache.Backend != "none" {
		t.Errorf("environment should win over the file, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Redis.Password != "s3cret" {
		t.Errorf("password not expanded: %q", cfg.Cache.Redis.Password)
	}
	if !strings.HasSuffix(loader.GetConfigPath(), "notebase.yaml") {
		t.Errorf("config path = %q", loader.GetConfigPath())
	}
}

func TestLoader_MergeConfigOverrides(t *testing.T) {
	t.Setenv("NOTEBASE_HOME", t.TempDir())
	loader := NewLoader().WithSearchPaths(t.TempDir())
	if err := loader.MergeConfig(map[string]any{"output.log_level": "debug", "storage.backend": "memory"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output.LogLevel != "debug" || cfg.Storage.Backend != "memory" {
		t.Errorf("overrides not applied: %+v", cfg.Output)
	}
}

func TestLoader_ExplicitMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if !rperrors.IsKind(err, rperrors.KindConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestWriteConfig_RoundTrip(t *testing.T) {
	for _, ext := range []string{"yaml", "toml", "json"} {
		t.Run(ext, func(t *testing.T) {
			t.Setenv("NOTEBASE_HOME", t.TempDir())
			want := DefaultConfig()
			want.Storage.Backend = "sqlite"
			want.Projections.Cooldown = 90 * time.Second
			want.Cache.Backend = "redis"

			path := filepath.Join(t.TempDir(), "notebase."+ext)
			if err := WriteConfig(want, path, false); err != nil {
				t.Fatalf("WriteConfig: %v", err)
			}
			if err := WriteConfig(want, path, false); err == nil {
				t.Fatal("second write without overwrite should fail")
			}

			got, err := LoadFromFile(path)
			if err != nil {
				t.Fatalf("LoadFromFile: %v", err)
			}
			if got.Storage.Backend != "sqlite" || got.Cache.Backend != "redis" {
				t.Errorf("round trip lost values: %+v", got)
			}
			if got.Projections.Cooldown != 90*time.Second {
				t.Errorf("cooldown = %s, want 1m30s", got.Projections.Cooldown)
			}
			if got.Server.Address != want.Server.Address || got.Server.Auth.Mode != ServerAuthNone {
				t.Errorf("server settings lost: %+v", got.Server)
			}
		})
	}
}

func TestMarshal_RejectsUnknownFormat(t *testing.T) {
	if _, err := Marshal(DefaultConfig(), "ini"); err == nil {
		t.Fatal("expected an error for ini")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.backend"},
		{"missing path", func(c *Config) { c.Storage.Path = " " }, "storage.path"},
		{"read only sqlite", func(c *Config) { c.Storage.Backend = "sqlite"; c.Storage.ReadOnly = true }, "storage.read_only"},
		{"same file", func(c *Config) { c.Projections.ReadDB = c.Storage.Path }, "must differ"},
		{"zero batch", func(c *Config) { c.Projections.BatchSize = 0 }, "batch_size"},
		{"zero timeout", func(c *Config) { c.Projections.SyncTimeout = 0 }, "sync_timeout"},
		{"zero threshold", func(c *Config) { c.Projections.FailureThreshold = 0 }, "failure_threshold"},
		{"fast watch", func(c *Config) { c.Projections.WatchInterval = time.Millisecond }, "watch_interval"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis"; c.Cache.Redis.Addr = "" }, "cache.redis.addr"},
		{"bad cache", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"bad level", func(c *Config) { c.Output.LogLevel = "trace" }, "output.log_level"},
		{"no address", func(c *Config) { c.Server.Address = "" }, "server.address"},
		{"negative rate", func(c *Config) { c.Server.RateLimit = -1 }, "server.rate_limit"},
		{"bad auth mode", func(c *Config) { c.Server.Auth.Mode = "oauth" }, "server.auth.mode"},
		{"api key mode without keys", func(c *Config) { c.Server.Auth.Mode = ServerAuthAPIKey }, "server.auth.api_keys"},
		{"bad role", func(c *Config) {
			c.Server.Auth.Mode = ServerAuthAPIKey
			c.Server.Auth.APIKeys = []APIKeyConfig{{Name: "ci", Key: "k", Roles: []string{"admin"}}}
		}, "roles"},
		{"webhook without url", func(c *Config) { c.Webhooks = []WebhookConfig{{Name: "x"}} }, "webhooks[0].url"},
		{"webhook bad scheme", func(c *Config) { c.Webhooks = []WebhookConfig{{URL: "ftp://example.com/hook"}} }, "http(s)"},
		{"webhook retries", func(c *Config) {
			c.Webhooks = []WebhookConfig{{URL: "https://example.com/hook", RetryCount: 99}}
		}, "retry_count"},
		{"webhook pattern", func(c *Config) {
			c.Webhooks = []WebhookConfig{{URL: "https://example.com/hook", Events: []string{"*.created"}}}
		}, "may only end in *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !rperrors.IsKind(err, rperrors.KindValidation) {
				t.Errorf("kind = %s", rperrors.GetKind(err))
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidator_Warnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Backend = "memory"
	cfg.Projections.SyncTimeout = 2 * time.Minute

	v := NewValidator()
	if err := v.Validate(cfg); err != nil {
		t.Fatalf("warnings must not fail validation: %v", err)
	}
	if got := len(v.Warnings()); got != 2 {
		t.Errorf("warnings = %d, want 2: %v", got, v.Warnings())
	}
}

func TestLoader_ExpandsAPIKeys(t *testing.T) {
	t.Setenv("NOTEBASE_HOME", t.TempDir())
	t.Setenv("NOTEBASE_TEST_KEY", "s3cret")
	path := filepath.Join(t.TempDir(), "notebase.yaml")
	doc := "server:\n  auth:\n    mode: api_key\n    api_keys:\n      - name: ci\n        key: ${NOTEBASE_TEST_KEY}\n        roles: [editor]\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if len(cfg.Server.Auth.APIKeys) != 1 || cfg.Server.Auth.APIKeys[0].Key != "s3cret" {
		t.Fatalf("api keys = %+v", cfg.Server.Auth.APIKeys)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoader_Webhooks(t *testing.T) {
	t.Setenv("NOTEBASE_HOME", t.TempDir())
	t.Setenv("NOTEBASE_TEST_HOOK_SECRET", "whsec")
	path := filepath.Join(t.TempDir(), "notebase.yaml")
	doc := `webhooks:
  - name: chat
    url: https://hooks.example.com/notebase
    events: ["todo.*", "note.created"]
    secret: ${NOTEBASE_TEST_HOOK_SECRET}
    timeout: 5s
    retry_count: 2
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if len(cfg.Webhooks) != 1 {
		t.Fatalf("webhooks = %+v", cfg.Webhooks)
	}
	wh := cfg.Webhooks[0]
	if wh.Secret != "whsec" || wh.Timeout != 5*time.Second || wh.RetryCount != 2 || len(wh.Events) != 2 {
		t.Errorf("webhook = %+v", wh)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}

	out := filepath.Join(t.TempDir(), "copy.yaml")
	if err := WriteConfig(cfg, out, false); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	again, err := LoadFromFile(out)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(again.Webhooks) != 1 || again.Webhooks[0].Timeout != 5*time.Second {
		t.Errorf("webhooks lost in round trip: %+v", again.Webhooks)
	}
}

func TestExpandEnvVar(t *testing.T) {
	t.Setenv("TOKEN_VALUE", "abc123")
	got := expandEnvVar("prefix-${TOKEN_VALUE}-suffix:$MISSING_NOTEBASE_VAR:${MISSING_NOTEBASE_VAR:-default}")
	want := "prefix-abc123-suffix:$MISSING_NOTEBASE_VAR:default"
	if got != want {
		t.Errorf("expandEnvVar = %q, want %q", got, want)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/notes/read.db"); got != filepath.Join(home, "notes", "read.db") {
		t.Errorf("expandHome = %q", got)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute paths are untouched, got %q", got)
	}
}
