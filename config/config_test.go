package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const secret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  read_timeout: 5s
database:
  url: postgres://localhost/projecthub
  max_conns: 20
redis:
  addr: localhost:6379
  ttl: 30s
auth:
  jwt_secret: `+secret+`
  token_ttl: 2h
tenant:
  base_domain: projecthub.io
  api_rpm: 50
log:
  level: debug
  format: console
housekeeping:
  interval: 10m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":9090" || cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.WriteTimeout != 15*time.Second {
		t.Errorf("expected default write timeout, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Database.URL != "postgres://localhost/projecthub" || cfg.Database.MaxConns != 20 {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.TTL != 30*time.Second {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Redis.Prefix != "projecthub:tenant:" {
		t.Errorf("expected default redis prefix, got %q", cfg.Redis.Prefix)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour || cfg.Auth.Issuer != "projecthub" {
		t.Errorf("unexpected auth config: %+v", cfg.Auth)
	}
	if cfg.Tenant.BaseDomain != "projecthub.io" || cfg.Tenant.APIRequestsRPM != 50 {
		t.Errorf("unexpected tenant config: %+v", cfg.Tenant)
	}
	if len(cfg.Tenant.ExemptPrefixes) == 0 {
		t.Error("expected default exempt prefixes")
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.Housekeeping.Interval != 10*time.Minute {
		t.Errorf("expected 10m interval, got %v", cfg.Housekeeping.Interval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("PROJECTHUB_DATABASE_URL", "postgres://env/projecthub")
	t.Setenv("PROJECTHUB_JWT_SECRET", secret)
	t.Setenv("PROJECTHUB_API_RPM", "7")
	t.Setenv("PROJECTHUB_EXEMPT_PREFIXES", "/admin/, /api/v1/auth/")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.URL != "postgres://env/projecthub" {
		t.Errorf("expected env database url, got %q", cfg.Database.URL)
	}
	if cfg.Tenant.APIRequestsRPM != 7 {
		t.Errorf("expected api rpm 7, got %d", cfg.Tenant.APIRequestsRPM)
	}
	if got := strings.Join(cfg.Tenant.ExemptPrefixes, ","); got != "/admin/,/api/v1/auth/" {
		t.Errorf("unexpected exempt prefixes %q", got)
	}
}

func TestOverrideFromEnv(t *testing.T) {
	env := map[string]string{
		"PROJECTHUB_SERVER_ADDR":           ":7000",
		"PROJECTHUB_REDIS_DB":              "3",
		"PROJECTHUB_TOKEN_TTL":             "45m",
		"PROJECTHUB_LOG_LEVEL":             "warn",
		"PROJECTHUB_HOUSEKEEPING_INTERVAL": "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := overrideFromEnv(cfg, lookup); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":7000" || cfg.Redis.DB != 3 || cfg.Auth.TokenTTL != 45*time.Minute || cfg.Log.Level != "warn" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Housekeeping.Interval != time.Hour {
		t.Errorf("empty override should keep default, got %v", cfg.Housekeeping.Interval)
	}

	env = map[string]string{
		"PROJECTHUB_REDIS_DB":  "three",
		"PROJECTHUB_TOKEN_TTL": "forever",
	}
	err := overrideFromEnv(Default(), lookup)
	if err == nil {
		t.Fatal("expected errors for malformed overrides")
	}
	for _, want := range []string{"PROJECTHUB_REDIS_DB", "PROJECTHUB_TOKEN_TTL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Database.URL = "postgres://localhost/projecthub"
		cfg.Auth.JWTSecret = secret
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"no database", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "jwt_secret"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "token_ttl"},
		{"negative rpm", func(c *Config) { c.Tenant.APIRequestsRPM = -1 }, "api_rpm"},
		{"negative interval", func(c *Config) { c.Housekeeping.Interval = -time.Second }, "housekeeping.interval"},
		{"relative prefix", func(c *Config) { c.Tenant.ExemptPrefixes = []string{"admin"} }, "exempt_prefixes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}
