package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/denusbtw/projecthub-sub000/logging"
	"github.com/denusbtw/projecthub-sub000/store"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "PROJECTHUB_"

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig configures the tenant lookup cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// AuthConfig configures bearer token issuing and validation.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// TenantConfig configures subdomain resolution and per-tenant quotas.
type TenantConfig struct {
	BaseDomain     string   `yaml:"base_domain"`
	ExemptPrefixes []string `yaml:"exempt_prefixes"`
	APIRequestsRPM int      `yaml:"api_rpm"`
}

// HousekeepingConfig configures the project archiver.
type HousekeepingConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     store.PGConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Auth         AuthConfig         `yaml:"auth"`
	Tenant       TenantConfig       `yaml:"tenant"`
	Log          logging.Config     `yaml:"log"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
}

// Default returns a configuration with every optional field filled.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: store.PGConfig{MaxConns: 10},
		Redis:    RedisConfig{Prefix: "projecthub:tenant:", TTL: 5 * time.Minute},
		Auth:     AuthConfig{Issuer: "projecthub", TokenTTL: time.Hour},
		Tenant: TenantConfig{
			ExemptPrefixes: []string{"/admin/", "/api/v1/auth/", "/healthz", "/metrics"},
			APIRequestsRPM: 1000,
		},
		Log:          logging.Config{Level: "info", Format: "json"},
		Housekeeping: HousekeepingConfig{Interval: time.Hour},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := overrideFromEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}

	str("SERVER_ADDR", &cfg.Server.Addr)
	str("DATABASE_URL", &cfg.Database.URL)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	num("REDIS_DB", &cfg.Redis.DB)
	dur("REDIS_TTL", &cfg.Redis.TTL)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("JWT_ISSUER", &cfg.Auth.Issuer)
	dur("TOKEN_TTL", &cfg.Auth.TokenTTL)
	str("BASE_DOMAIN", &cfg.Tenant.BaseDomain)
	num("API_RPM", &cfg.Tenant.APIRequestsRPM)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	dur("HOUSEKEEPING_INTERVAL", &cfg.Housekeeping.Interval)

	if v, ok := lookup(EnvPrefix + "EXEMPT_PREFIXES"); ok && v != "" {
		var prefixes []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				prefixes = append(prefixes, p)
			}
		}
		cfg.Tenant.ExemptPrefixes = prefixes
	}
	return errors.Join(errs...)
}

// Validate reports every missing or inconsistent setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Tenant.APIRequestsRPM < 0 {
		errs = append(errs, errors.New("tenant.api_rpm must not be negative"))
	}
	if c.Housekeeping.Interval < 0 {
		errs = append(errs, errors.New("housekeeping.interval must not be negative"))
	}
	for _, p := range c.Tenant.ExemptPrefixes {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("tenant.exempt_prefixes: %q must start with /", p))
		}
	}
	return errors.Join(errs...)
}
