package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr   string           `yaml:"listen_addr"`
	DB           DBConfig         `yaml:"db"`
	ContractsDir string           `yaml:"contracts_dir"`
	Reference    ReferenceConfig  `yaml:"reference"`
	Validation   ValidationConfig `yaml:"validation"`
	Outbox       OutboxConfig     `yaml:"outbox"`
	Auth         AuthConfig       `yaml:"auth"`
	Log          LogConfig        `yaml:"log"`
	Metrics      MetricsConfig    `yaml:"metrics"`
}

type DBConfig struct {
	Driver string `yaml:"driver"` // memory | sqlite | postgres
	DSN    string `yaml:"dsn"`
}

type ReferenceConfig struct {
	RetryMaxElapsed time.Duration `yaml:"retry_max_elapsed"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	Cache           CacheConfig   `yaml:"cache"`
	UnavailableMode string        `yaml:"unavailable_mode"`
}

type CacheConfig struct {
	Driver    string        `yaml:"driver"` // none | memory | redis
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redis_addr"`
}

type ValidationConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

type OutboxConfig struct {
	Enabled      bool          `yaml:"enabled"`
	WebhookURL   string        `yaml:"webhook_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// AuthConfig maps bearer tokens to actors.
type AuthConfig struct {
	Tokens map[string]TokenConfig `yaml:"tokens"`
}

type TokenConfig struct {
	Actor string   `yaml:"actor"`
	Roles []string `yaml:"roles"`
}

type LogConfig struct {
	Development bool `yaml:"development"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddr:   ":8080",
		DB:           DBConfig{Driver: "memory"},
		ContractsDir: "contracts",
		Reference: ReferenceConfig{
			RetryMaxElapsed: 2 * time.Second,
			BreakerFailures: 5,
			Cache:           CacheConfig{Driver: "memory", TTL: 5 * time.Minute},
			UnavailableMode: "fail_closed",
		},
		Validation: ValidationConfig{MaxConcurrency: 8},
		Outbox:     OutboxConfig{PollInterval: 2 * time.Second},
		Metrics:    MetricsConfig{Enabled: true},
	}
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides file values with PARTNERGATE_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set("PARTNERGATE_LISTEN_ADDR", &c.ListenAddr)
	set("PARTNERGATE_DB_DRIVER", &c.DB.Driver)
	set("PARTNERGATE_DB_DSN", &c.DB.DSN)
	set("PARTNERGATE_CONTRACTS_DIR", &c.ContractsDir)
	set("PARTNERGATE_REFERENCE_UNAVAILABLE_MODE", &c.Reference.UnavailableMode)
	set("PARTNERGATE_CACHE_DRIVER", &c.Reference.Cache.Driver)
	set("PARTNERGATE_REDIS_ADDR", &c.Reference.Cache.RedisAddr)
	set("PARTNERGATE_OUTBOX_WEBHOOK_URL", &c.Outbox.WebhookURL)

	if v := getenv("PARTNERGATE_OUTBOX_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PARTNERGATE_OUTBOX_ENABLED: %w", err)
		}
		c.Outbox.Enabled = b
	}
	if v := getenv("PARTNERGATE_LOG_DEVELOPMENT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PARTNERGATE_LOG_DEVELOPMENT: %w", err)
		}
		c.Log.Development = b
	}
	// A single dev token is convenient for local runs.
	if tok := getenv("PARTNERGATE_DEV_TOKEN"); tok != "" {
		if c.Auth.Tokens == nil {
			c.Auth.Tokens = map[string]TokenConfig{}
		}
		c.Auth.Tokens[tok] = TokenConfig{Actor: "dev", Roles: []string{"admin"}}
	}
	return nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.ContractsDir == "" {
		return fmt.Errorf("contracts_dir is required")
	}

	switch c.DB.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.driver=%s", c.DB.Driver)
		}
	default:
		return fmt.Errorf("db.driver must be memory, sqlite or postgres, got %q", c.DB.Driver)
	}

	switch c.Reference.Cache.Driver {
	case "", "none", "memory":
	case "redis":
		if c.Reference.Cache.RedisAddr == "" {
			return fmt.Errorf("reference.cache.redis_addr is required when reference.cache.driver=redis")
		}
	default:
		return fmt.Errorf("reference.cache.driver must be none, memory or redis, got %q", c.Reference.Cache.Driver)
	}

	switch c.Reference.UnavailableMode {
	case "", "fail_closed", "fail_open", "abort":
	default:
		return fmt.Errorf("reference.unavailable_mode must be fail_closed, fail_open or abort, got %q", c.Reference.UnavailableMode)
	}

	if c.Validation.MaxConcurrency < 0 {
		return fmt.Errorf("validation.max_concurrency must not be negative")
	}
	if c.Outbox.Enabled && c.Outbox.PollInterval < 0 {
		return fmt.Errorf("outbox.poll_interval must not be negative")
	}
	for token, tc := range c.Auth.Tokens {
		if token == "" || tc.Actor == "" {
			return fmt.Errorf("auth.tokens entries need a token and an actor")
		}
	}
	return nil
}
