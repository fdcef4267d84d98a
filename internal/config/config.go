// Package config loads portalguard's process configuration from an optional
// YAML file, a .env file and PORTALGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	pgerrors "github.com/vnykmshr/portalguard/pkg/common/errors"
	"github.com/vnykmshr/portalguard/pkg/common/validation"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/distributed"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/keys"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/policy"
	"github.com/vnykmshr/portalguard/pkg/scheduling/scheduler"
)

const (
	module = "config"

	// EnvPrefix prefixes every environment variable, e.g. PORTALGUARD_REDIS_URL.
	EnvPrefix = "PORTALGUARD"

	// FileEnv names the variable that points at a YAML config file.
	FileEnv = EnvPrefix + "_CONFIG"
)

// Config is the complete process configuration.
type Config struct {
	Redis    RedisConfig             `mapstructure:"redis"`
	Store    StoreConfig             `mapstructure:"store"`
	Keys     KeysConfig              `mapstructure:"keys"`
	Server   ServerConfig            `mapstructure:"server"`
	Log      LogConfig               `mapstructure:"log"`
	Hooks    HooksConfig             `mapstructure:"hooks"`
	Health   HealthConfig            `mapstructure:"health"`
	Tracing  TracingConfig           `mapstructure:"tracing"`
	Policies map[string]PolicyConfig `mapstructure:"policies"`
}

// RedisConfig locates the shared store.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	PoolSize int    `mapstructure:"pool_size"`
}

// StoreConfig tunes how the limiter talks to the shared store.
type StoreConfig struct {
	Prefix  string        `mapstructure:"prefix"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// KeysConfig selects the headers used for client identity.
type KeysConfig struct {
	TrustedHeader     string `mapstructure:"trusted_header"`
	ForwardedHeader   string `mapstructure:"forwarded_header"`
	FingerprintHeader string `mapstructure:"fingerprint_header"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Addr                 string        `mapstructure:"addr"`
	AdminAddr            string        `mapstructure:"admin_addr"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
	InformationalHeaders bool          `mapstructure:"informational_headers"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// HooksConfig sizes the worker pool that runs exceeded hooks.
type HooksConfig struct {
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// HealthConfig schedules the shared store probe.
type HealthConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// TracingConfig toggles the stdout span exporter.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// PolicyConfig overrides the tunables of one built-in policy.
type PolicyConfig struct {
	Window        time.Duration `mapstructure:"window"`
	MaxRequests   int           `mapstructure:"max_requests"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	FailClosed    bool          `mapstructure:"fail_closed"`
}

// Load reads configuration. path names a YAML file; when empty, the file named
// by PORTALGUARD_CONFIG is used if set, otherwise only defaults and the
// environment apply. A .env file in the working directory is loaded first and
// never overrides variables that are already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("config", "")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 0)

	v.SetDefault("store.prefix", distributed.DefaultPrefix)
	v.SetDefault("store.timeout", distributed.DefaultTimeout)

	v.SetDefault("keys.trusted_header", keys.DefaultTrustedHeader)
	v.SetDefault("keys.forwarded_header", keys.DefaultForwardedHeader)
	v.SetDefault("keys.fingerprint_header", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.admin_addr", ":9090")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.informational_headers", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("hooks.workers", 4)
	v.SetDefault("hooks.queue_size", 256)
	v.SetDefault("hooks.timeout", 5*time.Second)

	v.SetDefault("health.schedule", "@every 10s")

	v.SetDefault("tracing.enabled", false)

	for _, p := range policy.Defaults() {
		base := "policies." + p.Name + "."
		v.SetDefault(base+"window", p.Window)
		v.SetDefault(base+"max_requests", p.MaxRequests)
		v.SetDefault(base+"block_duration", p.BlockDuration)
		v.SetDefault(base+"fail_closed", p.FailClosed)
	}
}

// Validate checks cross-field constraints that the decoders cannot express.
func (c *Config) Validate() error {
	if _, err := c.RedisOptions(); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty(module, "store.prefix", c.Store.Prefix); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration(module, "store.timeout", c.Store.Timeout); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty(module, "server.addr", c.Server.Addr); err != nil {
		return err
	}
	if err := validation.ValidatePositive(module, "hooks.workers", c.Hooks.Workers); err != nil {
		return err
	}
	if c.Hooks.QueueSize < 0 {
		return pgerrors.NewValidationError(module, "hooks.queue_size", c.Hooks.QueueSize, "cannot be negative")
	}
	if err := validation.ValidatePositiveDuration(module, "hooks.timeout", c.Hooks.Timeout); err != nil {
		return err
	}
	if err := scheduler.ParseCron(c.Health.Schedule); err != nil {
		return pgerrors.NewValidationError(module, "health.schedule", c.Health.Schedule, err.Error()).
			WithHint("use a six-field cron expression or a descriptor such as @every 10s")
	}
	for name := range c.Policies {
		if !isBuiltin(name) {
			return pgerrors.NewValidationError(module, "policies", name, "unknown policy").
				WithHint("overrides apply to auth, password-reset, form-submit, upload and api")
		}
	}
	if _, err := policy.NewRegistry(c.PolicyConfigs()...); err != nil {
		return fmt.Errorf("policy overrides: %w", err)
	}
	return nil
}

func isBuiltin(name string) bool {
	for _, p := range policy.Defaults() {
		if p.Name == name {
			return true
		}
	}
	return false
}

// RedisOptions parses the Redis URL and applies the pool size.
func (c *Config) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.Redis.URL)
	if err != nil {
		return nil, pgerrors.NewValidationError(module, "redis.url", c.Redis.URL, err.Error()).
			WithHint("expected redis://[user:password@]host:port/db")
	}
	if c.Redis.PoolSize > 0 {
		opts.PoolSize = c.Redis.PoolSize
	}
	return opts, nil
}

// PolicyConfigs returns the built-in policies with configured overrides
// applied, ordered by name.
func (c *Config) PolicyConfigs() []policy.Config {
	defaults := policy.Defaults()
	sort.Slice(defaults, func(i, j int) bool { return defaults[i].Name < defaults[j].Name })

	for i, p := range defaults {
		o, ok := c.Policies[p.Name]
		if !ok {
			continue
		}
		p.Window = o.Window
		p.MaxRequests = o.MaxRequests
		p.BlockDuration = o.BlockDuration
		p.FailClosed = o.FailClosed
		defaults[i] = p
	}
	return defaults
}

// Deriver builds the key deriver described by the keys section.
func (c *Config) Deriver() *keys.Deriver {
	return &keys.Deriver{
		TrustedHeader:     c.Keys.TrustedHeader,
		ForwardedHeader:   c.Keys.ForwardedHeader,
		FingerprintHeader: c.Keys.FingerprintHeader,
	}
}
