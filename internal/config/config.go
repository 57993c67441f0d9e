// Package config loads server and client settings from an optional file and
// EMUMCP_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/FreePeak/emulator-mcp-server/internal/domain/resource"
)

// EnvPrefix prefixes every environment variable, e.g. EMUMCP_SERVER_ADDR.
const EnvPrefix = "EMUMCP"

// Token store backends
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the full application configuration.
type Config struct {
	Server struct {
		Addr               string        `mapstructure:"addr"`
		ReadLimit          int64         `mapstructure:"read_limit"`
		WriteTimeout       time.Duration `mapstructure:"write_timeout"`
		MaxConcurrentCalls int           `mapstructure:"max_concurrent_calls"`
		ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	Storage struct {
		Root        string   `mapstructure:"root"`
		CatalogPath string   `mapstructure:"catalog_path"`
		BuiltinROMs []string `mapstructure:"builtin_roms"`
	} `mapstructure:"storage"`

	Auth struct {
		TokenTTL time.Duration `mapstructure:"token_ttl"`
		Store    string        `mapstructure:"store"`
		// WebSessions maps web session cookie values to operator names.
		WebSessions map[string]string `mapstructure:"web_sessions"`
		CookieName  string            `mapstructure:"cookie_name"`
	} `mapstructure:"auth"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Session struct {
		IdleTTL       time.Duration `mapstructure:"idle_ttl"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"session"`

	Emulator struct {
		LoadDelay time.Duration `mapstructure:"load_delay"`
	} `mapstructure:"emulator"`

	Client struct {
		URL         string        `mapstructure:"url"`
		TokenURL    string        `mapstructure:"token_url"`
		WebSession  string        `mapstructure:"web_session"`
		MaxAttempts int           `mapstructure:"max_attempts"`
		BaseDelay   time.Duration `mapstructure:"base_delay"`
		CallTimeout time.Duration `mapstructure:"call_timeout"`
	} `mapstructure:"client"`

	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_limit", resource.MaxUploadFrame())
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.max_concurrent_calls", 16)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.root", "./data")
	v.SetDefault("storage.catalog_path", "catalog.db")
	v.SetDefault("storage.builtin_roms", []string{})

	v.SetDefault("auth.token_ttl", 15*time.Minute)
	v.SetDefault("auth.store", StoreMemory)
	v.SetDefault("auth.web_sessions", map[string]string{})
	v.SetDefault("auth.cookie_name", "emumcp_session")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.idle_ttl", 30*time.Minute)
	v.SetDefault("session.sweep_interval", time.Minute)

	v.SetDefault("emulator.load_delay", 500*time.Millisecond)

	v.SetDefault("client.url", "ws://localhost:8080/ws")
	v.SetDefault("client.token_url", "http://localhost:8080/auth/token")
	v.SetDefault("client.web_session", "")
	v.SetDefault("client.max_attempts", 5)
	v.SetDefault("client.base_delay", time.Second)
	v.SetDefault("client.call_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path, then environment overrides.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects empty and non-positive settings, and a read limit too
// small to carry the largest accepted upload.
func (c *Config) Validate() error {
	checks := []struct {
		ok  bool
		key string
	}{
		{c.Server.Addr != "", "server.addr"},
		{c.Server.ReadLimit >= resource.MaxUploadFrame(), "server.read_limit"},
		{c.Server.WriteTimeout > 0, "server.write_timeout"},
		{c.Server.MaxConcurrentCalls > 0, "server.max_concurrent_calls"},
		{c.Server.ShutdownTimeout > 0, "server.shutdown_timeout"},
		{c.Storage.Root != "", "storage.root"},
		{c.Auth.TokenTTL > 0, "auth.token_ttl"},
		{c.Auth.Store == StoreMemory || c.Auth.Store == StoreRedis, "auth.store"},
		{c.Auth.Store != StoreRedis || c.Redis.Addr != "", "redis.addr"},
		{c.Redis.DB >= 0, "redis.db"},
		{c.Session.IdleTTL > 0, "session.idle_ttl"},
		{c.Session.SweepInterval > 0, "session.sweep_interval"},
		{c.Emulator.LoadDelay >= 0, "emulator.load_delay"},
		{c.Client.URL != "", "client.url"},
		{c.Client.MaxAttempts > 0, "client.max_attempts"},
		{c.Client.BaseDelay > 0, "client.base_delay"},
		{c.Client.CallTimeout > 0, "client.call_timeout"},
	}
	for _, check := range checks {
		if !check.ok {
			return errors.Errorf("invalid config: %s", check.key)
		}
	}
	return nil
}
