package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/emulator-mcp-server/internal/domain/resource"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, 16, c.Server.MaxConcurrentCalls)
	assert.Equal(t, 15*time.Minute, c.Auth.TokenTTL)
	assert.Equal(t, StoreMemory, c.Auth.Store)
	assert.Equal(t, 30*time.Minute, c.Session.IdleTTL)
	assert.Equal(t, 5, c.Client.MaxAttempts)
	assert.Equal(t, 10*time.Second, c.Client.CallTimeout)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, resource.MaxUploadFrame(), c.Server.ReadLimit)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emumcp.toml")
	content := `
[server]
addr = ":9090"

[storage]
root = "/srv/emumcp"
builtin_roms = ["cart-8bit/demo.rom"]

[auth]
store = "redis"
token_ttl = "5m"

[auth.web_sessions]
cookie-abc = "alice"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("EMUMCP_SERVER_ADDR", ":7070")
	t.Setenv("EMUMCP_CLIENT_MAX_ATTEMPTS", "9")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", c.Server.Addr)
	assert.Equal(t, "/srv/emumcp", c.Storage.Root)
	assert.Equal(t, []string{"cart-8bit/demo.rom"}, c.Storage.BuiltinROMs)
	assert.Equal(t, StoreRedis, c.Auth.Store)
	assert.Equal(t, 5*time.Minute, c.Auth.TokenTTL)
	assert.Equal(t, "alice", c.Auth.WebSessions["cookie-abc"])
	assert.Equal(t, 9, c.Client.MaxAttempts)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"read limit below largest upload", func(c *Config) { c.Server.ReadLimit = 64 << 20 }, "server.read_limit"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "auth.token_ttl"},
		{"unknown store", func(c *Config) { c.Auth.Store = "etcd" }, "auth.store"},
		{"redis without addr", func(c *Config) { c.Auth.Store = StoreRedis; c.Redis.Addr = "" }, "redis.addr"},
		{"negative delay", func(c *Config) { c.Emulator.LoadDelay = -time.Second }, "emulator.load_delay"},
		{"zero attempts", func(c *Config) { c.Client.MaxAttempts = 0 }, "client.max_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load("")
			require.NoError(t, err)
			tt.mutate(c)

			err = c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
