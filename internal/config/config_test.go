package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Server.AllowsAnyOrigin())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, 64, cfg.Chat.OutboxSize)
	assert.Zero(t, cfg.Chat.MaxMessageBytes)
	assert.Zero(t, cfg.Chat.PongWait)
	assert.Zero(t, cfg.Chat.PingInterval)
	assert.True(t, cfg.Chat.AllowRename)

	assert.Equal(t, "uploads", cfg.Upload.Dir)
	assert.Zero(t, cfg.Upload.MaxBytes)
	assert.Empty(t, cfg.Upload.PublicBaseURL)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:8081")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:5173/, https://talknest.example ,")
	t.Setenv("PUBLIC_BASE_URL", "https://api.talknest.example/")
	t.Setenv("UPLOAD_MAX_BYTES", "1048576")
	t.Setenv("WS_PONG_WAIT", "60s")
	t.Setenv("WS_PING_INTERVAL", "54s")
	t.Setenv("ALLOW_RENAME", "false")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8081", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:5173", "https://talknest.example"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Server.AllowsAnyOrigin())
	assert.Equal(t, "https://api.talknest.example", cfg.Upload.PublicBaseURL)
	assert.Equal(t, int64(1<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, 60*time.Second, cfg.Chat.PongWait)
	assert.Equal(t, 54*time.Second, cfg.Chat.PingInterval)
	assert.False(t, cfg.Chat.AllowRename)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadPortNumber(t *testing.T) {
	t.Setenv("PORT", "8080")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"port with space":       {"PORT": "80 80"},
		"unknown log level":     {"LOG_LEVEL": "verbose"},
		"relative base url":     {"PUBLIC_BASE_URL": "not a url"},
		"negative upload limit": {"UPLOAD_MAX_BYTES": "-1"},
		"zero outbox":           {"OUTBOX_SIZE": "0"},
		"ping after pong":       {"WS_PONG_WAIT": "10s", "WS_PING_INTERVAL": "20s"},
		"no origins":            {"ALLOWED_ORIGINS": " , "},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
