package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AGENT_API_URL", "AGENT_WS_URL", "APP_VERSION", "APP_ENV", "LISTEN_ADDR",
		"DATABASE_URL", "USE_MOCK", "LOG_LEVEL", "REQUEST_TIMEOUT_SECONDS", "DASHBOARD_CONFIG", "TEMPLATES_DIR",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", c.APIURL)
	assert.Equal(t, "ws://localhost:8000/ws", c.WSURL)
	assert.Equal(t, "1.0.0", c.Version)
	assert.Equal(t, ":8080", c.ListenAddr)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.False(t, c.DevMode)
	assert.False(t, c.UseMock)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENT_API_URL", "https://agents.example.com/")
	t.Setenv("APP_VERSION", "2.3.0")
	t.Setenv("APP_ENV", "development")
	t.Setenv("USE_MOCK", "true")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "5")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://agents.example.com", c.APIURL)
	assert.Equal(t, "wss://agents.example.com/ws", c.WSURL)
	assert.Equal(t, "2.3.0", c.Version)
	assert.True(t, c.DevMode)
	assert.True(t, c.UseMock)
	assert.Equal(t, 5*time.Second, c.RequestTimeout)
}

func TestFromEnv_YAMLFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("apiUrl: http://backend:9000\nlistenAddr: \":9090\"\nlogLevel: debug\n"), 0o600))
	t.Setenv("DASHBOARD_CONFIG", path)
	t.Setenv("LISTEN_ADDR", ":7070")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9000", c.APIURL)
	assert.Equal(t, "ws://backend:9000/ws", c.WSURL)
	assert.Equal(t, ":7070", c.ListenAddr)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestFromEnv_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DASHBOARD_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := FromEnv()
	assert.Error(t, err)
}

func TestDeriveWSURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws", false},
		{"https://api.example.com/base?x=1", "wss://api.example.com/ws", false},
		{"ftp://example.com", "", true},
	}
	for _, tt := range tests {
		got, err := DeriveWSURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
