package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
spotify:
  client_id: "test-client-id"
  client_secret: "test-client-secret"
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "http://localhost:8080", cfg.Server.PublicURL)
	assert.Equal(t, "http://localhost:5501", cfg.Backend.BaseURL)
	assert.Equal(t, "US", cfg.Spotify.Market)
	assert.Equal(t, 2, cfg.Playback.PrefetchDepth)
	assert.Equal(t, "lookup", cfg.Resolver.Type)
	assert.Equal(t, 10*time.Second, cfg.BackendTimeout())
	assert.Equal(t, 20*time.Second, cfg.ResolveTimeout())
	assert.Equal(t, 30*time.Second, cfg.WarmTimeout())
	assert.False(t, cfg.HasUserToken())
}

func TestParse_Overrides(t *testing.T) {
	yml := `
server:
  addr: ":9090"
  public_url: "https://player.example.com/"
backend:
  base_url: "http://backend:5501"
  timeout_ms: 2500
spotify:
  client_id: "id"
  client_secret: "secret"
  refresh_token: "refresh"
  market: "JP"
playback:
  prefetch_depth: 3
resolver:
  type: stream
  settings:
    probe: true
`
	cfg, err := Parse([]byte(yml))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "https://player.example.com", cfg.Server.PublicURL, "trailing slash is trimmed")
	assert.Equal(t, 2500*time.Millisecond, cfg.BackendTimeout())
	assert.Equal(t, 3, cfg.Playback.PrefetchDepth)
	assert.Equal(t, "stream", cfg.Resolver.Type)
	assert.Equal(t, true, cfg.Resolver.Settings["probe"])
	assert.True(t, cfg.HasUserToken())
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name   string
		yml    string
		errMsg string
	}{
		{
			name:   "missing client id",
			yml:    "spotify:\n  client_secret: s\n",
			errMsg: "ClientID",
		},
		{
			name:   "missing client secret",
			yml:    "spotify:\n  client_id: c\n",
			errMsg: "ClientSecret",
		},
		{
			name:   "invalid market length",
			yml:    minimalYAML + "  market: JAPAN\n",
			errMsg: "Market",
		},
		{
			name:   "unknown resolver type",
			yml:    minimalYAML + "resolver:\n  type: magic\n",
			errMsg: "Type",
		},
		{
			name:   "prefetch depth too large",
			yml:    minimalYAML + "playback:\n  prefetch_depth: 50\n",
			errMsg: "PrefetchDepth",
		},
		{
			name:   "backend url not a url",
			yml:    minimalYAML + "backend:\n  base_url: not-a-url\n",
			errMsg: "BaseURL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SPOTIFY_CLIENT_ID", "")
			t.Setenv("SPOTIFY_CLIENT_SECRET", "")

			_, err := Parse([]byte(tt.yml))
			require.Error(t, err, "expected validation to fail")
			assert.Contains(t, err.Error(), tt.errMsg,
				"error message should mention the problematic field")
		})
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("SPOTIFY_CLIENT_ID", "env-id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "env-secret")
	t.Setenv("AUDIO_BACKEND_URL", "http://env-backend:5501")
	t.Setenv("PLAYER_TOKEN", "env-token")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-id", cfg.Spotify.ClientID)
	assert.Equal(t, "env-secret", cfg.Spotify.ClientSecret)
	assert.Equal(t, "http://env-backend:5501", cfg.Backend.BaseURL)
	assert.Equal(t, "env-token", cfg.Server.Token)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-client-id", cfg.Spotify.ClientID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
