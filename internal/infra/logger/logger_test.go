package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{in: "debug", want: zerolog.DebugLevel},
		{in: "INFO", want: zerolog.InfoLevel},
		{in: "", want: zerolog.InfoLevel},
		{in: "warn", want: zerolog.WarnLevel},
		{in: "warning", want: zerolog.WarnLevel},
		{in: "error", want: zerolog.ErrorLevel},
		{in: "loud", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.InfoLevel, false)

	l.Debug().Msg("hidden")
	l.Info().Msgf("playback: track changed: track_id=%s", "t1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "playback: track changed: track_id=t1", entry["message"])
	assert.NotContains(t, entry, "caller")
}

func TestNew_DebugAddsCaller(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.DebugLevel, false)
	l.Debug().Msg("x")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry, "caller")
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, Init(Config{Output: "file", File: path, Level: "info"}))
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	_, err := os.Stat(path)
	assert.NoError(t, err)

	err = Init(Config{Output: "file", File: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}

func TestShortCaller(t *testing.T) {
	file := filepath.Join("root", "internal", "playback", "session.go")
	assert.Equal(t, filepath.Join("playback", "session.go")+":12", shortCaller(0, file, 12))
	assert.Equal(t, "main.go:3", shortCaller(0, "main.go", 3))
}
