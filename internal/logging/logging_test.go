package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.err {
			require.Error(t, err, tt.in)
			continue
		}

		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestNew_TextFiltersLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "warn"}, &buf)
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()

	logger.Info("hidden")
	logger.Warn("shown", "archive", "v.rpf")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "msg=shown")
	require.Contains(t, out, "archive=v.rpf")
}

func TestNew_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, _, err := New(Config{Format: "json", Level: "debug"}, &buf)
	require.NoError(t, err)

	logger.Debug("open", "session", "abc")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "open", rec["msg"])
	require.Equal(t, "abc", rec["session"])
	require.Equal(t, "DEBUG", rec["level"])
}

func TestNew_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "rpf.log")
	logger, closer, err := New(Config{File: path, MaxSizeMB: 1}, nil)
	require.NoError(t, err)

	logger.Info("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "to file")
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := New(Config{Format: "xml"}, nil)
	require.Error(t, err)

	_, _, err = New(Config{Level: "loud"}, nil)
	require.Error(t, err)
}
