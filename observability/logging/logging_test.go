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

func TestSetupWithOptionsEmitsStructuredKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOptions("claimd", "test", Options{Output: &buf, Level: "debug"})
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	logger.Debug("claim reserved", slog.String("address", "abc"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "claim reserved", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "claimd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupWithOptionsMirrorsToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "claimd.log")
	logger := SetupWithOptions("claimd", "", Options{Output: &buf, File: path, MaxSizeMB: 1})
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	logger.Info("started")
	logger.Debug("suppressed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"message":"started"`)
	require.NotContains(t, string(data), "suppressed")
	require.Equal(t, buf.String(), string(data))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("rpc_url", "https://rpc.example/?api-key=secret").Value.String())
	require.Equal(t, "claims", MaskField("component", "claims").Value.String())
	require.Equal(t, "", MaskField("rpc_url", "").Value.String())
	require.Contains(t, RedactionAllowlist(), "address")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
}
