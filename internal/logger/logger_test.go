package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	_, err := Init(&buf, "debug", "json")
	require.NoError(t, err)

	For("ledger").Debug("trade executed", slog.String("asset", "AAPL"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "trade executed", entry["msg"])
	assert.Equal(t, "tradesim", entry["service"])
	assert.Equal(t, "ledger", entry["component"])
	assert.Equal(t, "AAPL", entry["asset"])
}

func TestInit_LevelFilters(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	log, err := Init(&buf, "warn", "text")
	require.NoError(t, err)

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestInit_Errors(t *testing.T) {
	_, err := Init(nil, "loud", "text")
	assert.ErrorContains(t, err, "unknown log level")

	_, err = Init(nil, "info", "xml")
	assert.ErrorContains(t, err, "unknown log format")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}
