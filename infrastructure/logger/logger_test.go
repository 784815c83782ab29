package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogOrderAndTick(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core)).WithFields(map[string]interface{}{"env": "test"})

	l.LogOrder("order_filled", "o-1", map[string]interface{}{"asset": "BTCUSDT"})
	l.LogTick("BTCUSDT", map[string]interface{}{"fired": 2})
	l.LogError(errors.New("boom"), nil)

	entries := logs.All()
	require.Len(t, entries, 3)

	order := entries[0].ContextMap()
	assert.Equal(t, "order_event", entries[0].Message)
	assert.Equal(t, "order_filled", order["event"])
	assert.Equal(t, "o-1", order["order_id"])
	assert.Equal(t, "test", order["env"])

	tick := entries[1]
	assert.Equal(t, zapcore.DebugLevel, tick.Level)
	assert.Equal(t, "tick_evaluated", tick.ContextMap()["event"])

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestNewWithFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:      "info",
		Outputs:    []string{"file"},
		OutputFile: filepath.Join(dir, "engine.log"),
		ErrorFile:  filepath.Join(dir, "errors.log"),
	}
	l, err := New(cfg)
	require.NoError(t, err)
	l.Info("started")
	l.LogError(errors.New("disk full"), map[string]interface{}{"op": "put"})
	require.NoError(t, l.Close())

	all, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(all), "\n"))

	errs, err := os.ReadFile(cfg.ErrorFile)
	require.NoError(t, err)
	assert.Contains(t, string(errs), "disk full")
	assert.NotContains(t, string(errs), "started")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}
