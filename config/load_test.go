package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const sampleConfig = `
env: dev
engine:
  historyCapacity: 500
  sweepInterval: 2s
  retention: 1h
storage:
  path: /tmp/orders.db
feed:
  symbols: [BTCUSDT, ETHUSDT]
  readTimeout: 15s
execution:
  mode: paper
  latency: 20ms
metrics:
  addr: ":9102"
log:
  level: debug
assets:
  BTCUSDT:
    tickSize: "0.01"
    stepSize: "0.00001"
    minNotional: "5"
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "dev" || cfg.Engine.HistoryCapacity != 500 {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	if cfg.Engine.SweepInterval != 2*time.Second || cfg.Feed.ReadTimeout != 15*time.Second {
		t.Fatalf("durations not parsed: %+v", cfg.Engine)
	}
	if cfg.Execution.Latency != 20*time.Millisecond {
		t.Fatalf("execution latency = %s", cfg.Execution.Latency)
	}
	if len(cfg.Feed.Symbols) != 2 || cfg.Metrics.Addr != ":9102" {
		t.Fatalf("unexpected feed/metrics: %+v %+v", cfg.Feed, cfg.Metrics)
	}
	// 未出现的字段保留默认值
	if cfg.Alert.ThrottleInterval != time.Minute || cfg.Metrics.Monitor.Namespace == "" {
		t.Fatalf("defaults lost: %+v", cfg)
	}

	cons, err := cfg.Constraints()
	if err != nil {
		t.Fatalf("constraints: %v", err)
	}
	btc := cons["BTCUSDT"]
	if !btc.TickSize.Equal(decimal.RequireFromString("0.01")) || !btc.MinNotional.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected constraints: %s", btc)
	}
	if !btc.MaxQty.IsZero() {
		t.Fatalf("maxQty should default to unlimited, got %s", btc.MaxQty)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadBadYAML(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "env: [unclosed")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"empty env", func(c *AppConfig) { c.Env = "" }},
		{"negative history", func(c *AppConfig) { c.Engine.HistoryCapacity = -1 }},
		{"negative retention", func(c *AppConfig) { c.Engine.Retention = -time.Second }},
		{"unknown executor", func(c *AppConfig) { c.Execution.Mode = "live" }},
		{"unknown stream", func(c *AppConfig) { c.Feed.Stream = "depth" }},
		{"empty symbol", func(c *AppConfig) { c.Feed.Symbols = []string{""} }},
		{"bad level", func(c *AppConfig) { c.Log.Level = "verbose" }},
		{"bad decimal", func(c *AppConfig) { c.Assets = map[string]AssetConfig{"X": {TickSize: "abc"}} }},
		{"negative step", func(c *AppConfig) { c.Assets = map[string]AssetConfig{"X": {StepSize: "-1"}} }},
		{"min over max", func(c *AppConfig) { c.Assets = map[string]AssetConfig{"X": {MinQty: "5", MaxQty: "1"}} }},
	}
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := Validate(cfg)
			var inv ErrInvalid
			if !errors.As(err, &inv) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"COE_ENV":           "prod",
		"COE_STORAGE_PATH":  "/data/orders.db",
		"COE_METRICS_ADDR":  ":9200",
		"COE_LOG_LEVEL":     "warn",
		"COE_FEED_ENDPOINT": "wss://example.test",
	}
	cfg := Default()
	applyEnv(&cfg, func(k string) string { return env[k] })
	if cfg.Env != "prod" || cfg.Storage.Path != "/data/orders.db" || cfg.Metrics.Addr != ":9200" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Log.Level != "warn" || cfg.Feed.Endpoint != "wss://example.test" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("COE_ENV", "staging")
	cfg, err := LoadWithEnvOverrides(writeTempConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "staging" {
		t.Fatalf("env = %s", cfg.Env)
	}
}
