package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"conditional-orders-go/engine"
	"conditional-orders-go/feed"
	"conditional-orders-go/infrastructure/logger"
	"conditional-orders-go/infrastructure/monitor"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string                 `yaml:"env"`
	Engine    engine.Config          `yaml:"engine"`
	Storage   StorageConfig          `yaml:"storage"`
	Feed      feed.Config            `yaml:"feed"`
	Execution ExecutionConfig        `yaml:"execution"`
	Metrics   MetricsConfig          `yaml:"metrics"`
	Log       logger.Config          `yaml:"log"`
	Alert     AlertConfig            `yaml:"alert"`
	HotReload HotReloadConfig        `yaml:"hotReload"`
	Assets    map[string]AssetConfig `yaml:"assets"`
}

// StorageConfig 持久化配置，Path 为空时只保存在内存中。
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ExecutionConfig 目前只有 paper 执行器。
type ExecutionConfig struct {
	Mode    string        `yaml:"mode"`
	Latency time.Duration `yaml:"latency"`
}

type MetricsConfig struct {
	Addr    string         `yaml:"addr"` // 为空则不暴露 /metrics
	Monitor monitor.Config `yaml:",inline"`
}

type AlertConfig struct {
	ThrottleInterval time.Duration `yaml:"throttleInterval"`
	Console          bool          `yaml:"console"` // 额外输出到 stderr
}

// AssetConfig 资产精度与名义限制（来自交易所 exchangeInfo），以十进制字符串书写。
type AssetConfig struct {
	TickSize    string `yaml:"tickSize"`
	StepSize    string `yaml:"stepSize"`
	MinQty      string `yaml:"minQty"`
	MaxQty      string `yaml:"maxQty"`
	MinNotional string `yaml:"minNotional"`
}

// Default 返回填好默认值的配置，YAML 中出现的字段会覆盖它们。
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Engine: engine.Config{
			HistoryCapacity: 1000,
			SweepInterval:   time.Second,
			Retention:       24 * time.Hour,
		},
		Execution: ExecutionConfig{Mode: "paper"},
		Metrics:   MetricsConfig{Monitor: monitor.DefaultConfig()},
		Log:       logger.DefaultConfig(),
		Alert:     AlertConfig{ThrottleInterval: time.Minute},
		HotReload: HotReloadConfig{
			Enabled:  true,
			Cooldown: 2 * time.Second,
		},
	}
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	applyEnv(&cfg, os.Getenv)
	return cfg, Validate(cfg)
}

func applyEnv(cfg *AppConfig, getenv func(string) string) {
	if v := getenv("COE_ENV"); v != "" {
		cfg.Env = v
	}
	if v := getenv("COE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := getenv("COE_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := getenv("COE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("COE_FEED_ENDPOINT"); v != "" {
		cfg.Feed.Endpoint = v
	}
}
