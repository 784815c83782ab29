package config

import (
	"fmt"

	"github.com/shopspring/decimal"

	"conditional-orders-go/order"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

func invalidf(format string, args ...interface{}) error {
	return ErrInvalid(fmt.Sprintf(format, args...))
}

var (
	validLevels  = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	validStreams = map[string]bool{"": true, "miniTicker": true, "aggTrade": true, "trade": true}
)

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if cfg.Engine.HistoryCapacity < 0 {
		return ErrInvalid("engine.historyCapacity must be >= 0")
	}
	if cfg.Engine.SweepInterval < 0 || cfg.Engine.Retention < 0 {
		return ErrInvalid("engine.sweepInterval/retention must be >= 0")
	}
	if cfg.Execution.Mode != "paper" {
		return invalidf("execution.mode %q not supported", cfg.Execution.Mode)
	}
	if cfg.Execution.Latency < 0 {
		return ErrInvalid("execution.latency must be >= 0")
	}
	if !validStreams[cfg.Feed.Stream] {
		return invalidf("feed.stream %q not supported", cfg.Feed.Stream)
	}
	if cfg.Feed.ReadTimeout < 0 || cfg.Feed.MaxBackoff < 0 || cfg.Feed.TickDeadline < 0 {
		return ErrInvalid("feed timeouts must be >= 0")
	}
	for _, s := range cfg.Feed.Symbols {
		if s == "" {
			return ErrInvalid("feed.symbols contains empty symbol")
		}
	}
	if !validLevels[cfg.Log.Level] {
		return invalidf("log.level %q invalid", cfg.Log.Level)
	}
	if cfg.Alert.ThrottleInterval < 0 {
		return ErrInvalid("alert.throttleInterval must be >= 0")
	}
	if cfg.HotReload.Cooldown < 0 {
		return ErrInvalid("hotReload.cooldown must be >= 0")
	}
	_, err := cfg.Constraints()
	return err
}

// Constraints 把 assets 段转换为引擎使用的精度约束。
func (cfg AppConfig) Constraints() (map[string]order.Constraints, error) {
	out := make(map[string]order.Constraints, len(cfg.Assets))
	for asset, ac := range cfg.Assets {
		c, err := ac.toConstraints()
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", asset, err)
		}
		out[asset] = c
	}
	return out, nil
}

func (ac AssetConfig) toConstraints() (order.Constraints, error) {
	var (
		c   order.Constraints
		err error
	)
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"tickSize", ac.TickSize, &c.TickSize},
		{"stepSize", ac.StepSize, &c.StepSize},
		{"minQty", ac.MinQty, &c.MinQty},
		{"maxQty", ac.MaxQty, &c.MaxQty},
		{"minNotional", ac.MinNotional, &c.MinNotional},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return c, invalidf("%s %q is not a decimal", f.name, f.raw)
		}
		if f.dst.IsNegative() {
			return c, invalidf("%s must be >= 0", f.name)
		}
	}
	if c.MaxQty.IsPositive() && c.MinQty.GreaterThan(c.MaxQty) {
		return c, invalidf("minQty %s > maxQty %s", c.MinQty, c.MaxQty)
	}
	return c, nil
}
