package container

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conditional-orders-go/config"
	"conditional-orders-go/order"
)

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "orders.db")
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Log.Level = "error"
	cfg.Engine.SweepInterval = 0
	cfg.Assets = map[string]config.AssetConfig{"BTCUSDT": {TickSize: "0.01"}}
	return cfg
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestContainerEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	c := NewWithConfig(cfg)
	require.NoError(t, c.Build())
	require.NoError(t, c.Start(context.Background()))

	eng := c.Engine()
	// 约束来自 assets 配置
	_, err := eng.CreateOrder("alice", order.LimitConfig{
		Side: order.SideBuy, Asset: "BTCUSDT", Amount: decimal.NewFromInt(1),
		LimitPrice: decimal.RequireFromString("100.005"),
	})
	assert.ErrorIs(t, err, order.ErrInvalidOrderConfig)

	filled, err := eng.CreateOrder("alice", order.LimitConfig{
		Side: order.SideBuy, Asset: "BTCUSDT", Amount: decimal.NewFromInt(1),
		LimitPrice: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	resting, err := eng.CreateOrder("bob", order.LimitConfig{
		Side: order.SideBuy, Asset: "BTCUSDT", Amount: decimal.NewFromInt(1),
		LimitPrice: decimal.NewFromInt(90),
	})
	require.NoError(t, err)

	res, err := eng.Tick(context.Background(), "BTCUSDT", decimal.NewFromInt(99))
	require.NoError(t, err)
	require.Len(t, res.Filled(), 1)
	assert.Len(t, c.Executor().Fills(), 1)

	got, _ := eng.GetOrder("alice", filled.ID)
	assert.Equal(t, order.StatusFilled, got.Status)

	code, body := get(t, "http://"+c.MetricsAddr()+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "coe_engine_orders_created_total")

	code, body = get(t, "http://"+c.MetricsAddr()+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "ok")
	require.NoError(t, c.Stop())

	// 重启后 pending 订单从 SQLite 恢复
	c2 := NewWithConfig(cfg)
	require.NoError(t, c2.Build())
	require.NoError(t, c2.Start(context.Background()))
	defer c2.Stop()

	active := c2.Engine().ListActive("bob", "")
	require.Len(t, active, 1)
	assert.Equal(t, resting.ID, active[0].ID)
	_, ok := c2.Engine().GetOrder("alice", filled.ID)
	assert.False(t, ok)
}

func TestContainerWithoutStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Path = ""
	cfg.Metrics.Addr = ""
	c := NewWithConfig(cfg)
	require.NoError(t, c.Build())
	require.NoError(t, c.Start(context.Background()))
	assert.Empty(t, c.MetricsAddr())
	assert.NoError(t, c.HealthCheck())
	assert.Error(t, c.Reload())
	require.NoError(t, c.Stop())
}

func TestContainerAlertChannels(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Path = ""
	cfg.Metrics.Addr = ""
	cfg.Alert.Console = true
	c := NewWithConfig(cfg)
	require.NoError(t, c.Build())
	assert.Equal(t, []string{"log", "console"}, c.alerts.GetChannels())
	require.NoError(t, c.Stop())
}
