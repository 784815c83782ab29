package config

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedReloads struct {
	mu   sync.Mutex
	envs []string
}

func (c *capturedReloads) handle(cfg AppConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, cfg.Env)
	return nil
}

func (c *capturedReloads) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.envs) == 0 {
		return ""
	}
	return c.envs[len(c.envs)-1]
}

func TestHotReloaderPicksUpWrites(t *testing.T) {
	path := writeTempConfig(t, "env: dev\n")
	got := &capturedReloads{}
	h := NewHotReloader(path, HotReloadConfig{Enabled: true}, got.handle, nil)
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("env: prod\n"), 0o644))
	require.Eventually(t, func() bool { return got.last() == "prod" }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, h.Health())
	assert.GreaterOrEqual(t, h.Reloads(), 1)
}

func TestHotReloaderRejectsInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, "env: dev\n")
	got := &capturedReloads{}
	h := NewHotReloader(path, HotReloadConfig{Enabled: true}, got.handle, nil)
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("env: dev\nlog:\n  level: loud\n"), 0o644))
	require.Eventually(t, func() bool { return h.Health() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorAs(t, h.Health(), new(ErrInvalid))
}

func TestHotReloaderCooldown(t *testing.T) {
	path := writeTempConfig(t, "env: dev\n")
	got := &capturedReloads{}
	h := NewHotReloader(path, HotReloadConfig{Enabled: true, Cooldown: time.Hour}, got.handle, nil)

	require.NoError(t, h.reload(false))
	assert.ErrorIs(t, h.reload(false), errCoolingDown)
	// 手动重载不受冷却限制
	require.NoError(t, h.Reload())
	assert.Equal(t, 2, h.Reloads())
}

func TestHotReloaderHandlerError(t *testing.T) {
	path := writeTempConfig(t, "env: dev\n")
	boom := errors.New("apply failed")
	h := NewHotReloader(path, HotReloadConfig{}, func(AppConfig) error { return boom }, nil)

	assert.ErrorIs(t, h.Reload(), boom)
	assert.ErrorIs(t, h.Health(), boom)
	assert.Zero(t, h.Reloads())
}

func TestHotReloaderDisabled(t *testing.T) {
	h := NewHotReloader("/nonexistent/cfg.yaml", HotReloadConfig{}, nil, nil)
	require.NoError(t, h.Start(context.Background()))
	assert.NoError(t, h.Stop())
}
