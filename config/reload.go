package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"conditional-orders-go/infrastructure/logger"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Cooldown time.Duration `yaml:"cooldown"` // 冷却时间，避免编辑器连续写入触发多次重载
}

// ReloadHandler 接收校验通过的新配置
type ReloadHandler func(AppConfig) error

// HotReloader 配置热更新器
type HotReloader struct {
	cfg     HotReloadConfig
	path    string
	handler ReloadHandler
	log     *logger.Logger

	mu         sync.Mutex
	watcher    *fsnotify.Watcher
	lastReload time.Time
	reloads    int
	lastErr    error
	stopChan   chan struct{}
	doneChan   chan struct{}
}

// NewHotReloader 创建热更新器
func NewHotReloader(path string, cfg HotReloadConfig, handler ReloadHandler, log *logger.Logger) *HotReloader {
	if log == nil {
		log = logger.NewNop()
	}
	return &HotReloader{
		cfg:     cfg,
		path:    path,
		handler: handler,
		log:     log,
	}
}

// Start 启动热更新监听。监听所在目录，兼容先写临时文件再 rename 的编辑器。
func (h *HotReloader) Start(ctx context.Context) error {
	if !h.cfg.Enabled {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config dir: %w", err)
	}
	h.watcher = watcher
	h.stopChan = make(chan struct{})
	h.doneChan = make(chan struct{})
	go h.watch(ctx, watcher, h.stopChan, h.doneChan)
	return nil
}

// Stop 停止热更新
func (h *HotReloader) Stop() error {
	h.mu.Lock()
	watcher, stop, done := h.watcher, h.stopChan, h.doneChan
	h.watcher = nil
	h.mu.Unlock()
	if watcher == nil {
		return nil
	}
	close(stop)
	<-done
	return watcher.Close()
}

// Health 最近一次重载失败时返回该错误
func (h *HotReloader) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastErr != nil {
		return fmt.Errorf("last reload failed: %w", h.lastErr)
	}
	return nil
}

func (h *HotReloader) watch(ctx context.Context, watcher *fsnotify.Watcher, stop, done chan struct{}) {
	defer close(done)
	target := filepath.Clean(h.path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			// 只处理写入和创建事件
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := h.reload(false); err != nil && !errors.Is(err, errCoolingDown) {
					h.log.Warn("config reload rejected", zap.String("path", h.path), zap.Error(err))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			// 记录错误但继续监听
			h.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

// Reload 立即重新加载（例如收到 SIGHUP），不受冷却时间限制。
func (h *HotReloader) Reload() error {
	return h.reload(true)
}

var errCoolingDown = errors.New("reload cooling down")

func (h *HotReloader) reload(force bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !force && !h.lastReload.IsZero() && time.Since(h.lastReload) < h.cfg.Cooldown {
		return errCoolingDown
	}
	cfg, err := LoadWithEnvOverrides(h.path)
	if err == nil && h.handler != nil {
		err = h.handler(cfg)
	}
	h.lastErr = err
	if err != nil {
		return err
	}
	h.lastReload = time.Now()
	h.reloads++
	h.log.Info("config reloaded", zap.String("path", h.path), zap.Int("reloads", h.reloads))
	return nil
}

// Reloads 成功重载次数
func (h *HotReloader) Reloads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reloads
}
