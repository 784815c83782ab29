package container

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"conditional-orders-go/config"
	"conditional-orders-go/engine"
	"conditional-orders-go/execution"
	"conditional-orders-go/feed"
	"conditional-orders-go/infrastructure/alert"
	"conditional-orders-go/infrastructure/logger"
	"conditional-orders-go/infrastructure/monitor"
	"conditional-orders-go/storage"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg        config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 持久化与执行
	store    *storage.SQLiteStore
	executor *execution.Paper

	// 核心服务
	engine   *engine.Engine
	sweeper  *engine.Sweeper
	feed     *feed.WSFeed
	reloader *config.HotReloader
	http     *httpServerComponent

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	c := NewWithConfig(cfg)
	c.configPath = configPath
	return c, nil
}

// NewWithConfig 使用已加载的配置创建容器（不启用热更新）
func NewWithConfig(cfg config.AppConfig) *Container {
	return &Container{
		cfg:       cfg,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildStorage(); err != nil {
		return fmt.Errorf("build storage failed: %w", err)
	}

	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built", zap.Strings("components", c.lifecycle.Names()))
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.logger = c.logger.WithFields(map[string]interface{}{"env": c.cfg.Env})

	c.monitor = monitor.New(c.cfg.Metrics.Monitor)
	c.alerts = alert.NewManager([]alert.Channel{
		alert.NewLogChannel("log", c.logger),
	}, c.cfg.Alert.ThrottleInterval)
	if c.cfg.Alert.Console {
		c.alerts.AddChannel(alert.NewConsoleChannel("console", os.Stderr))
	}

	c.logger.Info("infrastructure built", zap.Strings("alert_channels", c.alerts.GetChannels()))
	return nil
}

func (c *Container) buildStorage() error {
	if c.cfg.Storage.Path == "" {
		c.logger.Warn("storage.path empty, orders are kept in memory only")
		return nil
	}
	store, err := storage.NewSQLiteStore(c.cfg.Storage.Path)
	if err != nil {
		return err
	}
	c.store = store
	c.logger.Info("storage opened", zap.String("path", c.cfg.Storage.Path))
	return nil
}

func (c *Container) buildCoreServices() error {
	c.executor = execution.NewPaper(c.cfg.Execution.Latency)

	comps := engine.Components{
		Executor: c.executor,
		Logger:   c.logger,
		Monitor:  c.monitor,
		Alerts:   c.alerts,
	}
	if c.store != nil {
		comps.Persistence = c.store
	}
	eng, err := engine.New(c.cfg.Engine, comps)
	if err != nil {
		return err
	}
	c.engine = eng

	constraints, err := c.cfg.Constraints()
	if err != nil {
		return err
	}
	c.engine.SetConstraints(constraints)

	c.sweeper = engine.NewSweeper(c.engine, c.cfg.Engine.SweepInterval)
	if len(c.cfg.Feed.Symbols) > 0 {
		c.feed = feed.NewWSFeed(c.cfg.Feed, c.engine, c.logger, c.monitor)
	}
	if c.configPath != "" && c.cfg.HotReload.Enabled {
		c.reloader = config.NewHotReloader(c.configPath, c.cfg.HotReload, c.applyReload, c.logger)
	}

	c.logger.Info("core services built")
	return nil
}

// applyReload 热更新只作用于资产约束，其余字段需要重启。
func (c *Container) applyReload(cfg config.AppConfig) error {
	constraints, err := cfg.Constraints()
	if err != nil {
		return err
	}
	c.engine.SetConstraints(constraints)
	c.logger.Info("asset constraints reloaded", zap.Int("assets", len(constraints)))
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", c.monitor.Handler())
		mux.HandleFunc("/healthz", c.serveHealth)
		c.http = &httpServerComponent{
			name:    "metrics_server",
			handler: mux,
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
		}
		c.lifecycle.Register(c.http.name, c.http)
	}
	c.lifecycle.Register("sweeper", c.sweeper)
	if c.reloader != nil {
		c.lifecycle.Register("hot_reload", c.reloader)
	}
	// feed 最后启动：此时已恢复挂单，价格进来即可评估
	if c.feed != nil {
		c.lifecycle.Register("feed", c.feed)
	}
}

func (c *Container) serveHealth(w http.ResponseWriter, _ *http.Request) {
	if err := c.HealthCheck(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	fmt.Fprintln(w, "ok")
}

// Start 恢复未完成订单并启动所有组件
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if c.store != nil {
		n, err := c.engine.Restore(ctx)
		if err != nil {
			return fmt.Errorf("restore orders failed: %w", err)
		}
		c.logger.Info("pending orders restored", zap.Int("count", n))
	}

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// Stop 逆序停止组件后关闭存储与日志
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	if c.store != nil {
		err = multierr.Append(err, c.store.Close())
	}
	c.logger.Info("container stopped")
	// stdout sync 在部分平台上返回 EINVAL，不计入错误
	_ = c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	if c.store != nil {
		if err := c.store.Ping(context.Background()); err != nil {
			return fmt.Errorf("storage unhealthy: %w", err)
		}
	}
	return c.lifecycle.CheckHealth()
}

// Reload 手动触发配置重载（SIGHUP）
func (c *Container) Reload() error {
	if c.reloader == nil {
		return fmt.Errorf("hot reload disabled")
	}
	return c.reloader.Reload()
}

func (c *Container) Engine() *engine.Engine { return c.engine }

func (c *Container) Executor() *execution.Paper { return c.executor }

func (c *Container) Monitor() *monitor.Monitor { return c.monitor }

func (c *Container) Config() config.AppConfig { return c.cfg }

// MetricsAddr 指标服务实际监听地址，未启用时为空
func (c *Container) MetricsAddr() string {
	if c.http == nil {
		return ""
	}
	return c.http.Addr()
}
