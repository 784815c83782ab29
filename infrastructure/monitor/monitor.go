package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor 条件单引擎的 Prometheus 指标。
// 所有方法对 nil 接收者安全，未启用监控时可直接传 nil。
type Monitor struct {
	registry *prometheus.Registry

	// 订单指标
	ordersCreated  *prometheus.CounterVec
	ordersTerminal *prometheus.CounterVec
	ordersActive   prometheus.Gauge
	staleFills     prometheus.Counter

	// 评估指标
	ticks          *prometheus.CounterVec
	ticksRejected  prometheus.Counter
	ordersFired    *prometheus.CounterVec
	execLatency    prometheus.Histogram
	tickEvaluation prometheus.Histogram

	// 行情 / 存储
	feedReconnects prometheus.Counter
	storeErrors    *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "coe",
		Subsystem: "engine",
	}
}

// New 创建新的Monitor实例，使用独立 registry。
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,

		ordersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_created_total",
			Help:      "创建的条件单数量（按类型）",
		}, []string{"kind"}),
		ordersTerminal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_terminal_total",
			Help:      "进入终态的条件单数量（按状态）",
		}, []string{"status"}),
		ordersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_active",
			Help:      "当前 pending 条件单数量",
		}),
		staleFills: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stale_fills_total",
			Help:      "执行完成时订单已不再 pending 的次数",
		}),

		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ticks_total",
			Help:      "处理的价格 tick 数（按资产）",
		}, []string{"asset"}),
		ticksRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ticks_rejected_total",
			Help:      "非法 tick（价格 <= 0 或资产为空）",
		}),
		ordersFired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_fired_total",
			Help:      "触发执行的条件单数量（按触发原因）",
		}, []string{"reason"}),
		execLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "execution_latency_seconds",
			Help:      "执行回调耗时分布（秒）",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		tickEvaluation: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tick_duration_seconds",
			Help:      "单个 tick 从评估到执行结束的耗时（秒）",
			Buckets:   prometheus.DefBuckets,
		}),

		feedReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "feed_reconnects_total",
			Help:      "行情 WebSocket 重连次数",
		}),
		storeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "store_errors_total",
			Help:      "持久化失败次数（按操作）",
		}, []string{"op"}),
	}
}

// 订单相关方法
func (m *Monitor) RecordOrderCreated(kind string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(kind).Inc()
	m.ordersActive.Inc()
}

func (m *Monitor) RecordOrderTerminal(status string) {
	if m == nil {
		return
	}
	m.ordersTerminal.WithLabelValues(status).Inc()
	m.ordersActive.Dec()
}

// SetActive 恢复后直接设置 pending 数量
func (m *Monitor) SetActive(n int) {
	if m == nil {
		return
	}
	m.ordersActive.Set(float64(n))
}

func (m *Monitor) RecordStaleFill() {
	if m == nil {
		return
	}
	m.staleFills.Inc()
}

// 评估相关方法
func (m *Monitor) RecordTick(asset string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(asset).Inc()
}

func (m *Monitor) RecordTickRejected() {
	if m == nil {
		return
	}
	m.ticksRejected.Inc()
}

func (m *Monitor) RecordFired(reason string) {
	if m == nil {
		return
	}
	m.ordersFired.WithLabelValues(reason).Inc()
}

func (m *Monitor) RecordExecutionLatency(seconds float64) {
	if m == nil {
		return
	}
	m.execLatency.Observe(seconds)
}

func (m *Monitor) RecordTickDuration(seconds float64) {
	if m == nil {
		return
	}
	m.tickEvaluation.Observe(seconds)
}

// 系统相关方法
func (m *Monitor) RecordFeedReconnect() {
	if m == nil {
		return
	}
	m.feedReconnects.Inc()
}

func (m *Monitor) RecordStoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
