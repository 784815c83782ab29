package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	tomb "gopkg.in/tomb.v2"

	"conditional-orders-go/engine"
	"conditional-orders-go/infrastructure/logger"
	"conditional-orders-go/infrastructure/monitor"
)

// DefaultEndpoint Binance 现货 combined stream 地址
const DefaultEndpoint = "wss://stream.binance.com:9443"

// Sink 行情消费方，通常是 *engine.Engine。
type Sink interface {
	Tick(ctx context.Context, asset string, price decimal.Decimal) (engine.TickResult, error)
}

// Config 行情配置
type Config struct {
	Endpoint     string        `yaml:"endpoint"`
	Symbols      []string      `yaml:"symbols"`
	Stream       string        `yaml:"stream"` // miniTicker / aggTrade / trade
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	MaxBackoff   time.Duration `yaml:"maxBackoff"`
	TickDeadline time.Duration `yaml:"tickDeadline"` // 0 表示不限制单次 tick 执行时间
}

// WSFeed 订阅 combined stream，按资产分发到独立 worker。
// 同一资产的价格在 worker 忙时合并为最新一笔，不同资产互不阻塞。
type WSFeed struct {
	cfg    Config
	sink   Sink
	dialer *websocket.Dialer
	log    *logger.Logger
	mon    *monitor.Monitor

	mu      sync.Mutex
	t       *tomb.Tomb
	boxes   map[string]*mailbox
	started bool
	lastMsg time.Time
}

// mailbox 单槽邮箱：只保留最新价格
type mailbox struct {
	mu     sync.Mutex
	price  decimal.Decimal
	has    bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) put(p decimal.Decimal) {
	m.mu.Lock()
	m.price, m.has = p, true
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.price, m.has
	m.has = false
	return p, ok
}

// NewWSFeed 创建行情订阅
func NewWSFeed(cfg Config, sink Sink, log *logger.Logger, mon *monitor.Monitor) *WSFeed {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Stream == "" {
		cfg.Stream = "miniTicker"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &WSFeed{
		cfg:    cfg,
		sink:   sink,
		dialer: websocket.DefaultDialer,
		log:    log,
		mon:    mon,
		boxes:  make(map[string]*mailbox),
	}
}

// StreamURL 构建 combined stream 地址
func (f *WSFeed) StreamURL() (string, error) {
	if len(f.cfg.Symbols) == 0 {
		return "", errors.New("no symbols subscribed")
	}
	base, err := url.Parse(f.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	streams := make([]string, 0, len(f.cfg.Symbols))
	for _, s := range f.cfg.Symbols {
		streams = append(streams, strings.ToLower(strings.TrimSpace(s))+"@"+f.cfg.Stream)
	}
	base.Path = "/stream"
	q := base.Query()
	q.Set("streams", strings.Join(streams, "/"))
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// Start 实现 container.Lifecycle
func (f *WSFeed) Start(ctx context.Context) error {
	u, err := f.StreamURL()
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}
	t, tctx := tomb.WithContext(ctx)
	f.t = t
	f.started = true
	// 上一轮的 worker 随旧 tomb 退出，邮箱需要重建
	f.boxes = make(map[string]*mailbox)
	t.Go(func() error { return f.readLoop(tctx, t, u) })
	return nil
}

// Stop 停止读取与所有 worker
func (f *WSFeed) Stop() error {
	f.mu.Lock()
	t := f.t
	f.t = nil
	f.started = false
	f.mu.Unlock()
	if t == nil {
		return nil
	}
	t.Kill(nil)
	return t.Wait()
}

// Health 超过两个读超时周期没有收到消息视为不健康
func (f *WSFeed) Health() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return errors.New("feed not started")
	}
	if !f.lastMsg.IsZero() && time.Since(f.lastMsg) > 2*f.cfg.ReadTimeout {
		return fmt.Errorf("feed stale since %s", f.lastMsg.Format(time.RFC3339))
	}
	return nil
}

// readLoop 连接、读取，断线后指数退避重连，直到 tomb 结束。
func (f *WSFeed) readLoop(ctx context.Context, t *tomb.Tomb, u string) error {
	backoff := time.Second
	for {
		err := f.session(ctx, t, u)
		select {
		case <-t.Dying():
			return nil
		default:
		}
		f.mon.RecordFeedReconnect()
		f.log.Warn("feed disconnected", zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-t.Dying():
			return nil
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > f.cfg.MaxBackoff {
			backoff = f.cfg.MaxBackoff
		}
	}
}

func (f *WSFeed) session(ctx context.Context, t *tomb.Tomb, u string) error {
	conn, _, err := f.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	f.log.Info("feed connected", zap.String("url", u))

	// tomb 结束时关闭连接以打断阻塞的读
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-t.Dying():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.mu.Lock()
		f.lastMsg = time.Now()
		f.mu.Unlock()

		symbol, price, err := ParseTick(message)
		if err != nil {
			if !errors.Is(err, ErrNoPrice) {
				f.log.Debug("feed parse failed", zap.Error(err))
			}
			continue
		}
		f.dispatch(ctx, t, symbol, price)
	}
}

// dispatch 在读循环中调用，按需启动资产 worker
func (f *WSFeed) dispatch(ctx context.Context, t *tomb.Tomb, asset string, price decimal.Decimal) {
	f.mu.Lock()
	box, ok := f.boxes[asset]
	if !ok {
		box = newMailbox()
		f.boxes[asset] = box
		t.Go(func() error { return f.worker(ctx, t, asset, box) })
	}
	f.mu.Unlock()
	box.put(price)
}

func (f *WSFeed) worker(ctx context.Context, t *tomb.Tomb, asset string, box *mailbox) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case <-box.signal:
		}
		price, ok := box.take()
		if !ok {
			continue
		}
		tickCtx := ctx
		var cancel context.CancelFunc = func() {}
		if f.cfg.TickDeadline > 0 {
			tickCtx, cancel = context.WithTimeout(ctx, f.cfg.TickDeadline)
		}
		res, err := f.sink.Tick(tickCtx, asset, price)
		cancel()
		if err != nil {
			f.log.LogError(err, map[string]interface{}{
				"asset": asset,
				"price": price.String(),
				"fired": res.Fired(),
			})
		}
	}
}
