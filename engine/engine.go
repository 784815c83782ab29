package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"conditional-orders-go/history"
	"conditional-orders-go/infrastructure/alert"
	"conditional-orders-go/infrastructure/logger"
	"conditional-orders-go/infrastructure/monitor"
	"conditional-orders-go/monitor/logschema"
	"conditional-orders-go/order"
)

// Config 引擎配置
type Config struct {
	HistoryCapacity int           `yaml:"historyCapacity"`
	SweepInterval   time.Duration `yaml:"sweepInterval"`
	Retention       time.Duration `yaml:"retention"`
}

// Components 引擎依赖。除 Executor 外都可为空。
type Components struct {
	Executor    Executor
	Repository  order.OrderRepository
	Persistence Persistence
	Logger      *logger.Logger
	Monitor     *monitor.Monitor
	Alerts      *alert.Manager
	Clock       Clock
}

// Engine 条件单引擎：owner API + tick 入口。
// 同一资产的 tick 串行（tickMu），评估阶段与该资产上的撤单/改单互斥（evalMu）；
// 执行回调在 evalMu 之外运行，状态迁移以仓储 CAS 为准。
type Engine struct {
	cfg     Config
	orders  *order.Manager
	tracker *order.TrailingTracker
	history *history.Log

	exec   Executor
	store  Persistence
	log    *logger.Logger
	mon    *monitor.Monitor
	alerts *alert.Manager
	clock  Clock

	locksMu sync.Mutex
	locks   map[string]*assetLocks
}

type assetLocks struct {
	tick sync.Mutex
	eval sync.Mutex
}

// New 创建引擎
func New(cfg Config, comps Components) (*Engine, error) {
	if comps.Executor == nil {
		return nil, ErrNoExecutor
	}
	if comps.Logger == nil {
		comps.Logger = logger.NewNop()
	}
	if comps.Clock == nil {
		comps.Clock = SystemClock
	}
	orders := order.NewManager(comps.Repository)
	orders.SetClock(comps.Clock.Now)

	return &Engine{
		cfg:     cfg,
		orders:  orders,
		tracker: order.NewTrailingTracker(),
		history: history.NewLog(cfg.HistoryCapacity),
		exec:    comps.Executor,
		store:   comps.Persistence,
		log:     comps.Logger,
		mon:     comps.Monitor,
		alerts:  comps.Alerts,
		clock:   comps.Clock,
		locks:   make(map[string]*assetLocks),
	}, nil
}

func (e *Engine) assetLock(asset string) *assetLocks {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[asset]
	if !ok {
		l = &assetLocks{}
		e.locks[asset] = l
	}
	return l
}

// CreateOrder 创建限价单或止损/止盈单（也接受追踪止损配置）。
func (e *Engine) CreateOrder(ownerID string, cfg order.Config) (order.Order, error) {
	o, err := e.orders.Create(ownerID, cfg)
	if err != nil {
		return order.Order{}, err
	}
	e.onCreated(o)
	return o, nil
}

// CreateTrailingStop 创建追踪止损卖单
func (e *Engine) CreateTrailingStop(ownerID string, cfg order.TrailingStopConfig) (order.Order, error) {
	return e.CreateOrder(ownerID, cfg)
}

// CreateOCO 原子创建并链接两条腿
func (e *Engine) CreateOCO(ownerID string, primary order.LimitConfig, stop order.StopTakeProfitConfig) (order.Order, order.Order, error) {
	p, s, err := e.orders.CreateOCO(ownerID, primary, stop)
	if err != nil {
		return order.Order{}, order.Order{}, err
	}
	e.onCreated(s)
	e.onCreated(p)
	return p, s, nil
}

// GetOrder 不存在或不属于 owner 时返回 false
func (e *Engine) GetOrder(ownerID, id string) (order.Order, bool) {
	return e.orders.Get(ownerID, id)
}

// ListActive 按创建顺序返回 pending 订单；asset 为空表示全部。
func (e *Engine) ListActive(ownerID, asset string) []order.Order {
	return e.orders.ListActive(ownerID, asset)
}

// TrailingTrigger 追踪止损单当前的触发价；不是 pending 的追踪单或尚未观测到价格时返回 false。
func (e *Engine) TrailingTrigger(ownerID, id string) (decimal.Decimal, bool) {
	o, ok := e.orders.Get(ownerID, id)
	if !ok || !o.IsTrailing() || o.Status != order.StatusPending {
		return decimal.Zero, false
	}
	if trigger, ok := e.tracker.Trigger(o); ok {
		return trigger, true
	}
	if o.HighestPrice.Valid {
		return order.TrailingTrigger(o, o.HighestPrice.Decimal), true
	}
	return decimal.Zero, false
}

// CancelOrder 仅 pending 且属于 owner 的订单可撤；否则返回 false，状态不变。
// OCO 的一条腿被撤销时另一腿保持 pending。
func (e *Engine) CancelOrder(ownerID, id string) bool {
	o, ok := e.orders.Get(ownerID, id)
	if !ok || o.Status != order.StatusPending {
		return false
	}
	l := e.assetLock(o.Asset)
	l.eval.Lock()
	defer l.eval.Unlock()

	cancelled, ok := e.orders.Cancel(ownerID, id)
	if !ok {
		return false
	}
	e.onTerminal(cancelled)
	return true
}

// CancelAllOrders 撤销 owner 所有匹配的 pending 订单，返回撤销数量。
func (e *Engine) CancelAllOrders(ownerID, asset string) int {
	n := 0
	for _, o := range e.orders.ListActive(ownerID, asset) {
		if e.CancelOrder(ownerID, o.ID) {
			n++
		}
	}
	return n
}

// UpdateOrder 修改 pending 订单。执行中的订单返回 ErrStaleOrder，终态订单返回 ErrNotPending。
func (e *Engine) UpdateOrder(ownerID, id string, patch order.Patch) (order.Order, error) {
	o, ok := e.orders.Get(ownerID, id)
	if !ok {
		return order.Order{}, fmt.Errorf("%w: %s", order.ErrNotFound, id)
	}
	l := e.assetLock(o.Asset)
	l.eval.Lock()
	defer l.eval.Unlock()

	updated, err := e.orders.Update(ownerID, id, patch)
	if err != nil {
		return order.Order{}, err
	}
	e.persist(updated)
	e.logOrder("order_updated", updated, nil)
	return updated, nil
}

// GetHistory owner 最近 limit 条终态记录，新的在前；limit <= 0 返回全部。
func (e *Engine) GetHistory(ownerID string, limit int) []history.Entry {
	return e.history.Recent(ownerID, limit)
}

// GetStatistics 统计保留窗口内的终态分布与成交率
func (e *Engine) GetStatistics(ownerID string) history.Statistics {
	return e.history.Stats(ownerID)
}

// SetConstraints 替换各资产的下单约束（热更新入口）
func (e *Engine) SetConstraints(c map[string]order.Constraints) {
	e.orders.SetConstraints(c)
}

// Tick 驱动一次评估。同一资产串行，不同资产可并行。
// 返回的 error 汇总了执行失败与执行后 CAS 失败；逐单结果见 TickResult。
func (e *Engine) Tick(ctx context.Context, asset string, price decimal.Decimal) (TickResult, error) {
	asset = order.NormalizeAsset(asset)
	if asset == "" || !price.IsPositive() {
		e.mon.RecordTickRejected()
		return TickResult{}, fmt.Errorf("%w: asset=%q price=%s", ErrInvalidTick, asset, price)
	}
	l := e.assetLock(asset)
	l.tick.Lock()
	defer l.tick.Unlock()

	start := time.Now()
	now := e.clock.Now()
	e.mon.RecordTick(asset)

	l.eval.Lock()
	ev := e.evaluate(asset, price, now)
	l.eval.Unlock()

	executed, err := e.coordinate(ctx, ev.fire, price)

	res := TickResult{
		Asset:    asset,
		Price:    price,
		At:       now,
		Expired:  ev.expired,
		Executed: executed,
	}
	e.mon.RecordTickDuration(time.Since(start).Seconds())
	if len(ev.fire) > 0 || len(ev.expired) > 0 {
		e.log.LogTick(asset, map[string]interface{}{
			"price":   price.String(),
			"fired":   len(ev.fire),
			"expired": len(ev.expired),
		})
	}
	return res, err
}

// ExpireDue 把所有已到期的 pending 订单置为 expired，返回数量。
func (e *Engine) ExpireDue(now time.Time) int {
	repo := e.orders.Repository()
	n := 0
	for _, asset := range repo.Assets() {
		l := e.assetLock(asset)
		l.eval.Lock()
		for _, o := range repo.ListActiveByAsset(asset) {
			if !o.ExpiredAt(now) {
				continue
			}
			if _, ok := e.expire(o.ID, now); ok {
				n++
			}
		}
		l.eval.Unlock()
	}
	return n
}

// PurgeClosed 清理 retention 之前关闭的终态订单（历史日志不受影响）。
func (e *Engine) PurgeClosed(now time.Time) int {
	if e.cfg.Retention <= 0 {
		return 0
	}
	return e.orders.Repository().PurgeTerminal(now.Add(-e.cfg.Retention))
}

// Restore 从持久化存储恢复 pending 订单与追踪止损最高价。
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	pending, err := e.store.ListPending(ctx)
	if err != nil {
		e.mon.RecordStoreError("list_pending")
		return 0, fmt.Errorf("load pending orders: %w", err)
	}
	if err := e.orders.Restore(pending); err != nil {
		return 0, err
	}
	for _, o := range pending {
		if o.IsTrailing() && o.HighestPrice.Valid {
			e.tracker.Seed(o.ID, o.HighestPrice.Decimal)
		}
	}
	e.mon.SetActive(e.activeCount())
	e.log.Info("orders restored")
	return len(pending), nil
}

func (e *Engine) activeCount() int {
	repo := e.orders.Repository()
	n := 0
	for _, a := range repo.Assets() {
		n += len(repo.ListActiveByAsset(a))
	}
	return n
}

func (e *Engine) onCreated(o order.Order) {
	e.persist(o)
	e.mon.RecordOrderCreated(string(o.Kind))
	e.logOrder("order_created", o, nil)
}

// onTerminal 订单离开 pending 后的统一出口：清理追踪、归档、持久化、指标、日志、告警。
func (e *Engine) onTerminal(o order.Order) {
	e.tracker.Forget(o.ID)
	e.history.Append(o, e.clock.Now())
	e.persist(o)
	e.mon.RecordOrderTerminal(string(o.Status))

	fields := map[string]interface{}{}
	switch o.Status {
	case order.StatusFilled:
		fields["filledPrice"] = o.FilledPrice.String()
		fields["filledAmount"] = o.FilledAmount.String()
		fields["txId"] = o.TxID
	case order.StatusFailed:
		fields["reason"] = o.LastError
	}
	e.logOrder("order_"+string(o.Status), o, fields)

	if o.Status == order.StatusFailed {
		if err := e.alerts.SendError("conditional order execution failed", map[string]interface{}{
			"order_id": o.ID,
			"owner":    o.OwnerID,
			"asset":    o.Asset,
			"reason":   o.LastError,
		}); err != nil {
			e.log.LogError(err, map[string]interface{}{"action": "alert", "order_id": o.ID})
		}
	}
}

func (e *Engine) persist(o order.Order) {
	if e.store == nil {
		return
	}
	if err := e.store.Put(context.Background(), o); err != nil {
		e.mon.RecordStoreError("put")
		e.log.LogError(err, map[string]interface{}{"action": "persist", "order_id": o.ID})
	}
}

func (e *Engine) logOrder(event string, o order.Order, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["owner"] = o.OwnerID
	fields["asset"] = o.Asset
	fields["kind"] = string(o.Kind)
	fields["side"] = string(o.Side)
	fields["amount"] = o.Amount.String()
	fields["status"] = string(o.Status)
	if o.LinkedOrderID != "" {
		fields["linked"] = o.LinkedOrderID
	}
	if err := logschema.Validate(event, fields); err != nil {
		e.log.Warn("log schema mismatch", zap.String("event", event), zap.Error(err))
	}
	e.log.LogOrder(event, o.ID, fields)
}
