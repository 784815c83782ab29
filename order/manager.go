package order

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Manager 是面向 owner 的订单存储：创建、查询、撤单与修改，生命周期迁移都经由仓储 CAS。
type Manager struct {
	repo  OrderRepository
	sm    *StateMachine
	seq   atomic.Uint64
	now   func() time.Time
	newID func() string

	mu          sync.RWMutex
	constraints map[string]Constraints
}

func NewManager(repo OrderRepository) *Manager {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	return &Manager{
		repo:  repo,
		sm:    NewStateMachine(),
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

// SetClock 替换时钟（测试/回放使用）。
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Repository 返回底层仓储
func (m *Manager) Repository() OrderRepository {
	return m.repo
}

// Create 校验并创建一张 pending 订单；校验失败不会写入任何状态。
func (m *Manager) Create(ownerID string, cfg Config) (Order, error) {
	if cfg == nil {
		return Order{}, invalid("config is required")
	}
	o, err := m.prepare(ownerID, cfg)
	if err != nil {
		return Order{}, err
	}
	if err := m.repo.Insert(o); err != nil {
		return Order{}, err
	}
	return o, nil
}

// CreateOCO 原子创建并互相链接两张订单，两条腿必须是同一资产。
// 止损腿先写入（Seq 更小），同一 tick 两腿同时满足时保护性止损优先。
func (m *Manager) CreateOCO(ownerID string, primary LimitConfig, stop StopTakeProfitConfig) (Order, Order, error) {
	if NormalizeAsset(primary.Asset) != NormalizeAsset(stop.Asset) {
		return Order{}, Order{}, invalid("oco legs must share an asset (%q vs %q)", primary.Asset, stop.Asset)
	}
	stopLeg, err := m.prepare(ownerID, stop)
	if err != nil {
		return Order{}, Order{}, fmt.Errorf("stop leg: %w", err)
	}
	primaryLeg, err := m.prepare(ownerID, primary)
	if err != nil {
		return Order{}, Order{}, fmt.Errorf("primary leg: %w", err)
	}
	primaryLeg.CreatedAt = stopLeg.CreatedAt
	primaryLeg.LinkedOrderID = stopLeg.ID
	stopLeg.LinkedOrderID = primaryLeg.ID

	if err := m.repo.Insert(stopLeg, primaryLeg); err != nil {
		return Order{}, Order{}, err
	}
	return primaryLeg, stopLeg, nil
}

func (m *Manager) prepare(ownerID string, cfg Config) (Order, error) {
	o := cfg.build(ownerID)
	if err := Validate(o); err != nil {
		return Order{}, err
	}
	if err := m.validateConstraint(o); err != nil {
		return Order{}, err
	}
	o.ID = m.newID()
	o.Status = StatusPending
	o.Seq = m.seq.Add(1)
	o.CreatedAt = m.now()
	return o, nil
}

// Get 订单不存在或不属于 ownerID 时返回 false。
func (m *Manager) Get(ownerID, id string) (Order, bool) {
	o, ok := m.repo.Get(id)
	if !ok || o.OwnerID != ownerID {
		return Order{}, false
	}
	return o, true
}

// ListActive 返回 pending 订单，按创建时间升序。
func (m *Manager) ListActive(ownerID, asset string) []Order {
	return m.repo.ListActive(ownerID, NormalizeAsset(asset))
}

// Cancel 仅当订单存在、属于 ownerID 且仍为 pending 时成功；否则返回 false 且不改变状态。
func (m *Manager) Cancel(ownerID, id string) (Order, bool) {
	cur, ok := m.Get(ownerID, id)
	if !ok || !m.sm.Allows(cur.Status, StatusCancelled) {
		return Order{}, false
	}
	now := m.now()
	o, err := m.repo.Transition(id, StatusPending, StatusCancelled, func(o *Order) {
		o.ClosedAt = now
	})
	if err != nil {
		return Order{}, false
	}
	return o, true
}

// CancelAll 撤销所有匹配的 pending 订单，返回被撤销的订单。
func (m *Manager) CancelAll(ownerID, asset string) []Order {
	var cancelled []Order
	for _, o := range m.ListActive(ownerID, asset) {
		if c, ok := m.Cancel(ownerID, o.ID); ok {
			cancelled = append(cancelled, c)
		}
	}
	return cancelled
}

// Update 修改 pending 订单的价格/数量/止损/止盈/过期时间。
func (m *Manager) Update(ownerID, id string, p Patch) (Order, error) {
	if _, ok := m.Get(ownerID, id); !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.repo.UpdatePending(id, func(cur Order) (Order, error) {
		next, err := p.Apply(cur)
		if err != nil {
			return cur, err
		}
		if err := m.validateConstraint(next); err != nil {
			return cur, err
		}
		return next, nil
	})
}

// Restore 载入持久化订单，并把序号推进到已有最大值之后。
func (m *Manager) Restore(orders []Order) error {
	var maxSeq uint64
	for _, o := range orders {
		if err := Validate(o); err != nil {
			return fmt.Errorf("restore %s: %w", o.ID, err)
		}
		if o.Seq > maxSeq {
			maxSeq = o.Seq
		}
	}
	for _, o := range orders {
		if err := m.repo.Insert(o); err != nil && !errors.Is(err, ErrDuplicateOrder) {
			return err
		}
	}
	for {
		cur := m.seq.Load()
		if cur >= maxSeq || m.seq.CompareAndSwap(cur, maxSeq) {
			return nil
		}
	}
}

// SetConstraints 设置各资产的精度/名义限制。
func (m *Manager) SetConstraints(c map[string]Constraints) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constraints = make(map[string]Constraints, len(c))
	for asset, sc := range c {
		m.constraints[NormalizeAsset(asset)] = sc
	}
}

func (m *Manager) validateConstraint(o Order) error {
	m.mu.RLock()
	c, ok := m.constraints[o.Asset]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.Validate(o)
}
