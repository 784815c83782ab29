package order

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// Fill 成交结果，由执行协调器写入。Amount 取自交给执行器的快照。
type Fill struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
	At     time.Time
	TxID   string
}

// OrderRepository 订单仓储。所有状态迁移都是 CAS，pending 之外的订单只读。
type OrderRepository interface {
	// Insert 原子写入一批订单（OCO 两条腿一起写入）。
	Insert(orders ...Order) error
	Get(id string) (Order, bool)
	// ListActive 返回 owner 的 pending 订单，按创建顺序；asset 为空表示全部。
	ListActive(ownerID, asset string) []Order
	// ListActiveByAsset 返回某资产全部 pending 订单，按创建顺序。
	ListActiveByAsset(asset string) []Order
	// Assets 返回当前存在 pending 订单的资产。
	Assets() []string
	// BeginExecution 把 pending 订单标记为执行中并返回执行快照；执行中的订单拒绝修改。
	BeginExecution(id string) (Order, error)
	// EndExecution 清除执行中标记（Transition/FillAndCancelLinked 也会清除）。
	EndExecution(id string)
	// Transition 仅当当前状态为 from 时迁移到 to，mutate 在同一临界区内执行。
	Transition(id string, from, to Status, mutate func(*Order)) (Order, error)
	// FillAndCancelLinked pending -> filled，并在同一步把仍为 pending 的 OCO 另一腿置为 cancelled。
	FillAndCancelLinked(id string, fill Fill) (Order, *Order, error)
	// UpdatePending 仅对 pending 订单应用修改；fn 返回错误时不落地。
	UpdatePending(id string, fn func(Order) (Order, error)) (Order, error)
	// PurgeTerminal 删除 closedBefore 之前关闭的终态订单，返回删除数量。
	PurgeTerminal(closedBefore time.Time) int
}

type pendingIndex = btree.BTreeG[*Order]

// MemoryRepository 订单 arena（按 ID 索引）+ owner 二级索引 + 每个资产一棵按创建顺序排列的 pending 树。
// 每次修改都会递增 Order.Version，持久化层据此丢弃乱序到达的旧快照。
type MemoryRepository struct {
	mu        sync.RWMutex
	sm        *StateMachine
	arena     map[string]*Order
	owners    map[string]map[string]struct{}
	pending   map[string]*pendingIndex
	executing map[string]struct{}
}

// NewMemoryRepository 创建内存仓储
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sm:        NewStateMachine(),
		arena:     make(map[string]*Order),
		owners:    make(map[string]map[string]struct{}),
		pending:   make(map[string]*pendingIndex),
		executing: make(map[string]struct{}),
	}
}

func (r *MemoryRepository) Insert(orders ...Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		if o.ID == "" {
			return fmt.Errorf("%w: empty id", ErrInvalidOrderConfig)
		}
		if _, dup := r.arena[o.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
		}
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
		}
		seen[o.ID] = struct{}{}
	}

	for _, o := range orders {
		rec := o
		r.arena[rec.ID] = &rec
		ids, ok := r.owners[rec.OwnerID]
		if !ok {
			ids = make(map[string]struct{})
			r.owners[rec.OwnerID] = ids
		}
		ids[rec.ID] = struct{}{}
		if rec.Status == StatusPending {
			r.index(&rec)
		}
	}
	return nil
}

func (r *MemoryRepository) Get(id string) (Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.arena[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

func (r *MemoryRepository) ListActive(ownerID, asset string) []Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if asset != "" {
		res := make([]Order, 0)
		if tree, ok := r.pending[asset]; ok {
			tree.Scan(func(o *Order) bool {
				if o.OwnerID == ownerID {
					res = append(res, *o)
				}
				return true
			})
		}
		return res
	}

	recs := make([]*Order, 0, len(r.owners[ownerID]))
	for id := range r.owners[ownerID] {
		if o := r.arena[id]; o.Status == StatusPending {
			recs = append(recs, o)
		}
	}
	slices.SortFunc(recs, func(a, b *Order) int {
		if before(a, b) {
			return -1
		}
		if before(b, a) {
			return 1
		}
		return 0
	})
	res := make([]Order, len(recs))
	for i, o := range recs {
		res[i] = *o
	}
	return res
}

func (r *MemoryRepository) ListActiveByAsset(asset string) []Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tree, ok := r.pending[asset]
	if !ok {
		return nil
	}
	res := make([]Order, 0, tree.Len())
	tree.Scan(func(o *Order) bool {
		res = append(res, *o)
		return true
	})
	return res
}

func (r *MemoryRepository) Assets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	assets := make([]string, 0, len(r.pending))
	for a, tree := range r.pending {
		if tree.Len() > 0 {
			assets = append(assets, a)
		}
	}
	slices.Sort(assets)
	return assets
}

func (r *MemoryRepository) BeginExecution(id string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.arena[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if o.Status != StatusPending {
		return *o, fmt.Errorf("%w: %s is %s before execution", ErrStaleOrder, id, o.Status)
	}
	if _, busy := r.executing[id]; busy {
		return *o, fmt.Errorf("%w: %s is already executing", ErrStaleOrder, id)
	}
	r.executing[id] = struct{}{}
	return *o, nil
}

func (r *MemoryRepository) EndExecution(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.executing, id)
}

func (r *MemoryRepository) Transition(id string, from, to Status, mutate func(*Order)) (Order, error) {
	if err := r.sm.ValidateTransition(from, to); err != nil {
		return Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.arena[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if o.Status != from {
		return *o, fmt.Errorf("%w: %s is %s, want %s", ErrStaleOrder, id, o.Status, from)
	}
	r.unindex(o)
	delete(r.executing, id)
	o.Status = to
	if mutate != nil {
		mutate(o)
	}
	o.Version++
	return *o, nil
}

func (r *MemoryRepository) FillAndCancelLinked(id string, fill Fill) (Order, *Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.arena[id]
	if !ok {
		return Order{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if o.Status != StatusPending {
		return *o, nil, fmt.Errorf("%w: %s is %s", ErrStaleOrder, id, o.Status)
	}

	r.unindex(o)
	delete(r.executing, id)
	o.Status = StatusFilled
	o.FilledAt = fill.At
	o.ClosedAt = fill.At
	o.FilledPrice = fill.Price
	o.FilledAmount = fill.Amount
	if o.FilledAmount.IsZero() {
		o.FilledAmount = o.Amount
	}
	o.TxID = fill.TxID
	o.Version++

	if o.LinkedOrderID == "" {
		return *o, nil, nil
	}
	sib, ok := r.arena[o.LinkedOrderID]
	if !ok || sib.Status != StatusPending {
		return *o, nil, nil
	}
	r.unindex(sib)
	sib.Status = StatusCancelled
	sib.ClosedAt = fill.At
	sib.Version++
	cancelled := *sib
	return *o, &cancelled, nil
}

func (r *MemoryRepository) UpdatePending(id string, fn func(Order) (Order, error)) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.arena[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if o.Status != StatusPending {
		return *o, fmt.Errorf("%w: %s is %s", ErrNotPending, id, o.Status)
	}
	if _, busy := r.executing[id]; busy {
		return *o, fmt.Errorf("%w: %s is executing", ErrStaleOrder, id)
	}
	next, err := fn(*o)
	if err != nil {
		return *o, err
	}
	// 身份与排序字段不可变
	next.ID, next.OwnerID, next.Asset = o.ID, o.OwnerID, o.Asset
	next.Kind, next.Side, next.Status = o.Kind, o.Side, o.Status
	next.Seq, next.CreatedAt, next.LinkedOrderID = o.Seq, o.CreatedAt, o.LinkedOrderID
	next.Version = o.Version + 1
	*o = next
	return next, nil
}

func (r *MemoryRepository) PurgeTerminal(closedBefore time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, o := range r.arena {
		if !o.Status.IsTerminal() || !o.ClosedAt.Before(closedBefore) {
			continue
		}
		// OCO 另一腿仍 pending 时保留，避免悬空引用
		if o.LinkedOrderID != "" {
			if sib, ok := r.arena[o.LinkedOrderID]; ok && sib.Status == StatusPending {
				continue
			}
		}
		delete(r.arena, id)
		if ids, ok := r.owners[o.OwnerID]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(r.owners, o.OwnerID)
			}
		}
		n++
	}
	return n
}

// index/unindex 调用方需持有写锁。
func (r *MemoryRepository) index(o *Order) {
	tree, ok := r.pending[o.Asset]
	if !ok {
		tree = btree.NewBTreeGOptions(before, btree.Options{NoLocks: true})
		r.pending[o.Asset] = tree
	}
	tree.Set(o)
}

func (r *MemoryRepository) unindex(o *Order) {
	tree, ok := r.pending[o.Asset]
	if !ok {
		return
	}
	tree.Delete(o)
	if tree.Len() == 0 {
		delete(r.pending, o.Asset)
	}
}
