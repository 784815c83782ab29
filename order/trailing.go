package order

import (
	"sync"

	"github.com/shopspring/decimal"
)

// TrailingTracker 维护追踪止损单的最高价，并据此计算当前触发价。
// 同一订单的写入由引擎的资产锁保证单写者，这里的锁只保护 map 本身。
type TrailingTracker struct {
	mu    sync.Mutex
	highs map[string]decimal.Decimal
}

// NewTrailingTracker 创建追踪器
func NewTrailingTracker() *TrailingTracker {
	return &TrailingTracker{highs: make(map[string]decimal.Decimal)}
}

// Observe 用本 tick 价格刷新最高价（首次观测作为种子），返回新的触发价与最高价。
// 触发价 = 最高价 - TrailAmount 或 最高价 × (1 - TrailPercent/100)，随最高价单调不减。
func (t *TrailingTracker) Observe(o Order, price decimal.Decimal) (trigger, highest decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	high, ok := t.highs[o.ID]
	if !ok && o.HighestPrice.Valid {
		high, ok = o.HighestPrice.Decimal, true
	}
	if !ok || price.GreaterThan(high) {
		high = price
	}
	t.highs[o.ID] = high
	return TrailingTrigger(o, high), high
}

// Trigger 返回当前触发价；订单尚未被观测过时 ok=false。
func (t *TrailingTracker) Trigger(o Order) (decimal.Decimal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	high, ok := t.highs[o.ID]
	if !ok {
		return decimal.Zero, false
	}
	return TrailingTrigger(o, high), true
}

// Seed 从持久化记录恢复最高价。
func (t *TrailingTracker) Seed(id string, highest decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.highs[id]; !ok || highest.GreaterThan(cur) {
		t.highs[id] = highest
	}
}

// Forget 订单离开 pending 后清理状态。
func (t *TrailingTracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.highs, id)
}

// Len 当前跟踪的订单数
func (t *TrailingTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.highs)
}

// TrailingTrigger 由最高价推导触发价。
func TrailingTrigger(o Order, highest decimal.Decimal) decimal.Decimal {
	if o.TrailAmount.Valid {
		return highest.Sub(o.TrailAmount.Decimal)
	}
	if o.TrailPercent.Valid {
		factor := decimal.NewFromInt(1).Sub(o.TrailPercent.Decimal.Div(hundred))
		return highest.Mul(factor)
	}
	return highest
}
