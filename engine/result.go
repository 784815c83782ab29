package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"conditional-orders-go/order"
)

// Reason 订单在本 tick 离开 pending 的原因
type Reason string

const (
	ReasonLimit        Reason = "limit"
	ReasonStopLoss     Reason = "stop_loss"
	ReasonTakeProfit   Reason = "take_profit"
	ReasonTrailingStop Reason = "trailing_stop"
	ReasonExpired      Reason = "expired"
)

// Outcome 单个订单在本 tick 的处理结果。
// Status 为处理后的状态；Err 非空时可能是 *ExecutionError、order.ErrStaleOrder 或 ctx 错误。
type Outcome struct {
	OrderID   string
	OwnerID   string
	Reason    Reason
	Status    order.Status
	Threshold decimal.Decimal
	Price     decimal.Decimal
	Receipt   Receipt
	// Executed 执行回调是否被调用过
	Executed bool

	CancelledSiblingID string
	Err                error
}

// Stale 执行结束时订单已被撤销/过期
func (o Outcome) Stale() bool {
	return o.Err != nil && isStale(o.Err)
}

// TickResult 一次 tick 的全部结果，Executed 按评估顺序排列。
type TickResult struct {
	Asset    string
	Price    decimal.Decimal
	At       time.Time
	Expired  []Outcome
	Executed []Outcome
}

// Fired 本 tick 触发执行的订单数
func (r TickResult) Fired() int {
	return len(r.Executed)
}

// Filled 成交的结果
func (r TickResult) Filled() []Outcome {
	var res []Outcome
	for _, o := range r.Executed {
		if o.Status == order.StatusFilled {
			res = append(res, o)
		}
	}
	return res
}

// Find 按订单 ID 查找结果（包括过期）
func (r TickResult) Find(id string) (Outcome, bool) {
	for _, o := range r.Executed {
		if o.OrderID == id {
			return o, true
		}
	}
	for _, o := range r.Expired {
		if o.OrderID == id {
			return o, true
		}
	}
	return Outcome{}, false
}
