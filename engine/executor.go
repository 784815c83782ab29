package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"conditional-orders-go/order"
)

// Receipt 执行回执
type Receipt struct {
	TxID       string
	ExecutedAt time.Time
}

// Executor 外部执行回调：真正下单/上链。
// 实现可以阻塞在 I/O 上，必须响应 ctx 取消；引擎不设超时。
// 返回错误即视为执行失败，订单进入 failed，不会重试。
type Executor interface {
	Execute(ctx context.Context, o order.Order, triggerPrice decimal.Decimal) (Receipt, error)
}

// ExecutorFunc 函数适配器
type ExecutorFunc func(ctx context.Context, o order.Order, triggerPrice decimal.Decimal) (Receipt, error)

func (f ExecutorFunc) Execute(ctx context.Context, o order.Order, triggerPrice decimal.Decimal) (Receipt, error) {
	return f(ctx, o, triggerPrice)
}
