package engine

import (
	"context"

	"conditional-orders-go/order"
)

// Persistence 外部订单存储，按订单 ID 覆盖写入。
type Persistence interface {
	Put(ctx context.Context, o order.Order) error
	Get(ctx context.Context, id string) (order.Order, bool, error)
	ListByOwner(ctx context.Context, ownerID string) ([]order.Order, error)
	ListPending(ctx context.Context) ([]order.Order, error)
}
