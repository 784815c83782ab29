package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents order lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
)

// IsTerminal 终态（filled/cancelled/expired/failed）不可再迁移。
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusExpired, StatusFailed:
		return true
	default:
		return false
	}
}

// Side 买卖方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide 解析方向（不区分大小写）。
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("%w: unknown side %q", ErrInvalidOrderConfig, s)
}

// Kind 条件单类型。OCO 不是独立类型：两条腿通过 LinkedOrderID 互相引用。
type Kind string

const (
	KindLimit          Kind = "limit"
	KindStopTakeProfit Kind = "stop_take_profit"
	KindTrailingStop   Kind = "trailing_stop"
)

// Order holds a single conditional instruction.
// Zero LimitPrice means the order has no limit condition; zero ExpiresAt means no expiry.
type Order struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Kind    Kind   `json:"kind"`
	Side    Side   `json:"side"`
	Asset   string `json:"asset"`

	Amount     decimal.Decimal     `json:"amount"`
	LimitPrice decimal.Decimal     `json:"limit_price"`
	StopLoss   decimal.NullDecimal `json:"stop_loss"`
	TakeProfit decimal.NullDecimal `json:"take_profit"`
	ExpiresAt  time.Time           `json:"expires_at"`

	TrailAmount  decimal.NullDecimal `json:"trail_amount"`
	TrailPercent decimal.NullDecimal `json:"trail_percent"`
	HighestPrice decimal.NullDecimal `json:"highest_price"`

	LinkedOrderID string `json:"linked_order_id,omitempty"`

	Status    Status    `json:"status"`
	Seq       uint64    `json:"seq"`
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ClosedAt  time.Time `json:"closed_at"`

	FilledAt     time.Time       `json:"filled_at"`
	FilledPrice  decimal.Decimal `json:"filled_price"`
	FilledAmount decimal.Decimal `json:"filled_amount"`
	TxID         string          `json:"tx_id,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
}

// IsTrailing 是否为追踪止损单。
func (o Order) IsTrailing() bool {
	return o.Kind == KindTrailingStop
}

// IsLinked 是否属于 OCO 组。
func (o Order) IsLinked() bool {
	return o.LinkedOrderID != ""
}

// HasExpiry 是否设置了过期时间。
func (o Order) HasExpiry() bool {
	return !o.ExpiresAt.IsZero()
}

// ExpiredAt 在 now 时刻是否已过期（到达 ExpiresAt 即视为过期）。
func (o Order) ExpiredAt(now time.Time) bool {
	return o.HasExpiry() && !now.Before(o.ExpiresAt)
}

// before 创建顺序：先比较 CreatedAt，相同时用 Seq 打破平局。
func before(a, b *Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}

// NormalizeAsset 统一资产代码格式。
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
