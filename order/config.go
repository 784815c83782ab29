package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Config 是条件单创建参数的 tagged union：LimitConfig / StopTakeProfitConfig / TrailingStopConfig。
// 未导出方法保证外部无法扩展出未经校验的类型。
type Config interface {
	Kind() Kind
	build(ownerID string) Order
}

// LimitConfig 限价条件单：买单价格 <= LimitPrice 触发，卖单价格 >= LimitPrice 触发。
type LimitConfig struct {
	Side       Side
	Asset      string
	Amount     decimal.Decimal
	LimitPrice decimal.Decimal
	ExpiresAt  time.Time
}

func (LimitConfig) Kind() Kind { return KindLimit }

func (c LimitConfig) build(ownerID string) Order {
	return Order{
		OwnerID:    ownerID,
		Kind:       KindLimit,
		Side:       c.Side,
		Asset:      NormalizeAsset(c.Asset),
		Amount:     c.Amount,
		LimitPrice: c.LimitPrice,
		ExpiresAt:  c.ExpiresAt,
	}
}

// StopTakeProfitConfig 止损/止盈卖单。LimitPrice 可选（零值表示没有限价条件），
// StopLoss 与 TakeProfit 至少一个。
type StopTakeProfitConfig struct {
	Asset      string
	Amount     decimal.Decimal
	LimitPrice decimal.Decimal
	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
	ExpiresAt  time.Time
}

func (StopTakeProfitConfig) Kind() Kind { return KindStopTakeProfit }

func (c StopTakeProfitConfig) build(ownerID string) Order {
	return Order{
		OwnerID:    ownerID,
		Kind:       KindStopTakeProfit,
		Side:       SideSell,
		Asset:      NormalizeAsset(c.Asset),
		Amount:     c.Amount,
		LimitPrice: c.LimitPrice,
		StopLoss:   c.StopLoss,
		TakeProfit: c.TakeProfit,
		ExpiresAt:  c.ExpiresAt,
	}
}

// TrailingStopConfig 追踪止损卖单，TrailAmount 与 TrailPercent 二选一。
type TrailingStopConfig struct {
	Asset        string
	Amount       decimal.Decimal
	TrailAmount  decimal.NullDecimal
	TrailPercent decimal.NullDecimal
	ExpiresAt    time.Time
}

func (TrailingStopConfig) Kind() Kind { return KindTrailingStop }

func (c TrailingStopConfig) build(ownerID string) Order {
	return Order{
		OwnerID:      ownerID,
		Kind:         KindTrailingStop,
		Side:         SideSell,
		Asset:        NormalizeAsset(c.Asset),
		Amount:       c.Amount,
		TrailAmount:  c.TrailAmount,
		TrailPercent: c.TrailPercent,
		ExpiresAt:    c.ExpiresAt,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOrderConfig, fmt.Sprintf(format, args...))
}

// Validate 按类型完整校验一张订单记录。创建、修改与恢复都走这里。
func Validate(o Order) error {
	if o.OwnerID == "" {
		return invalid("owner is required")
	}
	if o.Asset == "" {
		return invalid("asset is required")
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return invalid("unknown side %q", o.Side)
	}
	if !o.Amount.IsPositive() {
		return invalid("amount must be > 0")
	}

	switch o.Kind {
	case KindLimit:
		if !o.LimitPrice.IsPositive() {
			return invalid("limit price must be > 0")
		}
		if o.StopLoss.Valid || o.TakeProfit.Valid {
			return invalid("limit order does not take stop-loss/take-profit")
		}
		if o.TrailAmount.Valid || o.TrailPercent.Valid {
			return invalid("limit order does not take trailing parameters")
		}
	case KindStopTakeProfit:
		if o.Side != SideSell {
			return invalid("stop-loss/take-profit applies to sell orders only")
		}
		if o.LimitPrice.IsNegative() {
			return invalid("limit price must be > 0")
		}
		if !o.StopLoss.Valid && !o.TakeProfit.Valid {
			return invalid("stop-loss or take-profit is required")
		}
		if o.StopLoss.Valid && !o.StopLoss.Decimal.IsPositive() {
			return invalid("stop-loss must be > 0")
		}
		if o.TakeProfit.Valid && !o.TakeProfit.Decimal.IsPositive() {
			return invalid("take-profit must be > 0")
		}
		if o.StopLoss.Valid && o.TakeProfit.Valid && o.StopLoss.Decimal.GreaterThanOrEqual(o.TakeProfit.Decimal) {
			return invalid("stop-loss %s must be below take-profit %s", o.StopLoss.Decimal, o.TakeProfit.Decimal)
		}
		if o.TrailAmount.Valid || o.TrailPercent.Valid {
			return invalid("stop order does not take trailing parameters")
		}
	case KindTrailingStop:
		if o.Side != SideSell {
			return invalid("trailing stop applies to sell orders only")
		}
		if !o.LimitPrice.IsZero() || o.StopLoss.Valid || o.TakeProfit.Valid {
			return invalid("trailing stop does not take price thresholds")
		}
		if o.TrailAmount.Valid == o.TrailPercent.Valid {
			return invalid("exactly one of trail amount or trail percent is required")
		}
		if o.TrailAmount.Valid && !o.TrailAmount.Decimal.IsPositive() {
			return invalid("trail amount must be > 0")
		}
		if o.TrailPercent.Valid {
			p := o.TrailPercent.Decimal
			if !p.IsPositive() || p.GreaterThanOrEqual(hundred) {
				return invalid("trail percent must be in (0, 100)")
			}
		}
	default:
		return invalid("unknown order kind %q", o.Kind)
	}
	return nil
}

// Patch 修改 pending 订单的可变字段；nil 字段保持不变。
type Patch struct {
	Amount      *decimal.Decimal
	LimitPrice  *decimal.Decimal
	StopLoss    *decimal.Decimal
	TakeProfit  *decimal.Decimal
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// IsEmpty 没有任何修改。
func (p Patch) IsEmpty() bool {
	return p.Amount == nil && p.LimitPrice == nil && p.StopLoss == nil &&
		p.TakeProfit == nil && p.ExpiresAt == nil && !p.ClearExpiry
}

// Apply 在副本上应用修改并重新校验；字段不适用于该类型时拒绝。
func (p Patch) Apply(o Order) (Order, error) {
	if p.IsEmpty() {
		return o, invalid("empty update")
	}
	if p.LimitPrice != nil && o.Kind == KindTrailingStop {
		return o, invalid("trailing stop has no limit price")
	}
	if (p.StopLoss != nil || p.TakeProfit != nil) && o.Kind != KindStopTakeProfit {
		return o, invalid("%s order has no stop-loss/take-profit", o.Kind)
	}
	if p.ExpiresAt != nil && p.ClearExpiry {
		return o, invalid("expiry cannot be set and cleared at once")
	}

	next := o
	if p.Amount != nil {
		next.Amount = *p.Amount
	}
	if p.LimitPrice != nil {
		next.LimitPrice = *p.LimitPrice
	}
	if p.StopLoss != nil {
		next.StopLoss = decimal.NewNullDecimal(*p.StopLoss)
	}
	if p.TakeProfit != nil {
		next.TakeProfit = decimal.NewNullDecimal(*p.TakeProfit)
	}
	if p.ExpiresAt != nil {
		next.ExpiresAt = *p.ExpiresAt
	}
	if p.ClearExpiry {
		next.ExpiresAt = time.Time{}
	}
	if err := Validate(next); err != nil {
		return o, err
	}
	return next, nil
}
