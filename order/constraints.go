package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Constraints 描述资产的价格步长、数量步长与名义限制（零值表示不限制）。
type Constraints struct {
	TickSize    decimal.Decimal
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
	MinNotional decimal.Decimal
}

// Validate 检查订单的价格字段与数量是否符合精度与最小名义。
func (c Constraints) Validate(o Order) error {
	qty := o.Amount
	if c.StepSize.IsPositive() && !isMultiple(qty, c.StepSize) {
		return invalid("amount %s not aligned to stepSize %s", qty, c.StepSize)
	}
	if c.MinQty.IsPositive() && qty.LessThan(c.MinQty) {
		return invalid("amount %s < minQty %s", qty, c.MinQty)
	}
	if c.MaxQty.IsPositive() && qty.GreaterThan(c.MaxQty) {
		return invalid("amount %s > maxQty %s", qty, c.MaxQty)
	}

	prices := referencePrices(o)
	if c.TickSize.IsPositive() {
		for name, p := range prices {
			if !isMultiple(p, c.TickSize) {
				return invalid("%s %s not aligned to tickSize %s", name, p, c.TickSize)
			}
		}
	}
	if c.MinNotional.IsPositive() {
		if ref, ok := notionalPrice(o); ok {
			if n := ref.Mul(qty); n.LessThan(c.MinNotional) {
				return invalid("notional %s < minNotional %s", n, c.MinNotional)
			}
		}
	}
	return nil
}

func referencePrices(o Order) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, 3)
	if o.LimitPrice.IsPositive() {
		prices["limit price"] = o.LimitPrice
	}
	if o.StopLoss.Valid {
		prices["stop-loss"] = o.StopLoss.Decimal
	}
	if o.TakeProfit.Valid {
		prices["take-profit"] = o.TakeProfit.Decimal
	}
	return prices
}

// notionalPrice 追踪止损没有静态价格，不检查名义。
func notionalPrice(o Order) (decimal.Decimal, bool) {
	switch {
	case o.LimitPrice.IsPositive():
		return o.LimitPrice, true
	case o.StopLoss.Valid:
		return o.StopLoss.Decimal, true
	case o.TakeProfit.Valid:
		return o.TakeProfit.Decimal, true
	}
	return decimal.Zero, false
}

func isMultiple(value, step decimal.Decimal) bool {
	if !step.IsPositive() {
		return true
	}
	return value.Mod(step).IsZero()
}

// String 便于日志输出。
func (c Constraints) String() string {
	return fmt.Sprintf("tick=%s step=%s minQty=%s maxQty=%s minNotional=%s",
		c.TickSize, c.StepSize, c.MinQty, c.MaxQty, c.MinNotional)
}
