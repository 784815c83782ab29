package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"conditional-orders-go/order"
)

// firing 一条待执行的触发记录
type firing struct {
	order     order.Order
	reason    Reason
	threshold decimal.Decimal
}

// evaluation 评估阶段的产出：已过期的订单与按创建顺序排列的 fire-set。
type evaluation struct {
	expired []Outcome
	fire    []firing
}

// evaluate 在资产的 evalMu 下执行。
// 先刷新所有追踪止损单的最高价，再逐单判断；每单每 tick 至多一个原因。
func (e *Engine) evaluate(asset string, price decimal.Decimal, now time.Time) evaluation {
	repo := e.orders.Repository()
	pending := repo.ListActiveByAsset(asset)

	triggers := make(map[string]decimal.Decimal)
	for i := range pending {
		o := &pending[i]
		if !o.IsTrailing() || o.ExpiredAt(now) {
			continue
		}
		trigger, high := e.tracker.Observe(*o, price)
		triggers[o.ID] = trigger
		if o.HighestPrice.Valid && o.HighestPrice.Decimal.Equal(high) {
			continue
		}
		updated, err := repo.UpdatePending(o.ID, func(cur order.Order) (order.Order, error) {
			cur.HighestPrice = decimal.NewNullDecimal(high)
			return cur, nil
		})
		if err == nil {
			*o = updated
			e.persist(updated)
		}
	}

	var ev evaluation
	for _, o := range pending {
		if o.ExpiredAt(now) {
			if expired, ok := e.expire(o.ID, now); ok {
				ev.expired = append(ev.expired, Outcome{
					OrderID: expired.ID,
					OwnerID: expired.OwnerID,
					Reason:  ReasonExpired,
					Status:  expired.Status,
					Price:   price,
				})
			}
			continue
		}
		trailTrigger, tracked := triggers[o.ID]
		if reason, threshold, ok := match(o, price, trailTrigger, tracked); ok {
			ev.fire = append(ev.fire, firing{order: o, reason: reason, threshold: threshold})
		}
	}
	return ev
}

// match 按 限价 → 止损 → 止盈 → 追踪止损 的顺序判断，第一个满足的条件胜出。
func match(o order.Order, price, trailTrigger decimal.Decimal, tracked bool) (Reason, decimal.Decimal, bool) {
	if o.LimitPrice.IsPositive() {
		switch o.Side {
		case order.SideBuy:
			if price.LessThanOrEqual(o.LimitPrice) {
				return ReasonLimit, o.LimitPrice, true
			}
		case order.SideSell:
			if price.GreaterThanOrEqual(o.LimitPrice) {
				return ReasonLimit, o.LimitPrice, true
			}
		}
	}
	if o.Side == order.SideSell {
		if o.StopLoss.Valid && price.LessThanOrEqual(o.StopLoss.Decimal) {
			return ReasonStopLoss, o.StopLoss.Decimal, true
		}
		if o.TakeProfit.Valid && price.GreaterThanOrEqual(o.TakeProfit.Decimal) {
			return ReasonTakeProfit, o.TakeProfit.Decimal, true
		}
	}
	if o.IsTrailing() && tracked && price.LessThanOrEqual(trailTrigger) {
		return ReasonTrailingStop, trailTrigger, true
	}
	return "", decimal.Zero, false
}

// expire pending -> expired；CAS 失败（已被撤销/成交）时返回 false。
func (e *Engine) expire(id string, now time.Time) (order.Order, bool) {
	expired, err := e.orders.Repository().Transition(id, order.StatusPending, order.StatusExpired, func(o *order.Order) {
		o.ClosedAt = now
	})
	if err != nil {
		return order.Order{}, false
	}
	e.onTerminal(expired)
	return expired, true
}
