package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	tomb "gopkg.in/tomb.v2"

	"conditional-orders-go/order"
)

// partition 把 fire-set 分组：同时触发的 OCO 两腿为一组，按评估顺序串行；其余每单一组。
// 返回的是 fire 的下标。
func partition(fire []firing) [][]int {
	pos := make(map[string]int, len(fire))
	for i, f := range fire {
		pos[f.order.ID] = i
	}
	grouped := make([]bool, len(fire))
	groups := make([][]int, 0, len(fire))
	for i, f := range fire {
		if grouped[i] {
			continue
		}
		g := []int{i}
		if f.order.IsLinked() {
			if j, ok := pos[f.order.LinkedOrderID]; ok && j > i {
				g = append(g, j)
				grouped[j] = true
			}
		}
		grouped[i] = true
		groups = append(groups, g)
	}
	return groups
}

// coordinate 并发执行各组，一个慢执行不会阻塞其它组；结果按评估顺序写回。
func (e *Engine) coordinate(ctx context.Context, fire []firing, price decimal.Decimal) ([]Outcome, error) {
	if len(fire) == 0 {
		return nil, nil
	}
	outcomes := make([]Outcome, len(fire))
	groups := partition(fire)

	t, tctx := tomb.WithContext(ctx)
	t.Go(func() error {
		for _, g := range groups {
			g := g
			t.Go(func() error {
				for _, idx := range g {
					outcomes[idx] = e.executeOne(tctx, fire[idx], price)
				}
				return nil
			})
		}
		return nil
	})
	_ = t.Wait()

	// 执行前就已离开 pending 的订单（典型是 OCO 另一腿刚被撤销）只在结果里报告
	var errs error
	for _, out := range outcomes {
		if out.Err == nil || (!out.Executed && isStale(out.Err)) {
			continue
		}
		errs = multierr.Append(errs, out.Err)
	}
	return outcomes, errs
}

// executeOne 执行单个订单并完成 CAS 迁移。
func (e *Engine) executeOne(ctx context.Context, f firing, price decimal.Decimal) Outcome {
	repo := e.orders.Repository()
	out := Outcome{
		OrderID:   f.order.ID,
		OwnerID:   f.order.OwnerID,
		Reason:    f.reason,
		Threshold: f.threshold,
		Price:     price,
	}

	// OCO 另一腿已成交或订单在评估后被撤销
	cur, err := repo.BeginExecution(f.order.ID)
	if err != nil {
		out.Status = cur.Status
		out.Err = err
		return out
	}
	// 终态迁移同样会清除标记，这里覆盖提前返回的路径
	defer repo.EndExecution(cur.ID)
	if err := ctx.Err(); err != nil {
		out.Status = order.StatusPending
		out.Err = fmt.Errorf("order %s not executed: %w", f.order.ID, err)
		return out
	}

	e.mon.RecordFired(string(f.reason))
	start := time.Now()
	receipt, execErr := e.exec.Execute(ctx, cur, price)
	out.Executed = true
	e.mon.RecordExecutionLatency(time.Since(start).Seconds())
	now := e.clock.Now()

	if execErr != nil {
		failed, err := repo.Transition(cur.ID, order.StatusPending, order.StatusFailed, func(o *order.Order) {
			o.LastError = execErr.Error()
			o.ClosedAt = now
		})
		if err != nil {
			e.mon.RecordStaleFill()
			out.Status = failed.Status
			out.Err = err
			return out
		}
		e.onTerminal(failed)
		out.Status = failed.Status
		out.Err = &ExecutionError{OrderID: cur.ID, Err: execErr}
		return out
	}

	at := receipt.ExecutedAt
	if at.IsZero() {
		at = now
	}
	filled, sibling, err := repo.FillAndCancelLinked(cur.ID, order.Fill{
		Price:  price,
		Amount: cur.Amount,
		At:     at,
		TxID:   receipt.TxID,
	})
	if err != nil {
		// 执行期间被撤销/过期：撤销为准，不重复落地成交
		e.mon.RecordStaleFill()
		fields := map[string]interface{}{
			"order_id": cur.ID,
			"owner":    cur.OwnerID,
			"asset":    cur.Asset,
			"tx_id":    receipt.TxID,
			"status":   string(filled.Status),
		}
		e.log.LogError(err, map[string]interface{}{
			"order_id": cur.ID,
			"tx_id":    receipt.TxID,
			"action":   "fill",
		})
		// 外部已成交但订单已关闭，需要人工对账
		if alertErr := e.alerts.SendWarning("fill landed on a closed order", fields); alertErr != nil {
			e.log.LogError(alertErr, map[string]interface{}{"action": "alert", "order_id": cur.ID})
		}
		out.Status = filled.Status
		out.Receipt = receipt
		out.Err = err
		return out
	}
	e.onTerminal(filled)
	if sibling != nil {
		e.onTerminal(*sibling)
		out.CancelledSiblingID = sibling.ID
	}
	out.Status = filled.Status
	out.Receipt = receipt
	return out
}

func isStale(err error) bool {
	return errors.Is(err, order.ErrStaleOrder)
}
