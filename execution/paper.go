package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"conditional-orders-go/engine"
	"conditional-orders-go/order"
)

// ErrRejected 模拟的执行拒绝
var ErrRejected = errors.New("paper execution rejected")

// Fill 一笔模拟成交
type Fill struct {
	OrderID string
	OwnerID string
	Asset   string
	Side    order.Side
	Price   decimal.Decimal
	Amount  decimal.Decimal
	TxID    string
	At      time.Time
}

// Paper 模拟执行器：立即按触发价成交，可注入延迟与失败。用于回放与联调。
type Paper struct {
	mu       sync.Mutex
	fills    []Fill
	latency  time.Duration
	failNext int
	rejected map[string]bool
	now      func() time.Time
}

// NewPaper 创建模拟执行器
func NewPaper(latency time.Duration) *Paper {
	return &Paper{
		latency:  latency,
		rejected: make(map[string]bool),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var _ engine.Executor = (*Paper)(nil)

// Execute 实现 engine.Executor
func (p *Paper) Execute(ctx context.Context, o order.Order, price decimal.Decimal) (engine.Receipt, error) {
	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return engine.Receipt{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return engine.Receipt{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failNext > 0 {
		p.failNext--
		return engine.Receipt{}, fmt.Errorf("%w: injected failure for %s", ErrRejected, o.ID)
	}
	if p.rejected[o.Asset] {
		return engine.Receipt{}, fmt.Errorf("%w: asset %s halted", ErrRejected, o.Asset)
	}

	at := p.now()
	txID := "paper-" + uuid.NewString()
	p.fills = append(p.fills, Fill{
		OrderID: o.ID,
		OwnerID: o.OwnerID,
		Asset:   o.Asset,
		Side:    o.Side,
		Price:   price,
		Amount:  o.Amount,
		TxID:    txID,
		At:      at,
	})
	return engine.Receipt{TxID: txID, ExecutedAt: at}, nil
}

// FailNext 让接下来 n 次执行失败
func (p *Paper) FailNext(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = n
}

// Halt 拒绝某资产的所有执行；halted=false 恢复
func (p *Paper) Halt(asset string, halted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejected[order.NormalizeAsset(asset)] = halted
}

// Fills 返回成交副本
func (p *Paper) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Fill, len(p.fills))
	copy(out, p.fills)
	return out
}

// Volume 某资产的累计成交数量（按方向）
func (p *Paper) Volume(asset string, side order.Side) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := decimal.Zero
	for _, f := range p.fills {
		if f.Asset == asset && f.Side == side {
			total = total.Add(f.Amount)
		}
	}
	return total
}
