package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"conditional-orders-go/config"
	"conditional-orders-go/engine"
	"conditional-orders-go/execution"
	"conditional-orders-go/history"
	"conditional-orders-go/infrastructure/logger"
	"conditional-orders-go/order"
)

// scenario 回放脚本：先创建 orders，再按顺序执行 steps。
type scenario struct {
	Start  time.Time                     `yaml:"start"`
	Assets map[string]config.AssetConfig `yaml:"assets"`
	Orders []orderEntry                  `yaml:"orders"`
	Steps  []step                        `yaml:"steps"`
}

type orderEntry struct {
	Ref          string        `yaml:"ref"`
	Owner        string        `yaml:"owner"`
	Type         string        `yaml:"type"` // limit / stop / trailing / oco
	Side         string        `yaml:"side"`
	Asset        string        `yaml:"asset"`
	Amount       string        `yaml:"amount"`
	LimitPrice   string        `yaml:"limitPrice"`
	StopLoss     string        `yaml:"stopLoss"`
	TakeProfit   string        `yaml:"takeProfit"`
	TrailAmount  string        `yaml:"trailAmount"`
	TrailPercent string        `yaml:"trailPercent"`
	ExpiresIn    time.Duration `yaml:"expiresIn"`
}

type step struct {
	After  time.Duration `yaml:"after"` // 执行前推进的模拟时间
	Tick   *tickStep     `yaml:"tick"`
	Cancel string        `yaml:"cancel"` // 订单 ref
}

type tickStep struct {
	Asset string `yaml:"asset"`
	Price string `yaml:"price"`
}

// report 回放结果
type report struct {
	Orders []orderLine
	Stats  map[string]history.Statistics
	Fills  []execution.Fill
	Errors []string
}

type orderLine struct {
	Ref     string
	Owner   string
	Status  order.Status
	Detail  string
	Price   decimal.Decimal
	Trigger decimal.NullDecimal // 仍在等待的追踪止损单的当前触发价
}

func loadScenario(path string) (scenario, error) {
	var sc scenario
	raw, err := os.ReadFile(path)
	if err != nil {
		return sc, fmt.Errorf("read scenario: %w", err)
	}
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return sc, fmt.Errorf("parse scenario: %w", err)
	}
	if sc.Start.IsZero() {
		sc.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return sc, nil
}

type ref struct {
	owner string
	id    string
}

func run(ctx context.Context, sc scenario, log *logger.Logger) (report, error) {
	now := sc.Start
	clock := engine.ClockFunc(func() time.Time { return now })
	paper := execution.NewPaper(0)

	eng, err := engine.New(engine.Config{}, engine.Components{
		Executor: paper,
		Logger:   log,
		Clock:    clock,
	})
	if err != nil {
		return report{}, err
	}
	constraints, err := config.AppConfig{Assets: sc.Assets}.Constraints()
	if err != nil {
		return report{}, err
	}
	eng.SetConstraints(constraints)

	refs := make(map[string]ref)
	var names []string
	for _, def := range sc.Orders {
		created, err := createOrder(eng, def, now)
		if err != nil {
			return report{}, fmt.Errorf("order %s: %w", def.Ref, err)
		}
		for i, o := range created {
			name := def.Ref
			if i == 1 {
				name += ".stop"
			}
			refs[name] = ref{owner: def.Owner, id: o.ID}
			names = append(names, name)
		}
	}

	var rep report
	for i, st := range sc.Steps {
		now = now.Add(st.After)
		switch {
		case st.Tick != nil:
			price, err := decimal.NewFromString(st.Tick.Price)
			if err != nil {
				return rep, fmt.Errorf("step %d: bad price %q", i, st.Tick.Price)
			}
			if _, err := eng.Tick(ctx, st.Tick.Asset, price); err != nil {
				rep.Errors = append(rep.Errors, fmt.Sprintf("step %d: %v", i, err))
			}
		case st.Cancel != "":
			r, ok := refs[st.Cancel]
			if !ok {
				return rep, fmt.Errorf("step %d: unknown ref %q", i, st.Cancel)
			}
			eng.CancelOrder(r.owner, r.id)
		default:
			eng.ExpireDue(now)
		}
	}

	rep.Stats = make(map[string]history.Statistics)
	for _, name := range names {
		r := refs[name]
		line := orderLine{Ref: name, Owner: r.owner, Status: order.StatusPending}
		if o, ok := eng.GetOrder(r.owner, r.id); ok {
			line.Status, line.Price = o.Status, o.FilledPrice
		}
		line.Detail = line.Status.Describe()
		if trigger, ok := eng.TrailingTrigger(r.owner, r.id); ok {
			line.Trigger = decimal.NewNullDecimal(trigger)
		}
		rep.Orders = append(rep.Orders, line)
		if _, seen := rep.Stats[r.owner]; !seen {
			rep.Stats[r.owner] = eng.GetStatistics(r.owner)
		}
	}
	rep.Fills = paper.Fills()
	return rep, nil
}

func createOrder(eng *engine.Engine, def orderEntry, now time.Time) ([]order.Order, error) {
	amount, err := parseDec(def.Amount)
	if err != nil {
		return nil, err
	}
	limit, err := parseDec(def.LimitPrice)
	if err != nil {
		return nil, err
	}
	var expires time.Time
	if def.ExpiresIn > 0 {
		expires = now.Add(def.ExpiresIn)
	}
	stop, tp := parseNull(def.StopLoss), parseNull(def.TakeProfit)
	if (def.StopLoss != "" && !stop.Valid) || (def.TakeProfit != "" && !tp.Valid) {
		return nil, fmt.Errorf("bad stopLoss/takeProfit")
	}

	switch def.Type {
	case "limit", "":
		side, err := order.ParseSide(def.Side)
		if err != nil {
			return nil, err
		}
		o, err := eng.CreateOrder(def.Owner, order.LimitConfig{
			Side: side, Asset: def.Asset, Amount: amount, LimitPrice: limit, ExpiresAt: expires,
		})
		return []order.Order{o}, err
	case "stop":
		o, err := eng.CreateOrder(def.Owner, order.StopTakeProfitConfig{
			Asset: def.Asset, Amount: amount, LimitPrice: limit,
			StopLoss: stop, TakeProfit: tp, ExpiresAt: expires,
		})
		return []order.Order{o}, err
	case "trailing":
		o, err := eng.CreateTrailingStop(def.Owner, order.TrailingStopConfig{
			Asset: def.Asset, Amount: amount,
			TrailAmount: parseNull(def.TrailAmount), TrailPercent: parseNull(def.TrailPercent),
			ExpiresAt: expires,
		})
		return []order.Order{o}, err
	case "oco":
		primary, stopLeg, err := eng.CreateOCO(def.Owner,
			order.LimitConfig{Side: order.SideBuy, Asset: def.Asset, Amount: amount, LimitPrice: limit, ExpiresAt: expires},
			order.StopTakeProfitConfig{Asset: def.Asset, Amount: amount, StopLoss: stop, TakeProfit: tp, ExpiresAt: expires},
		)
		return []order.Order{primary, stopLeg}, err
	}
	return nil, fmt.Errorf("unknown order type %q", def.Type)
}

func parseDec(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad decimal %q", s)
	}
	return d, nil
}

func parseNull(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func sortedOwners(stats map[string]history.Statistics) []string {
	owners := make([]string, 0, len(stats))
	for o := range stats {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners
}
