package order

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func pendingOrder(id, owner, asset string, seq uint64, at time.Time) Order {
	o := LimitConfig{Side: SideBuy, Asset: asset, Amount: dec("1"), LimitPrice: dec("100")}.build(owner)
	o.ID = id
	o.Status = StatusPending
	o.Seq = seq
	o.CreatedAt = at
	return o
}

func TestRepositoryOrdering(t *testing.T) {
	r := NewMemoryRepository()
	// 插入顺序与创建顺序不同
	if err := r.Insert(
		pendingOrder("c", "alice", "X", 3, t0.Add(time.Second)),
		pendingOrder("a", "alice", "X", 1, t0),
		pendingOrder("b", "bob", "X", 2, t0),
		pendingOrder("d", "alice", "Y", 4, t0),
	); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ids := func(os []Order) []string {
		res := make([]string, len(os))
		for i, o := range os {
			res[i] = o.ID
		}
		return res
	}
	if got := ids(r.ListActiveByAsset("X")); len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("asset order = %v", got)
	}
	if got := ids(r.ListActive("alice", "")); len(got) != 3 || got[0] != "a" || got[1] != "d" || got[2] != "c" {
		t.Fatalf("owner order = %v", got)
	}
	if got := ids(r.ListActive("alice", "X")); len(got) != 2 {
		t.Fatalf("owner+asset = %v", got)
	}
	if got := r.Assets(); len(got) != 2 || got[0] != "X" || got[1] != "Y" {
		t.Fatalf("assets = %v", got)
	}
}

func TestRepositoryInsertIsAtomic(t *testing.T) {
	r := NewMemoryRepository()
	if err := r.Insert(pendingOrder("a", "alice", "X", 1, t0)); err != nil {
		t.Fatal(err)
	}
	err := r.Insert(pendingOrder("b", "alice", "X", 2, t0), pendingOrder("a", "alice", "X", 3, t0))
	if !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if _, ok := r.Get("b"); ok {
		t.Fatalf("failed batch must not be partially stored")
	}
}

func TestRepositoryTransitionCAS(t *testing.T) {
	r := NewMemoryRepository()
	_ = r.Insert(pendingOrder("a", "alice", "X", 1, t0))

	o, err := r.Transition("a", StatusPending, StatusCancelled, func(o *Order) { o.ClosedAt = t0 })
	if err != nil || o.Status != StatusCancelled || !o.ClosedAt.Equal(t0) {
		t.Fatalf("transition: %+v %v", o, err)
	}
	if _, err := r.Transition("a", StatusPending, StatusFilled, nil); !errors.Is(err, ErrStaleOrder) {
		t.Fatalf("second transition should be stale, got %v", err)
	}
	if _, err := r.Transition("a", StatusCancelled, StatusFilled, nil); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("terminal transition should be illegal, got %v", err)
	}
	if _, err := r.Transition("missing", StatusPending, StatusFilled, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(r.ListActiveByAsset("X")) != 0 {
		t.Fatalf("terminal order must leave the pending index")
	}
}

func TestRepositoryFillCancelsSibling(t *testing.T) {
	r := NewMemoryRepository()
	a := pendingOrder("a", "alice", "X", 1, t0)
	b := pendingOrder("b", "alice", "X", 2, t0)
	a.LinkedOrderID, b.LinkedOrderID = "b", "a"
	_ = r.Insert(a, b)

	filled, sib, err := r.FillAndCancelLinked("a", Fill{Price: dec("99"), At: t0, TxID: "tx"})
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if filled.Status != StatusFilled || !filled.FilledAmount.Equal(dec("1")) || filled.TxID != "tx" {
		t.Fatalf("filled = %+v", filled)
	}
	if sib == nil || sib.ID != "b" || sib.Status != StatusCancelled {
		t.Fatalf("sibling = %+v", sib)
	}
	if _, _, err := r.FillAndCancelLinked("b", Fill{Price: dec("99"), At: t0}); !errors.Is(err, ErrStaleOrder) {
		t.Fatalf("cancelled sibling cannot fill, got %v", err)
	}
}

func TestRepositoryUpdatePending(t *testing.T) {
	r := NewMemoryRepository()
	_ = r.Insert(pendingOrder("a", "alice", "X", 1, t0))

	o, err := r.UpdatePending("a", func(o Order) (Order, error) {
		o.LimitPrice = dec("95")
		o.OwnerID = "mallory"
		o.Status = StatusFilled
		return o, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !o.LimitPrice.Equal(dec("95")) || o.OwnerID != "alice" || o.Status != StatusPending {
		t.Fatalf("identity fields must be immutable: %+v", o)
	}

	boom := errors.New("boom")
	if _, err := r.UpdatePending("a", func(o Order) (Order, error) { return o, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	_, _ = r.Transition("a", StatusPending, StatusCancelled, nil)
	if _, err := r.UpdatePending("a", func(o Order) (Order, error) { return o, nil }); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected not pending, got %v", err)
	}
}

func TestRepositoryExecutionBlocksUpdate(t *testing.T) {
	r := NewMemoryRepository()
	_ = r.Insert(pendingOrder("a", "alice", "X", 1, t0))

	snap, err := r.BeginExecution("a")
	if err != nil || snap.Status != StatusPending {
		t.Fatalf("begin: %+v %v", snap, err)
	}
	if _, err := r.BeginExecution("a"); !errors.Is(err, ErrStaleOrder) {
		t.Fatalf("second begin should be stale, got %v", err)
	}
	_, err = r.UpdatePending("a", func(o Order) (Order, error) {
		o.Amount = dec("5")
		return o, nil
	})
	if !errors.Is(err, ErrStaleOrder) {
		t.Fatalf("update while executing should be stale, got %v", err)
	}

	filled, _, err := r.FillAndCancelLinked("a", Fill{Price: dec("99"), Amount: snap.Amount, At: t0, TxID: "tx"})
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if !filled.FilledAmount.Equal(dec("1")) || !filled.Amount.Equal(dec("1")) {
		t.Fatalf("fill must match the executed snapshot: %+v", filled)
	}
	if _, err := r.BeginExecution("a"); !errors.Is(err, ErrStaleOrder) {
		t.Fatalf("filled order cannot execute again, got %v", err)
	}
	if _, err := r.BeginExecution("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRepositoryEndExecutionReleasesOrder(t *testing.T) {
	r := NewMemoryRepository()
	_ = r.Insert(pendingOrder("a", "alice", "X", 1, t0))

	if _, err := r.BeginExecution("a"); err != nil {
		t.Fatal(err)
	}
	r.EndExecution("a")
	o, err := r.UpdatePending("a", func(o Order) (Order, error) {
		o.LimitPrice = dec("90")
		return o, nil
	})
	if err != nil || !o.LimitPrice.Equal(dec("90")) {
		t.Fatalf("update after release: %+v %v", o, err)
	}
}

func TestRepositoryVersionAdvancesOnEveryChange(t *testing.T) {
	r := NewMemoryRepository()
	a := pendingOrder("a", "alice", "X", 1, t0)
	b := pendingOrder("b", "alice", "X", 2, t0)
	a.LinkedOrderID, b.LinkedOrderID = "b", "a"
	_ = r.Insert(a, b)

	updated, err := r.UpdatePending("a", func(o Order) (Order, error) {
		o.Version = 42
		return o, nil
	})
	if err != nil || updated.Version != 1 {
		t.Fatalf("update version = %d, %v", updated.Version, err)
	}
	filled, sib, err := r.FillAndCancelLinked("a", Fill{Price: dec("99"), At: t0})
	if err != nil || filled.Version != 2 || sib == nil || sib.Version != 1 {
		t.Fatalf("fill versions: %+v %+v %v", filled, sib, err)
	}
	// Amount 为空时退回订单数量
	if !filled.FilledAmount.Equal(dec("1")) {
		t.Fatalf("filled amount = %s", filled.FilledAmount)
	}

	_ = r.Insert(pendingOrder("c", "alice", "X", 3, t0))
	cancelled, err := r.Transition("c", StatusPending, StatusCancelled, nil)
	if err != nil || cancelled.Version != 1 {
		t.Fatalf("transition version = %d, %v", cancelled.Version, err)
	}
}

func TestRepositoryPurgeTerminal(t *testing.T) {
	r := NewMemoryRepository()
	a := pendingOrder("a", "alice", "X", 1, t0)
	b := pendingOrder("b", "alice", "X", 2, t0)
	a.LinkedOrderID, b.LinkedOrderID = "b", "a"
	c := pendingOrder("c", "alice", "X", 3, t0)
	_ = r.Insert(a, b, c)

	_, _ = r.Transition("a", StatusPending, StatusFailed, func(o *Order) { o.ClosedAt = t0 })
	_, _ = r.Transition("c", StatusPending, StatusCancelled, func(o *Order) { o.ClosedAt = t0 })

	if n := r.PurgeTerminal(t0.Add(time.Hour)); n != 1 {
		t.Fatalf("purged %d, want 1 (linked leg with pending sibling is kept)", n)
	}
	if _, ok := r.Get("a"); !ok {
		t.Fatalf("a should be kept while b is pending")
	}
	if _, ok := r.Get("c"); ok {
		t.Fatalf("c should be purged")
	}
}
