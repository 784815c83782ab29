package order

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func null(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }

func TestValidateByKind(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"limit buy", LimitConfig{Side: SideBuy, Asset: "btc", Amount: dec("1"), LimitPrice: dec("100")}, true},
		{"limit zero amount", LimitConfig{Side: SideBuy, Asset: "btc", Amount: dec("0"), LimitPrice: dec("100")}, false},
		{"limit negative price", LimitConfig{Side: SideSell, Asset: "btc", Amount: dec("1"), LimitPrice: dec("-1")}, false},
		{"limit bad side", LimitConfig{Side: "hold", Asset: "btc", Amount: dec("1"), LimitPrice: dec("100")}, false},
		{"limit no asset", LimitConfig{Side: SideBuy, Amount: dec("1"), LimitPrice: dec("100")}, false},
		{"stop only", StopTakeProfitConfig{Asset: "btc", Amount: dec("1"), StopLoss: null("90")}, true},
		{"take profit only", StopTakeProfitConfig{Asset: "btc", Amount: dec("1"), TakeProfit: null("120")}, true},
		{"stop above tp", StopTakeProfitConfig{Asset: "btc", Amount: dec("1"), StopLoss: null("130"), TakeProfit: null("120")}, false},
		{"no thresholds", StopTakeProfitConfig{Asset: "btc", Amount: dec("1")}, false},
		{"trail amount", TrailingStopConfig{Asset: "btc", Amount: dec("1"), TrailAmount: null("5")}, true},
		{"trail percent", TrailingStopConfig{Asset: "btc", Amount: dec("1"), TrailPercent: null("5")}, true},
		{"trail both", TrailingStopConfig{Asset: "btc", Amount: dec("1"), TrailAmount: null("5"), TrailPercent: null("5")}, false},
		{"trail neither", TrailingStopConfig{Asset: "btc", Amount: dec("1")}, false},
		{"trail percent 100", TrailingStopConfig{Asset: "btc", Amount: dec("1"), TrailPercent: null("100")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.cfg.build("alice"))
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidOrderConfig) {
				t.Fatalf("expected ErrInvalidOrderConfig, got %v", err)
			}
		})
	}
}

func TestBuildNormalizesAssetAndSide(t *testing.T) {
	o := StopTakeProfitConfig{Asset: " ethusdt ", Amount: dec("1"), StopLoss: null("90")}.build("alice")
	if o.Asset != "ETHUSDT" {
		t.Fatalf("asset = %q", o.Asset)
	}
	if o.Side != SideSell || o.Kind != KindStopTakeProfit {
		t.Fatalf("unexpected side/kind %s/%s", o.Side, o.Kind)
	}
}

func TestPatchApply(t *testing.T) {
	base := LimitConfig{Side: SideBuy, Asset: "X", Amount: dec("1"), LimitPrice: dec("100")}.build("alice")

	amount := dec("2")
	next, err := Patch{Amount: &amount}.Apply(base)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !next.Amount.Equal(amount) || !base.Amount.Equal(dec("1")) {
		t.Fatalf("patch must copy, got next=%s base=%s", next.Amount, base.Amount)
	}

	sl := dec("90")
	if _, err := (Patch{StopLoss: &sl}).Apply(base); !errors.Is(err, ErrInvalidOrderConfig) {
		t.Fatalf("limit order must reject stop-loss patch, got %v", err)
	}
	if _, err := (Patch{}).Apply(base); !errors.Is(err, ErrInvalidOrderConfig) {
		t.Fatalf("empty patch must be rejected, got %v", err)
	}
	zero := decimal.Zero
	if _, err := (Patch{LimitPrice: &zero}).Apply(base); !errors.Is(err, ErrInvalidOrderConfig) {
		t.Fatalf("zero limit must be rejected, got %v", err)
	}

	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	withExp, err := Patch{ExpiresAt: &exp}.Apply(base)
	if err != nil || !withExp.ExpiresAt.Equal(exp) {
		t.Fatalf("set expiry: %v %v", withExp.ExpiresAt, err)
	}
	cleared, err := Patch{ClearExpiry: true}.Apply(withExp)
	if err != nil || cleared.HasExpiry() {
		t.Fatalf("clear expiry: %v %v", cleared.ExpiresAt, err)
	}
	if _, err := (Patch{ExpiresAt: &exp, ClearExpiry: true}).Apply(base); err == nil {
		t.Fatalf("set+clear must be rejected")
	}
}

func TestPatchStopTakeProfitKeepsOrdering(t *testing.T) {
	base := StopTakeProfitConfig{Asset: "X", Amount: dec("1"), StopLoss: null("90"), TakeProfit: null("120")}.build("alice")
	sl := dec("125")
	if _, err := (Patch{StopLoss: &sl}).Apply(base); !errors.Is(err, ErrInvalidOrderConfig) {
		t.Fatalf("stop-loss above take-profit must be rejected, got %v", err)
	}
	sl = dec("95")
	next, err := Patch{StopLoss: &sl}.Apply(base)
	if err != nil || !next.StopLoss.Decimal.Equal(sl) {
		t.Fatalf("apply: %v", err)
	}
}

func TestParseSide(t *testing.T) {
	if s, err := ParseSide(" BUY "); err != nil || s != SideBuy {
		t.Fatalf("ParseSide buy: %v %v", s, err)
	}
	if _, err := ParseSide("short"); !errors.Is(err, ErrInvalidOrderConfig) {
		t.Fatalf("expected invalid side, got %v", err)
	}
}
