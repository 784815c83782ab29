package order

import "testing"

func TestTrailingTrackerPercent(t *testing.T) {
	tr := NewTrailingTracker()
	o := TrailingStopConfig{Asset: "X", Amount: dec("1"), TrailPercent: null("5")}.build("alice")
	o.ID = "t1"

	steps := []struct {
		price, trigger, high string
	}{
		{"200", "190", "200"},
		{"210", "199.5", "210"},
		{"198", "199.5", "210"},
		{"205", "199.5", "210"},
	}
	for _, s := range steps {
		trigger, high := tr.Observe(o, dec(s.price))
		if !trigger.Equal(dec(s.trigger)) || !high.Equal(dec(s.high)) {
			t.Fatalf("price %s: trigger=%s high=%s, want %s/%s", s.price, trigger, high, s.trigger, s.high)
		}
	}
	tr.Forget("t1")
	if _, ok := tr.Trigger(o); ok || tr.Len() != 0 {
		t.Fatalf("forget should drop state")
	}
}

func TestTrailingTrackerSeedsFromRecord(t *testing.T) {
	tr := NewTrailingTracker()
	o := TrailingStopConfig{Asset: "X", Amount: dec("1"), TrailAmount: null("10")}.build("alice")
	o.ID = "t2"
	o.HighestPrice = null("150")

	trigger, high := tr.Observe(o, dec("120"))
	if !high.Equal(dec("150")) || !trigger.Equal(dec("140")) {
		t.Fatalf("persisted high must be honoured, got %s/%s", trigger, high)
	}

	tr.Seed("t3", dec("100"))
	tr.Seed("t3", dec("90"))
	o.ID = "t3"
	if trig, ok := tr.Trigger(o); !ok || !trig.Equal(dec("90")) {
		t.Fatalf("seed must not lower the high, got %s", trig)
	}
}
