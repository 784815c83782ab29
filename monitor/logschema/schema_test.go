package logschema

import "testing"

func TestValidate(t *testing.T) {
	err := Validate("order_filled", map[string]interface{}{
		"owner":       "alice",
		"asset":       "BTCUSDT",
		"status":      "filled",
		"filledPrice": "99",
		"txId":        "paper-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = Validate("order_filled", map[string]interface{}{
		"owner": "alice",
	})
	if err == nil {
		t.Fatalf("expected error for missing fields")
	}
}

func TestValidateUnknownEvent(t *testing.T) {
	if err := Validate("not_a_schema", nil); err != nil {
		t.Fatalf("unknown events should pass, got %v", err)
	}
}

func TestKnownEvents(t *testing.T) {
	names := Known()
	if len(names) == 0 {
		t.Fatalf("expected non-empty schema list")
	}
	found := false
	for _, n := range names {
		if n == "order_failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("order_failed not found in schemas")
	}
}
