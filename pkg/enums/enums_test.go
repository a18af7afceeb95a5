package enums

import "testing"

func TestParseRentalStatus(t *testing.T) {
	for _, raw := range []string{"ongoing", "returned", "overdue"} {
		got, err := ParseRentalStatus(raw)
		if err != nil {
			t.Fatalf("ParseRentalStatus(%q) unexpected error: %v", raw, err)
		}
		if got.String() != raw {
			t.Fatalf("expected %q got %q", raw, got)
		}
	}
	if _, err := ParseRentalStatus("lost"); err == nil {
		t.Fatalf("expected error for unknown rental status")
	}
}

func TestParseBank(t *testing.T) {
	if b, err := ParseBank("bca"); err != nil || b != BankBCA {
		t.Fatalf("expected bca, got %q err=%v", b, err)
	}
	if _, err := ParseBank("BCA"); err == nil {
		t.Fatalf("bank parsing is case sensitive")
	}
	if Bank("mandiri").IsValid() {
		t.Fatalf("mandiri is not a supported virtual account bank")
	}
}

func TestTransactionStatusValues(t *testing.T) {
	if !TransactionStatusFailed.IsValid() {
		t.Fatalf("failed should be valid")
	}
	if TransactionStatus("settlement").IsValid() {
		t.Fatalf("gateway statuses are not stored verbatim")
	}
}

func TestOutboxEnums(t *testing.T) {
	if _, err := ParseOutboxEventType("payment_settled"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg := OutboxAggregateType("store"); agg.IsValid() {
		t.Fatalf("store aggregate should not be valid")
	}
}
