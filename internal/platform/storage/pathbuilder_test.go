package storage

import (
	"testing"
	"time"
)

func TestBuildReceiptPath(t *testing.T) {
	path, err := BuildReceiptPath(ReceiptPathParams{
		Prefix:      "/checkout/",
		GuardKey:    "transaction_pi_123",
		SubmittedAt: time.Date(2025, 3, 9, 23, 0, 0, 0, time.FixedZone("JST", 9*3600)),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "checkout/receipts/2025/03/transaction_pi_123.json"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildReceiptPathRejectsInvalidSegment(t *testing.T) {
	for _, key := range []string{"", "../bad", "a/b"} {
		if _, err := BuildReceiptPath(ReceiptPathParams{GuardKey: key, SubmittedAt: time.Now()}); err == nil {
			t.Fatalf("expected error for guard key %q", key)
		}
	}
}
