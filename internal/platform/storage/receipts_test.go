package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fashionfield/checkout/internal/services"
)

func TestReceiptArchiverWritesJSON(t *testing.T) {
	var gotBucket, gotObject, gotType string
	var gotData []byte
	archiver, err := newReceiptArchiver("receipts-bucket", "prod", func(_ context.Context, bucket, object, contentType string, data []byte) error {
		gotBucket, gotObject, gotType, gotData = bucket, object, contentType, data
		return nil
	})
	if err != nil {
		t.Fatalf("newReceiptArchiver: %v", err)
	}

	receipt := services.OrderReceipt{
		GuardKey:    "home_d_1",
		DraftID:     "d_1",
		Owner:       "user-1",
		SubmittedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	uri, err := archiver.ArchiveReceipt(context.Background(), receipt)
	if err != nil {
		t.Fatalf("ArchiveReceipt: %v", err)
	}
	if uri != "gs://receipts-bucket/prod/receipts/2025/01/home_d_1.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	if gotBucket != "receipts-bucket" || gotObject != "prod/receipts/2025/01/home_d_1.json" || gotType != "application/json" {
		t.Fatalf("unexpected write %s %s %s", gotBucket, gotObject, gotType)
	}
	var decoded services.OrderReceipt
	if err := json.Unmarshal(gotData, &decoded); err != nil || decoded.DraftID != "d_1" {
		t.Fatalf("unexpected payload %s (%v)", gotData, err)
	}
}

func TestReceiptArchiverReportsDuplicates(t *testing.T) {
	archiver, _ := newReceiptArchiver("b", "", func(context.Context, string, string, string, []byte) error {
		return ErrAlreadyArchived
	})
	uri, err := archiver.ArchiveReceipt(context.Background(), services.OrderReceipt{GuardKey: "k", SubmittedAt: time.Now()})
	if !errors.Is(err, ErrAlreadyArchived) || uri == "" {
		t.Fatalf("expected ErrAlreadyArchived with uri, got %q %v", uri, err)
	}

	if _, err := newReceiptArchiver(" ", "", nil); err == nil {
		t.Fatalf("expected bucket validation error")
	}
}

func TestReceiptArchiverRejectsInvalidInput(t *testing.T) {
	called := false
	archiver, err := newReceiptArchiver("bucket", "", func(context.Context, string, string, string, []byte) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := archiver.ArchiveReceipt(context.Background(), services.OrderReceipt{GuardKey: "../x", SubmittedAt: time.Now()}); err == nil {
		t.Fatalf("expected error for traversal key")
	}
	if called {
		t.Fatalf("expected no write for invalid key")
	}
}
