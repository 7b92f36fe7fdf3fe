// Package storage archives submitted order receipts to Cloud Storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/fashionfield/checkout/internal/services"
)

// ErrAlreadyArchived is returned when a receipt for the guard key already exists.
var ErrAlreadyArchived = errors.New("storage: receipt already archived")

// objectPutter writes data to bucket/object only when the object does not exist yet.
type objectPutter func(ctx context.Context, bucket, object, contentType string, data []byte) error

// ReceiptArchiver writes one immutable JSON object per submitted order.
type ReceiptArchiver struct {
	bucket string
	prefix string
	put    objectPutter
}

// NewReceiptArchiver constructs an archiver writing into bucket under prefix.
func NewReceiptArchiver(client *gcs.Client, bucket, prefix string) (*ReceiptArchiver, error) {
	if client == nil {
		return nil, errors.New("receipt archiver: client is required")
	}
	return newReceiptArchiver(bucket, prefix, gcsPutter(client))
}

func newReceiptArchiver(bucket, prefix string, put objectPutter) (*ReceiptArchiver, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("receipt archiver: bucket is required")
	}
	return &ReceiptArchiver{bucket: bucket, prefix: prefix, put: put}, nil
}

// ArchiveReceipt stores the receipt and returns its gs:// URI.
func (a *ReceiptArchiver) ArchiveReceipt(ctx context.Context, receipt services.OrderReceipt) (string, error) {
	object, err := BuildReceiptPath(ReceiptPathParams{
		Prefix:      a.prefix,
		GuardKey:    receipt.GuardKey,
		SubmittedAt: receipt.SubmittedAt,
	})
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal receipt: %w", err)
	}

	uri := fmt.Sprintf("gs://%s/%s", a.bucket, object)
	if err := a.put(ctx, a.bucket, object, "application/json", data); err != nil {
		if errors.Is(err, ErrAlreadyArchived) {
			return uri, err
		}
		return "", fmt.Errorf("archive receipt %s: %w", object, err)
	}
	return uri, nil
}

func gcsPutter(client *gcs.Client) objectPutter {
	return func(ctx context.Context, bucket, object, contentType string, data []byte) error {
		w := client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
		w.ContentType = contentType
		w.CacheControl = "private, no-store"
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return err
		}
		err := w.Close()
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return ErrAlreadyArchived
		}
		return err
	}
}
