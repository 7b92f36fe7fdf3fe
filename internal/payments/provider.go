package payments

import (
	"context"
	"errors"
	"fmt"
)

// Status enumerates the normalised payment states.
type Status string

const (
	// StatusPending indicates the payment is awaiting a payment method, confirmation or processing.
	StatusPending Status = "pending"
	// StatusRequiresAction indicates the customer must complete an extra step such as 3-D Secure.
	StatusRequiresAction Status = "requires_action"
	// StatusSucceeded indicates the processor reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the processor reports a failure and no further action is possible.
	StatusFailed Status = "failed"
)

// ErrProcessorUnavailable is returned when the processor cannot be reached or rate limits the call.
var ErrProcessorUnavailable = errors.New("payments: processor unavailable")

// ProcessorError is an error reported by the processor that can be shown to the customer.
type ProcessorError struct {
	Code        string
	DeclineCode string
	Message     string
	Err         error
}

func (e *ProcessorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payments: %s: %s", e.Code, e.Message)
	}
	return "payments: " + e.Message
}

// Unwrap exposes the processor error.
func (e *ProcessorError) Unwrap() error { return e.Err }

// AsProcessorError extracts a customer-facing processor error from err.
func AsProcessorError(err error) (*ProcessorError, bool) {
	var perr *ProcessorError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// IntentRequest creates a payment intent for an amount in minor units.
type IntentRequest struct {
	Amount         int64
	Currency       string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent is the processor intent returned to the storefront widget.
type Intent struct {
	ID           string
	ClientSecret string
	Status       Status
	Amount       int64
	Currency     string
}

// ConfirmRequest confirms an intent server-side with a tokenised payment method.
type ConfirmRequest struct {
	IntentID        string
	PaymentMethodID string
	ReturnURL       string
	IdempotencyKey  string
}

// PaymentDetails normalises processor fields used for reconciliation.
type PaymentDetails struct {
	Provider      string
	IntentID      string
	Status        Status
	Amount        int64
	Currency      string
	NextActionURL string
	Metadata      map[string]string
}

// InvoiceItemRequest creates a pending invoice item for a customer.
type InvoiceItemRequest struct {
	CustomerID     string
	Amount         int64
	Currency       string
	Description    string
	IdempotencyKey string
}

// InvoiceItem is a created invoice item.
type InvoiceItem struct {
	ID     string
	Amount int64
}

// Invoice summarises a processor invoice.
type Invoice struct {
	ID              string
	Status          string
	AmountDue       int64
	AmountPaid      int64
	Paid            bool
	Currency        string
	PaymentIntentID string
	HostedURL       string
	Metadata        map[string]string
}

// IntentProvider captures cards through processor payment intents.
type IntentProvider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	ConfirmIntent(ctx context.Context, req ConfirmRequest) (PaymentDetails, error)
	LookupPayment(ctx context.Context, intentID string) (PaymentDetails, error)
}

// InvoiceProvider captures payment by invoicing a customer.
type InvoiceProvider interface {
	CreateInvoiceItem(ctx context.Context, req InvoiceItemRequest) (InvoiceItem, error)
	CreateInvoice(ctx context.Context, customerID, idempotencyKey string, metadata map[string]string) (Invoice, error)
	FinalizeInvoice(ctx context.Context, invoiceID string) (Invoice, error)
	PayInvoice(ctx context.Context, invoiceID string) (Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (Invoice, error)
}
