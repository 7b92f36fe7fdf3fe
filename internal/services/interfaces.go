package services

import (
	"context"
	"time"

	"github.com/fashionfield/checkout/internal/backend"
	"github.com/fashionfield/checkout/internal/domain"
)

// CartBackend is the subset of the backend client used for cart reads and edits.
type CartBackend interface {
	GetCart(ctx context.Context, token string) ([]backend.CartItem, error)
	RemoveCartItem(ctx context.Context, token, productDetailID string) error
	AddCartItem(ctx context.Context, token string, req backend.AddCartItemRequest) error
}

// OrderBackend submits finished orders.
type OrderBackend interface {
	SubmitOrder(ctx context.Context, token string, order domain.Order) (backend.OrderResult, error)
}

// CartSnapshotBuilder freezes the backend cart into a new draft.
type CartSnapshotBuilder interface {
	Build(ctx context.Context, owner, token string) (domain.OrderDraft, error)
}

// CheckoutService drives the contact, shipping and payment steps of a draft.
type CheckoutService interface {
	Start(ctx context.Context, cmd StartCheckoutCommand) (domain.OrderDraft, error)
	Get(ctx context.Context, owner string) (domain.OrderDraft, error)
	SubmitContact(ctx context.Context, owner string, contact domain.Contact) (domain.OrderDraft, error)
	SubmitShipping(ctx context.Context, owner string, address domain.ShippingAddress) (domain.OrderDraft, error)
	SubmitPayment(ctx context.Context, cmd SubmitPaymentCommand) (PaymentResult, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (PaymentConfirmation, error)
	Reopen(ctx context.Context, owner string, step domain.CheckoutStep) (domain.OrderDraft, error)
	RemoveItem(ctx context.Context, cmd RemoveItemCommand) (domain.OrderDraft, error)
	AddCartItem(ctx context.Context, cmd AddCartItemCommand) error
}

// PaymentOrchestrator starts, confirms and verifies payments for a draft.
type PaymentOrchestrator interface {
	Protocol() PaymentProtocol
	Begin(ctx context.Context, draft domain.OrderDraft) (PaymentResult, error)
	Confirm(ctx context.Context, draft domain.OrderDraft, paymentMethodID string) (PaymentConfirmation, error)
	Verify(ctx context.Context, draft domain.OrderDraft, transactionID string) error
}

// OrderSubmissionService submits a paid draft to the backend exactly once per transaction.
type OrderSubmissionService interface {
	Complete(ctx context.Context, req CompletionRequest) (SubmissionOutcome, error)
}

// OrderEventPublisher announces submitted orders.
type OrderEventPublisher interface {
	PublishOrderSubmitted(ctx context.Context, event OrderSubmittedEvent) (string, error)
}

// ReceiptArchiver stores an immutable copy of each submitted order.
type ReceiptArchiver interface {
	ArchiveReceipt(ctx context.Context, receipt OrderReceipt) (string, error)
}

// StartCheckoutCommand starts checkout from the caller's backend cart.
type StartCheckoutCommand struct {
	Owner string
	Token string
}

// SubmitPaymentCommand selects the payment type on the payment step.
type SubmitPaymentCommand struct {
	Owner       string
	PaymentType domain.PaymentType
}

// ConfirmPaymentCommand confirms a card payment server-side.
type ConfirmPaymentCommand struct {
	Owner           string
	PaymentID       string
	PaymentMethodID string
}

// RemoveItemCommand removes a line from the backend cart and the draft.
type RemoveItemCommand struct {
	Owner           string
	Token           string
	ProductDetailID string
}

// AddCartItemCommand adds a product detail to the backend cart.
type AddCartItemCommand struct {
	Owner           string
	Token           string
	ProductDetailID string
	Quantity        int
}

// PaymentProtocol selects how card payments are captured.
type PaymentProtocol string

const (
	// PaymentProtocolIntent creates a payment intent confirmed by the storefront widget.
	PaymentProtocolIntent PaymentProtocol = "intent"
	// PaymentProtocolInvoice invoices a configured customer and pays the invoice immediately.
	PaymentProtocolInvoice PaymentProtocol = "invoice"
)

// PaymentResult is returned when the payment step is submitted.
type PaymentResult struct {
	Draft        domain.OrderDraft
	PaymentType  domain.PaymentType
	Protocol     PaymentProtocol
	ClientSecret string
	PaymentID    string
	ReturnURL    string
	InvoiceID    string
	Reference    domain.TransactionReference
	Paid         bool
}

// PaymentError is a processor error shown inline on the payment step.
type PaymentError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// PaymentConfirmation is the outcome of a server-side confirmation.
type PaymentConfirmation struct {
	PaymentID   string        `json:"paymentId"`
	Status      string        `json:"status"`
	RedirectURL string        `json:"redirectUrl,omitempty"`
	Error       *PaymentError `json:"error,omitempty"`
}

// SubmissionState enumerates order submission outcomes.
type SubmissionState string

const (
	// SubmissionIdle answers a duplicate callback for an order that was already submitted.
	SubmissionIdle SubmissionState = "idle"
	// SubmissionPending means another callback for the same transaction is still running.
	SubmissionPending   SubmissionState = "pending"
	SubmissionCompleted SubmissionState = "completed"
	SubmissionFailed    SubmissionState = "failed"
)

// CompletionRequest is the payment-success callback. Amount is the major-unit string from the return URL.
type CompletionRequest struct {
	Owner         string
	Token         string
	TransactionID string
	Amount        string
}

// SubmissionOutcome tells the caller where to send the customer next.
type SubmissionOutcome struct {
	State         SubmissionState `json:"state"`
	GuardKey      string          `json:"guardKey,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
	RedirectURL   string          `json:"redirectUrl,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// EventTypeOrderSubmitted is the event type attribute of order-submitted messages.
const EventTypeOrderSubmitted = "checkout.order.submitted"

// OrderSubmittedEvent is published after the backend accepts an order.
type OrderSubmittedEvent struct {
	EventID       string    `json:"eventId"`
	TransactionID string    `json:"transactionId,omitempty"`
	GuardKey      string    `json:"guardKey"`
	DraftID       string    `json:"draftId"`
	Owner         string    `json:"owner"`
	PaymentMethod string    `json:"paymentMethod"`
	Total         string    `json:"total"`
	Currency      string    `json:"currency"`
	Items         int       `json:"items"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// OrderReceipt is the archived copy of a submitted order.
type OrderReceipt struct {
	GuardKey    string       `json:"guardKey"`
	DraftID     string       `json:"draftId"`
	Owner       string       `json:"owner"`
	SubmittedAt time.Time    `json:"submittedAt"`
	Order       domain.Order `json:"order"`
	Backend     string       `json:"backendMessage,omitempty"`
}
