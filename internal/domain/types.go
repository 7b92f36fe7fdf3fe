package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType enumerates the payment options offered on the payment step.
type PaymentType string

const (
	// PaymentTypeCardOnline captures the card through the payment processor widget.
	PaymentTypeCardOnline PaymentType = "card"
	// PaymentTypePayAtHome defers payment to delivery; no processor call is made.
	PaymentTypePayAtHome PaymentType = "home"
)

// Valid reports whether the payment type is one of the supported options.
func (p PaymentType) Valid() bool {
	return p == PaymentTypeCardOnline || p == PaymentTypePayAtHome
}

// CheckoutStep enumerates the linear checkout flow.
type CheckoutStep string

const (
	StepContact  CheckoutStep = "contact"
	StepShipping CheckoutStep = "shipping"
	StepPayment  CheckoutStep = "payment"
)

// Index returns the position of the step in the flow, or -1 when unknown.
func (s CheckoutStep) Index() int {
	switch s {
	case StepContact:
		return 0
	case StepShipping:
		return 1
	case StepPayment:
		return 2
	default:
		return -1
	}
}

// Next returns the step following s. Payment is terminal and returns itself.
func (s CheckoutStep) Next() CheckoutStep {
	switch s {
	case StepContact:
		return StepShipping
	default:
		return StepPayment
	}
}

// Order status values recorded in the status history.
const (
	OrderStatusDraft   = "draft"
	OrderStatusPaid    = "paid"
	OrderStatusPending = "pending"
	OrderStatusNew     = "new"
)

// LineItem is a cart line frozen at snapshot time.
type LineItem struct {
	ProductDetailID string          `json:"productDetailId"`
	Name            string          `json:"name"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	Quantity        int             `json:"quantity"`
	Color           string          `json:"color,omitempty"`
	Size            string          `json:"size,omitempty"`
	ImageRefs       []string        `json:"imageRefs,omitempty"`
}

// LineTotal returns unit price multiplied by quantity.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Contact holds the details captured on the contact step.
type Contact struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone"`
}

// ShippingAddress holds the destination captured on the shipping step.
type ShippingAddress struct {
	AddressType string `json:"addressType,omitempty"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	AptSuite    string `json:"aptSuite,omitempty"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postalCode"`
	Country     string `json:"country"`
}

// FullName joins first and last name.
func (s ShippingAddress) FullName() string {
	switch {
	case s.FirstName == "":
		return s.LastName
	case s.LastName == "":
		return s.FirstName
	default:
		return s.FirstName + " " + s.LastName
	}
}

// OrderStatusEntry is one element of the order status history.
type OrderStatusEntry struct {
	Date   time.Time `json:"date"`
	Status string    `json:"status"`
}

// OrderDraft is the not-yet-submitted order assembled through checkout.
type OrderDraft struct {
	ID             string             `json:"id"`
	Owner          string             `json:"owner"`
	Currency       string             `json:"currency"`
	LineItems      []LineItem         `json:"lineItems"`
	Subtotal       decimal.Decimal    `json:"subtotal"`
	ShippingFee    decimal.Decimal    `json:"shippingFee"`
	Tax            decimal.Decimal    `json:"tax"`
	Discount       decimal.Decimal    `json:"discount"`
	Total          decimal.Decimal    `json:"total"`
	Contact        *Contact           `json:"contact,omitempty"`
	Shipping       *ShippingAddress   `json:"shipping,omitempty"`
	PaymentType    PaymentType        `json:"paymentType,omitempty"`
	PaymentID      string             `json:"paymentId,omitempty"`
	ActiveStep     CheckoutStep       `json:"activeStep"`
	CompletedSteps []CheckoutStep     `json:"completedSteps,omitempty"`
	StatusHistory  []OrderStatusEntry `json:"statusHistory,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// TransactionReference is the processor's proof of payment, or a nil id for pay-at-home.
type TransactionReference struct {
	TransactionID *string
	Amount        decimal.Decimal
}

// ID returns the transaction id or an empty string for pay-at-home.
func (t TransactionReference) ID() string {
	if t.TransactionID == nil {
		return ""
	}
	return *t.TransactionID
}

// OrderLine is a line of the order record posted to the backend order service.
type OrderLine struct {
	ProductDetailID  string          `json:"productDetailId"`
	ProductName      string          `json:"productName"`
	Quantity         int             `json:"quantity"`
	PresentUnitPrice decimal.Decimal `json:"presentUnitPrice"`
	Color            string          `json:"color,omitempty"`
	Size             string          `json:"size,omitempty"`
	ImageURLs        []string        `json:"imageUrls,omitempty"`
}

// UserInfo is the recipient block expected by the backend order service.
type UserInfo struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
	Address    string `json:"address"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
	Country    string `json:"country"`
	Province   string `json:"province,omitempty"`
	Apt        string `json:"apt,omitempty"`
}

// Order is the record submitted to the backend on payment completion.
type Order struct {
	OrderDetail        []OrderLine        `json:"orderDetail"`
	OrderStatusHistory []OrderStatusEntry `json:"orderStatusHistory"`
	UserInfo           UserInfo           `json:"userInfo"`
	Date               time.Time          `json:"date"`
	PaymentMethod      PaymentType        `json:"paymentMethod"`
	Status             string             `json:"status"`
	ShippingFee        decimal.Decimal    `json:"shippingFee"`
	Tax                decimal.Decimal    `json:"tax"`
	Discount           decimal.Decimal    `json:"discount"`
	Total              decimal.Decimal    `json:"total"`
	Currency           string             `json:"currency,omitempty"`
	TransactionID      *string            `json:"transactionId"`
}
