package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeInvoiceItemAPI interface {
	New(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error)
}

type stripeInvoiceAPI interface {
	New(params *stripe.InvoiceParams) (*stripe.Invoice, error)
	FinalizeInvoice(id string, params *stripe.InvoiceFinalizeInvoiceParams) (*stripe.Invoice, error)
	Pay(id string, params *stripe.InvoicePayParams) (*stripe.Invoice, error)
	Get(id string, params *stripe.InvoiceParams) (*stripe.Invoice, error)
}

type stripeClients struct {
	intents      stripePaymentIntentAPI
	invoiceItems stripeInvoiceItemAPI
	invoices     stripeInvoiceAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clients   *stripeClients
}

// StripeProvider implements IntentProvider and InvoiceProvider using Stripe APIs.
type StripeProvider struct {
	api     stripeClients
	account string
	logger  StripeLogger
}

var (
	_ IntentProvider  = (*StripeProvider)(nil)
	_ InvoiceProvider = (*StripeProvider)(nil)
)

// NewStripeProvider constructs a Stripe provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents:      sc.PaymentIntents,
			invoiceItems: sc.InvoiceItems,
			invoices:     sc.Invoices,
		}
	}
	if clients.intents == nil || clients.invoiceItems == nil || clients.invoices == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		logger:  logger,
	}, nil
}

func (p *StripeProvider) prepare(ctx context.Context, params *stripe.Params, idempotencyKey string) {
	params.Context = ctx
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
}

// CreateIntent creates a payment intent with automatic payment methods enabled.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return Intent{}, errors.New("stripe: intent amount must be positive")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	p.prepare(ctx, &params.Params, req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return Intent{}, mapStripeError("create payment intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})
	return Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       normaliseIntentStatus(intent.Status),
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
	}, nil
}

// ConfirmIntent confirms a payment intent with the payment method and return URL.
func (p *StripeProvider) ConfirmIntent(ctx context.Context, req ConfirmRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentConfirmParams{}
	if req.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethodID)
	}
	if req.ReturnURL != "" {
		params.ReturnURL = stripe.String(req.ReturnURL)
	}
	p.prepare(ctx, &params.Params, req.IdempotencyKey)

	intent, err := p.api.intents.Confirm(req.IntentID, params)
	if err != nil {
		return PaymentDetails{}, mapStripeError("confirm payment intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.confirmed", map[string]any{
		"paymentIntent": intent.ID,
		"status":        intent.Status,
	})
	return stripePaymentDetails(intent), nil
}

// LookupPayment retrieves a payment intent.
func (p *StripeProvider) LookupPayment(ctx context.Context, intentID string) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{}
	p.prepare(ctx, &params.Params, "")
	intent, err := p.api.intents.Get(intentID, params)
	if err != nil {
		return PaymentDetails{}, mapStripeError("lookup payment intent", err)
	}
	return stripePaymentDetails(intent), nil
}

// CreateInvoiceItem adds a pending invoice item to the customer.
func (p *StripeProvider) CreateInvoiceItem(ctx context.Context, req InvoiceItemRequest) (InvoiceItem, error) {
	if p == nil {
		return InvoiceItem{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.InvoiceItemParams{
		Customer: stripe.String(req.CustomerID),
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	p.prepare(ctx, &params.Params, req.IdempotencyKey)

	item, err := p.api.invoiceItems.New(params)
	if err != nil {
		return InvoiceItem{}, mapStripeError("create invoice item", err)
	}
	return InvoiceItem{ID: item.ID, Amount: item.Amount}, nil
}

// CreateInvoice creates a draft invoice that picks up the customer's pending items.
func (p *StripeProvider) CreateInvoice(ctx context.Context, customerID, idempotencyKey string, metadata map[string]string) (Invoice, error) {
	if p == nil {
		return Invoice{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.InvoiceParams{
		Customer:                    stripe.String(customerID),
		PendingInvoiceItemsBehavior: stripe.String("include"),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	p.prepare(ctx, &params.Params, idempotencyKey)

	inv, err := p.api.invoices.New(params)
	if err != nil {
		return Invoice{}, mapStripeError("create invoice", err)
	}
	return stripeInvoice(inv), nil
}

// FinalizeInvoice moves a draft invoice to open.
func (p *StripeProvider) FinalizeInvoice(ctx context.Context, invoiceID string) (Invoice, error) {
	if p == nil {
		return Invoice{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.InvoiceFinalizeInvoiceParams{}
	p.prepare(ctx, &params.Params, "")
	inv, err := p.api.invoices.FinalizeInvoice(invoiceID, params)
	if err != nil {
		return Invoice{}, mapStripeError("finalize invoice", err)
	}
	return stripeInvoice(inv), nil
}

// PayInvoice charges the customer's default payment method for an open invoice.
func (p *StripeProvider) PayInvoice(ctx context.Context, invoiceID string) (Invoice, error) {
	if p == nil {
		return Invoice{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.InvoicePayParams{}
	p.prepare(ctx, &params.Params, "")
	inv, err := p.api.invoices.Pay(invoiceID, params)
	if err != nil {
		return Invoice{}, mapStripeError("pay invoice", err)
	}
	p.logger(ctx, "payments.stripe.invoice.paid", map[string]any{
		"invoice":    inv.ID,
		"amountPaid": inv.AmountPaid,
	})
	return stripeInvoice(inv), nil
}

// GetInvoice retrieves an invoice for reconciliation.
func (p *StripeProvider) GetInvoice(ctx context.Context, invoiceID string) (Invoice, error) {
	if p == nil {
		return Invoice{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.InvoiceParams{}
	p.prepare(ctx, &params.Params, "")
	inv, err := p.api.invoices.Get(invoiceID, params)
	if err != nil {
		return Invoice{}, mapStripeError("get invoice", err)
	}
	return stripeInvoice(inv), nil
}

func stripeInvoice(inv *stripe.Invoice) Invoice {
	if inv == nil {
		return Invoice{}
	}
	out := Invoice{
		ID:         inv.ID,
		Status:     string(inv.Status),
		AmountDue:  inv.AmountDue,
		AmountPaid: inv.AmountPaid,
		Paid:       inv.Paid,
		Currency:   strings.ToUpper(string(inv.Currency)),
		HostedURL:  inv.HostedInvoiceURL,
		Metadata:   inv.Metadata,
	}
	if inv.PaymentIntent != nil {
		out.PaymentIntentID = inv.PaymentIntent.ID
	}
	return out
}

func stripePaymentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}
	details := PaymentDetails{
		Provider: "stripe",
		IntentID: intent.ID,
		Status:   normaliseIntentStatus(intent.Status),
		Amount:   intent.Amount,
		Currency: strings.ToUpper(string(intent.Currency)),
		Metadata: intent.Metadata,
	}
	if intent.NextAction != nil && intent.NextAction.RedirectToURL != nil {
		details.NextActionURL = intent.NextAction.RedirectToURL.URL
	}
	return details
}

func normaliseIntentStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	case stripe.PaymentIntentStatusRequiresAction:
		return StatusRequiresAction
	default:
		return StatusPending
	}
}

// mapStripeError splits customer-facing card and request errors from transport failures.
func mapStripeError(op string, err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return fmt.Errorf("%w: stripe %s: %v", ErrProcessorUnavailable, op, err)
	}
	if serr.HTTPStatusCode == http.StatusTooManyRequests || serr.HTTPStatusCode >= 500 || serr.Type == stripe.ErrorTypeAPI {
		return fmt.Errorf("%w: stripe %s: %v", ErrProcessorUnavailable, op, err)
	}
	return &ProcessorError{
		Code:        string(serr.Code),
		DeclineCode: string(serr.DeclineCode),
		Message:     serr.Msg,
		Err:         fmt.Errorf("stripe %s: %w", op, err),
	}
}
