package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fashionfield/checkout/internal/domain"
	"github.com/fashionfield/checkout/internal/payments"
)

// PaymentOrchestratorDeps wires the dependencies required by the payment orchestrator.
type PaymentOrchestratorDeps struct {
	Protocol PaymentProtocol
	Intents  payments.IntentProvider
	Invoices payments.InvoiceProvider
	Currency string
	// InvoiceCustomerID is the processor customer billed by the invoice protocol.
	InvoiceCustomerID  string
	InvoiceDescription string
	// SuccessURL is the absolute payment-success page the processor returns to.
	SuccessURL string
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type paymentOrchestrator struct {
	protocol    PaymentProtocol
	intents     payments.IntentProvider
	invoices    payments.InvoiceProvider
	currency    string
	customerID  string
	description string
	successURL  *url.URL
	logger      func(ctx context.Context, event string, fields map[string]any)
}

// NewPaymentOrchestrator constructs a PaymentOrchestrator for the configured protocol.
func NewPaymentOrchestrator(deps PaymentOrchestratorDeps) (PaymentOrchestrator, error) {
	protocol := deps.Protocol
	if protocol == "" {
		protocol = PaymentProtocolIntent
	}
	switch protocol {
	case PaymentProtocolIntent:
		if deps.Intents == nil {
			return nil, errors.New("payment orchestrator: intent provider is required")
		}
	case PaymentProtocolInvoice:
		if deps.Invoices == nil {
			return nil, errors.New("payment orchestrator: invoice provider is required")
		}
		if strings.TrimSpace(deps.InvoiceCustomerID) == "" {
			return nil, errors.New("payment orchestrator: invoice customer id is required")
		}
	default:
		return nil, fmt.Errorf("payment orchestrator: unknown protocol %q", protocol)
	}

	success, err := url.Parse(strings.TrimSpace(deps.SuccessURL))
	if err != nil || success.Scheme == "" || success.Host == "" {
		return nil, fmt.Errorf("payment orchestrator: success url must be absolute: %q", deps.SuccessURL)
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}
	description := strings.TrimSpace(deps.InvoiceDescription)
	if description == "" {
		description = "Storefront order"
	}

	return &paymentOrchestrator{
		protocol:    protocol,
		intents:     deps.Intents,
		invoices:    deps.Invoices,
		currency:    currency,
		customerID:  strings.TrimSpace(deps.InvoiceCustomerID),
		description: description,
		successURL:  success,
		logger:      logger,
	}, nil
}

func (o *paymentOrchestrator) Protocol() PaymentProtocol {
	return o.protocol
}

// Begin starts payment for the draft. Pay-at-home returns a reference without an id and
// makes no processor call.
func (o *paymentOrchestrator) Begin(ctx context.Context, draft domain.OrderDraft) (PaymentResult, error) {
	result := PaymentResult{
		Draft:       draft,
		PaymentType: draft.PaymentType,
		Protocol:    o.protocol,
		Reference:   domain.TransactionReference{Amount: draft.Total},
	}

	switch draft.PaymentType {
	case domain.PaymentTypePayAtHome:
		result.ReturnURL = o.returnURL(draft.Total, "")
		return result, nil
	case domain.PaymentTypeCardOnline:
	default:
		return PaymentResult{}, &ValidationError{Fields: map[string]string{"paymentType": "is invalid"}}
	}

	minor, err := domain.ToMinorUnits(draft.Total)
	if err != nil || minor <= 0 {
		return PaymentResult{}, fmt.Errorf("%w: total %s cannot be charged", ErrPaymentFailed, domain.FormatAmount(draft.Total))
	}

	if o.protocol == PaymentProtocolInvoice {
		return o.beginInvoice(ctx, draft, minor, result)
	}
	return o.beginIntent(ctx, draft, minor, result)
}

func (o *paymentOrchestrator) beginIntent(ctx context.Context, draft domain.OrderDraft, minor int64, result PaymentResult) (PaymentResult, error) {
	intent, err := o.intents.CreateIntent(ctx, payments.IntentRequest{
		Amount:         minor,
		Currency:       o.currency,
		Description:    o.description,
		IdempotencyKey: "intent_" + draft.ID + "_" + strconv.FormatInt(minor, 10),
		Metadata:       paymentMetadata(draft),
	})
	if err != nil {
		o.logger(ctx, "payments.intent.create_failed", map[string]any{
			"draftId": draft.ID,
			"amount":  minor,
			"error":   err.Error(),
		})
		return PaymentResult{}, translateProcessorError(err)
	}

	id := intent.ID
	result.ClientSecret = intent.ClientSecret
	result.PaymentID = id
	result.ReturnURL = o.returnURL(draft.Total, id)
	result.Reference.TransactionID = &id
	result.Paid = intent.Status == payments.StatusSucceeded
	o.logger(ctx, "payments.intent.created", map[string]any{
		"draftId":   draft.ID,
		"paymentId": id,
		"amount":    minor,
	})
	return result, nil
}

// beginInvoice runs item, invoice, finalize and pay in order and stops at the first failure.
// Objects created before the failure are left in place and logged.
func (o *paymentOrchestrator) beginInvoice(ctx context.Context, draft domain.OrderDraft, minor int64, result PaymentResult) (PaymentResult, error) {
	o.logger(ctx, "payments.invoice.shared_customer", map[string]any{
		"draftId":  draft.ID,
		"customer": o.customerID,
		"warning":  "invoice protocol bills a single configured customer",
	})

	var orphaned []string
	fail := func(step string, err error) (PaymentResult, error) {
		o.logger(ctx, "payments.invoice.step_failed", map[string]any{
			"draftId":  draft.ID,
			"step":     step,
			"orphaned": orphaned,
			"error":    err.Error(),
		})
		return PaymentResult{}, translateProcessorError(err)
	}

	item, err := o.invoices.CreateInvoiceItem(ctx, payments.InvoiceItemRequest{
		CustomerID:     o.customerID,
		Amount:         minor,
		Currency:       o.currency,
		Description:    o.description,
		IdempotencyKey: "invoiceitem_" + draft.ID + "_" + strconv.FormatInt(minor, 10),
	})
	if err != nil {
		return fail("create_invoice_item", err)
	}
	orphaned = append(orphaned, item.ID)

	invoice, err := o.invoices.CreateInvoice(ctx, o.customerID, "invoice_"+draft.ID+"_"+item.ID, paymentMetadata(draft))
	if err != nil {
		return fail("create_invoice", err)
	}
	orphaned = append(orphaned, invoice.ID)

	if _, err := o.invoices.FinalizeInvoice(ctx, invoice.ID); err != nil {
		return fail("finalize_invoice", err)
	}

	paid, err := o.invoices.PayInvoice(ctx, invoice.ID)
	if err != nil {
		return fail("pay_invoice", err)
	}

	id := invoice.ID
	result.InvoiceID = id
	result.PaymentID = id
	result.ReturnURL = o.returnURL(draft.Total, id)
	result.Reference.TransactionID = &id
	result.Paid = paid.Paid
	o.logger(ctx, "payments.invoice.paid", map[string]any{
		"draftId":    draft.ID,
		"invoiceId":  id,
		"amountPaid": paid.AmountPaid,
	})
	return result, nil
}

// Confirm confirms the draft's payment intent. Processor rejections are returned inline.
func (o *paymentOrchestrator) Confirm(ctx context.Context, draft domain.OrderDraft, paymentMethodID string) (PaymentConfirmation, error) {
	if o.protocol != PaymentProtocolIntent {
		return PaymentConfirmation{}, fmt.Errorf("%w: confirmation requires the intent protocol", ErrCheckoutInvalidInput)
	}
	paymentMethodID = strings.TrimSpace(paymentMethodID)
	if draft.PaymentID == "" || paymentMethodID == "" {
		return PaymentConfirmation{}, ErrCheckoutInvalidInput
	}

	returnURL := o.returnURL(draft.Total, draft.PaymentID)
	details, err := o.intents.ConfirmIntent(ctx, payments.ConfirmRequest{
		IntentID:        draft.PaymentID,
		PaymentMethodID: paymentMethodID,
		ReturnURL:       returnURL,
		IdempotencyKey:  "confirm_" + draft.PaymentID + "_" + paymentMethodID,
	})
	if err != nil {
		if perr, ok := payments.AsProcessorError(err); ok {
			o.logger(ctx, "payments.intent.confirm_rejected", map[string]any{
				"draftId":   draft.ID,
				"paymentId": draft.PaymentID,
				"code":      perr.Code,
			})
			return PaymentConfirmation{
				PaymentID: draft.PaymentID,
				Status:    string(payments.StatusFailed),
				Error:     &PaymentError{Code: perr.Code, Message: perr.Message},
			}, nil
		}
		return PaymentConfirmation{}, translateProcessorError(err)
	}

	confirmation := PaymentConfirmation{PaymentID: draft.PaymentID, Status: string(details.Status)}
	switch details.Status {
	case payments.StatusSucceeded:
		confirmation.RedirectURL = returnURL
	case payments.StatusRequiresAction:
		confirmation.RedirectURL = details.NextActionURL
	case payments.StatusFailed:
		confirmation.Error = &PaymentError{Message: "payment was not completed"}
	}
	return confirmation, nil
}

// Verify checks with the processor that the transaction paid the draft total in the
// configured currency and was created for this draft.
func (o *paymentOrchestrator) Verify(ctx context.Context, draft domain.OrderDraft, transactionID string) error {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return ErrCheckoutInvalidInput
	}
	expected, err := domain.ToMinorUnits(draft.Total)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}

	var (
		paid     bool
		status   string
		amount   int64
		currency string
		metadata map[string]string
	)
	if o.protocol == PaymentProtocolInvoice {
		invoice, err := o.invoices.GetInvoice(ctx, transactionID)
		if err != nil {
			return translateVerifyError(err)
		}
		paid, status, amount, currency, metadata = invoice.Paid, invoice.Status, invoice.AmountPaid, invoice.Currency, invoice.Metadata
	} else {
		details, err := o.intents.LookupPayment(ctx, transactionID)
		if err != nil {
			return translateVerifyError(err)
		}
		paid = details.Status == payments.StatusSucceeded
		status, amount, currency, metadata = string(details.Status), details.Amount, details.Currency, details.Metadata
	}

	if !paid {
		return fmt.Errorf("%w: payment %s is %s", ErrPaymentMismatch, transactionID, status)
	}
	if amount != expected {
		return fmt.Errorf("%w: payment captured %d, expected %d", ErrPaymentMismatch, amount, expected)
	}
	if !strings.EqualFold(currency, o.currency) {
		return fmt.Errorf("%w: payment currency %q, expected %q", ErrPaymentMismatch, currency, o.currency)
	}
	if metadata[draftMetadataKey] != draft.ID {
		return fmt.Errorf("%w: payment %s was not created for draft %s", ErrPaymentMismatch, transactionID, draft.ID)
	}
	return nil
}

// draftMetadataKey ties a processor payment to the draft it pays for.
const draftMetadataKey = "draftId"

func paymentMetadata(draft domain.OrderDraft) map[string]string {
	return map[string]string{
		draftMetadataKey: draft.ID,
		"owner":          draft.Owner,
	}
}

func (o *paymentOrchestrator) returnURL(total decimal.Decimal, transactionID string) string {
	u := *o.successURL
	q := u.Query()
	q.Set("amount", domain.FormatAmount(total))
	if transactionID != "" {
		q.Set("transactionId", transactionID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func translateProcessorError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, payments.ErrProcessorUnavailable) {
		return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
}

func translateVerifyError(err error) error {
	if _, ok := payments.AsProcessorError(err); ok {
		return fmt.Errorf("%w: %v", ErrPaymentMismatch, err)
	}
	return translateProcessorError(err)
}
