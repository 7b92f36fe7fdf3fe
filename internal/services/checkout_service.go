package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fashionfield/checkout/internal/backend"
	"github.com/fashionfield/checkout/internal/domain"
	"github.com/fashionfield/checkout/internal/payments"
	"github.com/fashionfield/checkout/internal/repositories"
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Drafts    repositories.DraftRepository
	Snapshots CartSnapshotBuilder
	Cart      CartBackend
	Payments  PaymentOrchestrator
	Pricing   domain.PricingRules
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	drafts    repositories.DraftRepository
	snapshots CartSnapshotBuilder
	cart      CartBackend
	payments  PaymentOrchestrator
	pricing   domain.PricingRules
	validate  *validator.Validate
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Drafts == nil {
		return nil, errors.New("checkout service: draft repository is required")
	}
	if deps.Snapshots == nil {
		return nil, errors.New("checkout service: snapshot builder is required")
	}
	if deps.Cart == nil {
		return nil, errors.New("checkout service: cart backend is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment orchestrator is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		drafts:    deps.Drafts,
		snapshots: deps.Snapshots,
		cart:      deps.Cart,
		payments:  deps.Payments,
		pricing:   deps.Pricing,
		validate:  newValidator(),
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Start snapshots the caller's backend cart into a fresh draft at the contact step.
func (s *checkoutService) Start(ctx context.Context, cmd StartCheckoutCommand) (domain.OrderDraft, error) {
	owner := strings.TrimSpace(cmd.Owner)
	if owner == "" {
		return domain.OrderDraft{}, ErrCheckoutInvalidInput
	}
	draft, err := s.snapshots.Build(ctx, owner, cmd.Token)
	if err != nil {
		return domain.OrderDraft{}, err
	}
	s.logger(ctx, "checkout.started", map[string]any{
		"owner":   owner,
		"draftId": draft.ID,
		"items":   len(draft.LineItems),
	})
	return draft, nil
}

// Get returns the persisted draft at its saved step.
func (s *checkoutService) Get(ctx context.Context, owner string) (domain.OrderDraft, error) {
	return s.load(ctx, owner)
}

// SubmitContact validates and stores contact details, then advances to shipping.
func (s *checkoutService) SubmitContact(ctx context.Context, owner string, contact domain.Contact) (domain.OrderDraft, error) {
	draft, err := s.load(ctx, owner)
	if err != nil {
		return domain.OrderDraft{}, err
	}

	cleaned := cleanContact(contact)
	if err := validateContact(s.validate, cleaned); err != nil {
		return domain.OrderDraft{}, err
	}

	draft.Contact = &cleaned
	draft.MarkCompleted(domain.StepContact)
	draft.ActiveStep = domain.StepShipping
	if err := s.save(ctx, &draft); err != nil {
		return domain.OrderDraft{}, err
	}
	s.logger(ctx, "checkout.contact.submitted", map[string]any{"owner": draft.Owner, "draftId": draft.ID})
	return draft, nil
}

// SubmitShipping validates and stores the shipping address, then advances to payment.
func (s *checkoutService) SubmitShipping(ctx context.Context, owner string, address domain.ShippingAddress) (domain.OrderDraft, error) {
	draft, err := s.load(ctx, owner)
	if err != nil {
		return domain.OrderDraft{}, err
	}
	if !draft.HasCompleted(domain.StepContact) {
		return domain.OrderDraft{}, fmt.Errorf("%w: contact must be submitted before shipping", ErrCheckoutStepOrder)
	}

	cleaned := cleanShipping(address)
	if err := validateShipping(s.validate, cleaned); err != nil {
		return domain.OrderDraft{}, err
	}

	draft.Shipping = &cleaned
	draft.MarkCompleted(domain.StepShipping)
	draft.ActiveStep = domain.StepPayment
	if err := s.save(ctx, &draft); err != nil {
		return domain.OrderDraft{}, err
	}
	s.logger(ctx, "checkout.shipping.submitted", map[string]any{
		"owner":   draft.Owner,
		"draftId": draft.ID,
		"country": cleaned.Country,
	})
	return draft, nil
}

// SubmitPayment records the payment type and starts payment with the orchestrator.
// Card data never passes through this service.
func (s *checkoutService) SubmitPayment(ctx context.Context, cmd SubmitPaymentCommand) (PaymentResult, error) {
	if !cmd.PaymentType.Valid() {
		return PaymentResult{}, &ValidationError{Fields: map[string]string{"paymentType": "must be card or home"}}
	}
	draft, err := s.load(ctx, cmd.Owner)
	if err != nil {
		return PaymentResult{}, err
	}
	if !draft.HasCompleted(domain.StepShipping) {
		return PaymentResult{}, fmt.Errorf("%w: shipping must be submitted before payment", ErrCheckoutStepOrder)
	}
	if len(draft.LineItems) == 0 {
		return PaymentResult{}, ErrCheckoutCartEmpty
	}

	draft.PaymentType = cmd.PaymentType
	draft.PaymentID = ""
	draft.ActiveStep = domain.StepPayment

	result, err := s.payments.Begin(ctx, draft)
	if err != nil {
		s.logger(ctx, "checkout.payment.begin_failed", map[string]any{
			"owner":       draft.Owner,
			"draftId":     draft.ID,
			"paymentType": string(cmd.PaymentType),
			"error":       err.Error(),
		})
		return PaymentResult{}, err
	}

	draft.PaymentID = result.PaymentID
	if cmd.PaymentType == domain.PaymentTypePayAtHome || result.Paid {
		draft.MarkCompleted(domain.StepPayment)
	}
	if err := s.save(ctx, &draft); err != nil {
		return PaymentResult{}, err
	}
	result.Draft = draft
	s.logger(ctx, "checkout.payment.submitted", map[string]any{
		"owner":       draft.Owner,
		"draftId":     draft.ID,
		"paymentType": string(cmd.PaymentType),
		"protocol":    string(result.Protocol),
		"paymentId":   result.PaymentID,
	})
	return result, nil
}

// ConfirmPayment confirms the draft's card payment. A processor rejection is returned in
// the confirmation and leaves the payment step open.
func (s *checkoutService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (PaymentConfirmation, error) {
	draft, err := s.load(ctx, cmd.Owner)
	if err != nil {
		return PaymentConfirmation{}, err
	}
	paymentID := strings.TrimSpace(cmd.PaymentID)
	if draft.PaymentType != domain.PaymentTypeCardOnline || draft.PaymentID == "" || paymentID != draft.PaymentID {
		return PaymentConfirmation{}, fmt.Errorf("%w: payment id does not belong to the draft", ErrCheckoutInvalidInput)
	}

	confirmation, err := s.payments.Confirm(ctx, draft, cmd.PaymentMethodID)
	if err != nil {
		return PaymentConfirmation{}, err
	}
	if confirmation.Error != nil || confirmation.Status != string(payments.StatusSucceeded) {
		return confirmation, nil
	}

	draft.MarkCompleted(domain.StepPayment)
	if err := s.save(ctx, &draft); err != nil {
		return PaymentConfirmation{}, err
	}
	return confirmation, nil
}

// Reopen moves the active step back to a completed step. Data of later steps is kept.
func (s *checkoutService) Reopen(ctx context.Context, owner string, step domain.CheckoutStep) (domain.OrderDraft, error) {
	if step.Index() < 0 {
		return domain.OrderDraft{}, &ValidationError{Fields: map[string]string{"step": "is invalid"}}
	}
	draft, err := s.load(ctx, owner)
	if err != nil {
		return domain.OrderDraft{}, err
	}
	if !draft.HasCompleted(step) {
		return domain.OrderDraft{}, fmt.Errorf("%w: %s has not been submitted", ErrCheckoutStepOrder, step)
	}
	draft.ActiveStep = step
	if err := s.save(ctx, &draft); err != nil {
		return domain.OrderDraft{}, err
	}
	return draft, nil
}

// RemoveItem removes a line from the backend cart and from the draft, then reprices it.
func (s *checkoutService) RemoveItem(ctx context.Context, cmd RemoveItemCommand) (domain.OrderDraft, error) {
	productDetailID := strings.TrimSpace(cmd.ProductDetailID)
	if productDetailID == "" {
		return domain.OrderDraft{}, ErrCheckoutInvalidInput
	}
	draft, err := s.load(ctx, cmd.Owner)
	if err != nil {
		return domain.OrderDraft{}, err
	}

	if err := s.cart.RemoveCartItem(ctx, cmd.Token, productDetailID); err != nil && !errors.Is(err, backend.ErrNotFound) {
		return domain.OrderDraft{}, translateBackendError(err)
	}

	if draft.RemoveLine(productDetailID) {
		s.pricing.Apply(&draft)
		resetPayment(&draft)
	}
	if err := s.save(ctx, &draft); err != nil {
		return domain.OrderDraft{}, err
	}
	s.logger(ctx, "checkout.item.removed", map[string]any{
		"owner":           draft.Owner,
		"draftId":         draft.ID,
		"productDetailId": productDetailID,
		"total":           domain.FormatAmount(draft.Total),
	})
	return draft, nil
}

// AddCartItem forwards an add-to-cart request to the backend.
func (s *checkoutService) AddCartItem(ctx context.Context, cmd AddCartItemCommand) error {
	if strings.TrimSpace(cmd.Owner) == "" {
		return ErrCheckoutInvalidInput
	}
	form := cartItemForm{ProductDetailID: strings.TrimSpace(cmd.ProductDetailID), Quantity: cmd.Quantity}
	if err := fieldErrors(s.validate.Struct(form)); err != nil {
		return err
	}
	if err := s.cart.AddCartItem(ctx, cmd.Token, backend.AddCartItemRequest{
		ProductDetailID: form.ProductDetailID,
		Quantity:        form.Quantity,
	}); err != nil {
		return translateBackendError(err)
	}
	s.logger(ctx, "checkout.cart.item_added", map[string]any{
		"owner":           cmd.Owner,
		"productDetailId": form.ProductDetailID,
		"quantity":        form.Quantity,
	})
	return nil
}

func (s *checkoutService) load(ctx context.Context, owner string) (domain.OrderDraft, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return domain.OrderDraft{}, ErrCheckoutInvalidInput
	}
	draft, err := s.drafts.Get(ctx, owner)
	if err != nil {
		return domain.OrderDraft{}, translateDraftError(err)
	}
	return draft, nil
}

func (s *checkoutService) save(ctx context.Context, draft *domain.OrderDraft) error {
	draft.UpdatedAt = s.now()
	if err := s.drafts.Save(ctx, *draft); err != nil {
		return translateDraftError(err)
	}
	return nil
}

// resetPayment discards a started payment after the amount changed.
func resetPayment(draft *domain.OrderDraft) {
	draft.PaymentID = ""
	kept := draft.CompletedSteps[:0]
	for _, step := range draft.CompletedSteps {
		if step != domain.StepPayment {
			kept = append(kept, step)
		}
	}
	draft.CompletedSteps = kept
}

func translateBackendError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, backend.ErrUnauthorized):
		return fmt.Errorf("%w: %v", ErrCheckoutUnauthorized, err)
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, backend.ErrRejected):
		return fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	default:
		return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
}
