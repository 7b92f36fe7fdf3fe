package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fashionfield/checkout/internal/domain"
	"github.com/fashionfield/checkout/internal/platform/idempotency"
	"github.com/fashionfield/checkout/internal/repositories"
)

const (
	guardFingerprint            = "order-submission"
	defaultGuardPendingTTL      = 10 * time.Minute
	defaultGuardCompletedTTL    = 30 * 24 * time.Hour
	defaultConfirmationURL      = "/collection"
	defaultSubmissionErrorURL   = "/payment/error"
	submissionMetricsInstrument = "github.com/fashionfield/checkout/internal/services"
)

// OrderSubmissionDeps wires the dependencies required by the order submission service.
type OrderSubmissionDeps struct {
	Drafts   repositories.DraftRepository
	Orders   OrderBackend
	Payments PaymentOrchestrator
	Guard    idempotency.Store
	Events   OrderEventPublisher
	Archive  ReceiptArchiver
	// PendingTTL bounds how long a crashed attempt blocks retries.
	PendingTTL time.Duration
	// CompletedTTL is how long a submitted transaction stays deduplicated.
	CompletedTTL    time.Duration
	ConfirmationURL string
	ErrorURL        string
	Meter           metric.Meter
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderSubmissionService struct {
	drafts          repositories.DraftRepository
	orders          OrderBackend
	payments        PaymentOrchestrator
	guard           idempotency.Store
	events          OrderEventPublisher
	archive         ReceiptArchiver
	pendingTTL      time.Duration
	completedTTL    time.Duration
	confirmationURL string
	errorURL        string
	outcomes        metric.Int64Counter
	now             func() time.Time
	logger          func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderSubmissionService constructs an OrderSubmissionService validating required dependencies.
func NewOrderSubmissionService(deps OrderSubmissionDeps) (OrderSubmissionService, error) {
	if deps.Drafts == nil {
		return nil, errors.New("order submission: draft repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order submission: order backend is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order submission: payment orchestrator is required")
	}
	if deps.Guard == nil {
		return nil, errors.New("order submission: guard store is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	pendingTTL := deps.PendingTTL
	if pendingTTL <= 0 {
		pendingTTL = defaultGuardPendingTTL
	}
	completedTTL := deps.CompletedTTL
	if completedTTL <= 0 {
		completedTTL = defaultGuardCompletedTTL
	}
	confirmationURL := strings.TrimSpace(deps.ConfirmationURL)
	if confirmationURL == "" {
		confirmationURL = defaultConfirmationURL
	}
	errorURL := strings.TrimSpace(deps.ErrorURL)
	if errorURL == "" {
		errorURL = defaultSubmissionErrorURL
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(submissionMetricsInstrument)
	}
	outcomes, err := meter.Int64Counter(
		"checkout.submission.outcomes",
		metric.WithDescription("Count of order submission attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("order submission: register outcome metric: %w", err)
	}

	return &orderSubmissionService{
		drafts:          deps.Drafts,
		orders:          deps.Orders,
		payments:        deps.Payments,
		guard:           deps.Guard,
		events:          deps.Events,
		archive:         deps.Archive,
		pendingTTL:      pendingTTL,
		completedTTL:    completedTTL,
		confirmationURL: confirmationURL,
		errorURL:        errorURL,
		outcomes:        outcomes,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Complete submits the owner's paid draft to the backend at most once per transaction.
// Duplicate callbacks short-circuit to Idle without contacting the backend.
func (s *orderSubmissionService) Complete(ctx context.Context, req CompletionRequest) (SubmissionOutcome, error) {
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		return SubmissionOutcome{}, ErrCheckoutInvalidInput
	}
	transactionID := strings.TrimSpace(req.TransactionID)

	var (
		draft  domain.OrderDraft
		loaded bool
		key    string
	)
	if transactionID == "" {
		// Pay-at-home callbacks carry no transaction id; the draft id keys the guard.
		d, err := s.drafts.Get(ctx, owner)
		if err != nil {
			if repositories.IsNotFound(err) {
				return s.replayPayAtHome(ctx, owner)
			}
			return SubmissionOutcome{}, translateDraftError(err)
		}
		if d.PaymentType != domain.PaymentTypePayAtHome {
			return s.failed(ctx, SubmissionOutcome{}, "transaction id is required"), nil
		}
		draft, loaded = d, true
		key = "home_" + d.ID
	} else {
		key = "transaction_" + transactionID
	}

	outcome := SubmissionOutcome{GuardKey: key, TransactionID: transactionID}
	reservation, err := s.guard.Reserve(ctx, key, guardFingerprint, s.now(), s.pendingTTL)
	if err != nil {
		return SubmissionOutcome{}, fmt.Errorf("%w: reserve guard: %v", ErrCheckoutUnavailable, err)
	}
	switch reservation.State {
	case idempotency.ReservationStateCompleted:
		return s.duplicate(ctx, outcome, owner), nil
	case idempotency.ReservationStatePending:
		outcome.State = SubmissionPending
		outcome.Reason = "submission in progress"
		s.record(ctx, "in_progress")
		s.logger(ctx, "checkout.submission.in_progress", map[string]any{"guardKey": key, "owner": owner})
		return outcome, nil
	}

	if !loaded {
		draft, err = s.drafts.Get(ctx, owner)
		if err != nil {
			s.release(ctx, key)
			if repositories.IsNotFound(err) {
				return s.failed(ctx, outcome, "draft not found"), nil
			}
			return SubmissionOutcome{}, translateDraftError(err)
		}
	}

	reference, reason := s.verify(ctx, draft, transactionID, req.Amount)
	if reason != "" {
		s.release(ctx, key)
		return s.failed(ctx, outcome, reason), nil
	}

	now := s.now()
	status := domain.OrderStatusPaid
	if draft.PaymentType == domain.PaymentTypePayAtHome {
		status = domain.OrderStatusPending
	}
	order := draft.BuildOrder(reference, []domain.OrderStatusEntry{{Date: now, Status: status}}, now)

	result, err := s.orders.SubmitOrder(ctx, req.Token, order)
	if err != nil {
		s.release(ctx, key)
		s.logger(ctx, "checkout.submission.backend_failed", map[string]any{
			"guardKey": key,
			"owner":    owner,
			"draftId":  draft.ID,
			"error":    err.Error(),
		})
		return s.failed(ctx, outcome, "order service rejected the order"), nil
	}

	// The order exists now; finish bookkeeping even if the caller goes away.
	persistCtx := context.WithoutCancel(ctx)
	outcome.State = SubmissionCompleted
	outcome.RedirectURL = s.confirmationURL

	body, _ := json.Marshal(outcome)
	completed := []string{key}
	if draft.PaymentType == domain.PaymentTypePayAtHome {
		// The draft is deleted below, so a repeated callback can only find the owner alias.
		completed = append(completed, payAtHomeOwnerKey(owner))
	}
	for _, guardKey := range completed {
		if err := s.guard.SaveResponse(persistCtx, guardKey, guardFingerprint, idempotency.Response{Status: 200, Body: body}, now, s.completedTTL); err != nil {
			s.logger(persistCtx, "checkout.submission.guard_complete_failed", map[string]any{"guardKey": guardKey, "error": err.Error()})
		}
	}
	if err := s.drafts.Delete(persistCtx, owner); err != nil {
		s.logger(persistCtx, "checkout.submission.draft_delete_failed", map[string]any{"owner": owner, "error": err.Error()})
	}
	s.publish(persistCtx, draft, order, key, now)
	s.archiveReceipt(persistCtx, OrderReceipt{
		GuardKey:    key,
		DraftID:     draft.ID,
		Owner:       owner,
		SubmittedAt: now,
		Order:       order,
		Backend:     result.Message,
	})

	s.record(ctx, string(SubmissionCompleted))
	s.logger(ctx, "checkout.submission.completed", map[string]any{
		"guardKey":      key,
		"owner":         owner,
		"draftId":       draft.ID,
		"transactionId": transactionID,
		"total":         domain.FormatAmount(draft.Total),
	})
	return outcome, nil
}

// replayPayAtHome answers a pay-at-home callback whose draft is gone. A completed owner
// alias means the order was already submitted.
func (s *orderSubmissionService) replayPayAtHome(ctx context.Context, owner string) (SubmissionOutcome, error) {
	key := payAtHomeOwnerKey(owner)
	outcome := SubmissionOutcome{GuardKey: key}
	reservation, err := s.guard.Reserve(ctx, key, guardFingerprint, s.now(), s.pendingTTL)
	if err != nil {
		return SubmissionOutcome{}, fmt.Errorf("%w: reserve guard: %v", ErrCheckoutUnavailable, err)
	}
	switch reservation.State {
	case idempotency.ReservationStateCompleted:
		return s.duplicate(ctx, outcome, owner), nil
	case idempotency.ReservationStateNew:
		s.release(ctx, key)
	}
	return s.failed(ctx, outcome, "draft not found"), nil
}

func (s *orderSubmissionService) duplicate(ctx context.Context, outcome SubmissionOutcome, owner string) SubmissionOutcome {
	outcome.State = SubmissionIdle
	outcome.RedirectURL = s.confirmationURL
	outcome.Reason = "already submitted"
	s.record(ctx, "duplicate")
	s.logger(ctx, "checkout.submission.duplicate", map[string]any{"guardKey": outcome.GuardKey, "owner": owner})
	return outcome
}

func payAtHomeOwnerKey(owner string) string {
	return "home_owner_" + owner
}

// verify checks the callback against the draft and, for card payments, the processor.
// It returns a failure reason or the reference to attach to the order.
func (s *orderSubmissionService) verify(ctx context.Context, draft domain.OrderDraft, transactionID, rawAmount string) (domain.TransactionReference, string) {
	reference := domain.TransactionReference{Amount: draft.Total}
	expected, err := domain.ToMinorUnits(draft.Total)
	if err != nil {
		return reference, "draft total is invalid"
	}

	rawAmount = strings.TrimSpace(rawAmount)
	switch {
	case rawAmount != "":
		amount, err := domain.ParseAmount(rawAmount)
		if err != nil {
			return reference, "amount is invalid"
		}
		got, err := domain.ToMinorUnits(amount)
		if err != nil || got != expected {
			return reference, "amount does not match the order total"
		}
	case draft.PaymentType == domain.PaymentTypeCardOnline:
		return reference, "amount is required"
	}

	switch draft.PaymentType {
	case domain.PaymentTypePayAtHome:
		if transactionID != "" {
			return reference, "pay-at-home orders carry no transaction"
		}
		return reference, ""
	case domain.PaymentTypeCardOnline:
	default:
		return reference, "payment type was not selected"
	}

	if draft.PaymentID != "" && draft.PaymentID != transactionID {
		return reference, "transaction does not belong to the order"
	}
	if err := s.payments.Verify(ctx, draft, transactionID); err != nil {
		s.logger(ctx, "checkout.submission.verify_failed", map[string]any{
			"transactionId": transactionID,
			"draftId":       draft.ID,
			"error":         err.Error(),
		})
		if errors.Is(err, ErrCheckoutUnavailable) {
			return reference, "payment processor unavailable"
		}
		return reference, "payment could not be verified"
	}
	id := transactionID
	reference.TransactionID = &id
	return reference, ""
}

func (s *orderSubmissionService) publish(ctx context.Context, draft domain.OrderDraft, order domain.Order, key string, now time.Time) {
	if s.events == nil {
		return
	}
	event := OrderSubmittedEvent{
		EventID:       ulid.Make().String(),
		GuardKey:      key,
		DraftID:       draft.ID,
		Owner:         draft.Owner,
		PaymentMethod: string(draft.PaymentType),
		Total:         domain.FormatAmount(order.Total),
		Currency:      draft.Currency,
		Items:         len(order.OrderDetail),
		SubmittedAt:   now,
	}
	if order.TransactionID != nil {
		event.TransactionID = *order.TransactionID
	}
	if _, err := s.events.PublishOrderSubmitted(ctx, event); err != nil {
		s.logger(ctx, "checkout.submission.publish_failed", map[string]any{"guardKey": key, "error": err.Error()})
	}
}

func (s *orderSubmissionService) archiveReceipt(ctx context.Context, receipt OrderReceipt) {
	if s.archive == nil {
		return
	}
	if _, err := s.archive.ArchiveReceipt(ctx, receipt); err != nil {
		s.logger(ctx, "checkout.submission.archive_failed", map[string]any{"guardKey": receipt.GuardKey, "error": err.Error()})
	}
}

func (s *orderSubmissionService) release(ctx context.Context, key string) {
	if err := s.guard.Release(context.WithoutCancel(ctx), key, guardFingerprint); err != nil {
		s.logger(ctx, "checkout.submission.guard_release_failed", map[string]any{"guardKey": key, "error": err.Error()})
	}
}

func (s *orderSubmissionService) failed(ctx context.Context, outcome SubmissionOutcome, reason string) SubmissionOutcome {
	outcome.State = SubmissionFailed
	outcome.RedirectURL = s.errorURL
	outcome.Reason = reason
	s.record(ctx, string(SubmissionFailed))
	s.logger(ctx, "checkout.submission.failed", map[string]any{
		"guardKey":      outcome.GuardKey,
		"transactionId": outcome.TransactionID,
		"reason":        reason,
	})
	return outcome
}

func (s *orderSubmissionService) record(ctx context.Context, outcome string) {
	s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
