package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	"github.com/fashionfield/checkout/internal/backend"
	"github.com/fashionfield/checkout/internal/domain"
	"github.com/fashionfield/checkout/internal/platform/textutil"
	"github.com/fashionfield/checkout/internal/repositories"
)

// CartSnapshotDeps wires the dependencies required by the cart snapshot builder.
type CartSnapshotDeps struct {
	Cart     CartBackend
	Drafts   repositories.DraftRepository
	Pricing  domain.PricingRules
	Currency string
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type cartSnapshotBuilder struct {
	cart     CartBackend
	drafts   repositories.DraftRepository
	pricing  domain.PricingRules
	currency string
	validate *validator.Validate
	group    singleflight.Group
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCartSnapshotBuilder constructs a CartSnapshotBuilder validating required dependencies.
func NewCartSnapshotBuilder(deps CartSnapshotDeps) (CartSnapshotBuilder, error) {
	if deps.Cart == nil {
		return nil, errors.New("cart snapshot: cart backend is required")
	}
	if deps.Drafts == nil {
		return nil, errors.New("cart snapshot: draft repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &cartSnapshotBuilder{
		cart:     deps.Cart,
		drafts:   deps.Drafts,
		pricing:  deps.Pricing,
		currency: currency,
		validate: newValidator(),
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Build fetches the backend cart, freezes it into a new draft and persists it, replacing
// any earlier unsubmitted draft. Concurrent builds for the same owner share one fetch.
func (b *cartSnapshotBuilder) Build(ctx context.Context, owner, token string) (domain.OrderDraft, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return domain.OrderDraft{}, ErrCheckoutInvalidInput
	}

	ch := b.group.DoChan(owner, func() (any, error) {
		return b.build(context.WithoutCancel(ctx), owner, token)
	})
	select {
	case <-ctx.Done():
		return domain.OrderDraft{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.OrderDraft{}, res.Err
		}
		draft := res.Val.(domain.OrderDraft)
		if res.Shared {
			b.logger(ctx, "checkout.snapshot.shared", map[string]any{"owner": owner, "draftId": draft.ID})
		}
		return draft.Clone(), nil
	}
}

func (b *cartSnapshotBuilder) build(ctx context.Context, owner, token string) (domain.OrderDraft, error) {
	items, err := b.cart.GetCart(ctx, token)
	if err != nil {
		b.logger(ctx, "checkout.snapshot.cart_unavailable", map[string]any{
			"owner": owner,
			"error": err.Error(),
		})
		items = nil
	}

	lines, err := b.freeze(items)
	if err != nil {
		return domain.OrderDraft{}, err
	}

	now := b.now()
	draft := domain.OrderDraft{
		ID:            ulid.Make().String(),
		Owner:         owner,
		Currency:      b.currency,
		LineItems:     lines,
		ActiveStep:    domain.StepContact,
		StatusHistory: []domain.OrderStatusEntry{{Date: now, Status: domain.OrderStatusDraft}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	b.pricing.Apply(&draft)

	if err := b.drafts.Save(ctx, draft); err != nil {
		return domain.OrderDraft{}, translateDraftError(err)
	}
	b.logger(ctx, "checkout.snapshot.created", map[string]any{
		"owner":   owner,
		"draftId": draft.ID,
		"items":   len(lines),
		"total":   domain.FormatAmount(draft.Total),
	})
	return draft, nil
}

func (b *cartSnapshotBuilder) freeze(items []backend.CartItem) ([]domain.LineItem, error) {
	lines := make([]domain.LineItem, 0, len(items))
	fields := make(map[string]string)
	for i, item := range items {
		prefix := "items[" + strconv.Itoa(i) + "]."
		form := cartItemForm{ProductDetailID: strings.TrimSpace(item.ProductDetailID), Quantity: item.Quantity}
		if err := b.validate.Struct(form); err != nil {
			for name, msg := range FieldErrors(fieldErrors(err)) {
				fields[prefix+name] = msg
			}
		}
		if item.Price.IsNegative() {
			fields[prefix+"price"] = "must not be negative"
		}
		lines = append(lines, domain.LineItem{
			ProductDetailID: form.ProductDetailID,
			Name:            textutil.CleanText(item.ProductName, 200),
			UnitPrice:       item.Price,
			Quantity:        item.Quantity,
			Color:           textutil.CleanText(item.Color, 64),
			Size:            textutil.CleanText(item.Size, 64),
			ImageRefs:       append([]string(nil), item.ImageURLs...),
		})
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return lines, nil
}

// translateDraftError maps repository failures onto checkout sentinels.
func translateDraftError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCheckoutNotFound
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
}
