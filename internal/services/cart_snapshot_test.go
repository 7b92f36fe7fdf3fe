package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fashionfield/checkout/internal/backend"
	"github.com/fashionfield/checkout/internal/domain"
	"github.com/fashionfield/checkout/internal/repositories/memory"
)

func newSnapshotBuilder(t *testing.T, cart *stubCart) (CartSnapshotBuilder, *memory.DraftRepository) {
	t.Helper()
	drafts := memory.NewDraftRepository(0, testClock)
	builder, err := NewCartSnapshotBuilder(CartSnapshotDeps{
		Cart:     cart,
		Drafts:   drafts,
		Pricing:  testPricing(),
		Currency: "USD",
		Clock:    testClock,
	})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	return builder, drafts
}

func TestCartSnapshotRejectsInvalidItems(t *testing.T) {
	cart := &stubCart{getFunc: func(context.Context, string) ([]backend.CartItem, error) {
		return []backend.CartItem{
			{ProductDetailID: "pd-1", Quantity: 0, Price: decimal.NewFromInt(3)},
			{ProductDetailID: "pd-2", Quantity: 1, Price: decimal.NewFromInt(-1)},
		}, nil
	}}
	builder, drafts := newSnapshotBuilder(t, cart)

	_, err := builder.Build(context.Background(), "user-1", "tok")
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	fields := FieldErrors(err)
	if fields["items[0].quantity"] == "" || fields["items[1].price"] == "" {
		t.Fatalf("expected item field errors, got %#v", fields)
	}
	if _, err := drafts.Get(context.Background(), "user-1"); err == nil {
		t.Fatalf("expected no draft persisted")
	}
}

func TestCartSnapshotFetchFailureYieldsEmptyDraft(t *testing.T) {
	cart := &stubCart{getFunc: func(context.Context, string) ([]backend.CartItem, error) {
		return nil, backend.ErrUnavailable
	}}
	builder, _ := newSnapshotBuilder(t, cart)

	draft, err := builder.Build(context.Background(), "user-1", "tok")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(draft.LineItems) != 0 || !draft.Total.IsZero() {
		t.Fatalf("expected empty zero-total draft, got %#v", draft)
	}
	if draft.Currency != "usd" || draft.ActiveStep != domain.StepContact {
		t.Fatalf("unexpected draft defaults %#v", draft)
	}
}

func TestCartSnapshotOverwritesPriorDraft(t *testing.T) {
	cart := &stubCart{getFunc: func(context.Context, string) ([]backend.CartItem, error) {
		return sampleCart(), nil
	}}
	builder, drafts := newSnapshotBuilder(t, cart)
	ctx := context.Background()

	first, err := builder.Build(ctx, "user-1", "tok")
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	second, err := builder.Build(ctx, "user-1", "tok")
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected a new draft id")
	}
	stored, err := drafts.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.ID != second.ID {
		t.Fatalf("expected latest draft stored, got %s", stored.ID)
	}
}

func TestCartSnapshotSharesConcurrentFetches(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	cart := &stubCart{getFunc: func(context.Context, string) ([]backend.CartItem, error) {
		once.Do(func() { close(started) })
		<-release
		return sampleCart(), nil
	}}
	builder, _ := newSnapshotBuilder(t, cart)

	const callers = 5
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	run := func(i int) {
		defer wg.Done()
		draft, err := builder.Build(context.Background(), "user-1", "tok")
		ids[i], errs[i] = draft.ID, err
	}

	wg.Add(1)
	go run(0)
	<-started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go run(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := cart.calls(); got != 1 {
		t.Fatalf("expected a single cart fetch, got %d", got)
	}
	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("expected shared draft, got %s and %s", ids[0], ids[i])
		}
	}
}

func TestCartSnapshotCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	cart := &stubCart{getFunc: func(context.Context, string) ([]backend.CartItem, error) {
		<-release
		return nil, nil
	}}
	builder, _ := newSnapshotBuilder(t, cart)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := builder.Build(ctx, "user-1", "tok"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
