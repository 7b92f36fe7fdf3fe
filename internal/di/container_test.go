package di

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fashionfield/checkout/internal/backend"
	"github.com/fashionfield/checkout/internal/domain"
	"github.com/fashionfield/checkout/internal/platform/config"
	"github.com/fashionfield/checkout/internal/services"
)

type fakeBackend struct {
	mu     sync.Mutex
	items  []backend.CartItem
	orders []domain.Order
}

func (b *fakeBackend) GetCart(context.Context, string) ([]backend.CartItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.CartItem(nil), b.items...), nil
}

func (b *fakeBackend) RemoveCartItem(context.Context, string, string) error { return nil }

func (b *fakeBackend) AddCartItem(context.Context, string, backend.AddCartItemRequest) error {
	return nil
}

func (b *fakeBackend) SubmitOrder(_ context.Context, _ string, order domain.Order) (backend.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, order)
	return backend.OrderResult{Code: 200, Message: "ok", Data: json.RawMessage(`{}`)}, nil
}

func testConfig() config.Config {
	return config.Config{
		Environment: "test",
		Backend: config.BackendConfig{
			BaseURL:            "https://backend.example",
			Timeout:            time.Second,
			BreakerMaxFailures: 5,
			BreakerOpenTimeout: time.Second,
		},
		Stripe:  config.StripeConfig{APIKey: "sk_test_123"},
		Payment: config.PaymentConfig{Protocol: config.ProtocolIntent, Currency: "usd"},
		Pricing: config.PricingConfig{
			TaxRate:     decimal.RequireFromString("0.10"),
			ShippingFee: decimal.NewFromInt(5),
		},
		URLs: config.URLConfig{
			PublicBaseURL:   "https://shop.example",
			SuccessPath:     "/payment-success",
			ConfirmationURL: "/collection",
			ErrorURL:        "/payment/error",
			RestartURL:      "/checkout",
		},
		Auth:  config.AuthConfig{Mode: config.AuthModePassthrough},
		Store: config.StoreConfig{Driver: config.StoreMemory, DraftTTL: time.Hour},
		Guard: config.GuardConfig{PendingTTL: 10 * time.Minute, CompletedTTL: 24 * time.Hour},
		Events: config.EventsConfig{Driver: config.EventsNone},
	}
}

func TestNewContainerMemoryDefaults(t *testing.T) {
	c, err := NewContainer(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	assert.NotNil(t, c.Drafts)
	assert.NotNil(t, c.Guard)
	assert.NotNil(t, c.Idempotency)
	assert.NotNil(t, c.Authenticator)
	assert.NotNil(t, c.Services.Checkout)
	assert.NotNil(t, c.Services.Submissions)
	assert.Equal(t, services.PaymentProtocolIntent, c.Services.Payments.Protocol())

	report, err := c.Health.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusOK, report.Status)
}

func TestNewContainerRejectsInvoiceWithoutCustomer(t *testing.T) {
	cfg := testConfig()
	cfg.Payment.Protocol = config.ProtocolInvoice

	_, err := NewContainer(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestContainerPayAtHomeFlow(t *testing.T) {
	fake := &fakeBackend{items: []backend.CartItem{
		{ProductDetailID: "pd-1", ProductName: "Tee", Quantity: 2, Price: decimal.NewFromInt(10)},
		{ProductDetailID: "pd-2", ProductName: "Socks", Quantity: 1, Price: decimal.NewFromInt(5)},
	}}
	c, err := NewContainer(context.Background(), testConfig(), zap.NewNop(), WithBackend(fake, fake))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	ctx := context.Background()
	checkout := c.Services.Checkout

	draft, err := checkout.Start(ctx, services.StartCheckoutCommand{Owner: "user-1", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "32.50", domain.FormatAmount(draft.Total))

	_, err = checkout.SubmitContact(ctx, "user-1", domain.Contact{Email: "ada@example.com", Phone: "5551234567"})
	require.NoError(t, err)
	_, err = checkout.SubmitShipping(ctx, "user-1", domain.ShippingAddress{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Address:    "1 Main St",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
	})
	require.NoError(t, err)

	result, err := checkout.SubmitPayment(ctx, services.SubmitPaymentCommand{Owner: "user-1", PaymentType: domain.PaymentTypePayAtHome})
	require.NoError(t, err)
	assert.Empty(t, result.ClientSecret)

	outcome, err := c.Services.Submissions.Complete(ctx, services.CompletionRequest{
		Owner:  "user-1",
		Token:  "tok",
		Amount: "32.50",
	})
	require.NoError(t, err)
	assert.Equal(t, services.SubmissionCompleted, outcome.State)
	assert.Equal(t, "/collection", outcome.RedirectURL)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.orders, 1)
	assert.Equal(t, domain.PaymentTypePayAtHome, fake.orders[0].PaymentMethod)
	assert.Nil(t, fake.orders[0].TransactionID)

	_, err = c.Drafts.Get(ctx, "user-1")
	assert.Error(t, err)
}
