package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fashionfield/checkout/internal/domain"
	"github.com/fashionfield/checkout/internal/repositories"
)

func setup(t *testing.T, ttl time.Duration) (*DraftRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo, err := NewDraftRepository(client, ttl)
	require.NoError(t, err)
	return repo, mr
}

func TestDraftRepositoryRoundTrip(t *testing.T) {
	repo, mr := setup(t, time.Hour)
	ctx := context.Background()

	draft := domain.OrderDraft{
		ID:          "d_1",
		Owner:       "user-1",
		Currency:    "usd",
		LineItems:   []domain.LineItem{{ProductDetailID: "pd-1", Name: "Shirt", UnitPrice: decimal.RequireFromString("16.24"), Quantity: 2}},
		ShippingFee: decimal.RequireFromString("5"),
		ActiveStep:  domain.StepShipping,
		Contact:     &domain.Contact{Email: "jane@example.com", Phone: "+15550100"},
	}
	draft.Recalculate()
	require.NoError(t, repo.Save(ctx, draft))

	assert.True(t, mr.Exists("orderData:user-1"))
	assert.Equal(t, time.Hour, mr.TTL("orderData:user-1"))

	got, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "d_1", got.ID)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("37.48")))
	assert.Equal(t, domain.StepShipping, got.ActiveStep)
	require.NotNil(t, got.Contact)
	assert.Equal(t, "jane@example.com", got.Contact.Email)

	require.NoError(t, repo.Delete(ctx, "user-1"))
	_, err = repo.Get(ctx, "user-1")
	assert.True(t, repositories.IsNotFound(err))
}

func TestDraftRepositoryExpiry(t *testing.T) {
	repo, mr := setup(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, domain.OrderDraft{ID: "d_2", Owner: "user-2"}))
	mr.FastForward(2 * time.Minute)

	_, err := repo.Get(ctx, "user-2")
	assert.True(t, repositories.IsNotFound(err))
}

func TestDraftRepositoryCorruptPayload(t *testing.T) {
	repo, mr := setup(t, 0)
	require.NoError(t, mr.Set("orderData:user-3", "{not json"))

	_, err := repo.Get(context.Background(), "user-3")
	require.Error(t, err)
	assert.False(t, repositories.IsNotFound(err))
}

func TestDraftRepositoryUnavailable(t *testing.T) {
	repo, mr := setup(t, 0)
	mr.Close()

	_, err := repo.Get(context.Background(), "user-4")
	assert.True(t, repositories.IsUnavailable(err))
}
