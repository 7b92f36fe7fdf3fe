// Package redis stores checkout drafts as JSON strings in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fashionfield/checkout/internal/domain"
	"github.com/fashionfield/checkout/internal/repositories"
)

// DraftRepository persists drafts under orderData:<owner> with a sliding TTL.
type DraftRepository struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

var _ repositories.DraftRepository = (*DraftRepository)(nil)

// NewDraftRepository constructs the repository. A non-positive ttl stores drafts without expiry.
func NewDraftRepository(client goredis.UniversalClient, ttl time.Duration) (*DraftRepository, error) {
	if client == nil {
		return nil, errors.New("redis draft repository: client is required")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &DraftRepository{client: client, ttl: ttl}, nil
}

func (r *DraftRepository) Get(ctx context.Context, owner string) (domain.OrderDraft, error) {
	raw, err := r.client.Get(ctx, repositories.DraftKey(owner)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.OrderDraft{}, repositories.NewNotFoundError("draft.get")
	}
	if err != nil {
		return domain.OrderDraft{}, wrap("draft.get", err)
	}
	var draft domain.OrderDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return domain.OrderDraft{}, repositories.NewInternalError("draft.get", fmt.Errorf("decode draft: %w", err))
	}
	return draft, nil
}

func (r *DraftRepository) Save(ctx context.Context, draft domain.OrderDraft) error {
	if strings.TrimSpace(draft.Owner) == "" {
		return repositories.NewInternalError("draft.save", errors.New("owner is required"))
	}
	payload, err := json.Marshal(draft)
	if err != nil {
		return repositories.NewInternalError("draft.save", fmt.Errorf("encode draft: %w", err))
	}
	if err := r.client.Set(ctx, repositories.DraftKey(draft.Owner), payload, r.ttl).Err(); err != nil {
		return wrap("draft.save", err)
	}
	return nil
}

func (r *DraftRepository) Delete(ctx context.Context, owner string) error {
	if err := r.client.Del(ctx, repositories.DraftKey(owner)).Err(); err != nil {
		return wrap("draft.delete", err)
	}
	return nil
}

func wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return repositories.NewUnavailableError(op, err)
}
