package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fashionfield/checkout/internal/domain"
	pfirestore "github.com/fashionfield/checkout/internal/platform/firestore"
	"github.com/fashionfield/checkout/internal/repositories"
)

const defaultDraftCollection = "checkoutDrafts"

// draftDocument keeps the draft as a JSON payload so decimal amounts round-trip exactly.
type draftDocument struct {
	Owner     string    `firestore:"owner"`
	DraftID   string    `firestore:"draftId"`
	Payload   string    `firestore:"payload"`
	UpdatedAt time.Time `firestore:"updatedAt"`
	ExpiresAt time.Time `firestore:"expiresAt,omitempty"`
}

// DraftRepository persists drafts in a Firestore collection.
type DraftRepository struct {
	store *pfirestore.DocumentStore[draftDocument]
	ttl   time.Duration
	now   func() time.Time
}

var _ repositories.DraftRepository = (*DraftRepository)(nil)

// NewDraftRepository binds the repository to collection. ExpiresAt is written when ttl > 0
// so a Firestore TTL policy can purge abandoned drafts.
func NewDraftRepository(provider *pfirestore.Provider, collection string, ttl time.Duration) (*DraftRepository, error) {
	if provider == nil {
		return nil, errors.New("firestore draft repository: provider is required")
	}
	if strings.TrimSpace(collection) == "" {
		collection = defaultDraftCollection
	}
	return &DraftRepository{
		store: pfirestore.NewDocumentStore[draftDocument](provider, collection),
		ttl:   ttl,
		now:   time.Now,
	}, nil
}

func (r *DraftRepository) Get(ctx context.Context, owner string) (domain.OrderDraft, error) {
	doc, err := r.store.Get(ctx, repositories.DraftKey(owner))
	if err != nil {
		return domain.OrderDraft{}, err
	}
	if !doc.Data.ExpiresAt.IsZero() && !r.now().Before(doc.Data.ExpiresAt) {
		return domain.OrderDraft{}, repositories.NewNotFoundError("draft.get")
	}
	var draft domain.OrderDraft
	if err := json.Unmarshal([]byte(doc.Data.Payload), &draft); err != nil {
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
	now := r.now().UTC()
	doc := draftDocument{
		Owner:     draft.Owner,
		DraftID:   draft.ID,
		Payload:   string(payload),
		UpdatedAt: now,
	}
	if r.ttl > 0 {
		doc.ExpiresAt = now.Add(r.ttl)
	}
	return r.store.Set(ctx, repositories.DraftKey(draft.Owner), doc)
}

func (r *DraftRepository) Delete(ctx context.Context, owner string) error {
	return r.store.Delete(ctx, repositories.DraftKey(owner))
}
