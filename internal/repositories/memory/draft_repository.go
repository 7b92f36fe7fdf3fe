// Package memory provides in-process repositories for local development and tests.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fashionfield/checkout/internal/domain"
	"github.com/fashionfield/checkout/internal/repositories"
)

type draftEntry struct {
	draft     domain.OrderDraft
	expiresAt time.Time
}

// DraftRepository keeps drafts in a map keyed by the owner's draft key.
type DraftRepository struct {
	mu      sync.RWMutex
	entries map[string]draftEntry
	ttl     time.Duration
	now     func() time.Time
}

var _ repositories.DraftRepository = (*DraftRepository)(nil)

// NewDraftRepository constructs the repository. A non-positive ttl keeps drafts until deleted.
func NewDraftRepository(ttl time.Duration, clock func() time.Time) *DraftRepository {
	if clock == nil {
		clock = time.Now
	}
	return &DraftRepository{entries: make(map[string]draftEntry), ttl: ttl, now: clock}
}

func (r *DraftRepository) Get(ctx context.Context, owner string) (domain.OrderDraft, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderDraft{}, err
	}
	key := repositories.DraftKey(owner)
	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok || (!entry.expiresAt.IsZero() && !r.now().Before(entry.expiresAt)) {
		return domain.OrderDraft{}, repositories.NewNotFoundError("draft.get")
	}
	return entry.draft.Clone(), nil
}

func (r *DraftRepository) Save(ctx context.Context, draft domain.OrderDraft) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(draft.Owner) == "" {
		return repositories.NewInternalError("draft.save", errors.New("owner is required"))
	}
	entry := draftEntry{draft: draft.Clone()}
	if r.ttl > 0 {
		entry.expiresAt = r.now().Add(r.ttl)
	}
	r.mu.Lock()
	r.entries[repositories.DraftKey(draft.Owner)] = entry
	r.mu.Unlock()
	return nil
}

func (r *DraftRepository) Delete(ctx context.Context, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.entries, repositories.DraftKey(owner))
	r.mu.Unlock()
	return nil
}
