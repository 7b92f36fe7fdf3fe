package repositories

import (
	"context"

	"github.com/fashionfield/checkout/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// DraftRepository persists one unsubmitted order draft per owner.
type DraftRepository interface {
	// Get returns the owner's draft. Returns a RepositoryError with IsNotFound when absent.
	Get(ctx context.Context, owner string) (domain.OrderDraft, error)
	// Save overwrites the owner's draft.
	Save(ctx context.Context, draft domain.OrderDraft) error
	// Delete removes the owner's draft. Deleting a missing draft is not an error.
	Delete(ctx context.Context, owner string) error
}

// HealthRepository evaluates dependency readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
