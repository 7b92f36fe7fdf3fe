package repositories

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// DraftKeyPrefix namespaces draft keys in shared stores.
const DraftKeyPrefix = "orderData:"

// DraftKey returns the storage key for an owner's draft. Owners that are unsafe as
// document ids or key segments are hashed.
func DraftKey(owner string) string {
	owner = strings.TrimSpace(owner)
	if owner == "" || len(owner) > 256 || strings.ContainsAny(owner, "/\\ \t\n") || strings.Contains(owner, "..") {
		sum := sha256.Sum256([]byte(owner))
		return DraftKeyPrefix + hex.EncodeToString(sum[:])
	}
	return DraftKeyPrefix + owner
}

type errorKind int

const (
	kindUnknown errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// StoreError is the RepositoryError returned by the memory and redis stores.
type StoreError struct {
	Op   string
	Err  error
	kind errorKind
}

var _ RepositoryError = (*StoreError)(nil)

func (e *StoreError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) IsNotFound() bool    { return e.kind == kindNotFound }
func (e *StoreError) IsConflict() bool    { return e.kind == kindConflict }
func (e *StoreError) IsUnavailable() bool { return e.kind == kindUnavailable }

var errNotFound = errors.New("not found")

// NewNotFoundError reports a missing record.
func NewNotFoundError(op string) *StoreError {
	return &StoreError{Op: op, Err: errNotFound, kind: kindNotFound}
}

// NewUnavailableError reports a transient backend failure.
func NewUnavailableError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err, kind: kindUnavailable}
}

// NewInternalError reports a non-retryable failure such as a corrupt record.
func NewInternalError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err, kind: kindUnknown}
}

// IsNotFound reports whether err is a RepositoryError for a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsUnavailable reports whether err is a transient RepositoryError.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
