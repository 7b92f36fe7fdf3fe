package services

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutNotFound indicates the owner has no draft.
	ErrCheckoutNotFound = errors.New("checkout: draft not found")
	// ErrCheckoutStepOrder indicates a step was submitted before the steps it depends on.
	ErrCheckoutStepOrder = errors.New("checkout: step submitted out of order")
	// ErrCheckoutCartEmpty indicates the draft has no line items.
	ErrCheckoutCartEmpty = errors.New("checkout: cart is empty")
	// ErrCheckoutUnauthorized indicates the backend rejected the caller's token.
	ErrCheckoutUnauthorized = errors.New("checkout: unauthorized")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrPaymentFailed indicates the processor could not start or verify the payment.
	ErrPaymentFailed = errors.New("checkout: payment failed")
	// ErrPaymentMismatch indicates the processor amount or status does not match the draft.
	ErrPaymentMismatch = errors.New("checkout: payment does not match draft")
)

// ValidationError lists field failures. It unwraps to ErrCheckoutInvalidInput.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrCheckoutInvalidInput.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return ErrCheckoutInvalidInput.Error() + ": " + strings.Join(names, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrCheckoutInvalidInput }

// FieldErrors extracts per-field messages from err, if any.
func FieldErrors(err error) map[string]string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}
