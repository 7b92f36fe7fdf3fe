package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fashionfield/checkout/internal/domain"
	"github.com/fashionfield/checkout/internal/platform/httpx"
	"github.com/fashionfield/checkout/internal/services"
)

// CheckoutHandlers exposes the checkout step endpoints for authenticated callers.
type CheckoutHandlers struct {
	checkout services.CheckoutService
	limiter  RateLimiter
}

// CheckoutOption customises checkout handlers.
type CheckoutOption func(*CheckoutHandlers)

// WithPaymentRateLimit limits payment submissions per caller.
func WithPaymentRateLimit(limiter RateLimiter) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.limiter = limiter
	}
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout", h.start)
	r.Get("/checkout", h.get)
	r.Put("/checkout/contact", h.submitContact)
	r.Put("/checkout/shipping", h.submitShipping)
	r.Post("/checkout/reopen", h.reopen)
	r.Delete("/checkout/items/{productDetailId}", h.removeItem)

	payments := r.With(rateLimitMiddleware(h.limiter))
	payments.Put("/checkout/payment", h.submitPayment)
	payments.Post("/checkout/payment/confirm", h.confirmPayment)
}

type paymentRequest struct {
	PaymentType string `json:"paymentType"`
}

type paymentResponse struct {
	PaymentType   domain.PaymentType `json:"paymentType"`
	Protocol      string             `json:"protocol,omitempty"`
	ClientSecret  string             `json:"clientSecret,omitempty"`
	PaymentID     string             `json:"paymentId,omitempty"`
	InvoiceID     string             `json:"invoiceId,omitempty"`
	TransactionID *string            `json:"transactionId"`
	ReturnURL     string             `json:"returnUrl,omitempty"`
	Paid          bool               `json:"paid"`
	Draft         domain.OrderDraft  `json:"draft"`
}

type confirmRequest struct {
	PaymentID       string `json:"paymentId"`
	PaymentMethodID string `json:"paymentMethodId"`
}

type reopenRequest struct {
	Step string `json:"step"`
}

func (h *CheckoutHandlers) start(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	draft, err := h.checkout.Start(r.Context(), services.StartCheckoutCommand{Owner: identity.Subject, Token: identity.Token})
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, draft)
}

func (h *CheckoutHandlers) get(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	draft, err := h.checkout.Get(r.Context(), identity.Subject)
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, draft)
}

func (h *CheckoutHandlers) submitContact(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var contact domain.Contact
	if !decodeJSONBody(w, r, &contact) {
		return
	}
	draft, err := h.checkout.SubmitContact(r.Context(), identity.Subject, contact)
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, draft)
}

func (h *CheckoutHandlers) submitShipping(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var address domain.ShippingAddress
	if !decodeJSONBody(w, r, &address) {
		return
	}
	draft, err := h.checkout.SubmitShipping(r.Context(), identity.Subject, address)
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, draft)
}

func (h *CheckoutHandlers) submitPayment(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	result, err := h.checkout.SubmitPayment(r.Context(), services.SubmitPaymentCommand{
		Owner:       identity.Subject,
		PaymentType: domain.PaymentType(strings.ToLower(strings.TrimSpace(req.PaymentType))),
	})
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse{
		PaymentType:   result.PaymentType,
		Protocol:      string(result.Protocol),
		ClientSecret:  result.ClientSecret,
		PaymentID:     result.PaymentID,
		InvoiceID:     result.InvoiceID,
		TransactionID: result.Reference.TransactionID,
		ReturnURL:     result.ReturnURL,
		Paid:          result.Paid,
		Draft:         result.Draft,
	})
}

func (h *CheckoutHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PaymentID) == "" || strings.TrimSpace(req.PaymentMethodID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "paymentId and paymentMethodId are required", http.StatusBadRequest))
		return
	}
	confirmation, err := h.checkout.ConfirmPayment(r.Context(), services.ConfirmPaymentCommand{
		Owner:           identity.Subject,
		PaymentID:       req.PaymentID,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	status := http.StatusOK
	if confirmation.Error != nil {
		status = http.StatusPaymentRequired
	}
	httpx.WriteJSON(w, status, confirmation)
}

func (h *CheckoutHandlers) reopen(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req reopenRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	step := domain.CheckoutStep(strings.ToLower(strings.TrimSpace(req.Step)))
	draft, err := h.checkout.Reopen(r.Context(), identity.Subject, step)
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, draft)
}

func (h *CheckoutHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	draft, err := h.checkout.RemoveItem(r.Context(), services.RemoveItemCommand{
		Owner:           identity.Subject,
		Token:           identity.Token,
		ProductDetailID: chi.URLParam(r, "productDetailId"),
	})
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, draft)
}
