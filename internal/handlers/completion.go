package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fashionfield/checkout/internal/platform/httpx"
	"github.com/fashionfield/checkout/internal/services"
)

const defaultRestartURL = "/checkout"

// CompletionHandlers submit paid drafts when the processor returns the customer.
type CompletionHandlers struct {
	submissions services.OrderSubmissionService
	restartURL  string
}

// NewCompletionHandlers constructs completion handlers. restartURL is where callers with an
// unusable callback are sent to begin checkout again.
func NewCompletionHandlers(submissions services.OrderSubmissionService, restartURL string) *CompletionHandlers {
	restartURL = strings.TrimSpace(restartURL)
	if restartURL == "" {
		restartURL = defaultRestartURL
	}
	return &CompletionHandlers{submissions: submissions, restartURL: restartURL}
}

// Routes registers completion endpoints under the provided router.
func (h *CompletionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/payment-success", h.paymentSuccess)
	r.Post("/checkout/complete", h.complete)
}

type completeRequest struct {
	TransactionID string `json:"transactionId"`
	Amount        string `json:"amount"`
}

// paymentSuccess handles the processor return URL and redirects the browser.
func (h *CompletionHandlers) paymentSuccess(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	outcome, err := h.submissions.Complete(r.Context(), services.CompletionRequest{
		Owner:         identity.Subject,
		Token:         identity.Token,
		TransactionID: query.Get("transactionId"),
		Amount:        query.Get("amount"),
	})
	if err != nil {
		if errors.Is(err, services.ErrCheckoutInvalidInput) {
			http.Redirect(w, r, h.restartURL, http.StatusSeeOther)
			return
		}
		writeCheckoutError(r.Context(), w, err)
		return
	}
	if outcome.RedirectURL == "" {
		httpx.WriteJSON(w, http.StatusAccepted, outcome)
		return
	}
	http.Redirect(w, r, outcome.RedirectURL, http.StatusSeeOther)
}

func (h *CompletionHandlers) complete(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	outcome, err := h.submissions.Complete(r.Context(), services.CompletionRequest{
		Owner:         identity.Subject,
		Token:         identity.Token,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
	})
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	status := http.StatusOK
	switch {
	case outcome.State == services.SubmissionFailed:
		status = http.StatusUnprocessableEntity
	case outcome.State == services.SubmissionPending:
		status = http.StatusAccepted
	}
	httpx.WriteJSON(w, status, outcome)
}
