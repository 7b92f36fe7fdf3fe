package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/fashionfield/checkout/internal/services"
)

type stubSubmissions struct {
	calls   []services.CompletionRequest
	outcome services.SubmissionOutcome
	err     error
}

func (s *stubSubmissions) Complete(_ context.Context, req services.CompletionRequest) (services.SubmissionOutcome, error) {
	s.calls = append(s.calls, req)
	return s.outcome, s.err
}

func newCompletionRouter(svc services.OrderSubmissionService) chi.Router {
	router := chi.NewRouter()
	NewCompletionHandlers(svc, "").Routes(router)
	return router
}

func TestCompletionPaymentSuccessRedirects(t *testing.T) {
	svc := &stubSubmissions{outcome: services.SubmissionOutcome{
		State:       services.SubmissionCompleted,
		RedirectURL: "/collection",
	}}
	router := newCompletionRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/payment-success?amount=32.50&transactionId=pi_123", ""))

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/collection" {
		t.Fatalf("expected redirect to /collection, got %s", loc)
	}
	if len(svc.calls) != 1 {
		t.Fatalf("expected one completion call, got %d", len(svc.calls))
	}
	got := svc.calls[0]
	if got.TransactionID != "pi_123" || got.Amount != "32.50" || got.Owner != "user-1" || got.Token != "tok-1" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestCompletionPaymentSuccessFailedRedirectsToError(t *testing.T) {
	svc := &stubSubmissions{outcome: services.SubmissionOutcome{
		State:       services.SubmissionFailed,
		RedirectURL: "/payment/error",
		Reason:      "order rejected",
	}}
	router := newCompletionRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/payment-success?amount=32.50&transactionId=pi_123", ""))

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/payment/error" {
		t.Fatalf("expected redirect to error page, got %s", loc)
	}
}

func TestCompletionPaymentSuccessInFlight(t *testing.T) {
	svc := &stubSubmissions{outcome: services.SubmissionOutcome{
		State:    services.SubmissionPending,
		GuardKey: "transaction_pi_123",
	}}
	router := newCompletionRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/payment-success?amount=32.50&transactionId=pi_123", ""))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
}

func TestCompletionPaymentSuccessInvalidInputRestarts(t *testing.T) {
	svc := &stubSubmissions{err: services.ErrCheckoutInvalidInput}
	router := newCompletionRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/payment-success", ""))

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != defaultRestartURL {
		t.Fatalf("expected restart redirect, got %s", loc)
	}
}

func TestCompletionPaymentSuccessUnavailable(t *testing.T) {
	svc := &stubSubmissions{err: services.ErrCheckoutUnavailable}
	router := newCompletionRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/payment-success?amount=1.00&transactionId=pi_1", ""))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestCompletionCompleteJSON(t *testing.T) {
	cases := []struct {
		name    string
		outcome services.SubmissionOutcome
		status  int
	}{
		{
			name:    "completed",
			outcome: services.SubmissionOutcome{State: services.SubmissionCompleted, RedirectURL: "/collection"},
			status:  http.StatusOK,
		},
		{
			name:    "duplicate after completion",
			outcome: services.SubmissionOutcome{State: services.SubmissionIdle, RedirectURL: "/collection"},
			status:  http.StatusOK,
		},
		{
			name:    "in flight",
			outcome: services.SubmissionOutcome{State: services.SubmissionPending},
			status:  http.StatusAccepted,
		},
		{
			name:    "failed",
			outcome: services.SubmissionOutcome{State: services.SubmissionFailed, RedirectURL: "/payment/error", Reason: "amount mismatch"},
			status:  http.StatusUnprocessableEntity,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubSubmissions{outcome: tc.outcome}
			router := newCompletionRouter(svc)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/checkout/complete", `{"transactionId":"pi_123","amount":"32.50"}`))

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body services.SubmissionOutcome
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.State != tc.outcome.State {
				t.Fatalf("expected state %s, got %s", tc.outcome.State, body.State)
			}
		})
	}
}

func TestCompletionRequiresIdentity(t *testing.T) {
	svc := &stubSubmissions{}
	router := newCompletionRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payment-success?transactionId=pi_1", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if len(svc.calls) != 0 {
		t.Fatalf("expected no completion calls")
	}
}
