package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fashionfield/checkout/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithHTTPClient(srv.Client())}, opts...)
	client, err := NewClient(srv.URL, opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestGetCartForwardsTokenAndDecodes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/cart" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Fatalf("unexpected authorization %q", got)
		}
		_, _ = io.WriteString(w, `{"code":200,"message":"ok","data":[
			{"productDetailId":"pd-1","productName":"Linen Shirt","quantity":2,"price":16.24,"size":"M","color":"white","imageUrls":["a.jpg"]}
		]}`)
	})

	items, err := client.GetCart(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	if items[0].ProductDetailID != "pd-1" || items[0].Quantity != 2 || !items[0].Price.Equal(decimal.RequireFromString("16.24")) {
		t.Fatalf("unexpected item %+v", items[0])
	}
}

func TestGetCartRejectsMalformedPayloads(t *testing.T) {
	bodies := map[string]string{
		"object data":   `{"code":200,"data":{"items":[]}}`,
		"null data":     `{"code":200,"data":null}`,
		"missing code":  `{"data":[]}`,
		"not json":      `<html></html>`,
		"empty body":    ``,
		"wrong element": `{"code":200,"data":[{"quantity":"two"}]}`,
	}
	for name, body := range bodies {
		body := body
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		})
		if _, err := client.GetCart(context.Background(), "tok"); !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("%s: expected ErrMalformedResponse, got %v", name, err)
		}
	}
}

func TestSubmitOrderRequiresEnvelopeCode200(t *testing.T) {
	var (
		mu       sync.Mutex
		received map[string]any
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/order" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = io.WriteString(w, `{"code":200,"message":"created","data":{"id":"o-1"}}`)
	})

	txn := "pi_123"
	order := domain.Order{
		OrderDetail:   []domain.OrderLine{{ProductDetailID: "pd-1", ProductName: "Shirt", Quantity: 2, PresentUnitPrice: decimal.RequireFromString("16.24")}},
		PaymentMethod: domain.PaymentTypeCardOnline,
		Status:        domain.OrderStatusNew,
		Total:         decimal.RequireFromString("32.48"),
		TransactionID: &txn,
		Date:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		OrderStatusHistory: []domain.OrderStatusEntry{
			{Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Status: domain.OrderStatusPaid},
		},
	}
	result, err := client.SubmitOrder(context.Background(), "tok", order)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if result.Code != 200 || result.Message != "created" {
		t.Fatalf("unexpected result %+v", result)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result.Data, &created); err != nil || created.ID != "o-1" {
		t.Fatalf("expected envelope data passed through, got %s (%v)", result.Data, err)
	}
	mu.Lock()
	defer mu.Unlock()
	if total, ok := received["total"].(float64); !ok || total != 32.48 {
		t.Fatalf("expected numeric total, got %#v", received["total"])
	}
	if received["transactionId"] != "pi_123" || received["paymentMethod"] != "card" || received["status"] != "new" {
		t.Fatalf("unexpected payload %v", received)
	}
	lines, _ := received["orderDetail"].([]any)
	if len(lines) != 1 {
		t.Fatalf("unexpected order lines %v", received["orderDetail"])
	}
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := decodeEnvelope("get cart", []byte(`{"code":200,"message":"ok","data":[{"productDetailId":"pd-1","quantity":2,"price":16.24}]}`))
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if env.Code != 200 || env.Message != "ok" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	typed := Envelope[[]CartItem]{Code: env.Code, Message: env.Message}
	if err := json.Unmarshal(env.Data, &typed.Data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(typed.Data) != 1 || typed.Data[0].ProductDetailID != "pd-1" || !typed.Data[0].Price.Equal(decimal.RequireFromString("16.24")) {
		t.Fatalf("unexpected items %+v", typed.Data)
	}

	for name, body := range map[string]string{
		"empty":        "  ",
		"missing code": `{"message":"ok","data":[]}`,
		"not json":     `<html>`,
	} {
		if _, err := decodeEnvelope("get cart", []byte(body)); !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("%s: expected ErrMalformedResponse, got %v", name, err)
		}
	}
}

func TestSubmitOrderFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		want   error
	}{
		"body code not 200": {status: http.StatusOK, body: `{"code":500,"message":"stock"}`, want: ErrRejected},
		"http 400":          {status: http.StatusBadRequest, body: `{"code":400,"message":"bad"}`, want: ErrRejected},
		"http 401":          {status: http.StatusUnauthorized, body: ``, want: ErrUnauthorized},
		"http 503":          {status: http.StatusServiceUnavailable, body: ``, want: ErrUnavailable},
		"missing code":      {status: http.StatusOK, body: `{"data":{}}`, want: ErrMalformedResponse},
	}
	for name, tc := range cases {
		tc := tc
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, tc.body)
		})
		if _, err := client.SubmitOrder(context.Background(), "tok", domain.Order{}); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, err)
		}
	}
}

func TestTimeoutSurfacesAsUnavailable(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(20*time.Millisecond))
	defer close(release)

	_, err := client.GetCart(context.Background(), "tok")
	if !errors.Is(err, ErrUnavailable) || !IsRetryable(err) {
		t.Fatalf("expected retryable ErrUnavailable, got %v", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, WithBreaker(2, time.Minute))

	for i := 0; i < 2; i++ {
		if _, err := client.GetCart(context.Background(), "tok"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: expected ErrUnavailable, got %v", i, err)
		}
	}
	_, err := client.GetCart(context.Background(), "tok")
	if !errors.Is(err, ErrUnavailable) || !strings.Contains(err.Error(), "circuit open") {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 backend calls, got %d", calls.Load())
	}
}

func TestCartMutations(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.EscapedPath())
		mu.Unlock()
		if r.Method == http.MethodPost {
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["productDetailID"] != "pd-9" || req["quantity"] != float64(3) {
				t.Fatalf("unexpected add body %v", req)
			}
		}
		_, _ = io.WriteString(w, `{"code":200,"message":"ok"}`)
	})

	if err := client.AddCartItem(context.Background(), "tok", AddCartItemRequest{ProductDetailID: "pd-9", Quantity: 3}); err != nil {
		t.Fatalf("AddCartItem: %v", err)
	}
	if err := client.RemoveCartItem(context.Background(), "tok", "pd 9"); err != nil {
		t.Fatalf("RemoveCartItem: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 2 || paths[0] != "POST /cart/add" || paths[1] != "DELETE /cart/pd%209" {
		t.Fatalf("unexpected calls %v", paths)
	}
	if err := client.AddCartItem(context.Background(), "tok", AddCartItemRequest{ProductDetailID: "pd", Quantity: 0}); err == nil {
		t.Fatalf("expected quantity validation error")
	}
}

func TestRemoveCartItemNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":404,"message":"missing"}`)
	})
	err := client.RemoveCartItem(context.Background(), "tok", "pd-1")
	var respErr *ResponseError
	if !errors.Is(err, ErrNotFound) || !errors.As(err, &respErr) || respErr.Message != "missing" {
		t.Fatalf("expected not found response error, got %v", err)
	}
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	for _, raw := range []string{"", "   ", "not a url", "/relative"} {
		if _, err := NewClient(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
