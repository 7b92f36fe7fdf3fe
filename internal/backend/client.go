// Package backend is the HTTP client for the storefront cart and order REST service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fashionfield/checkout/internal/domain"
)

const (
	defaultTimeout        = 15 * time.Second
	defaultMaxFailures    = 5
	defaultOpenTimeout    = 30 * time.Second
	maxResponseBodyBytes  = 4 << 20
	successEnvelopeCode   = http.StatusOK
	breakerName           = "checkout-backend"
	headerAuthorization   = "Authorization"
	headerContentType     = "Content-Type"
	contentTypeJSON       = "application/json"
	bearerPrefix          = "Bearer "
	userAgent             = "fashionfield-checkout"
	headerUserAgent       = "User-Agent"
	breakerStateChangeEvt = "backend.breaker.state_changed"
)

// Logger receives structured client events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Option customises the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is used as is.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithBreaker configures the circuit breaker thresholds.
func WithBreaker(maxFailures int, openTimeout time.Duration) Option {
	return func(c *Client) {
		if maxFailures > 0 {
			c.maxFailures = maxFailures
		}
		if openTimeout > 0 {
			c.openTimeout = openTimeout
		}
	}
}

// WithLogger sets the event logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client calls the backend with the caller's bearer token.
type Client struct {
	baseURL     *url.URL
	http        *http.Client
	timeout     time.Duration
	maxFailures int
	openTimeout time.Duration
	breaker     *gobreaker.CircuitBreaker[*rawResponse]
	logger      Logger
}

type rawResponse struct {
	status int
	body   []byte
}

// NewClient constructs a client for baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errors.New("backend: base url is required")
	}
	parsed, err := url.Parse(strings.TrimRight(trimmed, "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("backend: invalid base url %q", baseURL)
	}

	c := &Client{
		baseURL:     parsed,
		timeout:     defaultTimeout,
		maxFailures: defaultMaxFailures,
		openTimeout: defaultOpenTimeout,
		logger:      func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.http == nil {
		c.http = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	maxFailures := uint32(c.maxFailures)
	c.breaker = gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
		Name:    breakerName,
		Timeout: c.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger(context.Background(), breakerStateChangeEvt, map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	return c, nil
}

// GetCart returns the caller's cart items. A payload whose data is not an array is malformed.
func (c *Client) GetCart(ctx context.Context, token string) ([]CartItem, error) {
	const op = "get cart"
	resp, err := c.do(ctx, http.MethodGet, "/cart", token, nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, statusError(op, resp)
	}
	env, err := decodeEnvelope(op, resp.body)
	if err != nil {
		return nil, err
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || data[0] != '[' {
		return nil, fmt.Errorf("%w: %s: data is not an array", ErrMalformedResponse, op)
	}
	var items []CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, op, err)
	}
	return items, nil
}

// RemoveCartItem deletes the product detail from the caller's cart.
func (c *Client) RemoveCartItem(ctx context.Context, token, productDetailID string) error {
	const op = "remove cart item"
	productDetailID = strings.TrimSpace(productDetailID)
	if productDetailID == "" {
		return errors.New("backend: product detail id is required")
	}
	resp, err := c.do(ctx, http.MethodDelete, "/cart/"+url.PathEscape(productDetailID), token, nil)
	if err != nil {
		return err
	}
	return acceptMutation(op, resp)
}

// AddCartItem adds a product detail to the caller's cart.
func (c *Client) AddCartItem(ctx context.Context, token string, req AddCartItemRequest) error {
	const op = "add cart item"
	if strings.TrimSpace(req.ProductDetailID) == "" || req.Quantity <= 0 {
		return errors.New("backend: product detail id and positive quantity are required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("backend: encode cart item: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/cart/add", token, body)
	if err != nil {
		return err
	}
	return acceptMutation(op, resp)
}

// SubmitOrder posts the order. Success requires HTTP 200 and an envelope code of 200.
func (c *Client) SubmitOrder(ctx context.Context, token string, order domain.Order) (OrderResult, error) {
	const op = "submit order"
	body, err := json.Marshal(newOrderPayload(order))
	if err != nil {
		return OrderResult{}, fmt.Errorf("backend: encode order: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/order", token, body)
	if err != nil {
		return OrderResult{}, err
	}
	if resp.status != http.StatusOK {
		return OrderResult{}, statusError(op, resp)
	}
	env, err := decodeEnvelope(op, resp.body)
	if err != nil {
		return OrderResult{}, err
	}
	if env.Code != successEnvelopeCode {
		return OrderResult{}, &ResponseError{Op: op, HTTPStatus: resp.status, Code: env.Code, Message: env.Message, kind: ErrRejected}
	}
	return env, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body []byte) (*rawResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := c.breaker.Execute(func() (*rawResponse, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL.String()+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set(headerUserAgent, userAgent)
		req.Header.Set("Accept", contentTypeJSON)
		if body != nil {
			req.Header.Set(headerContentType, contentTypeJSON)
		}
		if token = strings.TrimSpace(token); token != "" {
			req.Header.Set(headerAuthorization, bearerPrefix+token)
		}

		res, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBodyBytes))
		if err != nil {
			return nil, err
		}
		out := &rawResponse{status: res.StatusCode, body: data}
		if res.StatusCode >= 500 {
			return out, statusError(method+" "+path, out)
		}
		return out, nil
	})
	if err == nil {
		return resp, nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %s %s: circuit open", ErrUnavailable, method, path)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, ErrUnavailable):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
}

type rawEnvelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decodeEnvelope parses the response wrapper. A body without a code field is malformed.
func decodeEnvelope(op string, body []byte) (Envelope[json.RawMessage], error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Envelope[json.RawMessage]{}, fmt.Errorf("%w: %s: empty body", ErrMalformedResponse, op)
	}
	var env rawEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope[json.RawMessage]{}, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, op, err)
	}
	if env.Code == nil {
		return Envelope[json.RawMessage]{}, fmt.Errorf("%w: %s: envelope code missing", ErrMalformedResponse, op)
	}
	return Envelope[json.RawMessage]{Code: *env.Code, Message: env.Message, Data: env.Data}, nil
}

func acceptMutation(op string, resp *rawResponse) error {
	if resp.status < 200 || resp.status > 299 {
		return statusError(op, resp)
	}
	var env rawEnvelope
	if json.Unmarshal(resp.body, &env) == nil && env.Code != nil && *env.Code >= 400 {
		return &ResponseError{Op: op, HTTPStatus: resp.status, Code: *env.Code, Message: env.Message, kind: classifyStatus(*env.Code)}
	}
	return nil
}

func statusError(op string, resp *rawResponse) error {
	out := &ResponseError{Op: op, HTTPStatus: resp.status, kind: classifyStatus(resp.status)}
	var env rawEnvelope
	if json.Unmarshal(resp.body, &env) == nil {
		if env.Code != nil {
			out.Code = *env.Code
		}
		out.Message = env.Message
	}
	return out
}
