package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/affordindia/affordindia-sub004/internal/apperr"
	"github.com/affordindia/affordindia-sub004/models"
)

// Client talks to the order store HTTP surface as an admin.
type Client struct {
	base string
	http *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithToken(token string) Option {
	return func(cl *Client) {
		cl.token = token
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope covers every response shape the store is known to send. Lists come
// under "orders" or, from older deployments, "data".
type envelope struct {
	Success *bool           `json:"success"`
	Orders  json.RawMessage `json:"orders"`
	Data    json.RawMessage `json:"data"`
	Order   json.RawMessage `json:"order"`
	Token   string          `json:"token"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) Login(ctx context.Context, email, password string) error {
	env, err := c.do(ctx, http.MethodPost, "/api/admin/login", models.Credentials{Email: email, Password: password})
	if err != nil {
		return err
	}
	if env.Token == "" {
		return apperr.New(apperr.KindValidation, "login response carries no token")
	}

	c.mu.Lock()
	c.token = env.Token
	c.mu.Unlock()
	return nil
}

func (c *Client) List(ctx context.Context) ([]models.Order, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/orders", nil)
	if err != nil {
		return nil, err
	}

	raw := env.Orders
	if isAbsent(raw) {
		raw = env.Data
	}
	if isAbsent(raw) {
		return nil, apperr.New(apperr.KindValidation, "response has no orders array")
	}

	var docs []json.RawMessage
	if err = json.Unmarshal(raw, &docs); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "orders is not an array", err)
	}

	orders := make([]models.Order, 0, len(docs))
	for i, doc := range docs {
		order, err := decodeOrder(doc)
		if err != nil {
			return nil, fmt.Errorf("order at index %d: %w", i, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (c *Client) Get(ctx context.Context, id string) (models.Order, error) {
	env, err := c.do(ctx, http.MethodGet, orderPath(id), nil)
	if err != nil {
		return models.Order{}, err
	}
	return orderFrom(env)
}

func (c *Client) SetStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error) {
	env, err := c.do(ctx, http.MethodPatch, orderPath(id), map[string]string{"status": string(status)})
	if err != nil {
		return models.Order{}, err
	}
	return updatedOrder(env)
}

func (c *Client) SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) (models.Order, error) {
	env, err := c.do(ctx, http.MethodPatch, orderPath(id)+"/payment", map[string]string{"paymentStatus": string(status)})
	if err != nil {
		return models.Order{}, err
	}
	return updatedOrder(env)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, orderPath(id), nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any) (envelope, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return envelope{}, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return envelope{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, apperr.Wrap(apperr.KindNetwork, "failed to send request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, apperr.Wrap(apperr.KindNetwork, "failed to read response", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return envelope{}, statusError(resp.StatusCode, env, decodeErr)
	}
	if decodeErr != nil {
		return envelope{}, apperr.Wrap(apperr.KindValidation, "response is not valid JSON", decodeErr)
	}
	if env.Success != nil && !*env.Success {
		return envelope{}, failure(env, apperr.New(apperr.KindValidation, "request failed without an error"))
	}
	return env, nil
}

// statusError classifies a non-2xx response. A wire code in the body wins
// over the HTTP status.
func statusError(status int, env envelope, decodeErr error) error {
	fallback := apperr.KindUnknown
	switch status {
	case http.StatusNotFound:
		fallback = apperr.KindNotFound
	case http.StatusConflict:
		fallback = apperr.KindInvalidTransition
	case http.StatusUnauthorized, http.StatusForbidden:
		fallback = apperr.KindUnauthorized
	}
	err := apperr.New(fallback, fmt.Sprintf("unexpected status code: %d", status))
	if decodeErr != nil {
		return err
	}
	return failure(env, err)
}

func failure(env envelope, fallback *apperr.Error) error {
	var body errorBody
	if !isAbsent(env.Error) {
		if json.Unmarshal(env.Error, &body) != nil {
			var text string
			if json.Unmarshal(env.Error, &text) == nil {
				body.Message = text
			}
		}
	}
	if body.Message == "" {
		body.Message = env.Message
	}

	kind := fallback.Kind
	if body.Code != "" {
		if k := apperr.ParseCode(body.Code); k != apperr.KindUnknown || body.Code == apperr.KindUnknown.Code() {
			kind = k
		}
	}
	if body.Message == "" {
		body.Message = fallback.Message
	}
	return apperr.New(kind, body.Message)
}

func orderFrom(env envelope) (models.Order, error) {
	if isAbsent(env.Order) {
		return models.Order{}, apperr.New(apperr.KindValidation, "response has no order")
	}
	return decodeOrder(env.Order)
}

// updatedOrder reads the record echoed by a PATCH. Stores that answer with
// only a message have still applied the write, so a missing order yields a
// zero Order and no error.
func updatedOrder(env envelope) (models.Order, error) {
	if isAbsent(env.Order) {
		return models.Order{}, nil
	}
	return decodeOrder(env.Order)
}

func decodeOrder(raw json.RawMessage) (models.Order, error) {
	var order models.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return models.Order{}, apperr.Wrap(apperr.KindValidation, "malformed order document", err)
	}
	if err := order.Validate(); err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func orderPath(id string) string {
	return "/api/orders/" + url.PathEscape(id)
}
