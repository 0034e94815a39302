package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/medistock/syncengine/entity"
	syncErrors "github.com/medistock/syncengine/errors"
)

// Limits defines response size limits for the HTTP repository.
type Limits struct {
	MaxBodyBytes int64 // Maximum response body size in bytes
}

// Client talks to the backend REST surface. One Client serves every entity
// kind; Repo adapts it to the per-kind Repository interface.
type Client struct {
	baseURL  string
	apiKey   string
	clientID string
	http     *http.Client
	limits   Limits
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLimits sets response size limits.
func WithLimits(l Limits) ClientOption {
	return func(c *Client) {
		c.limits = l
	}
}

// WithClientID sets the installation id stamped on every outgoing write so
// the realtime listener can filter out our own echoes.
func WithClientID(id string) ClientOption {
	return func(c *Client) {
		c.clientID = id
	}
}

// NewClient creates a backend client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		limits: Limits{
			MaxBodyBytes: 8 << 20, // 8MB
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Repo returns the Repository view of one entity kind.
func (c *Client) Repo(kind entity.Kind) Repository {
	return &httpRepository{client: c, kind: kind}
}

// RegisterAll binds a Repo for every valid entity kind into the registry.
func (c *Client) RegisterAll(reg *Registry) {
	for _, kind := range entity.SyncOrder() {
		reg.Register(kind, c.Repo(kind))
	}
	reg.Register(entity.KindProductTransfer, c.Repo(entity.KindProductTransfer))
	reg.Register(entity.KindInventory, c.Repo(entity.KindInventory))
}

type httpRepository struct {
	client *Client
	kind   entity.Kind
}

func (r *httpRepository) collectionURL() string {
	return fmt.Sprintf("%s/rest/v1/%s", r.client.baseURL, r.kind.TableName())
}

func (r *httpRepository) recordURL(id string) string {
	return fmt.Sprintf("%s?id=eq.%s", r.collectionURL(), url.QueryEscape(id))
}

func (r *httpRepository) GetByID(ctx context.Context, id string) (json.RawMessage, error) {
	body, err := r.client.do(ctx, http.MethodGet, r.recordURL(id), nil)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpFetch, fmt.Errorf("decode %s response: %w", r.kind, err))
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (r *httpRepository) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	body, err := r.client.do(ctx, http.MethodGet, r.collectionURL(), nil)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpPull, fmt.Errorf("decode %s response: %w", r.kind, err))
	}

	out := make(map[string]json.RawMessage, len(records))
	for _, rec := range records {
		var idHolder struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(rec, &idHolder); err != nil || idHolder.ID == "" {
			return nil, syncErrors.NewValidationError(syncErrors.OpPull, fmt.Errorf("%s record missing id", r.kind))
		}
		out[idHolder.ID] = rec
	}
	return out, nil
}

func (r *httpRepository) Upsert(ctx context.Context, id string, payload json.RawMessage) error {
	stamped, err := r.client.stampClientID(payload)
	if err != nil {
		return syncErrors.NewValidationError(syncErrors.OpPush, fmt.Errorf("stamp %s payload: %w", r.kind, err))
	}
	_, err = r.client.do(ctx, http.MethodPut, r.recordURL(id), stamped)
	return err
}

func (r *httpRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.do(ctx, http.MethodDelete, r.recordURL(id), nil)
	return err
}

// stampClientID injects the installation id into an outgoing payload. The
// server relays it in change notifications, letting this installation
// recognize and drop its own echoes.
func (c *Client) stampClientID(payload json.RawMessage) (json.RawMessage, error) {
	if c.clientID == "" {
		return payload, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	idJSON, err := json.Marshal(c.clientID)
	if err != nil {
		return nil, err
	}
	fields["client_id"] = idJSON
	return json.Marshal(fields)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body json.RawMessage) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpFetch, err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, syncErrors.NewNetworkError(operationFor(method), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.limits.MaxBodyBytes))
	if err != nil {
		return nil, syncErrors.NewNetworkError(operationFor(method), fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotFound && method == http.MethodDelete:
		// Deleting an already-deleted entity is a success.
		return data, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, syncErrors.NewNetworkError(operationFor(method),
			fmt.Errorf("server returned %d: %s", resp.StatusCode, truncate(data, 256)))
	default:
		return nil, syncErrors.NewValidationError(operationFor(method),
			fmt.Errorf("server returned %d: %s", resp.StatusCode, truncate(data, 256)))
	}
}

func operationFor(method string) syncErrors.Operation {
	switch method {
	case http.MethodGet:
		return syncErrors.OpFetch
	default:
		return syncErrors.OpPush
	}
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
