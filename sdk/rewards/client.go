package rewards

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rewardsd: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the rewardsd HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		if c != nil {
			client.http = c
		}
	}
}

// WithToken sets the operator bearer token used for admin routes.
func WithToken(token string) Option {
	return func(client *Client) { client.token = strings.TrimSpace(token) }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*PoolResponse, error) {
	return call[PoolResponse](ctx, c, http.MethodPost, "/v1/pools", req)
}

func (c *Client) Deposit(ctx context.Context, req DepositRequest) (*EntryResponse, error) {
	return call[EntryResponse](ctx, c, http.MethodPost, "/v1/pools/"+url.PathEscape(req.Pool)+"/deposits", req)
}

func (c *Client) Claim(ctx context.Context, req ClaimRequest) (*ClaimResponse, error) {
	return call[ClaimResponse](ctx, c, http.MethodPost, "/v1/pools/"+url.PathEscape(req.Pool)+"/claims", req)
}

func (c *Client) Pool(ctx context.Context, pool string) (*PoolResponse, error) {
	return call[PoolResponse](ctx, c, http.MethodGet, "/v1/pools/"+url.PathEscape(pool), nil)
}

func (c *Client) Entry(ctx context.Context, pool, user string) (*EntryResponse, error) {
	return call[EntryResponse](ctx, c, http.MethodGet, "/v1/pools/"+url.PathEscape(pool)+"/entries/"+url.PathEscape(user), nil)
}

func (c *Client) Audit(ctx context.Context, pool string) (*AuditResponse, error) {
	return call[AuditResponse](ctx, c, http.MethodGet, "/v1/pools/"+url.PathEscape(pool)+"/audit", nil)
}

func (c *Client) Holder(ctx context.Context, addr string) (*HolderResponse, error) {
	return call[HolderResponse](ctx, c, http.MethodGet, "/v1/holders/"+url.PathEscape(addr), nil)
}

func (c *Client) Derive(ctx context.Context, pool string) (*DeriveResponse, error) {
	return call[DeriveResponse](ctx, c, http.MethodGet, "/v1/derive/"+url.PathEscape(pool), nil)
}

func (c *Client) OpenHolder(ctx context.Context, req OpenHolderRequest) (*HolderResponse, error) {
	return call[HolderResponse](ctx, c, http.MethodPost, "/v1/admin/holders", req)
}

func (c *Client) Mint(ctx context.Context, addr string, amount uint64) (*HolderResponse, error) {
	return call[HolderResponse](ctx, c, http.MethodPost, "/v1/admin/holders/"+url.PathEscape(addr)+"/mint", MintRequest{Amount: amount})
}

func (c *Client) Freeze(ctx context.Context, addr string, frozen bool) (*HolderResponse, error) {
	return call[HolderResponse](ctx, c, http.MethodPost, "/v1/admin/holders/"+url.PathEscape(addr)+"/freeze", FreezeRequest{Frozen: frozen})
}

func (c *Client) Pause(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/pause", nil, nil)
}

func (c *Client) Resume(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/resume", nil, nil)
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	return call[StatusResponse](ctx, c, http.MethodGet, "/v1/admin/status", nil)
}

func call[T any](ctx context.Context, c *Client, method, path string, body interface{}) (*T, error) {
	var out T
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(payload))}
		var decoded ErrorResponse
		if json.Unmarshal(payload, &decoded) == nil && decoded.Error.Code != "" {
			apiErr.Code = decoded.Error.Code
			apiErr.Message = decoded.Error.Message
		}
		return apiErr
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
