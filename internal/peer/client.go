package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/a2arun/agentnode/internal/a2atypes"
)

// Caller is the outbound surface a node uses to talk to a peer node over
// JSON-RPC, grounded on runtime/a2a/caller.go's Caller interface.
type Caller interface {
	SendMessage(ctx context.Context, baseURL string, msg a2atypes.Message) (*a2atypes.Task, error)
	GetTask(ctx context.Context, baseURL string, taskID string) (*a2atypes.Task, error)
	CancelTask(ctx context.Context, baseURL string, taskID string) error
}

// Client implements Caller over HTTP JSON-RPC 2.0, grounded on
// runtime/a2a/httpclient/client.go.
type Client struct {
	httpClient *http.Client
	header     http.Header
	bearer     string
	limiter    *rate.Limiter
	retry      RetryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (e.g. for custom
// transports/timeouts in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithHeader adds a static header sent with every outbound request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

// WithBearerToken sets the Authorization header for every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearer = token }
}

// WithRateLimit bounds outbound requests/sec to a single peer host,
// domain-stack wiring per SPEC_FULL.md §11 (golang.org/x/time/rate).
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(limit, burst) }
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient constructs a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		header:     make(http.Header),
		limiter:    rate.NewLimiter(rate.Inf, 0),
		retry:      DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendMessage implements Caller.
func (c *Client) SendMessage(ctx context.Context, baseURL string, msg a2atypes.Message) (*a2atypes.Task, error) {
	var task a2atypes.Task
	err := c.call(ctx, baseURL, "message/send", map[string]any{"message": msg}, &task)
	return &task, err
}

// GetTask implements Caller.
func (c *Client) GetTask(ctx context.Context, baseURL, taskID string) (*a2atypes.Task, error) {
	var task a2atypes.Task
	err := c.call(ctx, baseURL, "tasks/get", map[string]any{"taskId": taskID}, &task)
	return &task, err
}

// CancelTask implements Caller.
func (c *Client) CancelTask(ctx context.Context, baseURL, taskID string) error {
	var task a2atypes.Task
	return c.call(ctx, baseURL, "tasks/cancel", map[string]any{"taskId": taskID}, &task)
}

func (c *Client) call(ctx context.Context, baseURL, method string, params any, out any) error {
	return Do(ctx, c.retry, func(err error) bool {
		perr, ok := err.(*Error)
		return ok && perr.Retryable()
	}, func(ctx context.Context) error {
		return c.callOnce(ctx, baseURL, method, params, out)
	})
}

func (c *Client) callOnce(ctx context.Context, baseURL, method string, params any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return newTimeoutError(err)
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return newDecodeError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(body))
	if err != nil {
		return newTransportError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return newTimeoutError(err)
		}
		return newTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return newDecodeError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newHTTPError(resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return newDecodeError(err)
	}
	if rpcResp.Error != nil {
		return newRPCError(rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return newDecodeError(err)
		}
	}
	return nil
}

// FetchAgentCard retrieves the AgentCard served at baseURL's
// well-known endpoint. Used as the RefreshFunc passed to NewCardCache.
func (c *Client) FetchAgentCard(ctx context.Context, baseURL string) (a2atypes.AgentCard, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/.well-known/agent.json", nil)
	if err != nil {
		return a2atypes.AgentCard{}, "", newTransportError(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return a2atypes.AgentCard{}, "", newTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return a2atypes.AgentCard{}, "", newHTTPError(resp.StatusCode, string(body))
	}

	var card a2atypes.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return a2atypes.AgentCard{}, "", newDecodeError(err)
	}
	return card, resp.Header.Get("ETag"), nil
}

var _ Caller = (*Client)(nil)
