package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

var _ Client = (*HTTPClient)(nil)

// DefaultTimeout bounds a single HTTP round trip.
const DefaultTimeout = 30 * time.Second

// AgentCardPath is where agents publish their card, relative to the base URL.
const AgentCardPath = "/.well-known/agent-card.json"

// HTTPClient speaks JSON-RPC over HTTP POST.
type HTTPClient struct {
	http    *http.Client
	headers http.Header
	seq     atomic.Int64
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.http.Timeout = d }
}

// WithHTTPClient swaps the transport client, e.g. for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) { c.http = hc }
}

// WithHeader adds a header to every request, e.g. an Authorization token
// for a hosted judge.
func WithHeader(key, value string) ClientOption {
	return func(c *HTTPClient) { c.headers.Add(key, value) }
}

// NewHTTPClient returns a client with DefaultTimeout.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		http:    &http.Client{Timeout: DefaultTimeout},
		headers: http.Header{"User-Agent": {"trident"}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) SendMessage(ctx context.Context, endpoint string, req SendMessageRequest) (*Task, error) {
	return c.task(ctx, endpoint, MethodSendMessage, req)
}

func (c *HTTPClient) GetTask(ctx context.Context, endpoint string, req GetTaskRequest) (*Task, error) {
	return c.task(ctx, endpoint, MethodGetTask, req)
}

func (c *HTTPClient) CancelTask(ctx context.Context, endpoint string, req CancelTaskRequest) (*Task, error) {
	return c.task(ctx, endpoint, MethodCancelTask, req)
}

// DiscoverAgent fetches the card published under baseURL.
func (c *HTTPClient) DiscoverAgent(ctx context.Context, baseURL string) (*AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+AgentCardPath, nil)
	if err != nil {
		return nil, fmt.Errorf("a2a: agent card request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("a2a: discover agent: %w", err)
	}
	var card AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("a2a: agent card: %w", err)
	}
	return &card, nil
}

func (c *HTTPClient) task(ctx context.Context, endpoint, method string, params any) (*Task, error) {
	var t Task
	if err := c.call(ctx, endpoint, method, params, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) call(ctx context.Context, endpoint, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("a2a: %s params: %w", method, err)
	}
	envelope, err := json.Marshal(JSONRPCRequest{
		JSONRPC: JSONRPCVersion,
		ID:      c.seq.Add(1),
		Method:  method,
		Params:  raw,
	})
	if err != nil {
		return fmt.Errorf("a2a: %s envelope: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(envelope))
	if err != nil {
		return fmt.Errorf("a2a: %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("a2a: %s: %w", method, err)
	}

	var resp JSONRPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("a2a: %s response: %w", method, err)
	}
	if resp.Error != nil {
		return &RPCError{Method: method, JSONRPCError: *resp.Error}
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("a2a: %s result: %w", method, err)
	}
	return nil
}

// do sends req with the client headers and returns the body of a 200 reply.
func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
