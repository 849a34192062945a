// Package client calls a taskbridge agent over its HTTP task API.
package client

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

	"github.com/jllopis/taskbridge/pkg/a2a/agentcard"
	"github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/message"
	"github.com/jllopis/taskbridge/pkg/orchestrator"
	"github.com/jllopis/taskbridge/pkg/task"
)

// Option configures the client.
type Option func(*Client)

// Client talks to one agent endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	retries int
	token   string
}

// New creates a client for the agent at baseURL.
func New(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// WithTimeout sets a per-request timeout. Streams are not bounded by it.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetries sets the number of retries for read-only calls.
func WithRetries(retries int) Option {
	return func(c *Client) {
		if retries >= 0 {
			c.retries = retries
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBearerToken sends token in the Authorization header.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Card fetches the agent card.
func (c *Client) Card(ctx context.Context) (*agentcard.Card, error) {
	return withRetries(c.retries, func() (*agentcard.Card, error) {
		ctx, cancel := c.withTimeout(ctx)
		defer cancel()
		return agentcard.Fetch(ctx, c.http, c.baseURL)
	})
}

// CreateTask creates a task and returns its id.
func (c *Client) CreateTask(ctx context.Context, params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/tasks", params, &out); err != nil {
		return "", err
	}
	return out.TaskID, nil
}

// GetTask returns the task with id.
func (c *Client) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return withRetries(c.retries, func() (*task.Task, error) {
		var t task.Task
		if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &t); err != nil {
			return nil, err
		}
		return &t, nil
	})
}

// ListTasks lists tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status task.Status) ([]*task.Task, error) {
	path := "/tasks"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	out, err := withRetries(c.retries, func() (*taskList, error) {
		var out taskList
		if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

type taskList struct {
	Tasks []*task.Task `json:"tasks"`
}

// SendMessage appends msg and waits for the agent's turn. A failed turn is
// returned as a result with status failed, not as an error.
func (c *Client) SendMessage(ctx context.Context, taskID string, msg message.Message) (*orchestrator.TurnResult, error) {
	var res orchestrator.TurnResult
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/messages", msg, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Call invokes a method on the /rpc endpoint and decodes the result into
// out. An {"error": ...} reply is returned as an error.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/rpc", map[string]any{"method": method, "params": params}, &raw); err != nil {
		return err
	}
	var failure struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &failure); err == nil && failure.Error != "" {
		return errors.New(errors.CodeRemoteFailure, failure.Error, nil).WithContext("method", method)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(errors.CodeRemoteFailure, "decode response", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.InvalidInput("encode request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	injectTraceContext(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.New(errors.CodeTimeout, fmt.Sprintf("%s %s timed out", method, path), err)
		}
		return nil, errors.New(errors.CodeRemoteFailure, fmt.Sprintf("%s %s", method, path), err)
	}
	return resp, nil
}

// checkResponse maps non-2xx replies to typed errors carrying the server's
// error message.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	if body.Error == "" {
		body.Error = resp.Status
	}
	code := errors.CodeRemoteFailure
	switch resp.StatusCode {
	case http.StatusNotFound:
		code = errors.CodeNotFound
	case http.StatusBadRequest:
		code = errors.CodeInvalidInput
	}
	return errors.New(code, body.Error, nil).WithContext("status", resp.StatusCode)
}

func withRetries[T any](retries int, fn func() (*T, error)) (*T, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if errors.HasCode(err, errors.CodeNotFound) || errors.HasCode(err, errors.CodeInvalidInput) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
