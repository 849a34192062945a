package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jllopis/taskbridge/pkg/errors"
)

const (
	// DiscoveryPath is the well-known discovery document path.
	DiscoveryPath = "/.well-known/mcp.json"

	defaultListTimeout    = 10 * time.Second
	defaultExecuteTimeout = 30 * time.Second
)

// Auth selects the credentials HTTPTransport sends.
type Auth struct {
	Type    string // "", bearer, api_key
	Token   string
	Key     string
	KeyName string
}

// Headers returns the auth headers for a.
func (a Auth) Headers() map[string]string {
	switch a.Type {
	case "bearer":
		return map[string]string{"Authorization": "Bearer " + a.Token}
	case "api_key":
		name := a.KeyName
		if name == "" {
			name = "X-API-Key"
		}
		return map[string]string{name: a.Key}
	default:
		return nil
	}
}

// HTTPTransport speaks the JSON tool protocol: discovery document,
// GET /tools and POST /execute.
type HTTPTransport struct {
	baseURL        string
	client         *http.Client
	auth           Auth
	listTimeout    time.Duration
	executeTimeout time.Duration
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient overrides the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithAuth sets request credentials.
func WithAuth(auth Auth) HTTPOption {
	return func(t *HTTPTransport) {
		t.auth = auth
	}
}

// WithTimeouts sets the per-request timeouts for listing and execution.
func WithTimeouts(list, execute time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		if list > 0 {
			t.listTimeout = list
		}
		if execute > 0 {
			t.executeTimeout = execute
		}
	}
}

// NewHTTPTransport builds a transport rooted at baseURL.
func NewHTTPTransport(baseURL string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL:        strings.TrimRight(baseURL, "/"),
		client:         http.DefaultClient,
		listTimeout:    defaultListTimeout,
		executeTimeout: defaultExecuteTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Info fetches the discovery document.
func (t *HTTPTransport) Info(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	if err := t.getJSON(ctx, DiscoveryPath, &info); err != nil {
		return ServerInfo{}, err
	}
	return info, nil
}

type listedTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
	Return      map[string]any  `json:"return"`
}

// ListTools fetches and normalizes the tool listing.
func (t *HTTPTransport) ListTools(ctx context.Context) ([]Definition, error) {
	var payload struct {
		Tools []listedTool `json:"tools"`
	}
	if err := t.getJSON(ctx, "/tools", &payload); err != nil {
		return nil, err
	}
	defs := make([]Definition, 0, len(payload.Tools))
	for _, lt := range payload.Tools {
		defs = append(defs, Definition{
			Name:        lt.Name,
			Description: lt.Description,
			Parameters:  Normalize(lt.Parameters),
			Returns:     lt.Return,
		})
	}
	return defs, nil
}

// Execute posts a call and returns the "result" field. Error responses are
// converted using their "error" field when present.
func (t *HTTPTransport) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, t.executeTimeout)
	defer cancel()

	body, err := json.Marshal(Call{Name: name, Parameters: args})
	if err != nil {
		return nil, errors.InvalidInput("encode tool call: %v", err)
	}
	req, err := t.newRequest(ctx, http.MethodPost, "/execute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, requestError(ctx, "execute "+name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestError(ctx, "read execute response", err)
	}
	var payload struct {
		Result any    `json:"result"`
		Error  string `json:"error"`
	}
	decodeErr := json.Unmarshal(data, &payload)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && payload.Error != "" {
			return nil, fmt.Errorf("%s", payload.Error)
		}
		return nil, fmt.Errorf("tool server returned %s", resp.Status)
	}
	if decodeErr != nil {
		return nil, errors.New(errors.CodeRemoteFailure, "decode execute response", decodeErr)
	}
	return payload.Result, nil
}

func (t *HTTPTransport) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, t.listTimeout)
	defer cancel()

	req, err := t.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return requestError(ctx, "GET "+path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(errors.CodeRemoteFailure, fmt.Sprintf("GET %s returned %s", path, resp.Status), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return requestError(ctx, "decode "+path, err)
	}
	return nil
}

// requestError tags a failed request as a timeout when ctx ran out,
// otherwise as a remote failure. Both are recoverable.
func requestError(ctx context.Context, op string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.New(errors.CodeTimeout, op+" timed out", err).WithRecoverable(true)
	}
	return errors.New(errors.CodeRemoteFailure, op, err).WithRecoverable(true)
}

func (t *HTTPTransport) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, errors.InvalidInput("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.auth.Headers() {
		req.Header.Set(k, v)
	}
	return req, nil
}
