package tool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoRegistry() *Registry {
	r := NewRegistry()
	r.Register("get_weather", "Get current weather for a location",
		func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"temperature": 72, "condition": "sunny", "location": args["location"]}, nil
		},
		Parameter{Name: "location", Description: "City name", Type: "string", Required: true},
	)
	r.Register("fail", "Always fails", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("tool exploded")
	})
	return r
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(demoRegistry(), ServerInfo{Name: "demo-tools", Description: "demo", Version: "1.0.0"})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestServerDiscoveryDocument(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + DiscoveryPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "demo-tools", doc["name"])
	assert.Equal(t, map[string]any{"type": "none"}, doc["auth"])
	assert.Equal(t, map[string]any{}, doc["contact"])
	assert.Equal(t, map[string]any{"tools": "/tools", "execute": "/execute"}, doc["endpoints"])
}

func TestHTTPTransportRoundTrip(t *testing.T) {
	_, ts := newTestServer(t)
	c := NewClient(NewHTTPTransport(ts.URL + "/"))

	info, err := c.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "demo-tools", info.Name)

	def, ok := c.Tool("get_weather")
	require.True(t, ok)
	require.Len(t, def.Parameters, 1)
	assert.Equal(t, Parameter{Name: "location", Description: "City name", Type: "string", Required: true}, def.Parameters[0])

	res, err := c.Invoke(context.Background(), "get_weather", map[string]any{"location": "Paris"})
	require.NoError(t, err)
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "Paris", res.Value.(map[string]any)["location"])
	assert.EqualValues(t, 72, res.Value.(map[string]any)["temperature"])

	res, err = c.Invoke(context.Background(), "fail", nil)
	require.NoError(t, err)
	assert.Equal(t, "tool exploded", res.Error)
}

func TestExecuteEndpointErrors(t *testing.T) {
	_, ts := newTestServer(t)
	cases := []struct {
		body string
		want string
	}{
		{`{"parameters":{}}`, "Missing tool name"},
		{`{not json`, "Invalid JSON in request body"},
		{`{"name":"nope"}`, "Tool not found: nope"},
	}
	for _, tc := range cases {
		resp, err := http.Post(ts.URL+"/execute", "application/json", strings.NewReader(tc.body))
		require.NoError(t, err)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, tc.body)
		assert.Equal(t, tc.want, payload["error"])
	}
}

func TestHTTPTransportSendsAuthHeaders(t *testing.T) {
	var got http.Header
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeJSON(w, http.StatusOK, map[string]any{"tools": []any{}})
	}))
	defer ts.Close()

	tr := NewHTTPTransport(ts.URL, WithAuth(Auth{Type: "api_key", Key: "k-123"}))
	_, err := tr.ListTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k-123", got.Get("X-API-Key"))

	tr = NewHTTPTransport(ts.URL, WithAuth(Auth{Type: "bearer", Token: "tok"}))
	_, err = tr.ListTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
}

func TestHTTPTransportListsFlatParameterShape(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tools":[{"name":"calculate","description":"math","parameters":[{"name":"expression","type":"string","required":true}]}]}`))
	}))
	defer ts.Close()

	defs, err := NewHTTPTransport(ts.URL).ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, []string{"expression"}, defs[0].RequiredNames())
}

func TestMCPMirrorInProcess(t *testing.T) {
	srv := NewServer(demoRegistry(), ServerInfo{Name: "demo-tools", Version: "1.0.0"})
	mc, err := client.NewInProcessClient(srv.MCPServer())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mc.Start(ctx))

	tr, err := NewMCPTransport(ctx, mc)
	require.NoError(t, err)
	defer tr.Close()

	c := NewClient(tr)
	info, err := c.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, "demo-tools", info.Name)

	def, ok := c.Tool("get_weather")
	require.True(t, ok)
	assert.Equal(t, []string{"location"}, def.RequiredNames())

	res, err := c.Invoke(ctx, "get_weather", map[string]any{"location": "Lisbon"})
	require.NoError(t, err)
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "Lisbon", res.Value.(map[string]any)["location"])

	res, err = c.Invoke(ctx, "fail", nil)
	require.NoError(t, err)
	assert.Equal(t, "tool exploded", res.Error)
}

func TestMCPMirrorOverStreamableHTTP(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()

	tr, err := DialMCP(ctx, ts.URL+"/mcp")
	require.NoError(t, err)
	defer tr.Close()

	defs, err := tr.ListTools(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	value, err := tr.Execute(ctx, "get_weather", map[string]any{"location": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, "sunny", value.(map[string]any)["condition"])
}
