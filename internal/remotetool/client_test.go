package remotetool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/agentrun/core/internal/transport"
)

// fakeTransport is a minimal Transport for testing Client behavior without
// spawning a real subprocess.
type fakeTransport struct {
	connectErr error
	sendFunc   func(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
	connected  bool
	closed     bool
}

func (f *fakeTransport) Connect(context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.connected = false
	f.closed = true
	return nil
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) SendRequest(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if f.sendFunc != nil {
		return f.sendFunc(ctx, method, params)
	}
	return json.RawMessage(`{}`), nil
}

func newFakeClient(ft *fakeTransport) *Client {
	return New("testserver", func() Transport { return ft })
}

func TestClientConnectHandshake(t *testing.T) {
	ft := &fakeTransport{
		sendFunc: func(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
			if method != "initialize" {
				t.Fatalf("expected initialize, got %s", method)
			}
			var p map[string]any
			_ = json.Unmarshal(params, &p)
			if p["protocolVersion"] != "1.0.0" {
				t.Fatalf("expected protocolVersion 1.0.0, got %v", p["protocolVersion"])
			}
			return json.RawMessage(`{"serverInfo": {"name": "weather", "version": "0.1"}}`), nil
		},
	}
	c := newFakeClient(ft)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.IsConnected() {
		t.Fatal("expected connected after handshake")
	}
}

func TestClientConnectTransportFailure(t *testing.T) {
	ft := &fakeTransport{connectErr: errors.New("spawn failed")}
	c := newFakeClient(ft)

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected Connect to fail")
	}
	if c.LastError() == nil {
		t.Fatal("expected LastError to be recorded")
	}
}

func TestClientListToolsCaching(t *testing.T) {
	calls := 0
	ft := &fakeTransport{
		sendFunc: func(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
			switch method {
			case "initialize":
				return json.RawMessage(`{"serverInfo": {}}`), nil
			case "tools/list":
				calls++
				return json.RawMessage(`{"tools": [{"name": "get_forecast", "description": "weather"}]}`), nil
			}
			return json.RawMessage(`{}`), nil
		},
	}
	c := newFakeClient(ft)
	_ = c.Connect(context.Background())

	first, err := c.ListTools(context.Background(), false)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	second, err := c.ListTools(context.Background(), false)
	if err != nil {
		t.Fatalf("ListTools (cached): %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 underlying call, got %d", calls)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("unexpected tool counts: %d, %d", len(first), len(second))
	}

	if _, err := c.ListTools(context.Background(), true); err != nil {
		t.Fatalf("ListTools (refresh): %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected refresh to bypass cache, got %d calls", calls)
	}
}

func TestClientDisconnectInvalidatesCache(t *testing.T) {
	ft := &fakeTransport{
		sendFunc: func(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
			switch method {
			case "initialize":
				return json.RawMessage(`{"serverInfo": {}}`), nil
			case "tools/list":
				return json.RawMessage(`{"tools": [{"name": "x"}]}`), nil
			}
			return json.RawMessage(`{}`), nil
		},
	}
	c := newFakeClient(ft)
	_ = c.Connect(context.Background())
	_, _ = c.ListTools(context.Background(), false)

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if c.IsConnected() {
		t.Fatal("expected disconnected")
	}

	if _, err := c.ListTools(context.Background(), false); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after disconnect invalidated cache, got %v", err)
	}
}

func TestClientCallToolJSONRPCErrorReturnsDataNotError(t *testing.T) {
	ft := &fakeTransport{
		sendFunc: func(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
			if method == "initialize" {
				return json.RawMessage(`{"serverInfo": {}}`), nil
			}
			// tools/call fails with a JSON-RPC error object, which the
			// transport surfaces as a *transport.RPCError.
			return nil, &transport.RPCError{Code: -32000, Message: "unknown city"}
		},
	}
	c := newFakeClient(ft)
	_ = c.Connect(context.Background())

	result, err := c.CallTool(context.Background(), "get_forecast", map[string]any{"city": "Nowhere"})
	if err != nil {
		t.Fatalf("expected no Go error for a data-shaped failure, got %v", err)
	}
	if result["error"] != "unknown city" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestClientCallToolTransportErrorPropagates(t *testing.T) {
	ft := &fakeTransport{
		sendFunc: func(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
			if method == "initialize" {
				return json.RawMessage(`{"serverInfo": {}}`), nil
			}
			return nil, errors.New("broken pipe")
		},
	}
	c := newFakeClient(ft)
	_ = c.Connect(context.Background())

	_, err := c.CallTool(context.Background(), "get_forecast", nil)
	if err == nil {
		t.Fatal("expected transport error to propagate")
	}
}

func TestToToolInfoNamingAndSchema(t *testing.T) {
	ft := &fakeTransport{}
	c := newFakeClient(ft)

	schema := ToolSchema{
		Name:        "get_forecast",
		Description: "returns the forecast",
		InputSchema: json.RawMessage(`{"properties": {"city": {"type": "string"}, "days": {"type": "integer"}}, "required": ["city"]}`),
	}

	info := ToToolInfo("weather", schema, c)

	if info.Name != "mcp_weather_get_forecast" {
		t.Fatalf("Name = %q; want mcp_weather_get_forecast", info.Name)
	}
	if info.Description != "[MCP:weather] returns the forecast" {
		t.Fatalf("Description = %q", info.Description)
	}
	if len(info.Parameters) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(info.Parameters))
	}
	if info.RemoteOrigin == nil || info.RemoteOrigin.ServerName != "weather" || info.RemoteOrigin.OriginalToolName != "get_forecast" {
		t.Fatalf("unexpected RemoteOrigin: %+v", info.RemoteOrigin)
	}

	var cityParam, daysParam *struct{ required bool }
	for _, p := range info.Parameters {
		if p.Name == "city" {
			cityParam = &struct{ required bool }{p.Required}
		}
		if p.Name == "days" {
			daysParam = &struct{ required bool }{p.Required}
		}
	}
	if cityParam == nil || !cityParam.required {
		t.Fatal("expected city to be required")
	}
	if daysParam == nil || daysParam.required {
		t.Fatal("expected days to be optional")
	}
}
