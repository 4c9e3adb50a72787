// ABOUTME: Remote tool client: MCP-style handshake, tool listing/caching, and tool invocation
// ABOUTME: Wraps a Transport; translates JSON-RPC schemas into tools.ToolInfo descriptors

package remotetool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/agentrun/core/internal/tools"
	"github.com/agentrun/core/internal/transport"
)

// ErrNotConnected is returned by ListTools/CallTool before Connect has
// succeeded, or after Disconnect.
var ErrNotConnected = errors.New("remote tool client not connected")

const protocolVersion = "1.0.0"

// Transport is the subset of internal/transport.Transport the remote tool
// client depends on. Declared locally so tests can supply a fake without
// spawning a real child process.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	SendRequest(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
	IsConnected() bool
}

// ServerInfo identifies the remote server from the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolSchema is one entry from a tools/list response, before translation
// into a tools.ToolInfo.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// jsonSchemaProperty is the subset of JSON-Schema this client understands
// when translating a tool's input_schema into tools.ToolParameter values.
type jsonSchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type jsonSchemaObject struct {
	Properties map[string]jsonSchemaProperty `json:"properties"`
	Required   []string                      `json:"required"`
}

// Client wraps a Transport with the MCP-style initialize/list/call protocol
// and the caching and naming conventions remote tools need to appear in a
// local tools.Registry. Concurrent calls on one client are not supported:
// the underlying subprocess is exclusively owned by this client.
type Client struct {
	serverName   string
	newTransport func() Transport

	mu         sync.RWMutex
	transport  Transport
	connected  bool
	serverInfo ServerInfo
	tools      []ToolSchema
	lastError  error
}

// New creates a remote tool client for serverName. newTransport is called
// each time a transport is needed: once on Connect, and again by a caller
// performing a reconnect after a transport failure, since that is the only
// way to rebuild from the saved spawn config without the client itself
// needing to remember command-line details.
func New(serverName string, newTransport func() Transport) *Client {
	return &Client{serverName: serverName, newTransport: newTransport}
}

// ServerName returns the name this client was registered under.
func (c *Client) ServerName() string { return c.serverName }

// IsConnected reports whether the handshake has completed and no
// subsequent failure has torn the connection down.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// LastError returns the most recent connect, handshake, or transport
// failure (including failed tools/list and tools/call requests), if any.
func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// Connect spawns the transport and performs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	t := c.newTransport()
	if err := t.Connect(ctx); err != nil {
		c.recordError(err)
		return fmt.Errorf("connecting remote tool server %q: %w", c.serverName, err)
	}

	params, err := json.Marshal(map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      map[string]string{"name": "agentcore", "version": "1.0.0"},
		"capabilities":    map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("marshaling initialize params: %w", err)
	}

	result, err := t.SendRequest(ctx, "initialize", params)
	if err != nil {
		c.recordError(err)
		return fmt.Errorf("initializing remote tool server %q: %w", c.serverName, err)
	}

	var initResult struct {
		ServerInfo ServerInfo `json:"serverInfo"`
	}
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.recordError(err)
		return fmt.Errorf("parsing initialize result: %w", err)
	}

	c.mu.Lock()
	c.transport = t
	c.connected = true
	c.serverInfo = initResult.ServerInfo
	c.lastError = nil
	c.mu.Unlock()

	return nil
}

// Disconnect tears down the transport and invalidates the cached tool
// schemas.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.connected = false
	c.tools = nil
	c.mu.Unlock()

	if t == nil {
		return nil
	}
	return t.Disconnect()
}

// ListTools returns the server's tool schemas, using the cache unless
// refresh is true.
func (c *Client) ListTools(ctx context.Context, refresh bool) ([]ToolSchema, error) {
	c.mu.RLock()
	cached := c.tools
	t := c.transport
	connected := c.connected
	c.mu.RUnlock()

	if !refresh && cached != nil {
		return cached, nil
	}
	if !connected {
		return nil, ErrNotConnected
	}

	result, err := t.SendRequest(ctx, "tools/list", nil)
	if err != nil {
		c.recordError(err)
		return nil, fmt.Errorf("tools/list on %q: %w", c.serverName, err)
	}

	var parsed struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("parsing tools/list result: %w", err)
	}

	c.mu.Lock()
	c.tools = parsed.Tools
	c.mu.Unlock()

	return parsed.Tools, nil
}

// CallTool invokes a tool by its original (unprefixed) name. On a JSON-RPC
// error response, it returns {"error": <message>} as a data result rather
// than an error, so the agent loop can splice the failure into the
// conversation; on a transport-level failure it returns a Go error, which
// is the signal the agent loop uses to trigger its one reconnect attempt.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	c.mu.RLock()
	t := c.transport
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		return nil, ErrNotConnected
	}

	params, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, fmt.Errorf("marshaling tools/call params: %w", err)
	}

	result, err := t.SendRequest(ctx, "tools/call", params)
	if err != nil {
		var rpcErr *transport.RPCError
		if errors.As(err, &rpcErr) {
			return map[string]any{"error": rpcErr.Message}, nil
		}
		c.recordError(err)
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(result, &out); err != nil {
		return map[string]any{"error": string(result)}, nil
	}
	return out, nil
}

func (c *Client) recordError(err error) {
	c.mu.Lock()
	c.lastError = err
	c.connected = false
	c.mu.Unlock()
}

// ToToolInfo translates a remote schema into a tools.ToolInfo registered
// under mcp_<server>_<tool>, with its callback dispatching through client.
func ToToolInfo(serverName string, schema ToolSchema, client *Client) tools.ToolInfo {
	params := translateParameters(schema.InputSchema)
	registeredName := fmt.Sprintf("mcp_%s_%s", serverName, schema.Name)

	return tools.ToolInfo{
		Name:        registeredName,
		Description: fmt.Sprintf("[MCP:%s] %s", serverName, schema.Description),
		Parameters:  params,
		Atomic:      true,
		RemoteOrigin: &tools.RemoteOrigin{
			ServerName:       serverName,
			OriginalToolName: schema.Name,
		},
		Callback: func(args map[string]any) (map[string]any, error) {
			return client.CallTool(context.Background(), schema.Name, args)
		},
	}
}

func translateParameters(rawSchema json.RawMessage) []tools.ToolParameter {
	if len(rawSchema) == 0 {
		return nil
	}

	var schema jsonSchemaObject
	if err := json.Unmarshal(rawSchema, &schema); err != nil {
		return nil
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]tools.ToolParameter, 0, len(names))
	for _, name := range names {
		prop := schema.Properties[name]
		params = append(params, tools.ToolParameter{
			Name:        name,
			Type:        jsonSchemaTypeToParamType(prop.Type),
			Required:    required[name],
			Description: prop.Description,
		})
	}
	return params
}

func jsonSchemaTypeToParamType(t string) tools.ToolParamType {
	switch t {
	case "string":
		return tools.ParamTypeString
	case "integer":
		return tools.ParamTypeInteger
	case "number":
		return tools.ParamTypeNumber
	case "boolean":
		return tools.ParamTypeBoolean
	case "array":
		return tools.ParamTypeArray
	case "object":
		return tools.ParamTypeObject
	default:
		return tools.ParamTypeUnknown
	}
}
