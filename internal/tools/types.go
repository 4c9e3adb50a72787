// ABOUTME: Tool descriptor types: parameters, schema, and remote-origin metadata
// ABOUTME: Shared by the local registry and the remote tool client's schema translation

package tools

// ToolParamType tags the JSON-Schema-ish type of a single tool parameter.
// Used only when formatting the system prompt and when translating a
// remote tool's JSON-Schema into ToolParameter values.
type ToolParamType string

const (
	ParamTypeString  ToolParamType = "string"
	ParamTypeInteger ToolParamType = "integer"
	ParamTypeNumber  ToolParamType = "number"
	ParamTypeBoolean ToolParamType = "boolean"
	ParamTypeArray   ToolParamType = "array"
	ParamTypeObject  ToolParamType = "object"
	ParamTypeUnknown ToolParamType = "unknown"
)

// ToolParameter describes one argument a tool accepts.
type ToolParameter struct {
	Name        string
	Type        ToolParamType
	Required    bool
	Description string
}

// RemoteOrigin identifies the MCP-style server a remote tool was enumerated
// from, and the tool's name before the mcp_<server>_ prefix was applied.
type RemoteOrigin struct {
	ServerName       string
	OriginalToolName string
}

// Callback invokes a tool with JSON-decoded arguments and returns a
// JSON-serializable result. A callback signals failure either by returning
// a non-nil error or by panicking; both are converted by Registry.Execute
// into a {"status": "error", "error": "..."} result rather than propagated.
type Callback func(args map[string]any) (map[string]any, error)

// ToolInfo is the full descriptor for one registered tool, local or remote.
type ToolInfo struct {
	Name        string
	Description string
	Parameters  []ToolParameter

	// Atomic is advisory metadata describing whether the tool's effect is a
	// single indivisible operation. It has no effect on dispatch or retry
	// behavior; it exists purely for callers that want to inspect it.
	Atomic bool

	Callback Callback

	// RemoteOrigin is non-nil for tools registered from a remote server's
	// tool list; nil for in-process tools.
	RemoteOrigin *RemoteOrigin
}
