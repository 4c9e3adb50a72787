// ABOUTME: Tool registry: namespace for in-process and remote tools with fuzzy name resolution
// ABOUTME: Register/Find/Resolve/Execute/FormatForPrompt per the fixed resolution algorithm

package tools

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrDuplicateTool is returned by Register when a tool with the same name
// is already present in the registry.
var ErrDuplicateTool = errors.New("tool already registered")

// Registry holds tool descriptors and resolves names to them, tolerating
// the model's habit of dropping a tool's mcp_<server>_ prefix or getting
// its case wrong.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolInfo
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]ToolInfo),
	}
}

// Register adds a tool to the registry. It returns ErrDuplicateTool if a
// tool with the same name is already present; registration is atomic, so a
// duplicate never overwrites the existing entry.
func (r *Registry) Register(info ToolInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[info.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, info.Name)
	}
	r.tools[info.Name] = info
	r.order = append(r.order, info.Name)
	return nil
}

// Unregister removes a tool by exact name, along with any cached ordering.
// It is a no-op if the name is not present, matching the caller's intent
// of "this tool should no longer be here" regardless of prior state.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Find looks up a tool by its exact, canonical name.
func (r *Registry) Find(name string) (ToolInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.tools[name]
	return info, ok
}

// Resolve performs fuzzy name resolution for a query the model produced.
// It first looks for registered names whose lowercase form ends with
// "_" + lowercase(query) (compensating for a dropped mcp_<server>_ prefix);
// if exactly one candidate matches, that name is returned. Otherwise it
// falls back to an exact case-insensitive match, again requiring
// uniqueness. Any other outcome (zero or multiple candidates at either
// step) is ambiguous or unresolved and returns "".
func (r *Registry) Resolve(query string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(query)
	suffix := "_" + q

	var suffixMatches []string
	var exactMatches []string
	for name := range r.tools {
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, suffix) {
			suffixMatches = append(suffixMatches, name)
		}
		if lower == q {
			exactMatches = append(exactMatches, name)
		}
	}

	if len(suffixMatches) == 1 {
		return suffixMatches[0]
	}
	if len(exactMatches) == 1 {
		return exactMatches[0]
	}
	return ""
}

// Execute resolves name if it is not already a canonical registration,
// then invokes the tool's callback. A missing tool, a callback error, or a
// callback panic are all converted into the same
// {"status": "error", "error": "<message>"} result shape rather than
// propagated to the caller.
func (r *Registry) Execute(name string, args map[string]any) map[string]any {
	info, ok := r.Find(name)
	if !ok {
		if resolved := r.Resolve(name); resolved != "" {
			info, ok = r.Find(resolved)
		}
	}
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool: %s", name))
	}

	return r.invoke(info, args)
}

func (r *Registry) invoke(info ToolInfo, args map[string]any) (result map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			result = errorResult(fmt.Sprintf("tool %s panicked: %v", info.Name, rec))
		}
	}()

	if info.Callback == nil {
		return errorResult(fmt.Sprintf("tool %s has no callback", info.Name))
	}

	out, err := info.Callback(args)
	if err != nil {
		return errorResult(err.Error())
	}
	if out == nil {
		out = map[string]any{}
	}
	return out
}

func errorResult(message string) map[string]any {
	return map[string]any{"status": "error", "error": message}
}

// All returns every registered ToolInfo, in registration order.
func (r *Registry) All() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// FormatForPrompt renders the registry as a deterministic tool listing for
// inclusion in the system prompt: one "- name(p1: t1, p2?: t2): description"
// line per tool, sorted by name so the output is stable across calls
// within a process regardless of registration order.
func (r *Registry) FormatForPrompt() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		info := r.tools[name]
		b.WriteString("- ")
		b.WriteString(info.Name)
		b.WriteByte('(')
		for i, p := range info.Parameters {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Name)
			if !p.Required {
				b.WriteByte('?')
			}
			b.WriteString(": ")
			b.WriteString(string(p.Type))
		}
		b.WriteString("): ")
		b.WriteString(info.Description)
		b.WriteByte('\n')
	}
	return b.String()
}
