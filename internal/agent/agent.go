// ABOUTME: Agent execution loop: a small state machine alternating LLM calls with tool dispatch
// ABOUTME: process_query drives at most max_steps iterations, splicing tool results back into history

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentrun/core/internal/eventsink"
	"github.com/agentrun/core/internal/llmclient"
	"github.com/agentrun/core/internal/parser"
	"github.com/agentrun/core/internal/remotetool"
	"github.com/agentrun/core/internal/tools"
	"golang.org/x/sync/errgroup"
)

// responseFormatTemplate is the fixed reply-shape contract appended to
// every system prompt. It is shared by every agent instance.
const responseFormatTemplate = `
==== RESPONSE FORMAT ====
Respond ONLY in valid JSON. No text before { or after }.

To call a tool:
{"thought": "reasoning", "goal": "objective", "tool": "tool_name", "tool_args": {"arg1": "value1"}}

To call a tool with an advisory plan:
{"thought": "reasoning", "goal": "objective", "plan": [{"tool": "t1", "tool_args": {}}, {"tool": "t2", "tool_args": {}}], "tool": "t1", "tool_args": {}}

To provide a final answer:
{"thought": "reasoning", "goal": "achieved", "answer": "response to user"}

Rules:
1. Always use tools for real data; never fabricate it.
2. Call one tool at a time - observe the result, reason about it, then decide the next action.
3. A "plan" shows intended steps but only the "tool" field is executed.
4. After each tool result, the plan may change - it is a roadmap, not a script.
5. Once every tool has run, provide an "answer" summarizing the result.
`

// TransportFactory builds a fresh remotetool.Transport for a remote server,
// capturing that server's spawn configuration. Called once on initial
// attach and again on every reconnect attempt.
type TransportFactory func() remotetool.Transport

// Agent orchestrates the prompt/parse/dispatch loop against an LLM endpoint
// and a tool registry, owning its conversation history and any attached
// remote tool clients. One Agent serves one query at a time; ProcessQuery
// is synchronous from the caller's view.
type Agent struct {
	config AgentConfig
	llm    *llmclient.Client
	sink   eventsink.Sink

	registry *tools.Registry

	promptHook func() string

	mu                 sync.Mutex
	history            []Message
	remoteClients      map[string]*remotetool.Client
	remoteTransportFor map[string]TransportFactory
	systemPromptDirty  bool
	cachedSystemPrompt string
}

// New creates an Agent. A nil sink defaults to a Terminal sink, or a Silent
// sink when cfg.SilentMode is set.
func New(cfg AgentConfig, sink eventsink.Sink) *Agent {
	if sink == nil {
		if cfg.SilentMode {
			sink = eventsink.NewSilent(nil, false)
		} else {
			sink = eventsink.NewTerminal(nil)
		}
	}

	return &Agent{
		config:             cfg,
		llm:                llmclient.New(llmclient.Config{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, ConnectTimeout: cfg.ConnectTimeout, ReadTimeout: cfg.ReadTimeout}),
		sink:               sink,
		registry:           tools.NewRegistry(),
		remoteClients:      make(map[string]*remotetool.Client),
		remoteTransportFor: make(map[string]TransportFactory),
		systemPromptDirty:  true,
	}
}

// SetPromptHook installs the domain-specific prompt text prepended to the
// tool listing and response-format template. A nil hook (the default)
// contributes nothing.
func (a *Agent) SetPromptHook(hook func() string) {
	a.promptHook = hook
	a.markDirty()
}

// RegisterTool adds a local tool to the registry and marks the system
// prompt dirty so the next call to SystemPrompt recomposes it.
func (a *Agent) RegisterTool(info tools.ToolInfo) error {
	if err := a.registry.Register(info); err != nil {
		return err
	}
	a.markDirty()
	return nil
}

// AttachServer connects to a remote tool server, lists its tools, and
// registers each under mcp_<name>_<tool>. factory is retained so a later
// transport failure can trigger exactly one reconnect attempt.
func (a *Agent) AttachServer(ctx context.Context, name string, factory TransportFactory) error {
	client := remotetool.New(name, factory)
	if err := client.Connect(ctx); err != nil {
		a.sink.Emit(eventsink.Event{Type: eventsink.EventError, Text: fmt.Sprintf("failed to connect to remote tool server %q: %v", name, err)})
		return fmt.Errorf("connecting remote tool server %q: %w", name, err)
	}

	schemas, err := client.ListTools(ctx, false)
	if err != nil {
		a.sink.Emit(eventsink.Event{Type: eventsink.EventError, Text: fmt.Sprintf("failed to list tools on %q: %v", name, err)})
		return fmt.Errorf("listing tools on %q: %w", name, err)
	}

	for _, schema := range schemas {
		info := remotetool.ToToolInfo(name, schema, client)
		originalName := schema.Name
		info.Callback = func(args map[string]any) (map[string]any, error) {
			return a.callRemoteTool(context.Background(), name, originalName, args)
		}
		if err := a.registry.Register(info); err != nil {
			continue // already registered under this name; skip rather than fail attach
		}
	}

	a.mu.Lock()
	a.remoteClients[name] = client
	a.remoteTransportFor[name] = factory
	a.mu.Unlock()

	a.sink.Emit(eventsink.Event{Type: eventsink.EventInfo, Text: fmt.Sprintf("connected to remote tool server %q with %d tools", name, len(schemas))})
	a.markDirty()
	return nil
}

// RemoteServerSpec names one remote tool server to attach concurrently via
// AttachServers.
type RemoteServerSpec struct {
	Name    string
	Factory TransportFactory
}

// AttachServers connects to several remote tool servers concurrently. This
// is a one-time startup operation, not per-step tool dispatch, so it is
// exempt from the loop's single-tool-at-a-time rule.
func (a *Agent) AttachServers(ctx context.Context, servers []RemoteServerSpec) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, s := range servers {
		s := s
		g.Go(func() error {
			return a.AttachServer(gCtx, s.Name, s.Factory)
		})
	}
	return g.Wait()
}

func (a *Agent) markDirty() {
	a.mu.Lock()
	a.systemPromptDirty = true
	a.mu.Unlock()
}

// SystemPrompt returns the composed system prompt, recomputing it lazily
// whenever the tool set has changed since the last call.
func (a *Agent) SystemPrompt() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.systemPromptDirty {
		a.cachedSystemPrompt = a.composeSystemPrompt()
		a.systemPromptDirty = false
	}
	return a.cachedSystemPrompt
}

func (a *Agent) composeSystemPrompt() string {
	var b []byte

	if a.promptHook != nil {
		if custom := a.promptHook(); custom != "" {
			b = append(b, custom...)
			b = append(b, "\n\n"...)
		}
	}

	if toolsDesc := a.registry.FormatForPrompt(); toolsDesc != "" {
		b = append(b, "==== AVAILABLE TOOLS ====\n"...)
		b = append(b, toolsDesc...)
		b = append(b, '\n')
	}

	b = append(b, responseFormatTemplate...)
	return string(b)
}

// ProcessQuery drives at most maxSteps (or config.MaxSteps if maxSteps <= 0)
// LLM/tool iterations to produce a single final answer, then persists the
// resulting history (with tool-role messages rewritten to user-role) for
// the next call.
func (a *Agent) ProcessQuery(ctx context.Context, userInput string, maxSteps int) (Result, error) {
	stepsLimit := maxSteps
	if stepsLimit <= 0 {
		stepsLimit = a.config.MaxSteps
	}

	a.mu.Lock()
	messages := append([]Message{}, a.history...)
	a.mu.Unlock()
	messages = append(messages, Message{Role: RoleUser, Content: userInput})

	a.sink.Emit(eventsink.Event{Type: eventsink.EventProcessingStart, Query: userInput, MaxSteps: stepsLimit, ModelID: a.config.ModelID})

	state := statePlanning
	stepsTaken := 0
	finalAnswer := ""
	lastError := ""
	var stepResults []map[string]any
	var toolCallHistory []toolCallRecord

	for stepsTaken < stepsLimit && finalAnswer == "" {
		stepsTaken++
		a.sink.Emit(eventsink.Event{Type: eventsink.EventStepHeader, StepNum: stepsTaken, MaxSteps: stepsLimit})

		if state == stateErrorRecovery {
			messages = append(messages, Message{Role: RoleUser, Content: recoveryPrompt(lastError, userInput)})
			state = statePlanning
			stepResults = nil
		}

		response, err := a.callLLMWithRetry(ctx, messages)
		if err != nil {
			a.sink.Emit(eventsink.Event{Type: eventsink.EventError, Text: fmt.Sprintf("LLM error: %v", err)})
			finalAnswer = fmt.Sprintf("Unable to complete task due to LLM error: %v", err)
			break
		}

		messages = append(messages, Message{Role: RoleAssistant, Content: response})

		parsed := parser.Parse(response)
		a.sink.Emit(eventsink.Event{Type: eventsink.EventThought, Text: parsed.Thought})
		a.sink.Emit(eventsink.Event{Type: eventsink.EventGoal, Text: parsed.Goal})

		if parsed.HasAnswer {
			finalAnswer = parsed.Answer
			a.sink.Emit(eventsink.Event{Type: eventsink.EventFinalAnswer, Text: finalAnswer})
			break
		}

		if parsed.HasPlan {
			a.sink.Emit(eventsink.Event{Type: eventsink.EventPlan, Plan: parsed.Plan, CurrentStep: -1})
		}

		if parsed.HasTool {
			state = stateExecutingPlan

			resolvedArgs, _ := resolvePlanParameters(parsed.ToolArgs, stepResults).(map[string]any)
			if resolvedArgs == nil {
				resolvedArgs = map[string]any{}
			}

			toolCallHistory = append(toolCallHistory, toolCallRecord{Name: parsed.ToolName, Args: resolvedArgs})
			if loopDetected(toolCallHistory, a.config.MaxConsecutiveRepeats) {
				a.sink.Emit(eventsink.Event{Type: eventsink.EventWarning, Text: "detected repeated tool call loop, stopping"})
				finalAnswer = "Task stopped due to repeated tool call loop."
				break
			}

			a.sink.Emit(eventsink.Event{Type: eventsink.EventToolUsage, ToolName: parsed.ToolName})
			a.sink.Emit(eventsink.Event{Type: eventsink.EventToolArgs, ToolName: parsed.ToolName, ToolArgs: resolvedArgs})
			a.sink.Emit(eventsink.Event{Type: eventsink.EventProgressStart, Text: "Executing " + parsed.ToolName})

			result := a.registry.Execute(parsed.ToolName, resolvedArgs)

			a.sink.Emit(eventsink.Event{Type: eventsink.EventProgressStop})
			a.sink.Emit(eventsink.Event{Type: eventsink.EventToolComplete})
			a.sink.Emit(eventsink.Event{Type: eventsink.EventToolResult, ToolName: parsed.ToolName, Result: result})

			stepResults = append(stepResults, result)
			messages = append(messages, Message{Role: RoleTool, Name: parsed.ToolName, Content: tools.TruncateMiddle(stringifyResult(result))})

			if status, _ := result["status"].(string); status == "error" {
				lastError = errorMessageFrom(result)
				state = stateErrorRecovery
			}

			continue
		}

		// Neither an answer nor a tool call: treat the raw reply as the answer.
		finalAnswer = response
		a.sink.Emit(eventsink.Event{Type: eventsink.EventFinalAnswer, Text: finalAnswer})
		break
	}

	if finalAnswer == "" {
		finalAnswer = fmt.Sprintf("Reached maximum steps limit (%d steps).", stepsLimit)
		a.sink.Emit(eventsink.Event{Type: eventsink.EventWarning, Text: finalAnswer})
	}

	a.sink.Emit(eventsink.Event{Type: eventsink.EventCompletion, StepsTaken: stepsTaken, MaxSteps: stepsLimit})

	messages = rewriteToolMessages(messages)
	messages = trimHistory(messages, a.config.MaxHistoryMessages)

	a.mu.Lock()
	a.history = messages
	a.mu.Unlock()

	return Result{Result: finalAnswer, StepsTaken: stepsTaken, StepsLimit: stepsLimit}, nil
}

// callLLMWithRetry calls the LLM once, retrying exactly once on failure, as
// the loop-level retry distinct from the llmclient's own 429/5xx retries.
func (a *Agent) callLLMWithRetry(ctx context.Context, messages []Message) (string, error) {
	wire := append([]Message{{Role: RoleSystem, Content: a.SystemPrompt()}}, messages...)

	response, err := a.llm.Complete(ctx, a.config.ModelID, wire)
	if err == nil {
		return response, nil
	}

	a.sink.Emit(eventsink.Event{Type: eventsink.EventWarning, Text: fmt.Sprintf("LLM call failed, retrying: %v", err)})
	return a.llm.Complete(ctx, a.config.ModelID, wire)
}

// callRemoteTool invokes a tool on a named remote server, performing
// exactly one reconnect attempt if the transport has failed.
func (a *Agent) callRemoteTool(ctx context.Context, serverName, toolName string, args map[string]any) (map[string]any, error) {
	a.mu.Lock()
	client := a.remoteClients[serverName]
	a.mu.Unlock()

	if client == nil {
		return map[string]any{"error": fmt.Sprintf("remote tool server %q not found", serverName)}, nil
	}

	if client.IsConnected() {
		result, err := client.CallTool(ctx, toolName, args)
		if err == nil {
			return result, nil
		}
		a.sink.Emit(eventsink.Event{Type: eventsink.EventWarning, Text: fmt.Sprintf("remote tool call failed: %v -- attempting reconnect to %q", err, serverName)})
	} else {
		a.sink.Emit(eventsink.Event{Type: eventsink.EventWarning, Text: fmt.Sprintf("remote tool server %q disconnected -- attempting reconnect", serverName)})
	}

	if !a.reconnectServer(ctx, serverName) {
		return map[string]any{"error": fmt.Sprintf("remote tool server %q disconnected and reconnect failed", serverName)}, nil
	}

	a.mu.Lock()
	client = a.remoteClients[serverName]
	a.mu.Unlock()

	result, err := client.CallTool(ctx, toolName, args)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("remote tool call failed after reconnect: %v", err)}, nil
	}
	return result, nil
}

func (a *Agent) reconnectServer(ctx context.Context, name string) bool {
	a.mu.Lock()
	factory, ok := a.remoteTransportFor[name]
	a.mu.Unlock()
	if !ok {
		return false
	}

	newClient := remotetool.New(name, factory)
	if err := newClient.Connect(ctx); err != nil {
		a.sink.Emit(eventsink.Event{Type: eventsink.EventError, Text: fmt.Sprintf("reconnect failed for %q: %v", name, err)})
		return false
	}

	a.mu.Lock()
	a.remoteClients[name] = newClient
	a.mu.Unlock()

	a.sink.Emit(eventsink.Event{Type: eventsink.EventInfo, Text: fmt.Sprintf("reconnected to remote tool server %q", name)})
	return true
}

func loopDetected(history []toolCallRecord, maxConsecutiveRepeats int) bool {
	if maxConsecutiveRepeats <= 0 || len(history) < maxConsecutiveRepeats {
		return false
	}
	window := history[len(history)-maxConsecutiveRepeats:]
	name := window[0].Name
	for _, entry := range window {
		if entry.Name != name {
			return false
		}
	}
	return true
}

func recoveryPrompt(lastError, originalTask string) string {
	return fmt.Sprintf(
		"TOOL EXECUTION FAILED.\n\nError: %s\n\nOriginal task: %s\n\n"+
			"Analyze the error and try an alternative approach. Respond with "+
			`{"thought": "...", "goal": "...", "tool": "...", "tool_args": {...}}`,
		lastError, originalTask,
	)
}

func errorMessageFrom(result map[string]any) string {
	if msg, ok := result["error"].(string); ok {
		return msg
	}
	return "unknown error"
}

func stringifyResult(result map[string]any) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"status":"error","error":"marshaling tool result: %v"}`, err)
	}
	return string(data)
}

// rewriteToolMessages converts every tool-role message into a user-role
// message reading "[Result from <name>]: <content>", so the next turn's
// history needs no tool_call_id pairing the LLM server might validate.
func rewriteToolMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		if m.Role != RoleTool {
			out[i] = m
			continue
		}
		name := m.Name
		if name == "" {
			name = "tool"
		}
		out[i] = Message{Role: RoleUser, Content: fmt.Sprintf("[Result from %s]: %s", name, m.Content)}
	}
	return out
}

// trimHistory discards the oldest messages until at most max remain. A
// max of 0 means unlimited.
func trimHistory(messages []Message, max int) []Message {
	if max <= 0 || len(messages) <= max {
		return messages
	}
	return messages[len(messages)-max:]
}
