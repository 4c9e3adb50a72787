// ABOUTME: Core agent types: message roles, execution states, and the process_query result shape
// ABOUTME: Message is re-exported from internal/llmclient since the wire shape and the history shape are identical

package agent

import "github.com/agentrun/core/internal/llmclient"

// Message roles, matching the LLM wire contract exactly.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is the conversation history's unit, identical in shape to the
// wire message the LLM endpoint expects, so no translation step is needed
// between history storage and request assembly.
type Message = llmclient.Message

// executionState is the loop-local state machine position for one query.
// It shapes error-recovery prompts; it carries no information the parser
// needs to know about.
type executionState int

const (
	statePlanning executionState = iota
	stateExecutingPlan
	stateErrorRecovery
	stateCompletion
)

// Result is process_query's return value.
type Result struct {
	Result     string
	StepsTaken int
	StepsLimit int
}

// toolCallRecord is one entry in the loop detector's history.
type toolCallRecord struct {
	Name string
	Args map[string]any
}
