// ABOUTME: $PREV.<field> / $STEP_<k>.<field> placeholder substitution for plan-carried tool arguments
// ABOUTME: Walks tool_args recursively; only string leaves matching the pattern are substituted

package agent

import (
	"regexp"
	"strconv"
	"strings"
)

var stepPlaceholderRe = regexp.MustCompile(`^\$STEP_(\d+)\.(.+)$`)

// resolvePlanParameters walks value (typically a tool_args map decoded from
// the LLM's reply) and replaces any string leaf matching "$PREV.<field>" or
// "$STEP_<k>.<field>" with the named field of a previously captured step
// result. Non-matching strings, and every other JSON type, pass through
// unchanged.
func resolvePlanParameters(value any, stepResults []map[string]any) any {
	switch v := value.(type) {
	case map[string]any:
		resolved := make(map[string]any, len(v))
		for key, val := range v {
			resolved[key] = resolvePlanParameters(val, stepResults)
		}
		return resolved
	case []any:
		resolved := make([]any, len(v))
		for i, item := range v {
			resolved[i] = resolvePlanParameters(item, stepResults)
		}
		return resolved
	case string:
		return resolvePlaceholderString(v, stepResults)
	default:
		return value
	}
}

func resolvePlaceholderString(val string, stepResults []map[string]any) any {
	if field, ok := strings.CutPrefix(val, "$PREV."); ok && len(stepResults) > 0 {
		prev := stepResults[len(stepResults)-1]
		if resolved, ok := prev[field]; ok {
			return resolved
		}
		return val
	}

	if match := stepPlaceholderRe.FindStringSubmatch(val); match != nil {
		idx, err := strconv.Atoi(match[1])
		if err != nil || idx < 0 || idx >= len(stepResults) {
			return val
		}
		if resolved, ok := stepResults[idx][match[2]]; ok {
			return resolved
		}
	}

	return val
}
