// ABOUTME: AgentConfig defaults and a JSON-file loader merging overrides onto them
// ABOUTME: Merges JSON-file overrides over in-code defaults, field by field

package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// AgentConfig configures one Agent. All fields have defaults; zero values
// in a loaded file are left at the default rather than overriding it,
// except for booleans, which a file can only ever set to true (there is no
// way to distinguish an absent bool from an explicit false in a merge).
type AgentConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	ModelID string `json:"model_id,omitempty"`
	APIKey  string `json:"api_key,omitempty"`

	MaxSteps              int `json:"max_steps,omitempty"`
	MaxConsecutiveRepeats int `json:"max_consecutive_repeats,omitempty"`
	MaxHistoryMessages    int `json:"max_history_messages,omitempty"`

	Debug      bool `json:"debug,omitempty"`
	SilentMode bool `json:"silent_mode,omitempty"`

	ConnectTimeout       time.Duration `json:"-"`
	ReadTimeout          time.Duration `json:"-"`
	RemoteRequestTimeout time.Duration `json:"-"`
}

// DefaultAgentConfig returns the documented defaults.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		BaseURL:               "http://localhost:8000/api/v1",
		MaxSteps:              20,
		MaxConsecutiveRepeats: 4,
		MaxHistoryMessages:    40,
		ConnectTimeout:        10 * time.Second,
		ReadTimeout:           30 * time.Second,
		RemoteRequestTimeout:  30 * time.Second,
	}
}

// LoadAgentConfigFile reads a JSON file and merges its fields onto
// DefaultAgentConfig, field by field, so an omitted key keeps its default
// rather than zeroing it out.
func LoadAgentConfigFile(path string) (AgentConfig, error) {
	cfg := DefaultAgentConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading agent config %q: %w", path, err)
	}

	var overrides AgentConfig
	if err := json.Unmarshal(data, &overrides); err != nil {
		return cfg, fmt.Errorf("parsing agent config %q: %w", path, err)
	}

	if overrides.BaseURL != "" {
		cfg.BaseURL = overrides.BaseURL
	}
	if overrides.ModelID != "" {
		cfg.ModelID = overrides.ModelID
	}
	if overrides.APIKey != "" {
		cfg.APIKey = overrides.APIKey
	}
	if overrides.MaxSteps != 0 {
		cfg.MaxSteps = overrides.MaxSteps
	}
	if overrides.MaxConsecutiveRepeats != 0 {
		cfg.MaxConsecutiveRepeats = overrides.MaxConsecutiveRepeats
	}
	if overrides.MaxHistoryMessages != 0 {
		cfg.MaxHistoryMessages = overrides.MaxHistoryMessages
	}
	if overrides.Debug {
		cfg.Debug = true
	}
	if overrides.SilentMode {
		cfg.SilentMode = true
	}

	return cfg, nil
}
