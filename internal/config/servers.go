// ABOUTME: YAML loader for the list of remote tool servers an agent attaches to at startup
// ABOUTME: One entry per server: name, spawn command, args, and extra environment variables

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerSpec describes one remote tool server to spawn and attach.
type ServerSpec struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

type serversFile struct {
	Servers []ServerSpec `yaml:"servers"`
}

// LoadServers reads a servers.yaml file listing the remote tool servers an
// agent should attach to. A missing file is not an error: it yields an
// empty list, matching "no remote servers configured".
func LoadServers(path string) ([]ServerSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading servers file %q: %w", path, err)
	}

	var parsed serversFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing servers file %q: %w", path, err)
	}

	for _, s := range parsed.Servers {
		if s.Name == "" {
			return nil, fmt.Errorf("servers file %q: entry missing required %q field", path, "name")
		}
		if s.Command == "" {
			return nil, fmt.Errorf("servers file %q: entry %q missing required %q field", path, s.Name, "command")
		}
	}

	return parsed.Servers, nil
}

// EnvSlice flattens the Env map into KEY=VALUE pairs, the shape
// transport.Config expects for merging into the child process environment.
func (s ServerSpec) EnvSlice() []string {
	if len(s.Env) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		out = append(out, k+"="+v)
	}
	return out
}
