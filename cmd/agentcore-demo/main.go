// ABOUTME: CLI entry point demonstrating the agent loop: one local tool, optional remote servers
// ABOUTME: Parses flags, builds an Agent, attaches any configured remote tool servers, runs one query

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/agentrun/core/internal/agent"
	"github.com/agentrun/core/internal/config"
	pilog "github.com/agentrun/core/internal/log"
	"github.com/agentrun/core/internal/remotetool"
	"github.com/agentrun/core/internal/tools"
	"github.com/agentrun/core/internal/transport"
)

func main() {
	args := parseFlags()

	query := strings.Join(args.remaining(), " ")
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: agentcore-demo [flags] <query>")
		os.Exit(1)
	}

	if err := run(args, query); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args cliArgs, query string) error {
	if args.debug {
		pilog.SetLevel(pilog.LevelDebug)
	}

	cfg := agent.DefaultAgentConfig()
	if args.baseURL != "" {
		cfg.BaseURL = args.baseURL
	}
	if args.apiKey != "" {
		cfg.APIKey = args.apiKey
	}
	cfg.ModelID = args.model
	cfg.SilentMode = args.silent
	cfg.Debug = args.debug

	a := agent.New(cfg, nil)

	registerClockTool(a)

	if err := attachServers(a, args.servers); err != nil {
		return fmt.Errorf("attaching remote tool servers: %w", err)
	}

	ctx := context.Background()
	result, err := a.ProcessQuery(ctx, query, args.maxSteps)
	if err != nil {
		return fmt.Errorf("processing query: %w", err)
	}

	if args.silent {
		fmt.Println(result.Result)
	}
	return nil
}

// registerClockTool registers a trivial local tool so the demo has
// something to call without any external dependency.
func registerClockTool(a *agent.Agent) {
	_ = a.RegisterTool(tools.ToolInfo{
		Name:        "current_time",
		Description: "Returns the current UTC time in RFC3339 format.",
		Parameters:  nil,
		Atomic:      true,
		Callback: func(_ map[string]any) (map[string]any, error) {
			return map[string]any{"time": time.Now().UTC().Format(time.RFC3339)}, nil
		},
	})
}

// attachServers loads a servers.yaml file, if given, and attaches every
// listed remote tool server concurrently.
func attachServers(a *agent.Agent, serversPath string) error {
	if serversPath == "" {
		return nil
	}

	specs, err := config.LoadServers(serversPath)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return nil
	}

	remoteSpecs := make([]agent.RemoteServerSpec, 0, len(specs))
	for _, s := range specs {
		s := s
		remoteSpecs = append(remoteSpecs, agent.RemoteServerSpec{
			Name: s.Name,
			Factory: func() remotetool.Transport {
				return transport.New(transport.Config{
					Command: s.Command,
					Args:    s.Args,
					Env:     s.EnvSlice(),
				})
			},
		})
	}

	return a.AttachServers(context.Background(), remoteSpecs)
}
