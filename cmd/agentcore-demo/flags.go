// ABOUTME: CLI flag parsing using stdlib flag package
// ABOUTME: Supports --model, --base-url, --api-key, --servers, --max-steps, --silent

package main

import "flag"

type cliArgs struct {
	model    string
	baseURL  string
	apiKey   string
	servers  string
	maxSteps int
	silent   bool
	debug    bool
}

func parseFlags() cliArgs {
	var args cliArgs

	flag.StringVar(&args.model, "model", "local-model", "Model ID to send to the chat completions endpoint")
	flag.StringVar(&args.baseURL, "base-url", "", "Chat completions API base URL (defaults to http://localhost:8000/api/v1)")
	flag.StringVar(&args.apiKey, "api-key", "", "Bearer token for the chat completions endpoint")
	flag.StringVar(&args.servers, "servers", "", "Path to a servers.yaml listing remote tool servers to attach")
	flag.IntVar(&args.maxSteps, "max-steps", 0, "Step limit for this query (defaults to the agent's configured max)")
	flag.BoolVar(&args.silent, "silent", false, "Suppress step-by-step output, printing only the final answer")
	flag.BoolVar(&args.debug, "debug", false, "Enable debug logging")

	flag.Parse()
	return args
}

// remaining returns the non-flag command-line arguments.
func (a cliArgs) remaining() []string {
	return flag.Args()
}
