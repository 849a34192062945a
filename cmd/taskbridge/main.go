// Package main implements the taskbridge binary: it serves the agent and the
// demo tool server, and talks to a running agent from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

var version = "dev"

const defaultAgentURL = "http://localhost:8000"

type globalFlags struct {
	ConfigArgs []string
	AgentURL   string
	Token      string
	Timeout    time.Duration
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	switch args[0] {
	case "serve":
		ensureNoArgs(args[1:])
		err = runServe(ctx, global, false)
	case "tools":
		ensureNoArgs(args[1:])
		err = runServe(ctx, global, true)
	case "card":
		ensureNoArgs(args[1:])
		err = runCard(ctx, global)
	case "tasks":
		err = runTasks(ctx, global, args[1:])
	case "rpc":
		err = runRPC(ctx, global, args[1:])
	case "help":
		printUsage()
	case "version":
		fmt.Println(version)
	default:
		err = fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		fatalCLI(err, global)
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		AgentURL: getenv("TASKBRIDGE_AGENT_URL", defaultAgentURL),
		Token:    os.Getenv("TASKBRIDGE_AGENT_TOKEN"),
		Timeout:  60 * time.Second,
	}

	value := func(i int, name string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("missing value for %s", name)
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		name, inline, hasInline := strings.Cut(arg, "=")
		switch name {
		case "-h", "--help":
			flags.Help = true
			return flags, nil, nil
		case "--json":
			flags.JSON = true
		case "--config", "--profile", "--set":
			if hasInline {
				flags.ConfigArgs = append(flags.ConfigArgs, arg)
				continue
			}
			v, err := value(i, name)
			if err != nil {
				return flags, nil, err
			}
			flags.ConfigArgs = append(flags.ConfigArgs, name, v)
			i++
		case "--agent", "--token", "--timeout":
			v := inline
			if !hasInline {
				var err error
				if v, err = value(i, name); err != nil {
					return flags, nil, err
				}
				i++
			}
			switch name {
			case "--agent":
				flags.AgentURL = v
			case "--token":
				flags.Token = v
			default:
				d, err := time.ParseDuration(v)
				if err != nil {
					return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
				}
				flags.Timeout = d
			}
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func printUsage() {
	fmt.Println(`taskbridge

Usage:
  taskbridge [global flags] <command> [args]

Global flags:
  --config <path>      Path to config.yaml
  --profile <name>     Overlay config.<name>.yaml
  --set key=value      Override config (repeatable)
  --agent <url>        Agent base URL for client commands (default http://localhost:8000)
  --token <token>      Bearer token for client commands
  --timeout <dur>      Request timeout (default 60s)
  --json               JSON output

Commands:
  serve                          Run the agent server (and the tool server when tools.enabled)
  tools                          Run only the demo tool server
  card                           Show the agent card
  tasks list [--status <s>]
  tasks get <task_id>
  tasks create [--skill <name>] [--param key=value]...
  tasks send <task_id> <text>
  tasks stream <task_id> <text>
  rpc <method> [json-params]
  version`)
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(payload))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func ensureNoArgs(args []string) {
	if len(args) > 0 {
		fatal(fmt.Errorf("unexpected args: %v", args))
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
