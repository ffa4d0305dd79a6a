package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// runInfo handles the "wavetaskd info" subcommand.
// It prints general MCP configuration information and, with flags,
// client-specific configuration snippets.
func runInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	opencode := fs.Bool("opencode", false, "show OpenCode MCP client configuration")
	claude := fs.Bool("claude", false, "show Claude Desktop MCP client configuration")
	cursor := fs.Bool("cursor", false, "show Cursor MCP client configuration")
	fs.Parse(args)

	switch {
	case *opencode:
		printOpenCodeConfig()
	case *claude:
		printClaudeConfig()
	case *cursor:
		printCursorConfig()
	default:
		printGeneralInfo()
	}
}

func printGeneralInfo() {
	fmt.Fprintf(os.Stdout, `wavetaskd %s — active-task coherence engine MCP server

wavetaskd is a Model Context Protocol (MCP) server that keeps a project's
single active task coherent between a JSON state file and a human-readable
Markdown panel. All state is local files under each project's ".wave"
directory — no external service or token is required.

TRANSPORT MODES

  stdio (default)
    Communicates over stdin/stdout using JSON-RPC 2.0. Used when launched
    as a subprocess by an MCP client. The project is the process's working
    directory.

  http
    Runs as a standalone HTTP server (MCP Streamable HTTP transport,
    spec 2025-03-26). Clients identify the project with the
    X-Wavetask-Project header on each request.

    Endpoint:      POST /mcp
    Health check:  GET /health
    Default port:  21452

TOOLS (8)

  Task (5):     task_init, task_read, task_update, task_modify, task_complete
  Project (3):  project_ensure, project_find, project_cleanup

PROMPTS (1)

  wavetask-guide   Walkthrough of the init/update/modify/complete/read
                   workflow and the EVR gate

RESOURCES (3)

  wavetask://entity-model    Task/Plan/Step/EVR data model reference
  wavetask://evr-gate        EVR readiness and gating rules
  wavetask://tool-reference  Tool usage quick reference

GETTING STARTED

  1. Start a task:        task_init (title, goal, overall_plan)

  2. Work the plan:       task_update to advance steps and plans, record
                           EVR verification runs as you go

  3. Adjust as needed:    task_modify to change goal, plan, steps, hints,
                           or EVRs

  4. Check progress:      task_read at any point — this also reconciles
                           any out-of-band edits to the Markdown panel

  5. Finish:               task_complete once every EVR is satisfied

CONFIGURATION

  Config file search order: --config flag, WAVETASK_CONFIG env var,
  ./wavetask.toml, ~/.config/wavetask/wavetask.toml. All settings also
  have WAVETASK_* environment variable overrides.

CLIENT CONFIGURATION

  To see configuration for a specific MCP client, run:

    wavetaskd info --opencode    OpenCode (.opencode.json)
    wavetaskd info --claude      Claude Desktop (claude_desktop_config.json)
    wavetaskd info --cursor      Cursor (.cursor/mcp.json)
`, Version)
}

func printOpenCodeConfig() {
	printStdioConfig("OpenCode", ".opencode.json or opencode.json", `{
  "mcpServers": {
    "wavetask": {
      "command": "wavetaskd"
    }
  }
}`)

	printHTTPConfig("OpenCode", ".opencode.json or opencode.json", `{
  "mcpServers": {
    "wavetask": {
      "type": "streamable-http",
      "url": "http://your-wavetaskd-server:21452/mcp",
      "headers": {
        "X-Wavetask-Project": "/absolute/path/to/project"
      }
    }
  }
}`)
}

func printClaudeConfig() {
	printStdioConfig("Claude Desktop", "claude_desktop_config.json", `{
  "mcpServers": {
    "wavetask": {
      "command": "wavetaskd"
    }
  }
}`)

	printHTTPConfig("Claude Desktop", "claude_desktop_config.json", `{
  "mcpServers": {
    "wavetask": {
      "type": "streamable-http",
      "url": "http://your-wavetaskd-server:21452/mcp",
      "headers": {
        "X-Wavetask-Project": "/absolute/path/to/project"
      }
    }
  }
}`)
}

func printCursorConfig() {
	printStdioConfig("Cursor", ".cursor/mcp.json", `{
  "mcpServers": {
    "wavetask": {
      "command": "wavetaskd"
    }
  }
}`)

	printHTTPConfig("Cursor", ".cursor/mcp.json", `{
  "mcpServers": {
    "wavetask": {
      "type": "streamable-http",
      "url": "http://your-wavetaskd-server:21452/mcp",
      "headers": {
        "X-Wavetask-Project": "/absolute/path/to/project"
      }
    }
  }
}`)
}

func printStdioConfig(client, file, config string) {
	fmt.Fprintf(os.Stdout, `%s — stdio mode
%s

Add to %s:

%s

wavetaskd runs as a subprocess and resolves the project from its working
directory — no server or token needed.

`, client, strings.Repeat("─", len(client)+14), file, config)
}

func printHTTPConfig(client, file, config string) {
	fmt.Fprintf(os.Stdout, `%s — HTTP mode (remote server)
%s

Add to %s:

%s

The X-Wavetask-Project header tells the server which project's active
task this request targets.

`, client, strings.Repeat("─", len(client)+30), file, config)
}
