// Package taskrunner provides the MCP facade for serve mode: a stdio
// server with a single execute_task tool that runs one agent task and
// returns the run result as JSON.
package taskrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/relaydev/clauder/internal/executor"
)

const (
	// ServerName is the MCP server name.
	ServerName = "clauder"
	// ToolName is the single tool the server exposes.
	ToolName = "execute_task"

	version = "1.0.0"
)

// Request is one execute_task call. The three interaction toggles are
// tri-state: nil defers to the host configuration.
type Request struct {
	Prompt          string
	Tier            string
	Workspace       string
	SkipPermissions bool

	Choices       *bool
	Questions     *bool
	Confirmations *bool
}

// Runner executes one agent task. The serve command wires this to the
// executor with the host's store, prompters and timeouts.
type Runner interface {
	Execute(ctx context.Context, req Request) (*executor.Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, req Request) (*executor.Result, error)

// Execute calls f.
func (f RunnerFunc) Execute(ctx context.Context, req Request) (*executor.Result, error) {
	return f(ctx, req)
}

// NewServer creates the MCP server exposing the execute_task tool.
func NewServer(r Runner) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version, server.WithToolCapabilities(true))

	tool := mcp.NewTool(ToolName,
		mcp.WithDescription("Run a coding task through the interactive agent and return the result"),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("Task for the agent to perform"),
		),
		mcp.WithString("tier",
			mcp.Description("Capability tier (fast|standard|critical); empty uses the configured default"),
		),
		mcp.WithString("workspace",
			mcp.Description("Working directory for the agent; empty uses the server's directory"),
		),
		mcp.WithBoolean("skip_permissions",
			mcp.Description("Run the agent with permission checks disabled"),
		),
		mcp.WithBoolean("enable_choices",
			mcp.Description("Teach the agent the multiple-choice protocol"),
		),
		mcp.WithBoolean("enable_questions",
			mcp.Description("Teach the agent the free-text question protocol"),
		),
		mcp.WithBoolean("enable_confirmations",
			mcp.Description("Teach the agent the confirmation protocol"),
		),
	)
	s.AddTool(tool, handler(r))
	return s
}

// Serve runs the facade over stdio until the caller closes the pipe.
func Serve(r Runner) error {
	return server.ServeStdio(NewServer(r))
}

// handler answers one execute_task call. Invalid arguments are tool
// errors; a failed run is still a successful tool call carrying the
// result document, so the caller always gets counts and partial output.
func handler(r Runner) server.ToolHandlerFunc {
	return func(ctx context.Context, call mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req, err := parseRequest(call.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res, err := r.Execute(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("execute task: %v", err)), nil
		}

		data, err := json.Marshal(res)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func parseRequest(args map[string]any) (Request, error) {
	prompt, _ := args["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return Request{}, fmt.Errorf("prompt argument is required")
	}

	req := Request{Prompt: prompt}
	req.Tier, _ = args["tier"].(string)
	req.Workspace, _ = args["workspace"].(string)
	req.SkipPermissions, _ = args["skip_permissions"].(bool)
	req.Choices = boolArg(args, "enable_choices")
	req.Questions = boolArg(args, "enable_questions")
	req.Confirmations = boolArg(args, "enable_confirmations")
	return req, nil
}

// boolArg reads an optional boolean argument, keeping absent and present
// distinguishable.
func boolArg(args map[string]any, key string) *bool {
	v, ok := args[key].(bool)
	if !ok {
		return nil
	}
	return &v
}
