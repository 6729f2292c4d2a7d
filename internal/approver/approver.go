// Package approver implements the permission prompt tool the agent CLI
// calls over MCP. It runs as a sidecar of the agent process, forwards
// each request to the host's permission socket, and translates the
// decision into the verdict document the agent expects. When the socket
// cannot be reached the verdict is a deny.
package approver

import (
	"context"
	"encoding/json"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/relaydev/clauder/internal/logging"
	"github.com/relaydev/clauder/internal/permission"
)

const (
	// ServerName is the MCP server name. Together with ToolName it forms
	// the agent flag value mcp__perm__approve.
	ServerName = "perm"
	// ToolName is the single tool the server exposes.
	ToolName = "approve"

	version = "1.0.0"
)

// Querier sends permission queries to the host. *ipc.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, q permission.Query) (permission.Decision, error)
}

type approver struct {
	client  Querier
	workDir string
	log     zerolog.Logger
}

// NewServer builds the stdio MCP server exposing the approve tool.
// workDir anchors shell risk classification; empty means the process
// working directory.
func NewServer(q Querier, workDir string) *server.MCPServer {
	if workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workDir = wd
		}
	}
	a := &approver{client: q, workDir: workDir, log: logging.Component("approver")}

	s := server.NewMCPServer(ServerName, version, server.WithToolCapabilities(true))
	tool := mcp.NewTool(ToolName,
		mcp.WithDescription("Approve or deny permission for a tool invocation"),
		mcp.WithString("tool_name",
			mcp.Required(),
			mcp.Description("Name of the tool requesting permission"),
		),
		mcp.WithObject("input",
			mcp.Description("Tool input parameters"),
		),
		mcp.WithObject("tool_input",
			mcp.Description("Tool input parameters (alias for input)"),
		),
	)
	s.AddTool(tool, a.handle)
	return s
}

// Serve runs the approver over stdio until the agent closes the pipe.
func Serve(q Querier, workDir string) error {
	return server.ServeStdio(NewServer(q, workDir))
}

// handle answers one approve call. Every failure path denies.
func (a *approver) handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	toolName, _ := args["tool_name"].(string)
	if toolName == "" {
		return verdictDeny("missing tool_name"), nil
	}
	input := extractInput(args)

	q := permission.Query{Action: toolName, Input: input}
	if toolName == "Bash" {
		if cmd, ok := input["command"].(string); ok {
			q.Risk = permission.ClassifyScript(cmd, a.workDir)
		}
	}

	dec, err := a.client.Query(ctx, q)
	if err != nil {
		a.log.Warn().Err(err).Str("tool", toolName).Msg("permission query failed")
		return verdictDeny("permission service unavailable"), nil
	}

	if dec.Outcome == permission.OutcomeAllow {
		a.log.Debug().Str("tool", toolName).Msg("allowed")
		return verdictAllow(input), nil
	}
	reason := dec.Reason
	if reason == "" {
		reason = "Permission denied"
	}
	a.log.Debug().Str("tool", toolName).Str("reason", reason).Msg("denied")
	return verdictDeny(reason), nil
}

// extractInput finds the tool input under "input" or "tool_input". When
// neither is present the remaining arguments themselves are the input,
// which covers agents that inline the fields next to tool_name.
func extractInput(args map[string]any) map[string]any {
	if m, ok := args["input"].(map[string]any); ok && len(m) > 0 {
		return m
	}
	if m, ok := args["tool_input"].(map[string]any); ok && len(m) > 0 {
		return m
	}
	input := make(map[string]any)
	for k, v := range args {
		switch k {
		case "tool_name", "input", "tool_input":
		default:
			input[k] = v
		}
	}
	return input
}

// verdicts are returned as the tool's text content. The agent parses the
// JSON document out of the text, so the exact key set matters: allow
// always carries updatedInput, deny always carries message.

func verdictAllow(input map[string]any) *mcp.CallToolResult {
	if input == nil {
		input = map[string]any{}
	}
	return toolResult(map[string]any{"behavior": "allow", "updatedInput": input})
}

func verdictDeny(message string) *mcp.CallToolResult {
	return toolResult(map[string]any{"behavior": "deny", "message": message})
}

func toolResult(v map[string]any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultText(`{"behavior":"deny","message":"internal error"}`)
	}
	return mcp.NewToolResultText(string(data))
}
