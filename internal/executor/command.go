package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/relaydev/clauder/internal/approver"
)

// permissionPromptTool is the flag value naming the MCP tool the agent
// calls for permission decisions: mcp__<server>__<tool>.
var permissionPromptTool = fmt.Sprintf("mcp__%s__%s", approver.ServerName, approver.ToolName)

// buildArgs assembles the agent CLI invocation for one turn. Resumed
// turns carry the session ID and never re-append the protocol
// instructions.
func buildArgs(o Options, mcpConfig, resumeID, instructions string) []string {
	args := []string{
		"--model", o.Model,
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	}
	if resumeID != "" {
		args = append(args, "--resume", resumeID)
	}
	if instructions != "" {
		args = append(args, "--append-system-prompt", instructions)
	}
	if o.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	} else if mcpConfig != "" {
		args = append(args,
			"--strict-mcp-config",
			"--mcp-config", mcpConfig,
			"--permission-prompt-tool", permissionPromptTool,
		)
	}
	return args
}

// writeAgentConfig writes a temporary MCP config pointing the agent at
// this binary's approve command over the given socket. The caller
// removes the file when the run ends.
func writeAgentConfig(socketPath string, o Options) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}

	cfg := map[string]any{
		"mcpServers": map[string]any{
			approver.ServerName: map[string]any{
				"command": exe,
				"args": []string{
					"approve",
					"--socket", socketPath,
					"--timeout", o.PermissionTimeout.String(),
					"--retries", strconv.Itoa(o.SocketRetries),
					"--retry-delay", o.SocketRetryDelay.String(),
				},
			},
		},
	}

	f, err := os.CreateTemp("", "clauder-mcp-*.json")
	if err != nil {
		return "", err
	}
	if err := json.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// agentEnv merges the workspace .env into the inherited environment.
// Entries appended later win, so .env values override inherited ones.
func agentEnv(workspace string) []string {
	env := os.Environ()
	if workspace == "" {
		return env
	}
	vars, err := godotenv.Read(filepath.Join(workspace, ".env"))
	if err != nil {
		return env
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}
