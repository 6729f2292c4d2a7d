// Package testutil provides helpers for the clauder integration suites.
package testutil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/relaydev/clauder/internal/interact"
)

// AgentScript assembles a fake agent CLI: a shell script that logs its
// invocation to args.log, captures the structured stdin message, and
// emits scripted stream-json lines. First-turn and resume-turn output are
// scripted separately; the script branches on --resume, saving the stdin
// message to prompt.json on the first turn and answer.json on a resume.
type AgentScript struct {
	first  []string
	resume []string
}

// NewAgentScript returns an empty script builder.
func NewAgentScript() *AgentScript {
	return &AgentScript{}
}

// First appends stream-json lines emitted on the initial invocation.
func (a *AgentScript) First(lines ...string) *AgentScript {
	a.first = append(a.first, lines...)
	return a
}

// Resume appends stream-json lines emitted on a --resume invocation.
func (a *AgentScript) Resume(lines ...string) *AgentScript {
	a.resume = append(a.resume, lines...)
	return a
}

// Write installs the script into dir and returns its path.
func (a *AgentScript) Write(dir string) (string, error) {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("printf '%s' \"$*\" | tr '\\n' ' ' >> args.log\n")
	b.WriteString("printf '\\n' >> args.log\n")
	b.WriteString("case \"$*\" in\n")
	b.WriteString("*--resume*)\n")
	b.WriteString("  head -n1 > answer.json\n")
	for _, line := range a.resume {
		b.WriteString("  printf '%s\\n' '" + line + "'\n")
	}
	b.WriteString("  ;;\n")
	b.WriteString("*)\n")
	b.WriteString("  head -n1 > prompt.json\n")
	for _, line := range a.first {
		b.WriteString("  printf '%s\\n' '" + line + "'\n")
	}
	b.WriteString("  ;;\n")
	b.WriteString("esac\n")

	path := filepath.Join(dir, "agent.sh")
	if err := os.WriteFile(path, []byte(b.String()), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// InitEvent renders a stream-json init record.
func InitEvent(sessionID string) string {
	return mustJSON(map[string]any{
		"type":       "system",
		"subtype":    "init",
		"session_id": sessionID,
	})
}

// AssistantText renders an assistant record with one text block.
func AssistantText(sessionID, text string) string {
	return mustJSON(map[string]any{
		"type":       "assistant",
		"session_id": sessionID,
		"message": map[string]any{
			"role": "assistant",
			"content": []any{
				map[string]any{"type": "text", "text": text},
			},
		},
	})
}

// ResultEvent renders a successful terminal result record.
func ResultEvent(sessionID, result string) string {
	return mustJSON(map[string]any{
		"type":       "result",
		"subtype":    "success",
		"session_id": sessionID,
		"result":     result,
	})
}

// ChoiceMarker renders the choice interaction marker as assistant text.
func ChoiceMarker(question string, options ...string) string {
	return mustJSON(map[string]any{
		"__user_choice__": map[string]any{
			"question":    question,
			"options":     options,
			"multiSelect": false,
		},
	})
}

// ConfirmationMarker renders the confirmation interaction marker.
func ConfirmationMarker(question, warning string) string {
	return mustJSON(map[string]any{
		"__confirmation__": map[string]any{
			"question": question,
			"warning":  warning,
		},
	})
}

// ArgsLog returns the fake agent's recorded invocations, one per line.
func ArgsLog(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "args.log"))
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n"), nil
}

// StdinMessage decodes the message a script captured from stdin.
func StdinMessage(dir, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	var msg struct {
		Message struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", err
	}
	var parts []string
	for _, c := range msg.Message.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n"), nil
}

// InteractFunc adapts a function to interact.Prompter.
type InteractFunc func(ctx context.Context, req *interact.Request) (string, error)

// Ask calls f.
func (f InteractFunc) Ask(ctx context.Context, req *interact.Request) (string, error) {
	return f(ctx, req)
}

func mustJSON(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
