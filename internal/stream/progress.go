package stream

import (
	"fmt"
	"net/url"
	"strings"
)

// toolEmojis gives each known tool a progress-line indicator.
var toolEmojis = map[string]string{
	"Read":         "📖",
	"Edit":         "✏️",
	"Write":        "📝",
	"Bash":         "💻",
	"Glob":         "🔍",
	"Grep":         "🔍",
	"WebFetch":     "🌐",
	"WebSearch":    "🔎",
	"Task":         "📋",
	"TodoWrite":    "📝",
	"NotebookEdit": "📓",
}

// interaction markers are surfaced through their own channel, never as
// progress text.
var markerPrefixes = []string{
	`{"__user_question__":`,
	`{"__user_choice__":`,
	`{"__confirmation__":`,
}

// FormatProgress renders one event as a short human-readable progress
// line for clients watching a run.
func FormatProgress(ev *Event) string {
	switch ev.Type {
	case Assistant:
		if uses := ev.ToolUses(); len(uses) > 0 {
			return formatToolUses(uses)
		}
		if text := ev.TextContent(); text != "" {
			if isInteractionMarker(text) {
				return "⏳ Awaiting user input..."
			}
			return "💭 " + previewText(text, 55)
		}
		return "🤔 Agent is thinking..."

	case User:
		return "⚙️ Processing tool result..."

	case Result:
		return formatResult(ev.Outcome)

	case Init:
		return "🚀 Starting agent..."

	case ToolUse:
		return "🔧 Executing tool..."

	case ToolResult:
		return "📥 Received tool result..."
	}

	return "⏳ Processing..."
}

func formatToolUses(uses []ContentBlock) string {
	var messages []string
	for _, tu := range uses {
		name := tu.Name
		if name == "" {
			name = "unknown"
		}

		// Permission prompt tools are brokered out of band; seeing one
		// in the stream means a decision is pending.
		if isPermissionTool(name) {
			continue
		}

		// MCP tool names look like mcp__server__tool.
		displayName := name
		if idx := strings.LastIndex(name, "__"); idx >= 0 {
			displayName = name[idx+2:]
		}
		emoji, ok := toolEmojis[name]
		if !ok {
			emoji, ok = toolEmojis[displayName]
		}
		if !ok {
			emoji = "🔧"
		}

		if detail := toolDetail(name, tu.Input); detail != "" {
			messages = append(messages, fmt.Sprintf("%s %s: %s", emoji, displayName, detail))
		} else {
			messages = append(messages, fmt.Sprintf("%s %s", emoji, displayName))
		}
	}

	if len(messages) == 0 {
		return "🔐 Awaiting permission decision..."
	}
	return strings.Join(messages, " | ")
}

func formatResult(outcome *Outcome) string {
	if outcome == nil {
		return "⏳ Processing..."
	}
	if outcome.Success {
		costStr := ""
		if outcome.TotalCostUSD > 0 {
			costStr = fmt.Sprintf(", cost: $%.4f", outcome.TotalCostUSD)
		}
		return fmt.Sprintf("✅ Completed in %dms%s", outcome.DurationMS, costStr)
	}
	errText := outcome.Text
	if errText == "" {
		errText = "Unknown error"
	} else if truncated := truncateText(errText, 45); truncated != errText {
		errText = truncated + "..."
	}
	return "❌ Failed: " + errText
}

// toolDetail extracts a human-readable detail from a tool's input.
func toolDetail(toolName string, input map[string]any) string {
	if len(input) == 0 {
		return ""
	}

	str := func(key string) string {
		s, _ := input[key].(string)
		return s
	}

	switch toolName {
	case "Read", "Edit", "Write":
		return truncatePath(str("file_path"), 35)

	case "Bash":
		cmd := str("command")
		if truncated := truncateText(cmd, 45); truncated != cmd {
			return truncated + "..."
		}
		return cmd

	case "Glob":
		pattern := str("pattern")
		if pattern == "" {
			return ""
		}
		if path := str("path"); path != "" {
			return pattern + " in " + truncatePath(path, 35)
		}
		return pattern

	case "Grep":
		pattern := str("pattern")
		if pattern == "" {
			return ""
		}
		if path := str("path"); path != "" {
			return "`" + pattern + "` in " + truncatePath(path, 35)
		}
		return "`" + pattern + "`"

	case "WebFetch":
		rawURL := str("url")
		if rawURL == "" {
			return ""
		}
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
			return truncateText(u.Host, 35)
		}
		return truncateText(rawURL, 35)

	case "WebSearch":
		if query := str("query"); query != "" {
			return `"` + truncateText(query, 40) + `"`
		}

	case "Task":
		if desc := str("description"); desc != "" {
			return `"` + desc + `"`
		}

	case "TodoWrite":
		if todos, ok := input["todos"].([]any); ok && len(todos) > 0 {
			if len(todos) == 1 {
				return "1 item"
			}
			return fmt.Sprintf("%d items", len(todos))
		}
	}

	return ""
}

// truncatePath shortens a path keeping the filename and parent directory.
func truncatePath(path string, maxLen int) string {
	if path == "" || len(path) <= maxLen {
		return path
	}
	parts := strings.Split(path, "/")
	if len(parts) >= 2 {
		short := "..." + parts[len(parts)-2] + "/" + parts[len(parts)-1]
		if len(short) <= maxLen {
			return short
		}
	}
	return "..." + path[len(path)-(maxLen-3):]
}

func truncateText(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

func previewText(text string, maxLen int) string {
	preview := truncateText(text, maxLen)
	truncated := preview != text
	preview = strings.TrimSpace(strings.ReplaceAll(preview, "\n", " "))
	if truncated {
		preview += "..."
	}
	return preview
}

func isInteractionMarker(text string) bool {
	stripped := strings.TrimSpace(text)
	for _, prefix := range markerPrefixes {
		if strings.HasPrefix(stripped, prefix) {
			return true
		}
	}
	return false
}

// isPermissionTool reports whether a tool call belongs to the permission
// prompt plumbing rather than real work.
func isPermissionTool(toolName string) bool {
	name := strings.ToLower(toolName)
	return strings.Contains(name, "approve") || strings.Contains(name, "perm")
}
