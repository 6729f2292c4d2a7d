package permission

import (
	"encoding/json"
	"strings"
)

// Target extracts a short human-readable target from an action's input,
// used for prompts, rule matching, and the persistent store. Path
// targets are normalized so the displayed value matches what was
// fingerprinted.
func Target(action string, input map[string]any) string {
	str := func(key string) string {
		s, _ := input[key].(string)
		return s
	}

	switch action {
	case "Read", "Write", "Edit":
		if p := str("file_path"); p != "" {
			return normalizePath(p)
		}
	case "NotebookEdit":
		if p := str("notebook_path"); p != "" {
			return normalizePath(p)
		}
	case "Bash":
		if c := strings.TrimSpace(str("command")); c != "" {
			return clip(c, 100)
		}
	case "Glob":
		if pat := str("pattern"); pat != "" {
			if p := str("path"); p != "" {
				return pat + " in " + normalizePath(p)
			}
			return pat
		}
	case "Grep":
		if pat := str("pattern"); pat != "" {
			p := str("path")
			if p == "" {
				p = "."
			}
			return pat + " in " + normalizePath(p)
		}
	case "WebFetch":
		if u := str("url"); u != "" {
			return u
		}
	case "WebSearch":
		if q := str("query"); q != "" {
			return q
		}
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	return clip(string(raw), 100)
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
