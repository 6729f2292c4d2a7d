package permission

import (
	"fmt"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Risk classifies how destructive an action looks. It is advisory only:
// shown to the human alongside the prompt and carried on IPC requests,
// never used to auto-decide.
type Risk string

const (
	RiskUnknown Risk = ""
	RiskMedium  Risk = "medium"
	RiskHigh    Risk = "high"
)

// Command is one parsed shell command with its arguments.
type Command struct {
	Name       string   // command name (e.g. "rm", "git")
	Args       []string // arguments after the name
	Subcommand string   // first non-flag argument (e.g. "commit" in "git commit")
}

// ParseScript parses a shell script into its individual commands,
// including commands inside pipelines, lists, and substitutions.
func ParseScript(script string) ([]Command, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(script), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	var commands []Command
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})

	return commands, nil
}

// extractCommand extracts the command name and arguments from a CallExpr.
func extractCommand(call *syntax.CallExpr) *Command {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &Command{}
	cmd.Name = wordToString(call.Args[0])
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		argStr := wordToString(arg)
		cmd.Args = append(cmd.Args, argStr)

		if cmd.Subcommand == "" && !strings.HasPrefix(argStr, "-") {
			cmd.Subcommand = argStr
		}
	}

	return cmd
}

// wordToString flattens a syntax.Word to a plain string.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			// Variable expansion, keep a placeholder
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			// Command substitution, content is dynamic
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// destructiveCommands delete data or alter the system.
var destructiveCommands = map[string]bool{
	"rm":       true,
	"rmdir":    true,
	"dd":       true,
	"shred":    true,
	"mkfs":     true,
	"shutdown": true,
	"reboot":   true,
	"halt":     true,
	"poweroff": true,
	"killall":  true,
	"pkill":    true,
}

// mutatingCommands change files in place.
var mutatingCommands = map[string]bool{
	"cp":       true,
	"mv":       true,
	"mkdir":    true,
	"touch":    true,
	"chmod":    true,
	"chown":    true,
	"ln":       true,
	"truncate": true,
	"tee":      true,
	"patch":    true,
}

// elevationCommands run something else with raised privileges.
var elevationCommands = map[string]bool{
	"sudo": true,
	"doas": true,
}

// wrapperCommands run their first non-flag argument as a command, hiding
// it from the name check ("xargs rm" parses with name "xargs").
var wrapperCommands = map[string]bool{
	"xargs": true,
	"nohup": true,
}

// ClassifyScript parses script and returns the highest risk among its
// commands: high for destructive or privileged commands, medium for
// in-place file mutation. When workDir is non-empty, a mutating command
// whose path arguments reach outside it is raised to high.
func ClassifyScript(script, workDir string) Risk {
	commands, err := ParseScript(script)
	if err != nil {
		return RiskUnknown
	}

	risk := RiskUnknown
	for _, cmd := range commands {
		name := cmd.Name
		if wrapperCommands[name] && cmd.Subcommand != "" {
			name = cmd.Subcommand
		}
		switch {
		case destructiveCommands[name],
			elevationCommands[name],
			strings.HasPrefix(name, "mkfs."):
			return RiskHigh
		case mutatingCommands[name]:
			if workDir != "" && touchesOutside(cmd, workDir) {
				return RiskHigh
			}
			risk = RiskMedium
		}
	}
	return risk
}

// touchesOutside reports whether any path argument of cmd resolves
// outside dir.
func touchesOutside(cmd Command, dir string) bool {
	for _, p := range pathArgs(cmd) {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(dir, abs)
		}
		if !isWithin(abs, dir) {
			return true
		}
	}
	return false
}

// pathArgs extracts likely path arguments, skipping flags and chmod mode
// strings.
func pathArgs(cmd Command) []string {
	var paths []string
	for _, arg := range cmd.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if cmd.Name == "chmod" {
			if len(arg) > 0 && (arg[0] >= '0' && arg[0] <= '9' ||
				arg[0] == 'u' || arg[0] == 'g' || arg[0] == 'o' || arg[0] == 'a' ||
				arg[0] == '+' || arg[0] == '=') {
				continue
			}
		}
		paths = append(paths, arg)
	}
	return paths
}

// isWithin checks if path is dir or under it.
func isWithin(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)

	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
