package permission

import (
	"context"
	"fmt"
)

// Outcome is the result of a permission decision.
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeDeny  Outcome = "deny"
)

// Scope describes how long a decision is remembered.
type Scope string

const (
	// ScopeOnce applies to the current query only and is never cached.
	ScopeOnce Scope = "once"
	// ScopeSession is remembered in memory for the lifetime of the run.
	ScopeSession Scope = "session"
	// ScopeAlways is written to the persistent store and survives restarts.
	ScopeAlways Scope = "always"
)

// Response is one of the closed set of answers a human can give to a
// permission prompt.
type Response string

const (
	AllowOnce    Response = "allow_once"
	AllowSession Response = "allow_session"
	AllowAlways  Response = "allow_always"
	Deny         Response = "deny"
)

// ParseResponse converts a string to a Response.
func ParseResponse(s string) (Response, error) {
	switch Response(s) {
	case AllowOnce, AllowSession, AllowAlways, Deny:
		return Response(s), nil
	}
	return "", fmt.Errorf("unknown permission response: %q", s)
}

// Decision maps a Response to its outcome and retention scope. Denials
// carry ScopeOnce because they are never cached.
func (r Response) Decision() (Outcome, Scope) {
	switch r {
	case AllowOnce:
		return OutcomeAllow, ScopeOnce
	case AllowSession:
		return OutcomeAllow, ScopeSession
	case AllowAlways:
		return OutcomeAllow, ScopeAlways
	default:
		return OutcomeDeny, ScopeOnce
	}
}

// Label returns the human-readable menu label for a response.
func (r Response) Label() string {
	switch r {
	case AllowOnce:
		return "Allow once"
	case AllowSession:
		return "Allow for this session"
	case AllowAlways:
		return "Allow always"
	default:
		return "Deny"
	}
}

// Responses lists all responses in menu order.
func Responses() []Response {
	return []Response{AllowOnce, AllowSession, AllowAlways, Deny}
}

// Query is a single permission request: an action name plus its input
// parameters as they arrived over IPC.
type Query struct {
	Action string         `json:"action"`
	Input  map[string]any `json:"input"`
	Risk   Risk           `json:"risk,omitempty"`
}

// Decision is the broker's answer to a query.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Scope   Scope   `json:"scope,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Source  string  `json:"source,omitempty"`
}

// Decision sources, recorded on events and decisions to show which stage
// of the broker answered.
const (
	SourceSession     = "session"
	SourceStore       = "store"
	SourceRule        = "rule"
	SourceRepeatGuard = "repeat-guard"
	SourcePrompt      = "prompt"
	SourceTimeout     = "timeout"
)

// Ask is the payload handed to a Prompter when a query escalates to a
// human.
type Ask struct {
	ID     string
	RunID  string
	Action string
	Target string
	Risk   Risk
	Input  map[string]any
}

// Prompter obtains a permission response from a human. Implementations
// must honor ctx cancellation; the broker bounds each call with the
// configured permission timeout.
type Prompter interface {
	Ask(ctx context.Context, ask Ask) (Response, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, ask Ask) (Response, error)

// Ask calls f.
func (f PrompterFunc) Ask(ctx context.Context, ask Ask) (Response, error) {
	return f(ctx, ask)
}
