// Package interact detects and answers the in-band interaction markers an
// agent embeds in its text output: multiple-choice questions, free-text
// questions, and yes/no confirmations. Markers are JSON objects keyed by a
// fixed name; extraction walks brace depth with string and escape tracking
// instead of pattern matching, so nested objects and braces inside string
// literals are handled correctly.
package interact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/relaydev/clauder/internal/logging"
)

// Marker keys the agent embeds in its text output.
const (
	markerChoice       = "__user_choice__"
	markerQuestion     = "__user_question__"
	markerConfirmation = "__confirmation__"
)

// Kind classifies an interaction request.
type Kind string

const (
	KindChoice       Kind = "choice"
	KindQuestion     Kind = "question"
	KindConfirmation Kind = "confirmation"
)

// ErrAmbiguous is returned when one text block carries more than one
// complete interaction marker. The transport answers one question at a
// time, so this is a protocol violation rather than something to resolve
// by picking a marker.
var ErrAmbiguous = errors.New("multiple interaction markers in one message")

// Request is one in-band interaction the agent asked for.
type Request struct {
	Kind     Kind
	Question string

	// Options and MultiSelect apply to choice requests.
	Options     []string
	MultiSelect bool

	// Default applies to free-text questions.
	Default string

	// Warning applies to confirmations.
	Warning string
}

// Prompter asks a human to answer one interaction request. The returned
// string is the raw answer: the chosen option for a choice, free text for
// a question, "Yes" or "No" for a confirmation.
type Prompter interface {
	Ask(ctx context.Context, req *Request) (string, error)
}

// Scan searches assistant text for an interaction marker. It returns nil
// with no error when no complete marker is present: an incomplete object
// means the marker is still streaming and should be re-attempted as more
// text arrives. A marker with a malformed payload is logged and ignored.
// Two or more complete markers in the same text is ErrAmbiguous.
func Scan(text string) (*Request, error) {
	if text == "" {
		return nil, nil
	}

	type hit struct {
		kind    Kind
		payload map[string]any
		end     int
	}
	var hits []hit

	for _, m := range []struct {
		key  string
		kind Kind
	}{
		{markerChoice, KindChoice},
		{markerQuestion, KindQuestion},
		{markerConfirmation, KindConfirmation},
	} {
		payload, end, ok := extractMarker(text, m.key)
		if !ok {
			continue
		}
		hits = append(hits, hit{kind: m.kind, payload: payload, end: end})

		// A second complete marker of the same kind is just as
		// ambiguous as two different kinds.
		if _, _, again := extractMarker(text[end:], m.key); again {
			return nil, ErrAmbiguous
		}
	}

	if len(hits) > 1 {
		return nil, ErrAmbiguous
	}
	if len(hits) == 0 {
		return nil, nil
	}

	h := hits[0]
	req := buildRequest(h.kind, h.payload)
	if req == nil {
		// Malformed payloads are ignored, not surfaced as UI.
		return nil, nil
	}
	return req, nil
}

// buildRequest validates a marker payload into a Request. Returns nil and
// logs when required fields are missing or mistyped.
func buildRequest(kind Kind, payload map[string]any) *Request {
	question, _ := payload["question"].(string)
	if question == "" {
		logging.Warn().Str("kind", string(kind)).Msg("interaction marker missing question")
		return nil
	}

	req := &Request{Kind: kind, Question: question}

	switch kind {
	case KindChoice:
		rawOptions, ok := payload["options"].([]any)
		if !ok || len(rawOptions) == 0 {
			logging.Warn().Str("question", question).Msg("choice marker missing options")
			return nil
		}
		for _, o := range rawOptions {
			s, ok := o.(string)
			if !ok {
				logging.Warn().Str("question", question).Msg("choice marker has non-string option")
				return nil
			}
			req.Options = append(req.Options, s)
		}
		req.MultiSelect, _ = payload["multiSelect"].(bool)

	case KindQuestion:
		req.Default, _ = payload["default"].(string)

	case KindConfirmation:
		req.Warning, _ = payload["warning"].(string)
	}

	return req
}

// extractMarker finds the quoted marker key, walks back to the opening
// brace of the enclosing object, extracts the balanced object, and returns
// the marker's payload plus the index just past the object.
func extractMarker(text, key string) (map[string]any, int, bool) {
	markerStr := `"` + key + `"`
	idx := strings.Index(text, markerStr)
	if idx < 0 {
		return nil, 0, false
	}

	start := strings.LastIndex(text[:idx], "{")
	if start < 0 {
		return nil, 0, false
	}

	objStr, end, ok := balancedObject(text, start)
	if !ok {
		// Incomplete: the object may still be streaming.
		return nil, 0, false
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal([]byte(objStr), &outer); err != nil {
		logging.Warn().Err(err).Str("marker", key).Msg("interaction marker is not valid JSON")
		return nil, 0, false
	}

	raw, ok := outer[key]
	if !ok {
		return nil, 0, false
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		logging.Warn().Err(err).Str("marker", key).Msg("interaction marker payload is not an object")
		return nil, 0, false
	}

	return payload, end, true
}

// balancedObject extracts the complete JSON object opening at start,
// counting brace depth while tracking quoted strings and escapes. Braces,
// quotes, and backslashes are ASCII, so byte-wise iteration is safe over
// UTF-8 text.
func balancedObject(text string, start int) (string, int, bool) {
	if start >= len(text) || text[start] != '{' {
		return "", 0, false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if escaped {
			escaped = false
			continue
		}

		switch c {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], i + 1, true
				}
			}
		}
	}

	return "", 0, false
}

// PromptText returns the text shown to the human, including the warning
// for confirmations.
func (r *Request) PromptText() string {
	if r.Kind == KindConfirmation && r.Warning != "" {
		return r.Question + "\n\nWARNING: " + r.Warning
	}
	return r.Question
}

// Decline returns the fallback answer applied when the human declines to
// answer: the first option for a choice, the default (or "Skipped") for a
// question, "No" for a confirmation.
func (r *Request) Decline() string {
	switch r.Kind {
	case KindChoice:
		if len(r.Options) > 0 {
			return r.Options[0]
		}
		return ""
	case KindQuestion:
		if r.Default != "" {
			return r.Default
		}
		return "Skipped"
	case KindConfirmation:
		return "No"
	}
	return ""
}

// FormatAnswer renders the human's answer as the message written back to
// the agent on resume. The agent was instructed to expect these shapes, so
// a resumed turn reads the reply as an answer rather than a new command.
func FormatAnswer(req *Request, answer string) string {
	switch req.Kind {
	case KindChoice:
		return "I choose: " + answer
	case KindQuestion:
		if req.Question != "" {
			return fmt.Sprintf("In response to the question %q: %s", req.Question, answer)
		}
		return answer
	case KindConfirmation:
		return "CONFIRMED: " + answer
	}
	return answer
}
