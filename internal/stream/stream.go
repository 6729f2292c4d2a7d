// Package stream parses the NDJSON event stream emitted by the agent CLI
// in stream-json mode. Each stdout line is one self-contained JSON record;
// malformed lines surface as parse errors the caller logs and skips, and
// records with an unrecognized type pass through as Unknown so newer agent
// versions don't break the run loop.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EventType classifies one stream record.
type EventType string

const (
	Init       EventType = "init"
	User       EventType = "user"
	Assistant  EventType = "assistant"
	ToolUse    EventType = "tool_use"
	ToolResult EventType = "tool_result"
	Result     EventType = "result"
	Unknown    EventType = "unknown"
)

// ContentBlock is one block within a message.
type ContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
}

// Message is a role plus its content blocks.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// UnmarshalJSON tolerates the content shapes agent versions have shipped:
// an array of blocks, a bare string (one text block), and null. Array
// entries that are not objects are dropped rather than failing the record.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = nil

	content := bytes.TrimSpace(raw.Content)
	if len(content) == 0 {
		return nil
	}
	switch content[0] {
	case '"':
		var text string
		if err := json.Unmarshal(content, &text); err != nil {
			return err
		}
		if text != "" {
			m.Content = []ContentBlock{{Type: "text", Text: text}}
		}
	case '[':
		var entries []json.RawMessage
		if err := json.Unmarshal(content, &entries); err != nil {
			return err
		}
		for _, entry := range entries {
			var block ContentBlock
			if err := json.Unmarshal(entry, &block); err != nil {
				continue
			}
			m.Content = append(m.Content, block)
		}
	}
	return nil
}

// Outcome holds the fields of a terminal result record.
type Outcome struct {
	Success      bool
	Text         string
	IsError      bool
	DurationMS   int64
	NumTurns     int
	TotalCostUSD float64
}

// Event is one parsed stream record.
type Event struct {
	Type      EventType
	Subtype   string
	SessionID string
	Message   *Message
	// Outcome is non-nil only for Result events.
	Outcome *Outcome
	// Raw is the original line, kept for passthrough and diagnostics.
	Raw string
}

// envelope matches the wire shape of a stream record. Result fields live
// at the top level of result records.
type envelope struct {
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype"`
	SessionID    string   `json:"session_id"`
	Message      *Message `json:"message"`
	Result       string   `json:"result"`
	IsError      bool     `json:"is_error"`
	DurationMS   int64    `json:"duration_ms"`
	NumTurns     int      `json:"num_turns"`
	TotalCostUSD float64  `json:"total_cost_usd"`
}

// ParseLine parses a single non-empty NDJSON line into an Event. Invalid
// JSON is an error; valid JSON with an unknown type discriminator is an
// Unknown event, not an error.
func ParseLine(line string) (*Event, error) {
	var env envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return nil, fmt.Errorf("parse stream event: %w", err)
	}

	ev := &Event{
		Subtype:   env.Subtype,
		SessionID: env.SessionID,
		Message:   env.Message,
		Raw:       line,
	}

	switch env.Type {
	case "init":
		ev.Type = Init
	case "system":
		// Current agent versions report startup as
		// {"type":"system","subtype":"init"}.
		if env.Subtype == "init" {
			ev.Type = Init
		} else {
			ev.Type = Unknown
		}
	case "user":
		ev.Type = User
	case "assistant":
		ev.Type = Assistant
	case "tool_use":
		ev.Type = ToolUse
	case "tool_result":
		ev.Type = ToolResult
	case "result":
		ev.Type = Result
		ev.Outcome = &Outcome{
			Success:      env.Subtype == "success",
			Text:         env.Result,
			IsError:      env.IsError,
			DurationMS:   env.DurationMS,
			NumTurns:     env.NumTurns,
			TotalCostUSD: env.TotalCostUSD,
		}
	default:
		ev.Type = Unknown
	}

	return ev, nil
}

// TextContent concatenates the text blocks of the event's message.
func (e *Event) TextContent() string {
	if e.Message == nil {
		return ""
	}
	var b strings.Builder
	for _, block := range e.Message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// ToolUses returns the tool_use blocks of the event's message.
func (e *Event) ToolUses() []ContentBlock {
	if e.Message == nil {
		return nil
	}
	var uses []ContentBlock
	for _, block := range e.Message.Content {
		if block.Type == "tool_use" {
			uses = append(uses, block)
		}
	}
	return uses
}
