package interact

import "strings"

// Protocol texts appended to the agent's system prompt. They teach the
// agent to emit the marker objects this package scans for, and to treat
// the next inbound message as the answer. Appending preserves the agent's
// default behavior; only the enabled kinds are included, and a session
// receives them exactly once, on its first invocation.

const choiceProtocol = `
═══════════════════════════════════════════════════════════════
CRITICAL PROTOCOL - CHOICE QUESTIONS (MANDATORY)
═══════════════════════════════════════════════════════════════

When the task requires user selection from options, you MUST:

1. Output this EXACT JSON format as plain text:
{"__user_choice__": {"question": "Your question?", "options": ["option1", "option2", "option3"], "multiSelect": false}}

2. WAIT for response: "I choose: [option]"

3. Continue with selected option

EXAMPLE:
Task: "Ask which package manager, create config"
You output: {"__user_choice__": {"question": "Which package manager?", "options": ["pip", "poetry", "conda"], "multiSelect": false}}
I respond: I choose: poetry
You create: pyproject.toml file

REQUIRED: multiSelect=false for single choice, true for multiple
`

const questionProtocol = `
═══════════════════════════════════════════════════════════════
CRITICAL PROTOCOL - TEXT QUESTIONS (MANDATORY)
═══════════════════════════════════════════════════════════════

When the task requires user text input, you MUST:

1. Output this EXACT JSON format as plain text:
{"__user_question__": {"question": "Your question?", "default": ""}}

2. WAIT for response with user's text

3. Continue using that text IMMEDIATELY - do NOT ask again

CRITICAL RULES:
- After outputting __user_question__, ANY text you receive is the user's answer
- NEVER re-ask the same question - the response IS the answer
- Response format may be: In response to the question "X": Y - use Y as the answer
- Even if response looks like a command (e.g., "stat"), it IS the answer to your question
- If user's answer seems unexpected, USE IT ANYWAY and proceed

EXAMPLE:
Task: "Ask user's name, create {name}.md"
You output: {"__user_question__": {"question": "What is your name?", "default": ""}}
I respond: John Smith
You create: "John Smith.md" file (do NOT ask again!)

REQUIRED: Always ask when information is needed, never guess. NEVER repeat questions.
`

const confirmationProtocol = `
═══════════════════════════════════════════════════════════════
CRITICAL PROTOCOL - CONFIRMATIONS (MANDATORY)
═══════════════════════════════════════════════════════════════

For destructive/risky operations, you MUST confirm:

1. Output this EXACT JSON format as plain text:
{"__confirmation__": {"question": "Action to confirm?", "warning": "Why risky (optional)"}}

2. WAIT for response: "CONFIRMED: Yes" or "CONFIRMED: No"

3. Proceed only if Yes

EXAMPLE:
Task: "Delete all .log files"
You output: {"__confirmation__": {"question": "Delete 15 .log files?", "warning": "Cannot be undone"}}
I respond: CONFIRMED: Yes
You execute: deletion command

REQUIRED: Use for any destructive operation (delete, overwrite, etc)
`

// Instructions returns the protocol text for the enabled interaction
// kinds, or "" when none are enabled (in which case the agent gets no
// extra system prompt at all).
func Instructions(choices, questions, confirmations bool) string {
	var protocols []string
	if choices {
		protocols = append(protocols, choiceProtocol)
	}
	if questions {
		protocols = append(protocols, questionProtocol)
	}
	if confirmations {
		protocols = append(protocols, confirmationProtocol)
	}
	return strings.Join(protocols, "\n\n")
}
