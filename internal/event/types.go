package event

// RunStartedData is the data for run.started events.
type RunStartedData struct {
	RunID     string `json:"runID"`
	Tier      string `json:"tier"`
	Model     string `json:"model"`
	Workspace string `json:"workspace"`
	Prompt    string `json:"prompt"` // truncated for display
}

// RunProgressData is the data for run.progress events, carrying one
// human-readable line per agent output event.
type RunProgressData struct {
	RunID string `json:"runID"`
	Text  string `json:"text"`
}

// RunHeartbeatData is the data for run.heartbeat events, emitted while the
// agent produces no output.
type RunHeartbeatData struct {
	RunID   string  `json:"runID"`
	Elapsed float64 `json:"elapsed"` // seconds since the run started
}

// RunCompletedData is the data for run.completed events. Status is the
// terminal session state in lowercase: "completed", "failed",
// "timed_out", or "cancelled".
type RunCompletedData struct {
	RunID     string  `json:"runID"`
	SessionID string  `json:"sessionID,omitempty"`
	Status    string  `json:"status,omitempty"`
	Success   bool    `json:"success"`
	Error     string  `json:"error,omitempty"`
	Elapsed   float64 `json:"elapsed"` // seconds
	NumTurns  int     `json:"numTurns,omitempty"`
	CostUSD   float64 `json:"costUSD,omitempty"`
}

// InteractionRequiredData is the data for interaction.required events.
type InteractionRequiredData struct {
	RunID    string   `json:"runID"`
	Kind     string   `json:"kind"` // "choice" | "question" | "confirmation"
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
	Default  string   `json:"default,omitempty"`
	Warning  string   `json:"warning,omitempty"`
}

// InteractionAnsweredData is the data for interaction.answered events.
type InteractionAnsweredData struct {
	RunID    string `json:"runID"`
	Kind     string `json:"kind"`
	Answer   string `json:"answer"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

// PermissionRequiredData is the data for permission.required events,
// published when a query reaches the broker.
type PermissionRequiredData struct {
	ID          string `json:"id"`
	RunID       string `json:"runID"`
	Action      string `json:"action"`
	Target      string `json:"target"`
	Fingerprint string `json:"fingerprint"`
	Risk        string `json:"risk,omitempty"`
}

// PermissionResolvedData is the data for permission.resolved events.
// Source records which stage decided: "session", "store", "rule",
// "repeat-guard", "prompt", or "timeout".
type PermissionResolvedData struct {
	ID          string `json:"id"`
	RunID       string `json:"runID"`
	Fingerprint string `json:"fingerprint"`
	Outcome     string `json:"outcome"` // "allow" | "deny"
	Scope       string `json:"scope,omitempty"`
	Source      string `json:"source"`
}

// PermissionStoreChangedData is the data for permission.store_changed
// events, published when the persistent store file is rewritten, possibly
// by another process.
type PermissionStoreChangedData struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}
