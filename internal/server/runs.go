package server

import (
	"sort"
	"sync"
	"time"

	"github.com/relaydev/clauder/internal/event"
)

// ActiveRun is one in-flight run as seen from the event bus.
type ActiveRun struct {
	RunID     string    `json:"run_id"`
	Tier      string    `json:"tier,omitempty"`
	Model     string    `json:"model,omitempty"`
	Workspace string    `json:"workspace,omitempty"`
	Prompt    string    `json:"prompt"`
	State     string    `json:"state"`
	Progress  string    `json:"progress,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// runTracker builds the active-runs view from bus events, so the
// executor never has to expose shared state.
type runTracker struct {
	mu   sync.Mutex
	runs map[string]*ActiveRun
}

func newRunTracker() *runTracker {
	return &runTracker{runs: make(map[string]*ActiveRun)}
}

// Attach subscribes to the event bus and returns a detach function.
func (t *runTracker) Attach() func() {
	return event.SubscribeAll(t.onEvent)
}

func (t *runTracker) onEvent(e event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()

	switch d := e.Data.(type) {
	case event.RunStartedData:
		t.runs[d.RunID] = &ActiveRun{
			RunID:     d.RunID,
			Tier:      d.Tier,
			Model:     d.Model,
			Workspace: d.Workspace,
			Prompt:    d.Prompt,
			State:     "running",
			StartedAt: now,
			UpdatedAt: now,
		}
	case event.RunProgressData:
		if run, ok := t.runs[d.RunID]; ok {
			run.Progress = d.Text
			run.UpdatedAt = now
		}
	case event.InteractionRequiredData:
		if run, ok := t.runs[d.RunID]; ok {
			run.State = "awaiting_input"
			run.UpdatedAt = now
		}
	case event.InteractionAnsweredData:
		if run, ok := t.runs[d.RunID]; ok {
			run.State = "running"
			run.UpdatedAt = now
		}
	case event.RunCompletedData:
		delete(t.runs, d.RunID)
	}
}

// Active lists in-flight runs, oldest first. Run IDs are ULIDs, so
// lexicographic order is chronological.
func (t *runTracker) Active() []ActiveRun {
	t.mu.Lock()
	defer t.mu.Unlock()

	runs := make([]ActiveRun, 0, len(t.runs))
	for _, run := range t.runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID < runs[j].RunID })
	return runs
}
