package executor

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/relaydev/clauder/internal/storage"
)

// RunRecord is one finished run as persisted to the history store.
type RunRecord struct {
	ID        string  `json:"id"`
	SessionID string  `json:"session_id,omitempty"`
	Tier      string  `json:"tier,omitempty"`
	Model     string  `json:"model,omitempty"`
	Workspace string  `json:"workspace,omitempty"`
	Prompt    string  `json:"prompt"`
	State     string  `json:"state"`
	Success   bool    `json:"success"`
	Error     string  `json:"error,omitempty"`
	Elapsed   float64 `json:"elapsed_seconds"`
	NumTurns  int     `json:"num_turns,omitempty"`
	CostUSD   float64 `json:"cost_usd,omitempty"`

	PermissionsRequested int `json:"permissions_requested"`
	PermissionsGranted   int `json:"permissions_granted"`
	ChoicesAsked         int `json:"choices_asked,omitempty"`
	QuestionsAsked       int `json:"questions_asked,omitempty"`
	ConfirmationsAsked   int `json:"confirmations_asked,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// History records finished runs under ["runs", id].
type History struct {
	store *storage.Storage
}

func NewHistory(store *storage.Storage) *History {
	return &History{store: store}
}

// Record persists one run record.
func (h *History) Record(ctx context.Context, rec RunRecord) error {
	return h.store.Put(ctx, []string{"runs", rec.ID}, rec)
}

// Get returns one run record by ID.
func (h *History) Get(ctx context.Context, id string) (RunRecord, error) {
	var rec RunRecord
	err := h.store.Get(ctx, []string{"runs", id}, &rec)
	return rec, err
}

// List returns run records newest first. Run IDs are ULIDs, so reverse
// lexicographic order is reverse chronological.
func (h *History) List(ctx context.Context) ([]RunRecord, error) {
	var records []RunRecord
	err := h.store.Scan(ctx, []string{"runs"}, func(key string, data json.RawMessage) error {
		var rec RunRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil // unreadable records are skipped, not fatal
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID > records[j].ID })
	return records, nil
}
