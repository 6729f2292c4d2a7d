package prompt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/relaydev/clauder/internal/interact"
	"github.com/relaydev/clauder/internal/permission"
)

// AskKind distinguishes what a pending ask is about.
type AskKind string

const (
	KindInteraction AskKind = "interaction"
	KindPermission  AskKind = "permission"
)

// ErrUnknownAsk is returned when an answer names an ask that does not
// exist or was already answered.
var ErrUnknownAsk = errors.New("unknown or already answered ask")

// PendingAsk is one question waiting for an answer over the status API.
type PendingAsk struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	Kind      AskKind   `json:"kind"`
	Question  string    `json:"question"`
	Options   []string  `json:"options,omitempty"`
	Default   string    `json:"default,omitempty"`
	Risk      string    `json:"risk,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Hub parks asks until something answers them through the status API.
// Waits respect the caller's context, so a run abandoning a question
// removes it from the registry.
type Hub struct {
	mu      sync.Mutex
	entries map[string]*hubEntry
}

type hubEntry struct {
	ask    PendingAsk
	answer chan string
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{entries: make(map[string]*hubEntry)}
}

// Ask registers an interaction and blocks until it is answered or ctx
// ends.
func (h *Hub) Ask(ctx context.Context, req *interact.Request) (string, error) {
	ask := PendingAsk{
		ID:        ulid.Make().String(),
		Kind:      KindInteraction,
		Question:  req.PromptText(),
		CreatedAt: time.Now().UTC(),
	}
	switch req.Kind {
	case interact.KindChoice:
		ask.Options = req.Options
	case interact.KindQuestion:
		ask.Default = req.Default
	case interact.KindConfirmation:
		ask.Options = []string{"Yes", "No"}
	}
	return h.wait(ctx, ask)
}

// AskPermission registers a permission query under the broker's ask id and
// blocks until one of the closed responses arrives or ctx ends.
func (h *Hub) AskPermission(ctx context.Context, pa permission.Ask) (permission.Response, error) {
	responses := permission.Responses()
	options := make([]string, len(responses))
	for i, r := range responses {
		options[i] = string(r)
	}

	ask := PendingAsk{
		ID:        pa.ID,
		RunID:     pa.RunID,
		Kind:      KindPermission,
		Question:  fmt.Sprintf("Allow %s on %s?", pa.Action, pa.Target),
		Options:   options,
		Risk:      string(pa.Risk),
		CreatedAt: time.Now().UTC(),
	}
	answer, err := h.wait(ctx, ask)
	if err != nil {
		return "", err
	}
	return permission.ParseResponse(answer)
}

// Pending lists open asks, oldest first.
func (h *Hub) Pending() []PendingAsk {
	h.mu.Lock()
	defer h.mu.Unlock()
	asks := make([]PendingAsk, 0, len(h.entries))
	for _, e := range h.entries {
		asks = append(asks, e.ask)
	}
	// ULIDs order by creation time.
	sort.Slice(asks, func(i, j int) bool { return asks[i].ID < asks[j].ID })
	return asks
}

// Answer resolves one pending ask. Permission asks only accept the closed
// response set; an invalid answer leaves the ask pending.
func (h *Hub) Answer(id, answer string) error {
	h.mu.Lock()
	e, ok := h.entries[id]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownAsk
	}
	if e.ask.Kind == KindPermission {
		if _, err := permission.ParseResponse(answer); err != nil {
			h.mu.Unlock()
			return err
		}
	}
	delete(h.entries, id)
	h.mu.Unlock()

	e.answer <- answer
	return nil
}

func (h *Hub) wait(ctx context.Context, ask PendingAsk) (string, error) {
	if ask.ID == "" {
		ask.ID = ulid.Make().String()
	}
	e := &hubEntry{ask: ask, answer: make(chan string, 1)}

	h.mu.Lock()
	h.entries[ask.ID] = e
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.entries, ask.ID)
		h.mu.Unlock()
	}()

	select {
	case answer := <-e.answer:
		return answer, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
