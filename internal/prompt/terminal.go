// Package prompt provides the prompter implementations behind
// interact.Prompter and permission.Prompter: an interactive terminal UI,
// a fixed-policy auto answerer for unattended runs, and a hub that parks
// asks for the status API to answer.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/manifoldco/promptui"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/relaydev/clauder/internal/interact"
	"github.com/relaydev/clauder/internal/permission"
)

// Terminal collects answers interactively with promptui. One prompt runs
// at a time; interaction and permission asks share the same terminal, so
// they are serialized behind a mutex.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminal returns a terminal prompter writing previews to stdout.
func NewTerminal() *Terminal {
	return &Terminal{out: os.Stdout}
}

// Ask answers one in-band interaction request.
func (t *Terminal) Ask(ctx context.Context, req *interact.Request) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return runWithContext(ctx, func() (string, error) {
		switch req.Kind {
		case interact.KindChoice:
			return t.choose(req)
		case interact.KindQuestion:
			return t.question(req)
		case interact.KindConfirmation:
			return t.confirm(req)
		}
		return "", fmt.Errorf("unknown interaction kind %q", req.Kind)
	})
}

// AskPermission shows the four-way permission menu, preceded by a diff
// preview for edits.
func (t *Terminal) AskPermission(ctx context.Context, ask permission.Ask) (permission.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if preview := editPreview(ask.Action, ask.Input); preview != "" {
		fmt.Fprintln(t.out, preview)
	}

	responses := permission.Responses()
	items := make([]string, len(responses))
	for i, r := range responses {
		items[i] = r.Label()
	}

	answer, err := runWithContext(ctx, func() (string, error) {
		sel := promptui.Select{
			Label: permissionLabel(ask),
			Items: items,
		}
		idx, _, err := sel.Run()
		if err != nil {
			return "", err
		}
		return string(responses[idx]), nil
	})
	if err != nil {
		return "", err
	}
	return permission.Response(answer), nil
}

func (t *Terminal) choose(req *interact.Request) (string, error) {
	sel := promptui.Select{
		Label: req.Question,
		Items: req.Options,
	}
	_, answer, err := sel.Run()
	return answer, err
}

func (t *Terminal) question(req *interact.Request) (string, error) {
	p := promptui.Prompt{
		Label:   req.Question,
		Default: req.Default,
	}
	return p.Run()
}

func (t *Terminal) confirm(req *interact.Request) (string, error) {
	if req.Warning != "" {
		fmt.Fprintf(t.out, "WARNING: %s\n", req.Warning)
	}
	p := promptui.Prompt{
		Label:     req.Question,
		IsConfirm: true,
	}
	if _, err := p.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return "No", nil
		}
		return "", err
	}
	return "Yes", nil
}

// runWithContext runs fn on its own goroutine so a cancelled context can
// stop the wait. promptui reads cannot be interrupted, so an abandoned
// prompt stays on screen until the process moves on.
func runWithContext(ctx context.Context, fn func() (string, error)) (string, error) {
	type outcome struct {
		answer string
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		answer, err := fn()
		ch <- outcome{answer: answer, err: err}
	}()

	select {
	case o := <-ch:
		return o.answer, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// permissionLabel is the menu headline, phrased as a question about the
// action and its target with the risk tier when one was classified.
func permissionLabel(ask permission.Ask) string {
	label := fmt.Sprintf("Allow %s on %s?", ask.Action, ask.Target)
	switch ask.Risk {
	case permission.RiskHigh:
		return label + " [high risk]"
	case permission.RiskMedium:
		return label + " [caution]"
	}
	return label
}

// previewLimit bounds the rendered diff; edits can be large and the menu
// must stay on screen.
const previewLimit = 2000

// editPreview renders a short colored diff of what an edit would change.
// Non-edit actions and edits without before/after text render nothing.
func editPreview(action string, input map[string]any) string {
	if action != "Edit" {
		return ""
	}
	before, _ := input["old_string"].(string)
	after, _ := input["new_string"].(string)
	if before == "" && after == "" {
		return ""
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return clipPreview(dmp.DiffPrettyText(diffs))
}

func clipPreview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLimit {
		return s
	}
	// Reset terminal colors in case the cut lands inside a colored span.
	return string(runes[:previewLimit]) + "\x1b[0m..."
}
