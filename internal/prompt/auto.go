package prompt

import (
	"context"
	"fmt"

	"github.com/relaydev/clauder/internal/interact"
	"github.com/relaydev/clauder/internal/permission"
)

// Auto answers everything without a human: interactions get the safest
// canned answer and permissions follow a fixed approve-or-deny policy.
// Approvals are once-scoped so nothing an unattended run accepts is ever
// cached.
type Auto struct {
	// Approve grants every permission query; false denies every one.
	Approve bool
}

// Ask answers an interaction: first option for a choice, the default for
// a question, yes for a confirmation.
func (a Auto) Ask(_ context.Context, req *interact.Request) (string, error) {
	switch req.Kind {
	case interact.KindChoice:
		if len(req.Options) > 0 {
			return req.Options[0], nil
		}
		return "", nil
	case interact.KindQuestion:
		if req.Default != "" {
			return req.Default, nil
		}
		return "Skipped", nil
	case interact.KindConfirmation:
		return "Yes", nil
	}
	return "", fmt.Errorf("unknown interaction kind %q", req.Kind)
}

// AskPermission applies the fixed policy.
func (a Auto) AskPermission(_ context.Context, _ permission.Ask) (permission.Response, error) {
	if a.Approve {
		return permission.AllowOnce, nil
	}
	return permission.Deny, nil
}
