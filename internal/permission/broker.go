package permission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/relaydev/clauder/internal/event"
	"github.com/relaydev/clauder/internal/logging"
)

// DefaultPromptTimeout bounds how long a query waits for a human when no
// timeout is configured. Approval may come from someone who is away from
// the keyboard, so the default is generous.
const DefaultPromptTimeout = time.Hour

// Broker answers permission queries for one run. Resolution order:
// session cache, persistent store, configured rules, repeat guard, human
// prompt. Every failure path denies; the broker never fails open.
//
// Concurrent queries for the same fingerprint coalesce: the first caller
// escalates, later callers wait for its decision. Queries for different
// fingerprints do not block each other beyond map access.
type Broker struct {
	runID    string
	store    *Store
	prompter Prompter
	rules    []Rule
	timeout  time.Duration
	log      zerolog.Logger

	mu       sync.Mutex
	session  map[string]Decision
	inflight map[string]*inflightQuery
	guard    RepeatGuard

	requested atomic.Int64
	granted   atomic.Int64
}

// inflightQuery is a query currently escalating. decision is valid only
// after done is closed.
type inflightQuery struct {
	done     chan struct{}
	decision Decision
}

// NewBroker creates a broker for one run. store may be nil (no
// persistence), prompter may be nil (every escalation denies), and a
// non-positive timeout falls back to DefaultPromptTimeout.
func NewBroker(runID string, store *Store, prompter Prompter, rules []Rule, timeout time.Duration) *Broker {
	if timeout <= 0 {
		timeout = DefaultPromptTimeout
	}
	return &Broker{
		runID:    runID,
		store:    store,
		prompter: prompter,
		rules:    rules,
		timeout:  timeout,
		log:      logging.Component("broker"),
		session:  make(map[string]Decision),
		inflight: make(map[string]*inflightQuery),
	}
}

// Query resolves one permission query. It always returns a usable
// decision: errors along the way surface as denials with a reason, never
// as an allow.
func (b *Broker) Query(ctx context.Context, q Query) Decision {
	fp := Fingerprint(q.Action, q.Input)
	target := Target(q.Action, q.Input)
	id := ulid.Make().String()

	b.requested.Add(1)
	event.Publish(event.Event{
		Type: event.PermissionRequired,
		Data: event.PermissionRequiredData{
			ID:          id,
			RunID:       b.runID,
			Action:      q.Action,
			Target:      target,
			Fingerprint: fp,
			Risk:        string(q.Risk),
		},
	})

	b.mu.Lock()
	if dec, ok := b.session[fp]; ok {
		b.mu.Unlock()
		dec.Source = SourceSession
		return b.resolve(id, q.Action, fp, dec)
	}
	if fl, ok := b.inflight[fp]; ok {
		b.mu.Unlock()
		select {
		case <-fl.done:
			return b.resolve(id, q.Action, fp, fl.decision)
		case <-ctx.Done():
			dec := Decision{Outcome: OutcomeDeny, Scope: ScopeOnce, Reason: "cancelled", Source: SourcePrompt}
			return b.resolve(id, q.Action, fp, dec)
		}
	}
	fl := &inflightQuery{done: make(chan struct{})}
	b.inflight[fp] = fl
	b.mu.Unlock()

	dec := b.escalate(ctx, id, q, fp, target)

	b.mu.Lock()
	if dec.Outcome == OutcomeAllow && (dec.Scope == ScopeSession || dec.Scope == ScopeAlways) {
		b.session[fp] = dec
	}
	delete(b.inflight, fp)
	b.mu.Unlock()

	fl.decision = dec
	close(fl.done)

	return b.resolve(id, q.Action, fp, dec)
}

// escalate runs the stages past the session cache. The caller owns the
// in-flight entry for fp.
func (b *Broker) escalate(ctx context.Context, id string, q Query, fp, target string) Decision {
	if b.store != nil {
		rec, ok, err := b.store.Get(ctx, fp)
		if err != nil {
			b.log.Warn().Err(err).Msg("permission store unavailable")
		} else if ok {
			return Decision{Outcome: rec.Outcome, Scope: rec.Scope, Source: SourceStore}
		}
	}

	if rule := MatchRules(b.rules, q.Action, target); rule != nil {
		return Decision{
			Outcome: rule.Outcome,
			Scope:   ScopeSession,
			Reason:  "matched rule " + rule.Pattern,
			Source:  SourceRule,
		}
	}

	if b.guard.Observe(fp) {
		return Decision{
			Outcome: OutcomeDeny,
			Scope:   ScopeOnce,
			Reason:  "identical request repeated too many times",
			Source:  SourceRepeatGuard,
		}
	}

	if b.prompter == nil {
		return Decision{Outcome: OutcomeDeny, Scope: ScopeOnce, Reason: "no prompter available", Source: SourcePrompt}
	}

	pctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.prompter.Ask(pctx, Ask{
		ID:     id,
		RunID:  b.runID,
		Action: q.Action,
		Target: target,
		Risk:   q.Risk,
		Input:  q.Input,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Decision{Outcome: OutcomeDeny, Scope: ScopeOnce, Reason: "no response", Source: SourceTimeout}
		}
		return Decision{Outcome: OutcomeDeny, Scope: ScopeOnce, Reason: err.Error(), Source: SourcePrompt}
	}

	outcome, scope := resp.Decision()
	dec := Decision{Outcome: outcome, Scope: scope, Source: SourcePrompt}

	if outcome == OutcomeAllow && scope == ScopeAlways && b.store != nil {
		rec := Record{
			Action:    q.Action,
			Target:    target,
			Outcome:   outcome,
			Scope:     scope,
			CreatedAt: time.Now().UTC(),
		}
		if err := b.store.Put(ctx, fp, rec); err != nil {
			b.log.Warn().Err(err).Str("fingerprint", fp).Msg("failed to persist permission")
		}
	}

	return dec
}

// resolve publishes the outcome and finishes bookkeeping for one query.
func (b *Broker) resolve(id, action, fp string, dec Decision) Decision {
	if dec.Outcome == OutcomeAllow {
		b.granted.Add(1)
	}

	b.log.Debug().
		Str("action", action).
		Str("fingerprint", fp).
		Str("outcome", string(dec.Outcome)).
		Str("source", dec.Source).
		Msg("permission resolved")

	event.Publish(event.Event{
		Type: event.PermissionResolved,
		Data: event.PermissionResolvedData{
			ID:          id,
			RunID:       b.runID,
			Fingerprint: fp,
			Outcome:     string(dec.Outcome),
			Scope:       string(dec.Scope),
			Source:      dec.Source,
		},
	})
	return dec
}

// Stats returns how many queries the broker has seen and how many were
// allowed.
func (b *Broker) Stats() (requested, granted int) {
	return int(b.requested.Load()), int(b.granted.Load())
}

// ClearSession drops all session-scoped decisions and the repeat-guard
// history.
func (b *Broker) ClearSession() {
	b.mu.Lock()
	b.session = make(map[string]Decision)
	b.mu.Unlock()
	b.guard.Reset()
}
