// Package permission decides whether the agent may perform a requested
// action. It answers out-of-band permission queries arriving over IPC
// from the approver process, caching decisions so a human is asked about
// any given action at most once.
//
// # Overview
//
// Every query is reduced to a fingerprint: a deterministic digest of the
// action name and its canonicalized input. The Broker resolves a
// fingerprint through a fixed sequence of stages, stopping at the first
// answer:
//
//  1. Session cache — decisions scoped to the current run.
//  2. Persistent store — "always" decisions from any previous run.
//  3. Rules — configured allow/deny patterns.
//  4. Repeat guard — auto-denies the third identical query in a row.
//  5. Prompter — a human, bounded by a long timeout.
//
// Denials and once-scoped allows are never cached, so only stages 3-5
// ever see them again.
//
// # Fingerprints
//
// Fingerprint canonicalizes the input (sorted keys, absolutized path
// fields) before hashing, so key order, whitespace, and equivalent path
// spellings cannot split one logical action across cache entries:
//
//	fp := permission.Fingerprint("Write", map[string]any{"file_path": "a.txt"})
//
// # The Broker
//
// A Broker belongs to one run. It owns the run's session cache and
// repeat guard and shares the persistent store with every other run:
//
//	store := permission.NewStore(cfg.Permission.StorePath)
//	broker := permission.NewBroker(runID, store, prompter, rules, timeout)
//	dec := broker.Query(ctx, permission.Query{
//		Action: "Bash",
//		Input:  map[string]any{"command": "git push"},
//	})
//
// Query never fails open: store errors, prompter errors, timeouts, and
// cancellation all produce a deny with a reason. Concurrent queries for
// the same fingerprint coalesce so the human sees one prompt, not two.
//
// # Responses and scopes
//
// A human answers with one of four responses: allow once, allow for this
// session, allow always, or deny. Response.Decision maps each to an
// outcome plus a retention scope; only "always" reaches the persistent
// store, and only allows are remembered at all.
//
// # Persistent store
//
// The Store is a single JSON document keyed by fingerprint. Updates hold
// a file lock for the whole read-modify-write cycle and replace the file
// atomically, so independently running sessions can share it without
// corruption. A Watcher can publish store-changed events when another
// process rewrites the file.
//
// # Rules
//
// Rules short-circuit escalation for actions the operator has already
// decided about. A pattern is "Action(glob)" matched against the query's
// target, or a bare action name:
//
//	permission.Rule{Pattern: "Read(/workspace/**)", Outcome: permission.OutcomeAllow}
//	permission.Rule{Pattern: "Bash(git status*)", Outcome: permission.OutcomeAllow}
//	permission.Rule{Pattern: "WebFetch", Outcome: permission.OutcomeDeny}
//
// # Risk classification
//
// ClassifyScript parses Bash commands and grades them: high for
// destructive or privileged commands, medium for in-place file mutation,
// raised to high when a mutating command reaches outside the workspace.
// The grade travels with the query as a hint for the human; it never
// changes the decision by itself.
//
// # Thread safety
//
// Broker, Store, RepeatGuard, and Watcher are safe for concurrent use.
package permission
