// Package executor runs one agent task end to end. A run spawns the
// agent CLI in stream-json mode, supervises its NDJSON output, brokers
// permission queries arriving over a unix socket, relays in-band
// interaction markers to a human, and resumes the agent session with
// their answers until a terminal result arrives or a timeout fires.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/relaydev/clauder/internal/event"
	"github.com/relaydev/clauder/internal/interact"
	"github.com/relaydev/clauder/internal/ipc"
	"github.com/relaydev/clauder/internal/logging"
	"github.com/relaydev/clauder/internal/permission"
	"github.com/relaydev/clauder/internal/prompt"
	"github.com/relaydev/clauder/internal/stream"
)

// Default run timing. Execution bounds the whole run including resumed
// turns; inactivity bounds the silence between agent output lines.
const (
	DefaultExecutionTimeout   = 600 * time.Second
	DefaultInactivityTimeout  = 120 * time.Second
	DefaultHeartbeatInterval  = 5 * time.Second
	DefaultInteractionTimeout = 300 * time.Second
)

// promptPreviewLimit bounds the prompt text carried in events and
// history records.
const promptPreviewLimit = 200

// State tracks one run through its lifecycle.
type State string

const (
	StateInit          State = "init"
	StateRunning       State = "running"
	StateAwaitingInput State = "awaiting_input"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateTimedOut      State = "timed_out"
	StateCancelled     State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

// Options configure one run.
type Options struct {
	// Prompt is the task given to the agent.
	Prompt string
	// Workspace is the agent's working directory. Empty inherits the
	// current directory; non-empty must exist.
	Workspace string
	// AgentPath is the agent CLI binary, resolved via PATH when not
	// absolute.
	AgentPath string
	// Model is the agent model name.
	Model string
	// Tier is the capability tier the model was resolved from. Recorded
	// in events and history only.
	Tier string

	// SkipPermissions bypasses brokering entirely: no socket, no
	// sidecar, and the agent runs with its permission checks disabled.
	SkipPermissions bool

	// Choices, Questions and Confirmations select which interaction
	// protocols are taught to the agent on its first turn.
	Choices       bool
	Questions     bool
	Confirmations bool

	// Interact answers in-band interaction requests. Nil falls back to
	// prompt.Auto{}, which answers every request with its default.
	Interact interact.Prompter
	// Permission answers permission queries that escalate past the
	// cache, store and rules. Nil denies every escalated query.
	Permission permission.Prompter

	// Store persists allow-always decisions across runs. Nil disables
	// persistence.
	Store *permission.Store
	// Rules are consulted by the broker before any human is asked.
	Rules []permission.Rule
	// History records finished runs. Nil disables recording.
	History *History

	ExecutionTimeout   time.Duration
	InactivityTimeout  time.Duration
	HeartbeatInterval  time.Duration
	InteractionTimeout time.Duration
	PermissionTimeout  time.Duration

	// SocketRetries and SocketRetryDelay tune the approver sidecar's
	// reconnect policy, passed through the MCP config.
	SocketRetries    int
	SocketRetryDelay time.Duration
}

// normalized validates the options and fills defaults.
func (o Options) normalized() (Options, error) {
	if strings.TrimSpace(o.Prompt) == "" {
		return o, errors.New("executor: prompt must not be empty")
	}
	if o.AgentPath == "" {
		return o, errors.New("executor: agent path must not be empty")
	}
	if o.Model == "" {
		return o, errors.New("executor: model must not be empty")
	}
	if o.Workspace != "" {
		info, err := os.Stat(o.Workspace)
		if err != nil {
			return o, fmt.Errorf("executor: workspace: %w", err)
		}
		if !info.IsDir() {
			return o, fmt.Errorf("executor: workspace %s is not a directory", o.Workspace)
		}
	}

	if o.ExecutionTimeout <= 0 {
		o.ExecutionTimeout = DefaultExecutionTimeout
	}
	if o.InactivityTimeout <= 0 {
		o.InactivityTimeout = DefaultInactivityTimeout
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.InteractionTimeout <= 0 {
		o.InteractionTimeout = DefaultInteractionTimeout
	}
	if o.PermissionTimeout <= 0 {
		o.PermissionTimeout = permission.DefaultPromptTimeout
	}
	if o.ExecutionTimeout <= o.InactivityTimeout {
		return o, fmt.Errorf("executor: execution timeout (%s) must exceed inactivity timeout (%s)",
			o.ExecutionTimeout, o.InactivityTimeout)
	}

	if o.Interact == nil {
		o.Interact = prompt.Auto{}
	}
	if o.SocketRetries <= 0 {
		o.SocketRetries = ipc.DefaultDialAttempts
	}
	if o.SocketRetryDelay <= 0 {
		o.SocketRetryDelay = ipc.DefaultDialDelay
	}
	return o, nil
}

// Result is the outcome of one run.
type Result struct {
	RunID     string  `json:"run_id"`
	SessionID string  `json:"session_id,omitempty"`
	State     State   `json:"state"`
	Success   bool    `json:"success"`
	Output    string  `json:"output,omitempty"`
	Error     string  `json:"error,omitempty"`
	ExitCode  int     `json:"exit_code"`
	NumTurns  int     `json:"num_turns,omitempty"`
	CostUSD   float64 `json:"cost_usd,omitempty"`
	Elapsed   float64 `json:"elapsed_seconds"`

	PermissionsRequested int `json:"permissions_requested"`
	PermissionsGranted   int `json:"permissions_granted"`
	ChoicesAsked         int `json:"choices_asked"`
	QuestionsAsked       int `json:"questions_asked"`
	ConfirmationsAsked   int `json:"confirmations_asked"`
}

// Supervision errors mapped to terminal states by failure.
var (
	errInactivity         = errors.New("agent produced no output")
	errInteractionTimeout = errors.New("interaction unanswered")
)

// Run executes one agent task to completion. The returned error covers
// invalid options only; every runtime failure is reported through the
// Result so callers always get counts and partial output.
func Run(ctx context.Context, opts Options) (*Result, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	r := &run{
		opts:  opts,
		id:    ulid.Make().String(),
		state: StateInit,
	}
	r.log = logging.Component("run").With().Str("run_id", r.id).Logger()
	return r.execute(ctx), nil
}

// run is the supervision state for one task.
type run struct {
	opts  Options
	id    string
	log   zerolog.Logger
	state State

	broker *permission.Broker
	pulse  *heartbeat

	sessionID string
	startedAt time.Time
	output    []string
	turns     int

	choices       int
	questions     int
	confirmations int
}

func (r *run) execute(ctx context.Context) *Result {
	r.startedAt = time.Now()

	event.Publish(event.Event{Type: event.RunStarted, Data: event.RunStartedData{
		RunID:     r.id,
		Tier:      r.opts.Tier,
		Model:     r.opts.Model,
		Workspace: r.opts.Workspace,
		Prompt:    clip(r.opts.Prompt, promptPreviewLimit),
	}})
	r.log.Info().
		Str("model", r.opts.Model).
		Str("workspace", r.opts.Workspace).
		Bool("skip_permissions", r.opts.SkipPermissions).
		Msg("run started")

	execCtx, cancel := context.WithTimeout(ctx, r.opts.ExecutionTimeout)
	defer cancel()

	mcpConfig := ""
	if !r.opts.SkipPermissions {
		r.broker = permission.NewBroker(r.id, r.opts.Store, r.opts.Permission, r.opts.Rules, r.opts.PermissionTimeout)

		listener, err := ipc.NewListener(execCtx, r.broker)
		if err != nil {
			return r.finish(r.fail(fmt.Errorf("start permission listener: %w", err)))
		}
		defer listener.Close()
		listener.Start()

		mcpConfig, err = writeAgentConfig(listener.Path(), r.opts)
		if err != nil {
			return r.finish(r.fail(fmt.Errorf("write agent MCP config: %w", err)))
		}
		defer os.Remove(mcpConfig)
	}

	r.pulse = newHeartbeat(r.id, r.opts.HeartbeatInterval, r.startedAt)
	r.pulse.Start()
	defer r.pulse.Stop()

	return r.finish(r.loop(execCtx, mcpConfig))
}

// loop spawns the agent and consumes its stream, respawning with
// --resume whenever an interaction answer has to reach a known session.
func (r *run) loop(ctx context.Context, mcpConfig string) *Result {
	instructions := interact.Instructions(r.opts.Choices, r.opts.Questions, r.opts.Confirmations)
	message := r.opts.Prompt
	resumeID := ""

	for {
		proc, err := r.spawn(mcpConfig, resumeID, instructions)
		if err != nil {
			return r.fail(fmt.Errorf("start agent: %w", err))
		}
		instructions = "" // a session gets the protocol text exactly once
		r.setState(StateRunning)
		r.turns++

		if err := proc.send(message); err != nil {
			proc.Terminate()
			return r.fail(fmt.Errorf("write prompt to agent: %w", err))
		}

		turn := r.consume(ctx, proc)
		switch {
		case turn.err != nil:
			proc.Terminate()
			return r.failure(turn.err)

		case turn.pending != "":
			r.log.Info().Str("session_id", r.sessionID).Msg("resuming session to deliver answer")
			proc.Terminate()
			resumeID = r.sessionID
			message = turn.pending
			continue

		case turn.outcome != nil:
			proc.Terminate()
			return r.complete(turn.outcome)

		default:
			// Stream ended without a result record.
			if err := proc.wait(ctx); err != nil {
				proc.Terminate()
				return r.failure(err)
			}
			return r.exited(proc)
		}
	}
}

// turnResult is the outcome of consuming one process's stream.
type turnResult struct {
	outcome *stream.Outcome // terminal result record, nil otherwise
	pending string          // answer held for delivery on resume
	err     error           // fatal supervision error
}

// consume reads the agent's stream until a result record, stream end, a
// timeout, or a fatal error. Interaction markers are answered inline;
// when the session ID is known the answer is held for a resume instead
// of being written to the live process.
func (r *run) consume(ctx context.Context, proc *process) turnResult {
	idle := time.NewTimer(r.opts.InactivityTimeout)
	defer idle.Stop()
	var pending string

	for {
		select {
		case line, ok := <-proc.lines:
			if !ok {
				if err := proc.readError(); err != nil {
					r.log.Warn().Err(err).Msg("agent stdout closed abnormally")
				}
				return turnResult{pending: pending}
			}
			idle.Reset(r.opts.InactivityTimeout)
			if strings.TrimSpace(line) == "" {
				continue
			}

			ev, err := stream.ParseLine(line)
			if err != nil {
				r.log.Warn().Err(err).Str("line", clip(line, 200)).Msg("skipping unparseable agent output")
				continue
			}
			r.pulse.Touch()

			if ev.SessionID != "" && ev.SessionID != r.sessionID {
				r.sessionID = ev.SessionID
				r.log.Debug().Str("session_id", r.sessionID).Msg("agent session captured")
			}

			event.Publish(event.Event{Type: event.RunProgress, Data: event.RunProgressData{
				RunID: r.id,
				Text:  stream.FormatProgress(ev),
			}})

			if ev.Type == stream.Assistant {
				if text := ev.TextContent(); text != "" {
					r.output = append(r.output, text)

					req, serr := interact.Scan(text)
					if serr != nil {
						return turnResult{err: fmt.Errorf("interaction protocol violated: %w", serr)}
					}
					if req != nil {
						answer, aerr := r.askInteraction(ctx, req)
						if aerr != nil {
							return turnResult{err: aerr}
						}
						// The human may take longer than the inactivity
						// window; the clock restarts once they answer.
						if !idle.Stop() {
							select {
							case <-idle.C:
							default:
							}
						}
						idle.Reset(r.opts.InactivityTimeout)
						if r.sessionID != "" {
							if pending != "" {
								r.log.Warn().Msg("previous answer still undelivered, keeping the newest")
							}
							pending = answer
						} else if werr := proc.send(answer); werr != nil {
							return turnResult{err: fmt.Errorf("write answer to agent: %w", werr)}
						}
					}
				}
			}

			if ev.Type == stream.Result {
				if pending != "" {
					// The turn is over but an answer is owed; the
					// caller respawns with --resume to deliver it.
					return turnResult{pending: pending}
				}
				return turnResult{outcome: ev.Outcome}
			}

		case <-idle.C:
			return turnResult{err: fmt.Errorf("%w for %s", errInactivity, r.opts.InactivityTimeout)}

		case <-ctx.Done():
			return turnResult{err: context.Cause(ctx)}
		}
	}
}

// askInteraction relays one interaction request to the prompter and
// formats the answer for the agent. A prompter timeout is fatal to the
// run; other prompter failures fall back to the declined default.
func (r *run) askInteraction(ctx context.Context, req *interact.Request) (string, error) {
	r.setState(StateAwaitingInput)
	defer r.setState(StateRunning)
	r.countInteraction(req.Kind)

	event.Publish(event.Event{Type: event.InteractionRequired, Data: event.InteractionRequiredData{
		RunID:    r.id,
		Kind:     string(req.Kind),
		Question: req.Question,
		Options:  req.Options,
		Default:  req.Default,
		Warning:  req.Warning,
	}})
	r.log.Info().
		Str("kind", string(req.Kind)).
		Str("question", clip(req.Question, 120)).
		Msg("interaction required")

	ictx, cancel := context.WithTimeout(ctx, r.opts.InteractionTimeout)
	defer cancel()

	answer, err := r.opts.Interact.Ask(ictx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", context.Cause(ctx)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			event.Publish(event.Event{Type: event.InteractionAnswered, Data: event.InteractionAnsweredData{
				RunID:    r.id,
				Kind:     string(req.Kind),
				TimedOut: true,
			}})
			return "", fmt.Errorf("%w after %s", errInteractionTimeout, r.opts.InteractionTimeout)
		}
		r.log.Warn().Err(err).Msg("interaction prompt failed, using the declined default")
		answer = req.Decline()
	}

	event.Publish(event.Event{Type: event.InteractionAnswered, Data: event.InteractionAnsweredData{
		RunID:  r.id,
		Kind:   string(req.Kind),
		Answer: answer,
	}})
	return interact.FormatAnswer(req, answer), nil
}

func (r *run) countInteraction(kind interact.Kind) {
	switch kind {
	case interact.KindChoice:
		r.choices++
	case interact.KindQuestion:
		r.questions++
	case interact.KindConfirmation:
		r.confirmations++
	}
}

// complete builds the result for a terminal result record.
func (r *run) complete(out *stream.Outcome) *Result {
	res := r.baseResult()
	res.Success = out.Success && !out.IsError
	if res.Success {
		res.State = StateCompleted
	} else {
		res.State = StateFailed
		if out.Text != "" {
			res.Error = out.Text
		} else {
			res.Error = "agent reported failure"
		}
	}
	res.Output = out.Text
	if res.Output == "" {
		res.Output = strings.Join(r.output, "\n")
	}
	res.NumTurns = out.NumTurns
	res.CostUSD = out.TotalCostUSD
	return res
}

// exited builds the result for a stream that ended without a result
// record, from the exit status and the stderr tail.
func (r *run) exited(proc *process) *Result {
	res := r.baseResult()
	res.ExitCode = proc.exitCode()
	res.Success = res.ExitCode == 0
	res.Output = strings.Join(r.output, "\n")
	if res.Success {
		res.State = StateCompleted
	} else {
		res.State = StateFailed
		res.Error = proc.stderrTail()
		if res.Error == "" {
			res.Error = fmt.Sprintf("agent exited with status %d", res.ExitCode)
		}
	}
	return res
}

// failure maps a supervision error to a terminal result with partial
// output attached.
func (r *run) failure(err error) *Result {
	res := r.baseResult()
	res.Output = strings.Join(r.output, "\n")
	res.ExitCode = -1

	switch {
	case errors.Is(err, errInactivity), errors.Is(err, errInteractionTimeout):
		res.State = StateTimedOut
		res.Error = err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		res.State = StateTimedOut
		res.Error = fmt.Sprintf("execution exceeded %s", r.opts.ExecutionTimeout)
	case errors.Is(err, context.Canceled):
		res.State = StateCancelled
		res.Error = "cancelled"
	default:
		res.State = StateFailed
		res.Error = err.Error()
	}
	return res
}

// fail builds a plain failed result for setup errors.
func (r *run) fail(err error) *Result {
	res := r.baseResult()
	res.State = StateFailed
	res.Error = err.Error()
	res.ExitCode = -1
	return res
}

func (r *run) baseResult() *Result {
	return &Result{
		RunID:              r.id,
		SessionID:          r.sessionID,
		ChoicesAsked:       r.choices,
		QuestionsAsked:     r.questions,
		ConfirmationsAsked: r.confirmations,
	}
}

// finish stamps the shared result fields, publishes run.completed and
// records history. The heartbeat is stopped first so no heartbeat can
// follow the completion event.
func (r *run) finish(res *Result) *Result {
	if r.pulse != nil {
		r.pulse.Stop()
	}
	r.setState(res.State)

	if r.broker != nil {
		res.PermissionsRequested, res.PermissionsGranted = r.broker.Stats()
	}
	res.Elapsed = time.Since(r.startedAt).Seconds()

	event.Publish(event.Event{Type: event.RunCompleted, Data: event.RunCompletedData{
		RunID:     r.id,
		SessionID: r.sessionID,
		Status:    string(res.State),
		Success:   res.Success,
		Error:     res.Error,
		Elapsed:   res.Elapsed,
		NumTurns:  res.NumTurns,
		CostUSD:   res.CostUSD,
	}})
	r.log.Info().
		Str("state", string(res.State)).
		Bool("success", res.Success).
		Int("turns", r.turns).
		Float64("elapsed", res.Elapsed).
		Msg("run finished")

	if r.opts.History != nil {
		// The run context may already be dead; history still gets written.
		if err := r.opts.History.Record(context.Background(), r.record(res)); err != nil {
			r.log.Warn().Err(err).Msg("failed to record run history")
		}
	}
	return res
}

func (r *run) record(res *Result) RunRecord {
	return RunRecord{
		ID:                   r.id,
		SessionID:            r.sessionID,
		Tier:                 r.opts.Tier,
		Model:                r.opts.Model,
		Workspace:            r.opts.Workspace,
		Prompt:               clip(r.opts.Prompt, promptPreviewLimit),
		State:                string(res.State),
		Success:              res.Success,
		Error:                res.Error,
		Elapsed:              res.Elapsed,
		NumTurns:             res.NumTurns,
		CostUSD:              res.CostUSD,
		PermissionsRequested: res.PermissionsRequested,
		PermissionsGranted:   res.PermissionsGranted,
		ChoicesAsked:         res.ChoicesAsked,
		QuestionsAsked:       res.QuestionsAsked,
		ConfirmationsAsked:   res.ConfirmationsAsked,
		StartedAt:            r.startedAt.UTC(),
		FinishedAt:           time.Now().UTC(),
	}
}

func (r *run) setState(s State) {
	if r.state == s {
		return
	}
	r.log.Debug().Str("from", string(r.state)).Str("to", string(s)).Msg("state change")
	r.state = s
}

// clip truncates s to max runes, marking the cut.
func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
