package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// scanBufferSize bounds a single agent output line. Result records can
// carry whole file contents, so the ceiling is generous.
const scanBufferSize = 1 << 20

// stderrTailSize bounds how much trailing stderr is kept for error
// reporting.
const stderrTailSize = 8 << 10

// terminateGrace is how long SIGTERM gets before SIGKILL.
const terminateGrace = 5 * time.Second

// process supervises one spawned agent CLI: a reader goroutine pumps
// stdout lines into the channel, stderr drains into a bounded tail, and
// a reaper waits for both before collecting the exit status.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	// lines carries stdout lines and closes at stream end.
	lines chan string

	stderr *tailBuffer
	log    zerolog.Logger

	readMu  sync.Mutex
	readErr error

	done     chan struct{} // closed once the process is reaped
	termOnce sync.Once

	stdinMu sync.Mutex
}

// spawn starts the agent CLI for one turn.
func (r *run) spawn(mcpConfig, resumeID, instructions string) (*process, error) {
	args := buildArgs(r.opts, mcpConfig, resumeID, instructions)

	cmd := exec.Command(r.opts.AgentPath, args...)
	cmd.Dir = r.opts.Workspace
	cmd.Env = agentEnv(r.opts.Workspace)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	r.log.Debug().Int("pid", cmd.Process.Pid).Strs("args", args).Msg("agent spawned")

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, 64),
		stderr: &tailBuffer{max: stderrTailSize},
		log:    r.log,
		done:   make(chan struct{}),
	}

	readers := new(errgroup.Group)
	readers.Go(func() error {
		p.readLines(stdout)
		return nil
	})
	readers.Go(func() error {
		_, err := io.Copy(p.stderr, stderr)
		return err
	})
	go func() {
		// Wait must not run until both pipes are fully read.
		if err := readers.Wait(); err != nil {
			p.log.Debug().Err(err).Msg("agent pipe reader failed")
		}
		var exitErr *exec.ExitError
		if err := cmd.Wait(); err != nil && !errors.As(err, &exitErr) {
			p.log.Debug().Err(err).Msg("agent wait failed")
		}
		close(p.done)
	}()

	return p, nil
}

// readLines pumps stdout into the channel until stream end, then closes
// it. Scanner failures (oversized lines, read errors) are recorded for
// the consumer.
func (p *process) readLines(stdout io.Reader) {
	defer close(p.lines)

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), scanBufferSize)
	for sc.Scan() {
		p.lines <- sc.Text()
	}
	if err := sc.Err(); err != nil {
		p.readMu.Lock()
		p.readErr = err
		p.readMu.Unlock()
	}
}

// readError reports why the line channel closed, nil for plain EOF.
func (p *process) readError() error {
	p.readMu.Lock()
	defer p.readMu.Unlock()
	return p.readErr
}

// userMessage is the stream-json stdin record carrying user text.
type userMessage struct {
	Type    string      `json:"type"`
	Message userPayload `json:"message"`
}

type userPayload struct {
	Role    string     `json:"role"`
	Content []textPart `json:"content"`
}

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// send writes one user message to the agent's stdin.
func (p *process) send(text string) error {
	data, err := json.Marshal(userMessage{
		Type: "user",
		Message: userPayload{
			Role:    "user",
			Content: []textPart{{Type: "text", Text: text}},
		},
	})
	if err != nil {
		return err
	}

	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	_, err = p.stdin.Write(append(data, '\n'))
	return err
}

// Terminate stops the agent with SIGTERM, escalating to SIGKILL after a
// grace period, and reaps it. Safe to call repeatedly and on processes
// that already exited.
func (p *process) Terminate() {
	p.termOnce.Do(func() {
		// The consumer is gone; keep the reader from blocking on a full
		// channel so the reaper can finish.
		go p.drain()

		select {
		case <-p.done:
			return
		default:
		}

		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
		}
		select {
		case <-p.done:
			return
		case <-time.After(terminateGrace):
		}

		p.log.Warn().Msg("agent ignored SIGTERM, killing")
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		select {
		case <-p.done:
		case <-time.After(terminateGrace):
			// A child may be holding the pipes open; give up rather
			// than block teardown.
			p.log.Warn().Msg("agent pipes still open after kill")
		}
	})
}

func (p *process) drain() {
	for range p.lines {
	}
}

// wait blocks until the process is reaped or the context ends.
func (p *process) wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// exitCode reports the exit status after the process was reaped, -1
// before then or when it died on a signal.
func (p *process) exitCode() int {
	select {
	case <-p.done:
	default:
		return -1
	}
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// stderrTail returns the trailing stderr output for error reporting.
func (p *process) stderrTail() string {
	return strings.TrimSpace(p.stderr.String())
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu   sync.Mutex
	max  int
	data []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if len(b.data) > b.max {
		b.data = b.data[len(b.data)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}
