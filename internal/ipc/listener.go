// Package ipc carries permission queries between the approver sidecar and
// the host process over a unix domain socket. The wire format is one JSON
// request line answered by one JSON response line per connection. Every
// transport or handler failure turns into a deny on the approver side, so
// a broken socket can never grant anything.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaydev/clauder/internal/logging"
	"github.com/relaydev/clauder/internal/permission"
)

// SocketName is the filename of the permission socket inside its
// temporary directory.
const SocketName = "perm.sock"

// DefaultReadTimeout bounds how long a connection may take to deliver its
// request line.
const DefaultReadTimeout = time.Minute

// Resolver answers permission queries. *permission.Broker satisfies it.
type Resolver interface {
	Query(ctx context.Context, q permission.Query) permission.Decision
}

// Listener accepts permission queries on a unix socket and dispatches
// them to a Resolver. Each connection is served on its own goroutine, so
// a query parked on a human prompt never delays the next one.
type Listener struct {
	resolver    Resolver
	ctx         context.Context
	ln          net.Listener
	dir         string
	readTimeout time.Duration
	log         zerolog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	doneCh  chan struct{}
}

// NewListener creates the socket in a fresh temporary directory and
// returns a listener ready to Start. ctx bounds the lifetime of dispatched
// queries; nil means background.
func NewListener(ctx context.Context, resolver Resolver) (*Listener, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dir, err := os.MkdirTemp("", "clauder-perm-")
	if err != nil {
		return nil, fmt.Errorf("create permission socket dir: %w", err)
	}
	ln, err := net.Listen("unix", filepath.Join(dir, SocketName))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("listen on permission socket: %w", err)
	}
	return &Listener{
		resolver:    resolver,
		ctx:         ctx,
		ln:          ln,
		dir:         dir,
		readTimeout: DefaultReadTimeout,
		log:         logging.Component("ipc"),
		doneCh:      make(chan struct{}),
	}, nil
}

// Path returns the socket path to hand to the approver sidecar.
func (l *Listener) Path() string {
	return l.ln.Addr().String()
}

// Start begins accepting connections. Calling Start more than once is a
// no-op.
func (l *Listener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.closed {
		return
	}
	l.started = true
	go l.run()
	l.log.Debug().Str("path", l.Path()).Msg("permission socket listening")
}

func (l *Listener) run() {
	defer close(l.doneCh)
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.log.Warn().Err(err).Msg("permission socket accept failed")
			}
			return
		}
		go l.handle(conn)
	}
}

// handle serves one connection: one request line in, one response line
// out. Malformed requests and handler panics answer with a deny.
func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()

	answered := false
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("permission handler panicked")
			if !answered {
				_ = writeLine(conn, response{Outcome: permission.OutcomeDeny, Reason: "internal error"})
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(l.readTimeout))

	var req request
	if err := readLine(conn, &req); err != nil {
		l.log.Warn().Err(err).Msg("unreadable permission request")
		answered = true
		_ = writeLine(conn, response{Outcome: permission.OutcomeDeny, Reason: "invalid request"})
		return
	}

	dec := l.resolver.Query(l.ctx, permission.Query{
		Action: req.Action,
		Input:  req.Input,
		Risk:   req.Risk,
	})

	answered = true
	if err := writeLine(conn, response{Outcome: dec.Outcome, Reason: dec.Reason}); err != nil {
		l.log.Warn().Err(err).Msg("failed to write permission response")
	}
}

// Close stops accepting, waits for the accept loop to exit, and removes
// the socket directory. It is safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	started := l.started
	l.mu.Unlock()

	err := l.ln.Close()
	if started {
		<-l.doneCh
	}
	if rmErr := os.RemoveAll(l.dir); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}
