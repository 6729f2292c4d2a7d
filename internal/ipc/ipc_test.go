package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydev/clauder/internal/permission"
)

// resolverFunc adapts a function to the Resolver interface.
type resolverFunc func(ctx context.Context, q permission.Query) permission.Decision

func (f resolverFunc) Query(ctx context.Context, q permission.Query) permission.Decision {
	return f(ctx, q)
}

// recordingResolver captures every query it answers.
type recordingResolver struct {
	mu       sync.Mutex
	queries  []permission.Query
	decision permission.Decision
}

func (r *recordingResolver) Query(ctx context.Context, q permission.Query) permission.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
	return r.decision
}

func (r *recordingResolver) last(t *testing.T) permission.Query {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.queries)
	return r.queries[len(r.queries)-1]
}

func startListener(t *testing.T, r Resolver) *Listener {
	t.Helper()
	l, err := NewListener(context.Background(), r)
	require.NoError(t, err)
	l.Start()
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRoundTrip(t *testing.T) {
	resolver := &recordingResolver{
		decision: permission.Decision{
			Outcome: permission.OutcomeAllow,
			Scope:   permission.ScopeSession,
			Reason:  "matched rule Bash(ls*)",
		},
	}
	l := startListener(t, resolver)
	assert.Equal(t, SocketName, filepath.Base(l.Path()))

	client := NewClient(ClientConfig{SocketPath: l.Path()})
	dec, err := client.Query(context.Background(), permission.Query{
		Action: "Bash",
		Input:  map[string]any{"command": "ls -la"},
		Risk:   permission.RiskMedium,
	})
	require.NoError(t, err)
	assert.Equal(t, permission.OutcomeAllow, dec.Outcome)
	assert.Equal(t, "matched rule Bash(ls*)", dec.Reason)
	// Scope never crosses the wire.
	assert.Empty(t, dec.Scope)

	got := resolver.last(t)
	assert.Equal(t, "Bash", got.Action)
	assert.Equal(t, "ls -la", got.Input["command"])
	assert.Equal(t, permission.RiskMedium, got.Risk)
}

func TestRoundTripDeny(t *testing.T) {
	resolver := &recordingResolver{
		decision: permission.Decision{Outcome: permission.OutcomeDeny, Reason: "no response"},
	}
	l := startListener(t, resolver)

	client := NewClient(ClientConfig{SocketPath: l.Path()})
	dec, err := client.Query(context.Background(), permission.Query{
		Action: "Write",
		Input:  map[string]any{"file_path": "/etc/passwd"},
	})
	require.NoError(t, err)
	assert.Equal(t, permission.OutcomeDeny, dec.Outcome)
	assert.Equal(t, "no response", dec.Reason)
}

func TestMalformedRequestDenied(t *testing.T) {
	l := startListener(t, resolverFunc(func(context.Context, permission.Query) permission.Decision {
		t.Error("resolver should not run for a malformed request")
		return permission.Decision{}
	}))

	conn, err := net.Dial("unix", l.Path())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("this is not json\n"))
	require.NoError(t, err)

	var resp response
	require.NoError(t, readLine(conn, &resp))
	assert.Equal(t, permission.OutcomeDeny, resp.Outcome)
	assert.Equal(t, "invalid request", resp.Reason)
}

func TestHandlerPanicDenies(t *testing.T) {
	l := startListener(t, resolverFunc(func(context.Context, permission.Query) permission.Decision {
		panic("resolver blew up")
	}))

	client := NewClient(ClientConfig{SocketPath: l.Path()})
	dec, err := client.Query(context.Background(), permission.Query{Action: "Bash", Input: map[string]any{"command": "ls"}})
	require.NoError(t, err)
	assert.Equal(t, permission.OutcomeDeny, dec.Outcome)
	assert.Equal(t, "internal error", dec.Reason)
}

func TestSlowQueryDoesNotBlockOthers(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	resolver := resolverFunc(func(ctx context.Context, q permission.Query) permission.Decision {
		if q.Action == "Bash" {
			close(entered)
			<-release
		}
		return permission.Decision{Outcome: permission.OutcomeAllow}
	})
	l := startListener(t, resolver)
	client := NewClient(ClientConfig{SocketPath: l.Path()})

	bashDone := make(chan permission.Decision, 1)
	bashErr := make(chan error, 1)
	go func() {
		dec, err := client.Query(context.Background(), permission.Query{
			Action: "Bash",
			Input:  map[string]any{"command": "rm -rf /tmp/scratch"},
		})
		if err != nil {
			bashErr <- err
			return
		}
		bashDone <- dec
	}()

	<-entered

	dec, err := client.Query(context.Background(), permission.Query{
		Action: "Read",
		Input:  map[string]any{"file_path": "/tmp/a.txt"},
	})
	require.NoError(t, err)
	assert.Equal(t, permission.OutcomeAllow, dec.Outcome)

	select {
	case <-bashDone:
		t.Fatal("gated query finished before it was released")
	case err := <-bashErr:
		t.Fatalf("gated query failed: %v", err)
	default:
	}

	close(release)
	select {
	case dec := <-bashDone:
		assert.Equal(t, permission.OutcomeAllow, dec.Outcome)
	case err := <-bashErr:
		t.Fatalf("gated query failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("gated query never finished")
	}
}

func TestClientRetriesUntilSocketAppears(t *testing.T) {
	path := filepath.Join(t.TempDir(), SocketName)

	go func() {
		time.Sleep(150 * time.Millisecond)
		ln, err := net.Listen("unix", path)
		if err != nil {
			return
		}
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var req request
		if err := readLine(conn, &req); err != nil {
			return
		}
		_ = writeLine(conn, response{Outcome: permission.OutcomeAllow})
	}()

	client := NewClient(ClientConfig{
		SocketPath: path,
		Attempts:   5,
		Delay:      50 * time.Millisecond,
		Timeout:    2 * time.Second,
	})
	dec, err := client.Query(context.Background(), permission.Query{
		Action: "Read",
		Input:  map[string]any{"file_path": "/tmp/a.txt"},
	})
	require.NoError(t, err)
	assert.Equal(t, permission.OutcomeAllow, dec.Outcome)
}

func TestClientGivesUpAfterRetries(t *testing.T) {
	client := NewClient(ClientConfig{
		SocketPath: filepath.Join(t.TempDir(), "missing.sock"),
		Attempts:   2,
		Delay:      10 * time.Millisecond,
	})
	_, err := client.Query(context.Background(), permission.Query{Action: "Bash"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to permission socket")
}

func TestClientResponseTimeout(t *testing.T) {
	ln, err := net.Listen("unix", filepath.Join(t.TempDir(), SocketName))
	require.NoError(t, err)
	defer ln.Close()

	hold := make(chan struct{})
	defer close(hold)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var req request
		_ = readLine(conn, &req)
		<-hold
	}()

	client := NewClient(ClientConfig{
		SocketPath: ln.Addr().String(),
		Timeout:    100 * time.Millisecond,
	})
	_, err = client.Query(context.Background(), permission.Query{Action: "Bash"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read permission decision")
}

func TestListenerReadDeadline(t *testing.T) {
	l, err := NewListener(context.Background(), resolverFunc(func(context.Context, permission.Query) permission.Decision {
		return permission.Decision{Outcome: permission.OutcomeAllow}
	}))
	require.NoError(t, err)
	l.readTimeout = 100 * time.Millisecond
	l.Start()
	t.Cleanup(func() { _ = l.Close() })

	conn, err := net.Dial("unix", l.Path())
	require.NoError(t, err)
	defer conn.Close()

	// Send nothing; the listener should give up on the read and deny.
	var resp response
	require.NoError(t, readLine(conn, &resp))
	assert.Equal(t, permission.OutcomeDeny, resp.Outcome)
	assert.Equal(t, "invalid request", resp.Reason)
}

func TestCloseRemovesSocketDir(t *testing.T) {
	l, err := NewListener(context.Background(), resolverFunc(func(context.Context, permission.Query) permission.Decision {
		return permission.Decision{Outcome: permission.OutcomeAllow}
	}))
	require.NoError(t, err)
	l.Start()

	_, err = os.Stat(l.dir)
	require.NoError(t, err)

	require.NoError(t, l.Close())
	_, err = os.Stat(l.dir)
	assert.True(t, os.IsNotExist(err))

	// Closing again is a no-op.
	require.NoError(t, l.Close())
}

func TestCloseWithoutStart(t *testing.T) {
	l, err := NewListener(context.Background(), resolverFunc(func(context.Context, permission.Query) permission.Decision {
		return permission.Decision{Outcome: permission.OutcomeAllow}
	}))
	require.NoError(t, err)
	require.NoError(t, l.Close())
}
