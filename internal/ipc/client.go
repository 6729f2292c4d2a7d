package ipc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/relaydev/clauder/internal/logging"
	"github.com/relaydev/clauder/internal/permission"
)

const (
	// DefaultDialAttempts is the total number of connection attempts
	// before the client gives up.
	DefaultDialAttempts = 3
	// DefaultDialDelay is the initial backoff between dial attempts.
	DefaultDialDelay = 500 * time.Millisecond
	// DefaultResponseTimeout bounds one full query round trip.
	DefaultResponseTimeout = 120 * time.Second
)

// ClientConfig tunes a Client. Zero values fall back to the defaults
// above.
type ClientConfig struct {
	// SocketPath is the unix socket to query.
	SocketPath string
	// Attempts is the total number of dial attempts.
	Attempts int
	// Delay is the initial backoff between attempts; it grows
	// exponentially.
	Delay time.Duration
	// Timeout bounds the request/response exchange once connected.
	Timeout time.Duration
}

// Client queries the host's permission socket. The host may be slow to
// bring the socket up relative to the agent spawning the approver, so the
// dial retries briefly before failing. A returned error means the caller
// could not get a decision and must deny.
type Client struct {
	cfg ClientConfig
	log zerolog.Logger
}

// NewClient creates a client for the socket named in cfg.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultDialAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDialDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultResponseTimeout
	}
	return &Client{cfg: cfg, log: logging.Component("ipc")}
}

// Query sends one permission query and waits for the decision.
func (c *Client) Query(ctx context.Context, q permission.Query) (permission.Decision, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return permission.Decision{}, fmt.Errorf("connect to permission socket: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.cfg.Timeout))

	req := request{Action: q.Action, Input: q.Input, Risk: q.Risk}
	if err := writeLine(conn, req); err != nil {
		return permission.Decision{}, fmt.Errorf("send permission query: %w", err)
	}

	var resp response
	if err := readLine(conn, &resp); err != nil {
		return permission.Decision{}, fmt.Errorf("read permission decision: %w", err)
	}

	c.log.Debug().
		Str("action", q.Action).
		Str("outcome", string(resp.Outcome)).
		Msg("permission decision received")
	return permission.Decision{Outcome: resp.Outcome, Reason: resp.Reason}, nil
}

// dial connects with exponential backoff, capped at the configured
// attempt count.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	var conn net.Conn
	attempt := func() error {
		var d net.Dialer
		cn, err := d.DialContext(ctx, "unix", c.cfg.SocketPath)
		if err != nil {
			return err
		}
		conn = cn
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.Delay
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.Attempts-1)), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}
	return conn, nil
}
