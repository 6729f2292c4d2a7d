package executor

import (
	"sync"
	"time"

	"github.com/relaydev/clauder/internal/event"
)

// heartbeat publishes run.heartbeat events while the agent is silent. A
// tick with no agent output since the previous tick produces one event;
// ticks during visible activity stay quiet. Stop waits for the loop to
// exit, so no heartbeat can be delivered after it returns.
type heartbeat struct {
	runID    string
	interval time.Duration
	started  time.Time

	mu   sync.Mutex
	last time.Time // most recent agent activity

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newHeartbeat(runID string, interval time.Duration, started time.Time) *heartbeat {
	return &heartbeat{
		runID:    runID,
		interval: interval,
		started:  started,
		last:     started,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Touch records agent activity, suppressing the next tick.
func (h *heartbeat) Touch() {
	h.mu.Lock()
	h.last = time.Now()
	h.mu.Unlock()
}

func (h *heartbeat) Start() {
	go h.run()
}

// Stop halts the heartbeat and waits for in-flight delivery to finish.
// Idempotent.
func (h *heartbeat) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

func (h *heartbeat) run() {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	mark := h.started
	for {
		select {
		case <-h.stop:
			return
		case now := <-ticker.C:
			h.mu.Lock()
			quiet := !h.last.After(mark)
			h.mu.Unlock()
			mark = now
			if !quiet {
				continue
			}
			event.PublishSync(event.Event{Type: event.RunHeartbeat, Data: event.RunHeartbeatData{
				RunID:   h.runID,
				Elapsed: time.Since(h.started).Seconds(),
			}})
		}
	}
}
