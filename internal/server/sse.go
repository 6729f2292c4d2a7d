package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/relaydev/clauder/internal/event"
	"github.com/relaydev/clauder/internal/logging"
)

// streamEvent is the wire shape of one SSE payload.
type streamEvent struct {
	Type event.EventType `json:"type"`
	Data any             `json:"data"`
}

// keepaliveInterval is how often an idle stream gets a comment so
// intermediaries keep the connection open.
const keepaliveInterval = 30 * time.Second

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

// writeEvent writes one SSE event and flushes it.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}

	// ResponseController flushes through middleware wrappers; fall back
	// to the plain flusher when it cannot.
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeKeepalive writes an SSE comment.
func (s *sseWriter) writeKeepalive() {
	fmt.Fprintf(s.w, ": keepalive\n\n")
	s.flusher.Flush()
}

// streamEvents relays the event bus over SSE. Slow clients drop events
// rather than backpressuring the bus.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	events := make(chan event.Event, 16)
	unsub := event.SubscribeAll(func(e event.Event) {
		select {
		case events <- e:
		default:
			logging.Warn().
				Str("eventType", string(e.Type)).
				Msg("SSE event dropped: client too slow")
		}
	})
	defer unsub()

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	// The subscription is live before this is written, so a client that
	// has seen server.connected misses nothing published after it.
	if err := sse.writeEvent("message", streamEvent{Type: "server.connected", Data: map[string]any{}}); err != nil {
		return
	}

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.writeEvent("message", streamEvent{Type: e.Type, Data: e.Data}); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeKeepalive()
		}
	}
}
