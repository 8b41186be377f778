package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fintrack/internal/log"
	"fintrack/internal/view"
)

// heartbeatInterval keeps idle event streams open through proxies.
var heartbeatInterval = 15 * time.Second

// handleEvents streams one "state" event with the current snapshot and then
// one per cache notification, until the client leaves or the server stops.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	states, cancel := s.deps.Ledger.Subscribe()
	defer cancel()

	logger := log.FromContext(ctx)
	logger.DebugContext(ctx, "Event stream opened")
	defer logger.DebugContext(ctx, "Event stream closed")

	if err := writeStateEvent(w, rc, s.deps.Ledger.Snapshot()); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if err := writeStateEvent(w, rc, st); err != nil {
				logger.DebugContext(ctx, "Event stream write failed", log.FieldError, err)
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeStateEvent(w http.ResponseWriter, rc *http.ResponseController, st view.State) error {
	data, err := json.Marshal(newStateResponse(st))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: state\nid: %d\ndata: %s\n\n", st.Version, data); err != nil {
		return err
	}
	return rc.Flush()
}
