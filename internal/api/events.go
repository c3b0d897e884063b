package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var keepAlive = 25 * time.Second

// handleEvents streams notification events. The first message is a state
// snapshot so a fresh client does not have to poll /api/state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok || s.deps.Hub == nil {
		writeError(w, http.StatusNotImplemented, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Subscribe before the snapshot so nothing published in between is lost.
	events, cancel := s.deps.Hub.Journal().Subscribe()
	defer cancel()

	fmt.Fprint(w, ":ok\n\n")
	if err := writeEvent(w, "state", s.deps.Hub.Snapshot()); err != nil {
		return
	}
	flusher.Flush()
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("[SSE] client attached")

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			s.log.Debug().Str("remote", r.RemoteAddr).Msg("[SSE] client gone")
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ":ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, "notification", e); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
