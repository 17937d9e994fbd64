package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friedman-econ/friedman/internal/api"
	"github.com/friedman-econ/friedman/internal/history"
	"github.com/friedman-econ/friedman/internal/progress"
)

const keepaliveInterval = 15 * time.Second

// handleProgress streams a job's progress topic as server-sent events until
// the done marker arrives or the client goes away. Subscribe before starting
// the invocation; lines published earlier are not replayed.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if !history.ValidJobID(jobID) {
		api.WriteError(w, http.StatusBadRequest, "invalid_params", "invalid job_id")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		api.WriteError(w, http.StatusInternalServerError, "stream_not_supported", "streaming not supported")
		return
	}

	events, cancel := s.svc.Hub().Subscribe(jobID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
			if ev.Type == progress.EventDone {
				return
			}
		}
	}
}
