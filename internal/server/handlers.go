package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friedman-econ/friedman/internal/api"
	"github.com/friedman-econ/friedman/internal/command"
	"github.com/friedman-econ/friedman/internal/history"
	"github.com/friedman-econ/friedman/internal/logging"
	"github.com/friedman-econ/friedman/internal/shell"
)

const maxBodyBytes = 1 << 20

// decodeBody reads a JSON request body into v. An empty body leaves v as is.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		api.WriteError(w, http.StatusBadRequest, "invalid_params", "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// handleStatus reports version, uptime and whether the engine can be found.
// It is the only unauthenticated route.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := api.StatusResponse{
		Version:       s.version,
		State:         api.StateReady,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		RunningJobs:   s.svc.Running(),
		Operations:    len(s.svc.Operations()),
	}

	target, err := s.svc.Engine()
	if err != nil {
		resp.State = api.StateEngineMissing
		resp.EngineError = err.Error()
	} else {
		resp.Engine = &api.EngineInfo{
			Mode:    string(target.Mode),
			Command: target.Argv(nil),
		}
	}

	api.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, s.svc.Operations())
}

func (s *Server) lookupOperation(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if _, ok := command.Lookup(name); !ok {
		api.WriteError(w, http.StatusNotFound, "not_found", "unknown operation: "+name)
		return "", false
	}
	return name, true
}

// handleInvoke runs an operation and returns the engine's JSON verbatim.
// A job_id in the body streams progress to GET /progress/{job_id}.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name, ok := s.lookupOperation(w, r)
	if !ok {
		return
	}
	var req api.InvokeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.svc.Invoke(r.Context(), shell.Request{
		Operation: name,
		Params:    command.Params(req.Params),
		JobID:     req.JobID,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Job-ID", res.JobID)
	w.WriteHeader(http.StatusOK)
	w.Write(res.Output)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	name, ok := s.lookupOperation(w, r)
	if !ok {
		return
	}
	var req api.InvokeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	args, cmd, err := s.svc.Preview(shell.Request{Operation: name, Params: command.Params(req.Params)})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.PreviewResponse{Operation: name, Args: args, Command: cmd})
}

func (s *Server) handleLoadDataset(w http.ResponseWriter, r *http.Request) {
	var req api.LoadDatasetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	info, err := s.svc.LoadDataset(r.Context(), req.Path, req.Sheet)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, s.svc.ListDatasets())
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Dataset(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, info)
}

// handlePreviewDataset returns the engine's preview of a dataset's first rows.
// Query params:
//   - rows: 1..100000 (default 100)
func (s *Server) handlePreviewDataset(w http.ResponseWriter, r *http.Request) {
	rows, err := api.ParseIntParam(r.URL.Query().Get("rows"), 1, 100000, shell.DefaultPreviewRows)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_params", "rows "+err.Error())
		return
	}
	out, err := s.svc.PreviewDataset(r.Context(), chi.URLParam(r, "id"), rows)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *Server) journal(w http.ResponseWriter) (*history.Store, bool) {
	store := s.svc.History()
	if store == nil {
		api.WriteError(w, http.StatusServiceUnavailable, "history_unavailable", "History storage not configured")
		return nil, false
	}
	return store, true
}

// handleListHistory returns paginated invocation history, newest first.
// Query params:
//   - page: 1-indexed (default 1)
//   - limit: 1..100 (default 20)
//   - operation, state: exact filters
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	store, ok := s.journal(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := api.ParseIntParam(q.Get("page"), 1, 1<<20, 1)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_params", "page "+err.Error())
		return
	}
	limit, err := api.ParseIntParam(q.Get("limit"), 1, history.MaxEntries, 20)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_params", "limit "+err.Error())
		return
	}

	api.WriteJSON(w, http.StatusOK, store.List(history.ListOptions{
		Page:      page,
		Limit:     limit,
		Operation: q.Get("operation"),
		State:     q.Get("state"),
	}))
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	store, ok := s.journal(w)
	if !ok {
		return
	}
	entry, err := store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, entry)
}

// handleGetHistoryDebug returns the raw stdout and stderr of a job.
func (s *Server) handleGetHistoryDebug(w http.ResponseWriter, r *http.Request) {
	store, ok := s.journal(w)
	if !ok {
		return
	}
	debugLog, err := store.GetDebugLog(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(debugLog)
}

// handleLogs returns log entries with optional filtering.
// Query params:
//   - level: minimum log level (debug, info, warn, error)
//   - job_id: filter by job ID
//   - since: RFC3339 timestamp to filter entries after
//   - until: RFC3339 timestamp to filter entries before
//   - limit: max entries to return (default 100)
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := logging.Query{JobID: q.Get("job_id")}

	if lvl := q.Get("level"); lvl != "" {
		level, err := logging.ParseLevel(lvl)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "invalid_params", err.Error())
			return
		}
		query.Level = level
	}

	var err error
	if query.Since, err = api.ParseTimeParam(q.Get("since")); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_params", "since "+err.Error())
		return
	}
	if query.Until, err = api.ParseTimeParam(q.Get("until")); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_params", "until "+err.Error())
		return
	}
	if query.Limit, err = api.ParseIntParam(q.Get("limit"), 1, 10000, 100); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_params", "limit "+err.Error())
		return
	}

	api.WriteJSON(w, http.StatusOK, s.log.Query(query))
}

// handleLogStats returns log statistics
func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, s.log.Stats())
}
