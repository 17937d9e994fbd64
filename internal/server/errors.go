package server

import (
	"errors"
	"net/http"

	"github.com/friedman-econ/friedman/internal/api"
	"github.com/friedman-econ/friedman/internal/engine"
	"github.com/friedman-econ/friedman/internal/shell"
)

// maxStderrBytes bounds the stderr tail echoed in error bodies. The full
// text stays in the debug log.
const maxStderrBytes = 8 << 10

func statusFor(err error) int {
	if shell.IsNotFound(err) {
		return http.StatusNotFound
	}
	switch engine.KindOf(err) {
	case engine.KindInvalidParams:
		return http.StatusBadRequest
	case engine.KindComputation, engine.KindArgumentRejected:
		return http.StatusUnprocessableEntity
	case engine.KindMalformedOutput, engine.KindSpawn:
		return http.StatusBadGateway
	case engine.KindNotFound:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError flattens err into an ErrorResponse.
func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := api.ErrorResponse{
		Error:   string(engine.KindOf(err)),
		Message: err.Error(),
	}
	if resp.Error == "" {
		resp.Error = "internal_error"
		if status == http.StatusNotFound {
			resp.Error = "not_found"
		}
	}

	var e *engine.Error
	if errors.As(err, &e) && (e.Kind == engine.KindComputation || e.Kind == engine.KindArgumentRejected) {
		code := e.ExitCode
		resp.ExitCode = &code
		resp.Stderr = tail(e.Stderr, maxStderrBytes)
	}
	api.WriteJSON(w, status, resp)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
