// Package api defines the wire types shared by the shell server and its clients.
package api

import "encoding/json"

// States reported by GET /status.
const (
	StateReady         = "ready"
	StateEngineMissing = "engine_missing"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// EngineInfo describes the resolved launch target.
type EngineInfo struct {
	Mode    string   `json:"mode"`
	Command []string `json:"command"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Version       string      `json:"version"`
	State         string      `json:"state"`
	Engine        *EngineInfo `json:"engine,omitempty"`
	EngineError   string      `json:"engine_error,omitempty"`
	UptimeSeconds float64     `json:"uptime_seconds"`
	RunningJobs   int         `json:"running_jobs"`
	Operations    int         `json:"operations"`
}

// InvokeRequest is the body of POST /operations/{name} and its preview.
type InvokeRequest struct {
	Params map[string]json.RawMessage `json:"params"`
	JobID  string                     `json:"job_id,omitempty"`
}

// PreviewResponse shows the argument vector an invocation would produce.
type PreviewResponse struct {
	Operation string   `json:"operation"`
	Args      []string `json:"args"`
	Command   []string `json:"command,omitempty"`
}

// LoadDatasetRequest is the body of POST /datasets.
type LoadDatasetRequest struct {
	Path  string `json:"path"`
	Sheet string `json:"sheet,omitempty"`
}
