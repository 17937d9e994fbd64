// Package logging provides structured JSON logging with levels and a queryable
// in-memory ring of recent entries.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func levelPriority(l Level) int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// ParseLevel converts a config string into a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug, nil
	case LevelInfo, "":
		return LevelInfo, nil
	case LevelWarn, "warning":
		return LevelWarn, nil
	case LevelError:
		return LevelError, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

// Entry represents a single log entry
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	JobID     string         `json:"job_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// sink is the storage shared by a logger and every scoped logger derived from it.
type sink struct {
	mu         sync.RWMutex
	output     io.Writer
	level      Level
	entries    []Entry
	maxEntries int
	counts     map[Level]int64
}

// Logger provides structured logging with in-memory storage for querying.
// Loggers returned by With and WithJob write into the same store.
type Logger struct {
	sink      *sink
	component string
	jobID     string
}

// Config holds logger configuration
type Config struct {
	Output     io.Writer // default: os.Stderr
	Level      Level     // default: info
	Component  string
	MaxEntries int // default: 1000
}

// New creates a new logger with the given configuration
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Level == "" {
		cfg.Level = LevelInfo
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 1000
	}
	return &Logger{
		sink: &sink{
			output:     cfg.Output,
			level:      cfg.Level,
			entries:    make([]Entry, 0, cfg.MaxEntries),
			maxEntries: cfg.MaxEntries,
			counts:     make(map[Level]int64),
		},
		component: cfg.Component,
	}
}

// Discard returns a logger that stores entries but writes nothing.
func Discard() *Logger {
	return New(Config{Output: io.Discard})
}

// SetLevel changes the minimum log level
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// With returns a logger that tags entries with a different component.
func (l *Logger) With(component string) *Logger {
	return &Logger{sink: l.sink, component: component, jobID: l.jobID}
}

// WithJob returns a job-scoped logger that adds job_id to all entries
func (l *Logger) WithJob(jobID string) *Logger {
	return &Logger{sink: l.sink, component: l.component, jobID: jobID}
}

func (l *Logger) log(level Level, msg string, fields map[string]any) {
	s := l.sink

	s.mu.Lock()
	defer s.mu.Unlock()

	if levelPriority(level) < levelPriority(s.level) {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   msg,
		Component: l.component,
		JobID:     l.jobID,
		Fields:    fields,
	}

	s.counts[level]++

	if len(s.entries) >= s.maxEntries {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, entry)

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(s.output, `{"level":"error","message":"failed to marshal log entry: %s"}`+"\n", err)
		return
	}
	s.output.Write(append(data, '\n'))
}

func first(fields []map[string]any) map[string]any {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs at debug level
func (l *Logger) Debug(msg string, fields ...map[string]any) { l.log(LevelDebug, msg, first(fields)) }

// Info logs at info level
func (l *Logger) Info(msg string, fields ...map[string]any) { l.log(LevelInfo, msg, first(fields)) }

// Warn logs at warn level
func (l *Logger) Warn(msg string, fields ...map[string]any) { l.log(LevelWarn, msg, first(fields)) }

// Error logs at error level
func (l *Logger) Error(msg string, fields ...map[string]any) { l.log(LevelError, msg, first(fields)) }

// Query parameters for filtering logs
type Query struct {
	Level     Level     // minimum level
	JobID     string    // exact job match
	Since     time.Time // entries at or after
	Until     time.Time // entries at or before
	Limit     int       // most recent N after filtering (0 = all)
	Component string
}

// QueryResult contains filtered log entries and metadata
type QueryResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Counts  Stats   `json:"counts"`
}

// Stats contains log statistics
type Stats struct {
	Debug int64 `json:"debug"`
	Info  int64 `json:"info"`
	Warn  int64 `json:"warn"`
	Error int64 `json:"error"`
	Total int64 `json:"total"`
}

func (s *sink) stats() Stats {
	st := Stats{
		Debug: s.counts[LevelDebug],
		Info:  s.counts[LevelInfo],
		Warn:  s.counts[LevelWarn],
		Error: s.counts[LevelError],
	}
	st.Total = st.Debug + st.Info + st.Warn + st.Error
	return st
}

// Query returns log entries matching the filter criteria
func (l *Logger) Query(q Query) QueryResult {
	s := l.sink
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := []Entry{}
	for _, e := range s.entries {
		if q.Level != "" && levelPriority(e.Level) < levelPriority(q.Level) {
			continue
		}
		if q.JobID != "" && e.JobID != q.JobID {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
			continue
		}
		if q.Component != "" && e.Component != q.Component {
			continue
		}
		filtered = append(filtered, e)
	}

	total := len(filtered)
	if q.Limit > 0 && len(filtered) > q.Limit {
		filtered = filtered[len(filtered)-q.Limit:]
	}

	return QueryResult{
		Entries: filtered,
		Total:   total,
		Counts:  s.stats(),
	}
}

// Stats returns current log statistics without entries
func (l *Logger) Stats() Stats {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	return l.sink.stats()
}

// Clear removes all stored entries and resets counts
func (l *Logger) Clear() {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]Entry, 0, s.maxEntries)
	s.counts = make(map[Level]int64)
}
