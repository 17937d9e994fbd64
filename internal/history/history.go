// Package history keeps a bounded on-disk journal of finished invocations.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Invocation states.
const (
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Retention limits
const (
	MaxEntries      = 100
	MaxDebugEntries = 20
	PreviewLength   = 200
	maxJobIDLen     = 128
)

// ErrNotFound is returned for unknown job identifiers.
var ErrNotFound = errors.New("not found in history")

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidJobID reports whether id is safe to use as a file name and topic.
func ValidJobID(id string) bool {
	if id == "" || len(id) > maxJobIDLen {
		return false
	}
	if strings.Contains(id, "..") {
		return false
	}
	return jobIDPattern.MatchString(id)
}

// Store manages journal persistence.
type Store struct {
	dir string

	mu      sync.RWMutex
	entries map[string]*Entry
}

// Entry records one finished invocation.
type Entry struct {
	JobID           string      `json:"job_id"`
	Operation       string      `json:"operation"`
	Args            []string    `json:"args"`
	Command         []string    `json:"command,omitempty"`
	Streamed        bool        `json:"streamed"`
	State           string      `json:"state"`
	StartedAt       time.Time   `json:"started_at"`
	CompletedAt     time.Time   `json:"completed_at"`
	DurationSeconds float64     `json:"duration_seconds"`
	ExitCode        *int        `json:"exit_code,omitempty"`
	Error           *EntryError `json:"error,omitempty"`
	Result          string      `json:"-"`
	ResultPreview   string      `json:"result_preview,omitempty"`
	HasDebugLog     bool        `json:"has_debug_log"`
}

// EntryError captures error details.
type EntryError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ListOptions controls pagination for List.
type ListOptions struct {
	Page      int // 1-indexed
	Limit     int // max 100
	Operation string
	State     string
}

// ListResult contains paginated history entries.
type ListResult struct {
	Entries    []EntrySummary `json:"entries"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// EntrySummary is Entry without the argument vector, for list responses.
type EntrySummary struct {
	JobID           string      `json:"job_id"`
	Operation       string      `json:"operation"`
	State           string      `json:"state"`
	CompletedAt     time.Time   `json:"completed_at"`
	DurationSeconds float64     `json:"duration_seconds"`
	ExitCode        *int        `json:"exit_code,omitempty"`
	Error           *EntryError `json:"error,omitempty"`
	HasDebugLog     bool        `json:"has_debug_log"`
}

// NewStore creates a journal in dir, loading any entries already there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	s := &Store{
		dir:     dir,
		entries: make(map[string]*Entry),
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return s, nil
}

// Save persists entry and prunes the journal to its retention limits.
func (s *Store) Save(entry *Entry) error {
	if !ValidJobID(entry.JobID) {
		return fmt.Errorf("invalid job id %q", entry.JobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ResultPreview = truncate(entry.Result, PreviewLength)
	if _, err := os.Stat(s.debugPath(entry.JobID)); err == nil {
		entry.HasDebugLog = true
	}

	if err := writeJSON(s.entryPath(entry.JobID), entry); err != nil {
		return fmt.Errorf("saving entry: %w", err)
	}
	s.entries[entry.JobID] = entry
	s.pruneUnlocked()
	return nil
}

// SaveDebugLog stores the raw engine output of a job.
func (s *Store) SaveDebugLog(jobID string, stdout, stderr []byte) error {
	if !ValidJobID(jobID) {
		return fmt.Errorf("invalid job id %q", jobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.debugPath(jobID), FormatDebugLog(stdout, stderr), 0644); err != nil {
		return fmt.Errorf("saving debug log: %w", err)
	}
	if entry, ok := s.entries[jobID]; ok && !entry.HasDebugLog {
		entry.HasDebugLog = true
		if err := writeJSON(s.entryPath(jobID), entry); err != nil {
			return fmt.Errorf("updating entry: %w", err)
		}
	}
	return nil
}

// FormatDebugLog lays out captured stdout and stderr as one text document.
func FormatDebugLog(stdout, stderr []byte) []byte {
	var b strings.Builder
	b.WriteString("=== stdout ===\n")
	b.Write(stdout)
	if len(stdout) > 0 && stdout[len(stdout)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString("=== stderr ===\n")
	b.Write(stderr)
	if len(stderr) > 0 && stderr[len(stderr)-1] != '\n' {
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Get retrieves an entry by job ID.
func (s *Store) Get(jobID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[jobID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", jobID, ErrNotFound)
	}
	cp := *entry
	return &cp, nil
}

// GetDebugLog retrieves the raw output of a job.
func (s *Store) GetDebugLog(jobID string) ([]byte, error) {
	if !ValidJobID(jobID) {
		return nil, fmt.Errorf("debug log for %s: %w", jobID, ErrNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.debugPath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("debug log for %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("reading debug log: %w", err)
	}
	return data, nil
}

// List returns paginated entries, newest first.
func (s *Store) List(opts ListOptions) ListResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}

	sorted := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if opts.Operation != "" && e.Operation != opts.Operation {
			continue
		}
		if opts.State != "" && e.State != opts.State {
			continue
		}
		sorted = append(sorted, e)
	}
	sortNewestFirst(sorted)

	total := len(sorted)
	totalPages := (total + opts.Limit - 1) / opts.Limit

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	entries := make([]EntrySummary, 0, end-start)
	for _, e := range sorted[start:end] {
		entries = append(entries, EntrySummary{
			JobID:           e.JobID,
			Operation:       e.Operation,
			State:           e.State,
			CompletedAt:     e.CompletedAt,
			DurationSeconds: e.DurationSeconds,
			ExitCode:        e.ExitCode,
			Error:           e.Error,
			HasDebugLog:     e.HasDebugLog,
		})
	}

	return ListResult{
		Entries:    entries,
		Page:       opts.Page,
		Limit:      opts.Limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

func (s *Store) load() error {
	files, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return err
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil || !ValidJobID(entry.JobID) {
			continue
		}
		_, err = os.Stat(s.debugPath(entry.JobID))
		entry.HasDebugLog = err == nil
		s.entries[entry.JobID] = &entry
	}
	return nil
}

// pruneUnlocked removes entries and debug logs beyond the retention limits.
// Must be called with lock held.
func (s *Store) pruneUnlocked() {
	sorted := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		sorted = append(sorted, e)
	}
	sortNewestFirst(sorted)

	if len(sorted) > MaxEntries {
		for _, e := range sorted[MaxEntries:] {
			os.Remove(s.entryPath(e.JobID))
			os.Remove(s.debugPath(e.JobID))
			delete(s.entries, e.JobID)
		}
		sorted = sorted[:MaxEntries]
	}

	for i := MaxDebugEntries; i < len(sorted); i++ {
		e := sorted[i]
		if !e.HasDebugLog {
			continue
		}
		os.Remove(s.debugPath(e.JobID))
		e.HasDebugLog = false
		writeJSON(s.entryPath(e.JobID), e)
	}
}

func sortNewestFirst(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CompletedAt.Equal(entries[j].CompletedAt) {
			return entries[i].JobID > entries[j].JobID
		}
		return entries[i].CompletedAt.After(entries[j].CompletedAt)
	})
}

func (s *Store) entryPath(jobID string) string {
	return filepath.Join(s.dir, jobID+".json")
}

func (s *Store) debugPath(jobID string) string {
	return filepath.Join(s.dir, jobID+".debug.log")
}

// truncate cuts s to at most maxLen bytes on a rune boundary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
