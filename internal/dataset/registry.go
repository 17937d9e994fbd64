// Package dataset keeps track of the data files the user has loaded.
package dataset

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/friedman-econ/friedman/internal/engine"
)

// ErrNotFound is wrapped by lookups of unknown identifiers.
var ErrNotFound = errors.New("dataset not found")

// Info describes a loaded dataset.
type Info struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Columns  []string  `json:"columns"`
	RowCount int       `json:"row_count"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Registry is a process-wide store of datasets. All access goes through one
// lock, so concurrent loads and reads are serialized.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Info
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Info)}
}

// Add stores info under a fresh identifier and returns the stored entry.
func (r *Registry) Add(info Info) Info {
	info.ID = uuid.NewString()
	if info.LoadedAt.IsZero() {
		info.LoadedAt = time.Now().UTC()
	}
	info.Columns = append([]string(nil), info.Columns...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[info.ID] = info
	return info
}

// Get returns the dataset with the given identifier.
func (r *Registry) Get(id string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.entries[id]
	if !ok {
		return Info{}, &engine.Error{
			Kind:    engine.KindInvalidParams,
			Message: "invalid parameters: dataset not found: " + id,
			Err:     ErrNotFound,
		}
	}
	info.Columns = append([]string(nil), info.Columns...)
	return info, nil
}

// Remove deletes a dataset, reporting whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

// List returns all datasets ordered by load time.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.entries))
	for _, info := range r.entries {
		out = append(out, info)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LoadedAt.Equal(out[j].LoadedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LoadedAt.Before(out[j].LoadedAt)
	})
	return out
}

// Len reports how many datasets are loaded.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
