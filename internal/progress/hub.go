// Package progress delivers engine stderr lines to whoever is watching a job.
// Delivery is fire-and-forget: slow or absent subscribers never block the
// engine and never affect an invocation's result.
package progress

import (
	"sync"
	"sync/atomic"
	"time"
)

const topicPrefix = "friedman://progress/"

// Topic returns the event name for a job's progress stream.
func Topic(jobID string) string {
	return topicPrefix + jobID
}

// EventType distinguishes progress lines from the completion marker.
type EventType string

const (
	EventProgress EventType = "progress"
	EventDone     EventType = "done"
)

// Event is one message on a job topic.
type Event struct {
	Type      EventType `json:"-"`
	Topic     string    `json:"event"`
	JobID     string    `json:"job_id"`
	Line      string    `json:"line,omitempty"`
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	mu sync.Mutex // held while sending
	ch chan Event
}

// Hub fans events out to per-job subscribers.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	buffer  int
	seq     atomic.Int64
	dropped atomic.Int64
}

// NewHub returns a Hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe returns a channel of events for jobID and a function that ends
// the subscription and closes the channel.
func (h *Hub) Subscribe(jobID string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[*subscriber]struct{})
	}
	h.subs[jobID][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[jobID], s)
			if len(h.subs[jobID]) == 0 {
				delete(h.subs, jobID)
			}
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

// Publish emits one progress line on the job topic.
func (h *Hub) Publish(jobID, line string) {
	h.emit(jobID, EventProgress, line)
}

// Done emits the completion marker for jobID.
func (h *Hub) Done(jobID string) {
	h.emit(jobID, EventDone, "")
}

func (h *Hub) emit(jobID string, typ EventType, line string) {
	ev := Event{
		Type:      typ,
		Topic:     Topic(jobID),
		JobID:     jobID,
		Line:      line,
		Seq:       h.seq.Add(1),
		Timestamp: time.Now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[jobID] {
		if typ == EventDone {
			h.deliver(s, ev)
			continue
		}
		s.mu.Lock()
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
		}
		s.mu.Unlock()
	}
}

// deliver sends ev even when the buffer is full by evicting the oldest
// buffered events. The completion marker must never be lost.
func (h *Hub) deliver(s *subscriber, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
			h.dropped.Add(1)
		default:
		}
	}
}

// Subscribers reports how many subscribers are watching jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[jobID])
}

// Dropped reports how many events were discarded because a subscriber's
// buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
