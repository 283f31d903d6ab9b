package core

import (
	"sort"
	"sync"

	"guardian/metrics"

	"go.uber.org/zap"
)

// DefaultMaxEvents is the default working-set size of the event store
const DefaultMaxEvents = 1000

// StoreStats describes the current contents of the store
type StoreStats struct {
	Size       int              `json:"size"`
	Capacity   int              `json:"capacity"`
	Inserted   uint64           `json:"inserted"`
	Evicted    uint64           `json:"evicted"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByCategory map[Category]int `json:"by_category"`
}

// EventStore is a bounded, time-ordered in-memory collection of events.
// It always holds the most recently observed maxEvents events, oldest
// evicted first. Category and severity indices are maintained on every
// insert and evict, never rebuilt on the hot path.
//
// All mutations and snapshot reads are serialized behind one lock;
// snapshots are copies, never live references into store internals.
type EventStore struct {
	maxEvents int
	events    []*Event // ring buffer
	head      int      // index of the oldest event
	size      int

	bySeverity map[Severity]int
	byCategory map[Category]int
	inserted   uint64
	evicted    uint64

	logger *zap.SugaredLogger
	mu     sync.RWMutex
}

// NewEventStore creates a bounded event store.
// A maxEvents of zero or less falls back to DefaultMaxEvents.
func NewEventStore(maxEvents int, logger *zap.SugaredLogger) *EventStore {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &EventStore{
		maxEvents:  maxEvents,
		events:     make([]*Event, maxEvents),
		bySeverity: make(map[Severity]int),
		byCategory: make(map[Category]int),
		logger:     logger,
	}
}

// Insert appends an event, evicting the oldest entry first when the store
// is at capacity. The indices are updated in the same critical section so
// no reader ever observes a partially-updated index.
func (s *EventStore) Insert(event *Event) {
	if event == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size == s.maxEvents {
		oldest := s.events[s.head]
		s.events[s.head] = nil
		s.head = (s.head + 1) % s.maxEvents
		s.size--
		s.evicted++
		metrics.EventsEvicted.Inc()
		s.decrementIndices(oldest)
	}

	tail := (s.head + s.size) % s.maxEvents
	s.events[tail] = event
	s.size++
	s.inserted++
	s.bySeverity[event.Severity]++
	s.byCategory[event.Category]++
}

// Snapshot returns the stored events newest-first by timestamp, ties broken
// by insertion order. A nil filter returns everything. The returned slice
// is owned by the caller.
func (s *EventStore) Snapshot(filter *Filter) []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Event, 0, s.size)
	// Walk from the most recently inserted entry backwards so that a
	// stable sort keeps insertion order for equal timestamps.
	for i := s.size - 1; i >= 0; i-- {
		event := s.events[(s.head+i)%s.maxEvents]
		if filter.Matches(event) {
			out = append(out, event)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Clear empties the store and its indices atomically relative to any
// concurrent read.
func (s *EventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make([]*Event, s.maxEvents)
	s.head = 0
	s.size = 0
	s.bySeverity = make(map[Severity]int)
	s.byCategory = make(map[Category]int)

	if s.logger != nil {
		s.logger.Infow("Event store cleared", "capacity", s.maxEvents)
	}
}

// Size returns the number of events currently held
func (s *EventStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Capacity returns the configured maximum number of events
func (s *EventStore) Capacity() int {
	return s.maxEvents
}

// CountBySeverity returns the number of stored events at the given severity
func (s *EventStore) CountBySeverity(severity Severity) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bySeverity[severity]
}

// CountByCategory returns the number of stored events in the given category
func (s *EventStore) CountByCategory(category Category) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byCategory[category]
}

// Stats returns a copy of the store counters and indices
func (s *EventStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bySeverity := make(map[Severity]int, len(s.bySeverity))
	for k, v := range s.bySeverity {
		bySeverity[k] = v
	}
	byCategory := make(map[Category]int, len(s.byCategory))
	for k, v := range s.byCategory {
		byCategory[k] = v
	}
	return StoreStats{
		Size:       s.size,
		Capacity:   s.maxEvents,
		Inserted:   s.inserted,
		Evicted:    s.evicted,
		BySeverity: bySeverity,
		ByCategory: byCategory,
	}
}

func (s *EventStore) decrementIndices(event *Event) {
	if event == nil {
		return
	}
	if s.bySeverity[event.Severity] > 0 {
		s.bySeverity[event.Severity]--
	}
	if s.bySeverity[event.Severity] == 0 {
		delete(s.bySeverity, event.Severity)
	}
	if s.byCategory[event.Category] > 0 {
		s.byCategory[event.Category]--
	}
	if s.byCategory[event.Category] == 0 {
		delete(s.byCategory, event.Category)
	}
}
