package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func makeEvent(i int, category Category, severity Severity) *Event {
	return &Event{
		EventID:   fmt.Sprintf("event-%d", i),
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Second),
		Category:  category,
		Severity:  severity,
		Message:   fmt.Sprintf("event %d", i),
		Source:    "test",
	}
}

// TestEventStore_CapacityEviction verifies that after N > maxEvents inserts
// the store holds exactly the most recent maxEvents events, newest-first.
func TestEventStore_CapacityEviction(t *testing.T) {
	store := NewEventStore(10, zap.NewNop().Sugar())

	for i := 0; i < 25; i++ {
		store.Insert(makeEvent(i, CategoryProcess, SeverityLow))
	}

	snapshot := store.Snapshot(nil)
	require.Len(t, snapshot, 10)

	// Most recent 25-15 survive, newest first.
	for i, event := range snapshot {
		assert.Equal(t, fmt.Sprintf("event-%d", 24-i), event.EventID)
	}

	stats := store.Stats()
	assert.Equal(t, uint64(25), stats.Inserted)
	assert.Equal(t, uint64(15), stats.Evicted)
}

// TestEventStore_PartitionInvariant verifies that severity and category
// index counts always sum to the store size, across inserts and evictions.
func TestEventStore_PartitionInvariant(t *testing.T) {
	store := NewEventStore(50, zap.NewNop().Sugar())

	severities := Severities()
	categories := Categories()
	for i := 0; i < 180; i++ {
		store.Insert(makeEvent(i, categories[i%len(categories)], severities[i%len(severities)]))

		stats := store.Stats()
		sevTotal := 0
		for _, n := range stats.BySeverity {
			sevTotal += n
		}
		catTotal := 0
		for _, n := range stats.ByCategory {
			catTotal += n
		}
		assert.Equal(t, stats.Size, sevTotal, "severity index must partition the store")
		assert.Equal(t, stats.Size, catTotal, "category index must partition the store")
	}

	assert.Equal(t, 50, store.Size())
}

// TestEventStore_SnapshotNewestFirst verifies ordering including timestamp
// ties, which fall back to insertion order.
func TestEventStore_SnapshotNewestFirst(t *testing.T) {
	store := NewEventStore(10, zap.NewNop().Sugar())

	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	first := &Event{EventID: "a", Timestamp: ts, Category: CategorySystem, Severity: SeverityLow, Message: "a"}
	second := &Event{EventID: "b", Timestamp: ts, Category: CategorySystem, Severity: SeverityLow, Message: "b"}
	older := &Event{EventID: "c", Timestamp: ts.Add(-time.Minute), Category: CategorySystem, Severity: SeverityLow, Message: "c"}

	store.Insert(first)
	store.Insert(second)
	store.Insert(older)

	snapshot := store.Snapshot(nil)
	require.Len(t, snapshot, 3)
	assert.Equal(t, "b", snapshot[0].EventID, "tie broken by insertion order, later insert first")
	assert.Equal(t, "a", snapshot[1].EventID)
	assert.Equal(t, "c", snapshot[2].EventID)
}

// TestEventStore_SnapshotFilter verifies filtered snapshots
func TestEventStore_SnapshotFilter(t *testing.T) {
	store := NewEventStore(100, zap.NewNop().Sugar())

	store.Insert(makeEvent(1, CategoryNetwork, SeverityLow))
	store.Insert(makeEvent(2, CategoryNetwork, SeverityCritical))
	store.Insert(makeEvent(3, CategoryProcess, SeverityCritical))

	critical := store.Snapshot(&Filter{MinSeverity: SeverityHigh})
	require.Len(t, critical, 2)

	networkCritical := store.Snapshot(&Filter{
		MinSeverity: SeverityHigh,
		Categories:  []Category{CategoryNetwork},
	})
	require.Len(t, networkCritical, 1)
	assert.Equal(t, "event-2", networkCritical[0].EventID)
}

// TestEventStore_SnapshotIsCopy verifies a snapshot is not a live view
func TestEventStore_SnapshotIsCopy(t *testing.T) {
	store := NewEventStore(10, zap.NewNop().Sugar())
	store.Insert(makeEvent(1, CategoryProcess, SeverityLow))

	snapshot := store.Snapshot(nil)
	require.Len(t, snapshot, 1)

	store.Insert(makeEvent(2, CategoryProcess, SeverityLow))
	assert.Len(t, snapshot, 1, "earlier snapshot must not grow")
}

// TestEventStore_Clear verifies the store and both indices empty atomically
func TestEventStore_Clear(t *testing.T) {
	store := NewEventStore(10, zap.NewNop().Sugar())
	for i := 0; i < 10; i++ {
		store.Insert(makeEvent(i, CategoryNetwork, SeverityHigh))
	}

	store.Clear()

	assert.Equal(t, 0, store.Size())
	assert.Empty(t, store.Snapshot(nil))
	assert.Equal(t, 0, store.CountBySeverity(SeverityHigh))
	assert.Equal(t, 0, store.CountByCategory(CategoryNetwork))

	// Store keeps working after a clear.
	store.Insert(makeEvent(99, CategoryProcess, SeverityLow))
	assert.Equal(t, 1, store.Size())
}

// TestEventStore_ConcurrentAccess exercises the single-writer,
// consistent-reader discipline under the race detector.
func TestEventStore_ConcurrentAccess(t *testing.T) {
	store := NewEventStore(100, zap.NewNop().Sugar())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				store.Insert(makeEvent(w*1000+i, CategoryProcess, SeverityLow))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				snapshot := store.Snapshot(nil)
				assert.LessOrEqual(t, len(snapshot), 100)
				_ = store.Stats()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.Clear()
	}()
	wg.Wait()

	stats := store.Stats()
	total := 0
	for _, n := range stats.BySeverity {
		total += n
	}
	assert.Equal(t, stats.Size, total)
}

// TestEventStore_DefaultCapacity verifies the fallback capacity
func TestEventStore_DefaultCapacity(t *testing.T) {
	store := NewEventStore(0, zap.NewNop().Sugar())
	assert.Equal(t, DefaultMaxEvents, store.Capacity())
}
