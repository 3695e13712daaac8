// Package progress aggregates fetch completion counts and fans them out to
// registered observers. Rendering lives with the observers; the tracker
// only counts.
package progress

import (
	"sync"

	"github.com/google/uuid"
)

// Snapshot is the tracker state handed to sinks after each completion.
type Snapshot struct {
	RunID     uuid.UUID
	Group     string
	Processed int64
	Total     int64
}

// Done reports whether every planned item has been processed.
func (s Snapshot) Done() bool {
	return s.Total > 0 && s.Processed >= s.Total
}

// Sink observes progress snapshots. Observe is called under the tracker's
// lock, so implementations must be fast and must not call back into the
// tracker.
type Sink interface {
	Observe(snap Snapshot)
}

// Tracker is the shared completion counter for one ingestion run. It is
// safe for concurrent use by every pipeline worker.
type Tracker struct {
	mu        sync.Mutex
	runID     uuid.UUID
	group     string
	total     int64
	processed int64
	sinks     []Sink
}

// NewTracker builds a tracker for a run over total items.
func NewTracker(runID uuid.UUID, group string, total int64, sinks ...Sink) *Tracker {
	return &Tracker{
		runID: runID,
		group: group,
		total: total,
		sinks: sinks,
	}
}

// Incr records one completed article write and notifies all sinks.
func (t *Tracker) Incr() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed++
	snap := t.snapshotLocked()
	for _, sink := range t.sinks {
		sink.Observe(snap)
	}
}

// Snapshot returns the current counts.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{
		RunID:     t.runID,
		Group:     t.group,
		Processed: t.processed,
		Total:     t.total,
	}
}
