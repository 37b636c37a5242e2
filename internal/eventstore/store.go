package eventstore

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/event"
)

// ConflictError reports an optimistic-concurrency failure: the appended
// event declared a version that does not match the aggregate's current one.
// The caller retries with the expected version; the log is never mutated by
// a rejected append.
type ConflictError struct {
	AggregateID string
	Expected    int
	Declared    int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on aggregate %s: expected version %d, got %d",
		e.AggregateID, e.Expected, e.Declared)
}

// Snapshot materializes aggregate state at a version. Later snapshots
// supersede earlier ones, never partially.
type Snapshot struct {
	AggregateID string
	Version     int
	Data        any
	Timestamp   time.Time
}

// Projection is a named, rebuildable read-model folded over the event stream.
type Projection interface {
	Name() string
	Apply(e event.Event) error
	Rebuild() error
}

// Aggregate is reconstructed by replaying events, optionally starting from a
// snapshot. Replaying the same prefix from the same starting state must
// always yield the same result.
type Aggregate interface {
	RestoreSnapshot(data any) error
	ApplyEvent(e event.Event)
}

type log struct {
	events []event.Event
	// archived counts events truncated off the front by ArchiveEvents, so
	// version numbering survives archival.
	archived int
}

func (l *log) version() int { return l.archived + len(l.events) }

// Store is the per-aggregate append-only event log with strict version
// ordering. All appends to one aggregate are serialized by the store lock;
// the version check is only meaningful under that serialization.
type Store struct {
	mu          sync.RWMutex
	logs        map[string]*log
	order       []string // aggregate ids in first-append order
	snapshots   map[string]Snapshot
	projections map[string]Projection
	logr        *zap.Logger
}

func New(logr *zap.Logger) *Store {
	return &Store{
		logs:        make(map[string]*log),
		snapshots:   make(map[string]Snapshot),
		projections: make(map[string]Projection),
		logr:        logr,
	}
}

func (s *Store) logFor(aggregateID string) *log {
	if aggregateID == "" {
		aggregateID = event.GlobalAggregate
	}
	l, ok := s.logs[aggregateID]
	if !ok {
		l = &log{}
		s.logs[aggregateID] = l
		s.order = append(s.order, aggregateID)
	}
	return l
}

// Append stores an event whose metadata declares the expected next version.
// Any mismatch is a ConflictError and leaves the log untouched.
func (s *Store) Append(e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.logFor(e.AggregateID)
	if e.Metadata.Version != l.version() {
		aggregateID := e.AggregateID
		if aggregateID == "" {
			aggregateID = event.GlobalAggregate
		}
		return &ConflictError{
			AggregateID: aggregateID,
			Expected:    l.version(),
			Declared:    e.Metadata.Version,
		}
	}
	l.events = append(l.events, e)
	s.applyProjections(e)
	return nil
}

// Record stamps the event with the aggregate's next version under the store
// lock and appends it. It is the serialized-writer path used by components
// that do not track expected versions themselves.
func (s *Store) Record(e event.Event) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.logFor(e.AggregateID)
	e.Metadata.Version = l.version()
	l.events = append(l.events, e)
	s.applyProjections(e)
	return e, nil
}

// Version returns the next expected version for an aggregate.
func (s *Store) Version(aggregateID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if aggregateID == "" {
		aggregateID = event.GlobalAggregate
	}
	if l, ok := s.logs[aggregateID]; ok {
		return l.version()
	}
	return 0
}

// GetEvents returns a copy of an aggregate's events from a version onward.
// Versions below the archival point are gone; the slice starts at whichever
// is later.
func (s *Store) GetEvents(aggregateID string, fromVersion int) []event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if aggregateID == "" {
		aggregateID = event.GlobalAggregate
	}
	l, ok := s.logs[aggregateID]
	if !ok {
		return nil
	}
	start := fromVersion - l.archived
	if start < 0 {
		start = 0
	}
	if start >= len(l.events) {
		return nil
	}
	return append([]event.Event(nil), l.events[start:]...)
}

func (s *Store) GetSnapshot(aggregateID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[aggregateID]
	return snap, ok
}

// CreateSnapshot captures aggregate state at the current version.
func (s *Store) CreateSnapshot(aggregateID string, data any) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := 0
	if l, ok := s.logs[aggregateID]; ok {
		version = l.version()
	}
	snap := Snapshot{
		AggregateID: aggregateID,
		Version:     version,
		Data:        data,
		Timestamp:   time.Now(),
	}
	s.snapshots[aggregateID] = snap
	return snap
}

// Reconstruct rebuilds an aggregate: from its snapshot plus suffix replay
// when a snapshot exists, otherwise from the full log.
func (s *Store) Reconstruct(aggregateID string, agg Aggregate) error {
	snap, hasSnap := s.GetSnapshot(aggregateID)
	fromVersion := 0
	if hasSnap {
		if err := agg.RestoreSnapshot(snap.Data); err != nil {
			return fmt.Errorf("restore snapshot for %s: %w", aggregateID, err)
		}
		fromVersion = snap.Version
	}
	for _, e := range s.GetEvents(aggregateID, fromVersion) {
		agg.ApplyEvent(e)
	}
	return nil
}

func (s *Store) RegisterProjection(p Projection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projections[p.Name()] = p
}

// applyProjections must be called with the lock held. A failing projection
// is logged and skipped; it never fails the append.
func (s *Store) applyProjections(e event.Event) {
	for _, p := range s.projections {
		if err := p.Apply(e); err != nil {
			s.logr.Error("projection apply failed",
				zap.String("projection", p.Name()),
				zap.String("event_type", e.Type),
				zap.Error(err),
			)
		}
	}
}

// RebuildProjection resets the named projection and replays the entire
// store. Per-aggregate ordering is preserved; cross-aggregate ordering is
// not guaranteed.
func (s *Store) RebuildProjection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projections[name]
	if !ok {
		return fmt.Errorf("projection %q not found", name)
	}
	if err := p.Rebuild(); err != nil {
		return fmt.Errorf("reset projection %q: %w", name, err)
	}
	for _, aggregateID := range s.order {
		for _, e := range s.logs[aggregateID].events {
			if err := p.Apply(e); err != nil {
				s.logr.Error("projection replay failed",
					zap.String("projection", name),
					zap.String("aggregate_id", aggregateID),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// ArchiveEvents truncates an aggregate's log prefix. Callers that rely on
// version-from-zero reconstruction must hold a snapshot at or after the
// truncation point; the store does not enforce that.
func (s *Store) ArchiveEvents(aggregateID string, beforeVersion int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[aggregateID]
	if !ok {
		return
	}
	drop := beforeVersion - l.archived
	if drop <= 0 {
		return
	}
	if drop > len(l.events) {
		drop = len(l.events)
	}
	l.events = append([]event.Event(nil), l.events[drop:]...)
	l.archived += drop
}

// Statistics is a point-in-time inventory of the store.
type Statistics struct {
	TotalEvents      int
	TotalAggregates  int
	TotalSnapshots   int
	TotalProjections int
}

func (s *Store) Stats() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, l := range s.logs {
		total += len(l.events)
	}
	return Statistics{
		TotalEvents:      total,
		TotalAggregates:  len(s.logs),
		TotalSnapshots:   len(s.snapshots),
		TotalProjections: len(s.projections),
	}
}
