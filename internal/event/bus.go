package event

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/observability"
)

const DefaultHistorySize = 10000

// GlobalAggregate is the bucket for events published without an aggregate id.
const GlobalAggregate = "global"

// Middleware transforms an event before delivery. An error aborts the publish
// and is returned to the publisher.
type Middleware interface {
	Process(e Event) (Event, error)
}

// Filter vetoes delivery. A rejected event is dropped silently: no error, no
// delivery, no storage.
type Filter interface {
	ShouldProcess(e Event) bool
}

// SubscriberFunc receives events synchronously. A returned error is logged
// and never reaches the publisher or sibling subscribers.
type SubscriberFunc func(e Event) error

// Bus is the in-process delivery backbone: middleware chain, filter chain,
// bounded history, per-aggregate buckets and synchronous fan-out. It is an
// explicit instance; tests construct a fresh one to avoid cross-test leakage.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]SubscriberFunc
	buckets     map[string][]Event
	history     []Event
	historySize int
	middleware  []Middleware
	filters     []Filter
	log         *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]SubscriberFunc),
		buckets:     make(map[string][]Event),
		historySize: DefaultHistorySize,
		log:         log,
	}
}

// SetHistorySize overrides the history capacity. Only meaningful before the
// first publish.
func (b *Bus) SetHistorySize(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > 0 {
		b.historySize = n
	}
}

func (b *Bus) Subscribe(eventType string, fn SubscriberFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], fn)
}

func (b *Bus) AddMiddleware(m Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, m)
}

func (b *Bus) AddFilter(f Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = append(b.filters, f)
}

// Publish runs the pipeline: middleware, filters, storage, fan-out.
// Middleware errors surface to the publisher; a filter veto stops everything
// silently; subscriber errors are isolated and logged.
func (b *Bus) Publish(e Event) error {
	b.mu.Lock()

	processed := e
	for _, m := range b.middleware {
		var err error
		processed, err = m.Process(processed)
		if err != nil {
			b.mu.Unlock()
			return fmt.Errorf("event middleware: %w", err)
		}
	}

	for _, f := range b.filters {
		if !f.ShouldProcess(processed) {
			b.mu.Unlock()
			return nil
		}
	}

	b.store(processed)

	subs := append([]SubscriberFunc(nil), b.subscribers[processed.Type]...)
	subs = append(subs, b.subscribers[TypeWildcard]...)
	b.mu.Unlock()

	observability.EventsPublishedTotal.WithLabelValues(processed.Type).Inc()

	for _, fn := range subs {
		b.deliver(fn, processed)
	}
	return nil
}

func (b *Bus) deliver(fn SubscriberFunc, e Event) {
	defer func() {
		if r := recover(); r != nil {
			observability.SubscriberErrorsTotal.WithLabelValues(e.Type).Inc()
			b.log.Error("subscriber panic", zap.String("event_type", e.Type), zap.Any("panic", r))
		}
	}()
	if err := fn(e); err != nil {
		observability.SubscriberErrorsTotal.WithLabelValues(e.Type).Inc()
		b.log.Error("subscriber error", zap.String("event_type", e.Type), zap.String("event_id", e.ID), zap.Error(err))
	}
}

// store must be called with the lock held.
func (b *Bus) store(e Event) {
	aggregateID := e.AggregateID
	if aggregateID == "" {
		aggregateID = GlobalAggregate
	}
	b.buckets[aggregateID] = append(b.buckets[aggregateID], e)

	b.history = append(b.history, e)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
}

// GetEvents returns the bucket for an aggregate, optionally cut at a
// timestamp. The returned slice is a copy.
func (b *Bus) GetEvents(aggregateID string, from time.Time) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.buckets[aggregateID]
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if from.IsZero() || !e.Timestamp.Before(from) {
			out = append(out, e)
		}
	}
	return out
}

// GetEventsByType scans the history for the most recent events of one type.
func (b *Bus) GetEventsByType(eventType string, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Event
	for _, e := range b.history {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// ReplayEvents republishes stored events for an aggregate with IsReplay set,
// so replay-aware subscribers can tell re-delivery from the original. A zero
// "to" leaves the range open-ended.
func (b *Bus) ReplayEvents(aggregateID string, from, to time.Time) error {
	events := b.GetEvents(aggregateID, from)
	for _, e := range events {
		if !to.IsZero() && e.Timestamp.After(to) {
			continue
		}
		replay := e
		replay.IsReplay = true
		if err := b.Publish(replay); err != nil {
			return err
		}
	}
	return nil
}

// Stats is a point-in-time health snapshot.
type Stats struct {
	HistoryLength   int `json:"historyLength"`
	AggregateCount  int `json:"aggregateCount"`
	SubscriberCount int `json:"subscriberCount"`
}

func (b *Bus) Statistics() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := 0
	for _, s := range b.subscribers {
		subs += len(s)
	}
	return Stats{
		HistoryLength:   len(b.history),
		AggregateCount:  len(b.buckets),
		SubscriberCount: subs,
	}
}

// Clear drops stored events and subscriptions. Intended for tests.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buckets = make(map[string][]Event)
	b.history = nil
	b.subscribers = make(map[string][]SubscriberFunc)
}
