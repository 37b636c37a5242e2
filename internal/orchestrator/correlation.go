package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamgrid/realtime/internal/event"
)

// Correlation links an incoming event to recent ones it appears related to.
type Correlation struct {
	ID         string
	Kind       string // "temporal" or "causal"
	EventIDs   []string
	Confidence float64
}

// correlationEngine keeps a sliding window of recent events and matches new
// ones against it. Temporal matches share an aggregate or user inside the
// window; causal matches follow the causation id chain.
type correlationEngine struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	recent []event.Event
}

func newCorrelationEngine(window time.Duration, limit int) *correlationEngine {
	return &correlationEngine{window: window, limit: limit}
}

func (c *correlationEngine) detect(e event.Event) []Correlation {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := e.Timestamp.Add(-c.window)
	c.evict(cutoff)

	var out []Correlation

	if e.Metadata.CausationID != "" {
		for _, prev := range c.recent {
			if prev.ID == e.Metadata.CausationID {
				out = append(out, Correlation{
					ID:         uuid.NewString(),
					Kind:       "causal",
					EventIDs:   []string{prev.ID, e.ID},
					Confidence: 0.95,
				})
				break
			}
		}
	}

	var related []string
	for _, prev := range c.recent {
		if sameThread(prev, e) {
			related = append(related, prev.ID)
		}
	}
	if len(related) > 0 {
		related = append(related, e.ID)
		// More events in the same thread within the window raise confidence,
		// capped short of certainty.
		confidence := 0.5 + 0.15*float64(len(related)-1)
		if confidence > 0.95 {
			confidence = 0.95
		}
		out = append(out, Correlation{
			ID:         uuid.NewString(),
			Kind:       "temporal",
			EventIDs:   related,
			Confidence: confidence,
		})
	}

	c.recent = append(c.recent, e)
	if len(c.recent) > c.limit {
		c.recent = c.recent[len(c.recent)-c.limit:]
	}
	return out
}

func sameThread(a, b event.Event) bool {
	if a.AggregateID != "" && a.AggregateID != event.GlobalAggregate && a.AggregateID == b.AggregateID {
		return true
	}
	return a.Metadata.UserID != "" && a.Metadata.UserID == b.Metadata.UserID
}

func (c *correlationEngine) evict(cutoff time.Time) {
	i := 0
	for i < len(c.recent) && c.recent[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.recent = append(c.recent[:0], c.recent[i:]...)
	}
}
