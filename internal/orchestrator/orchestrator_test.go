package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/event"
)

type failingScorer struct{}

func (failingScorer) Score(ctx context.Context, f Features) (RouteDecision, error) {
	return RouteDecision{}, errors.New("model unavailable")
}

type recordingHandler struct {
	mu     sync.Mutex
	events []event.Event
}

func (h *recordingHandler) record(ctx context.Context, e event.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil
}

func (h *recordingHandler) snapshot() []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.Event(nil), h.events...)
}

func messageEvent(aggregateID, userID string) event.Event {
	return event.New(event.TypeMessageSent, aggregateID, event.MessagePayload{
		MessageID:      "m1",
		ConversationID: aggregateID,
		SenderID:       userID,
		Type:           "TEXT",
		Content:        "hi",
	}, event.Metadata{Source: "test", UserID: userID})
}

func TestRoutesToScoredHandlers(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	registry := event.NewRegistry(zap.NewNop())
	rec := &recordingHandler{}
	registry.Register(event.TypeMessageSent, event.HandlerFunc{
		HandlerName: "analytics", Fn: rec.record,
	}, 0)

	o := New(bus, registry, StaticScorer{Decision: RouteDecision{
		TargetHandlers: []string{"analytics"},
		Priority:       5,
		Confidence:     0.9,
	}}, zap.NewNop())

	o.Orchestrate(context.Background(), messageEvent("c1", "u1"))

	got := rec.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected one dispatched event, got %d", len(got))
	}
	if got[0].Metadata.TargetHandler != "analytics" {
		t.Fatalf("dispatched event should carry the target, got %q", got[0].Metadata.TargetHandler)
	}
}

func TestScorerFailureFallsBackToDefaultRoute(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	registry := event.NewRegistry(zap.NewNop())
	rec := &recordingHandler{}
	registry.Register(event.TypeMessageSent, event.HandlerFunc{
		HandlerName: "default", Fn: rec.record,
	}, 0)

	o := New(bus, registry, failingScorer{}, zap.NewNop())
	o.Orchestrate(context.Background(), messageEvent("c1", "u1"))

	got := rec.snapshot()
	if len(got) != 1 || got[0].Metadata.TargetHandler != "default" {
		t.Fatalf("a failing scorer must still route via the default, got %v", got)
	}
}

func TestEnrichmentStampsCorrelationID(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	registry := event.NewRegistry(zap.NewNop())
	rec := &recordingHandler{}
	registry.Register(event.TypeMessageSent, event.HandlerFunc{
		HandlerName: "default", Fn: rec.record,
	}, 0)

	o := New(bus, registry, failingScorer{}, zap.NewNop())
	o.Orchestrate(context.Background(), messageEvent("c1", "u1"))

	got := rec.snapshot()
	if len(got) != 1 || got[0].Metadata.CorrelationID == "" {
		t.Fatal("orchestration must stamp a correlation id when missing")
	}
}

func TestEnrichmentLeavesCallerMetadataAlone(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	registry := event.NewRegistry(zap.NewNop())
	rec := &recordingHandler{}
	registry.Register(event.TypeMessageSent, event.HandlerFunc{
		HandlerName: "default", Fn: rec.record,
	}, 0)

	o := New(bus, registry, failingScorer{}, zap.NewNop())

	// The Extra map may be shared with bus history. Enrichment must write to
	// a copy, never through the caller's map.
	e := messageEvent("c1", "u1")
	e.Metadata.Extra = map[string]string{"trace": "t1"}
	shared := e.Metadata.Extra
	o.Orchestrate(context.Background(), e)

	if len(shared) != 1 || shared["trace"] != "t1" {
		t.Fatalf("caller's map was mutated: %v", shared)
	}
	got := rec.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected one dispatched event, got %d", len(got))
	}
	if got[0].Metadata.Extra["orchestratedAt"] == "" || got[0].Metadata.Extra["trace"] != "t1" {
		t.Fatalf("dispatched copy should carry both keys, got %v", got[0].Metadata.Extra)
	}
}

func TestAlreadyRoutedEventsSkipped(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	registry := event.NewRegistry(zap.NewNop())
	rec := &recordingHandler{}
	registry.Register(event.TypeMessageSent, event.HandlerFunc{
		HandlerName: "default", Fn: rec.record,
	}, 0)

	o := New(bus, registry, failingScorer{}, zap.NewNop())

	routed := messageEvent("c1", "u1")
	routed.Metadata.TargetHandler = "default"
	o.Orchestrate(context.Background(), routed)

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("already routed events must not loop, got %d", len(got))
	}
}

func TestCausalCorrelationPublished(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	registry := event.NewRegistry(zap.NewNop())
	o := New(bus, registry, failingScorer{}, zap.NewNop())

	var detected []event.Event
	bus.Subscribe(event.TypeCorrelationDetected, func(e event.Event) error {
		detected = append(detected, e)
		return nil
	})

	first := messageEvent("c1", "u1")
	o.Orchestrate(context.Background(), first)

	second := messageEvent("c2", "u2")
	second.Metadata.CausationID = first.ID
	o.Orchestrate(context.Background(), second)

	found := false
	for _, e := range detected {
		data, ok := e.Data.(event.CorrelationPayload)
		if ok && data.Kind == "causal" {
			found = true
			if data.Confidence < correlationThreshold {
				t.Fatalf("published correlation below threshold: %f", data.Confidence)
			}
		}
	}
	if !found {
		t.Fatal("expected a causal correlation event")
	}
}

func TestTemporalCorrelationBelowThresholdNotPublished(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	registry := event.NewRegistry(zap.NewNop())
	o := New(bus, registry, failingScorer{}, zap.NewNop())

	published := 0
	bus.Subscribe(event.TypeCorrelationDetected, func(e event.Event) error {
		published++
		return nil
	})

	// Two events in the same conversation: one temporal pair at confidence
	// 0.65, under the publish threshold.
	o.Orchestrate(context.Background(), messageEvent("c1", "u1"))
	o.Orchestrate(context.Background(), messageEvent("c1", "u2"))

	if published != 0 {
		t.Fatalf("weak correlations must not be published, got %d", published)
	}
}

func TestTemporalCorrelationStrengthensWithVolume(t *testing.T) {
	eng := newCorrelationEngine(time.Minute, 64)

	var last []Correlation
	for i := 0; i < 5; i++ {
		last = eng.detect(messageEvent("c1", "u1"))
	}

	if len(last) == 0 {
		t.Fatal("expected a temporal correlation")
	}
	c := last[len(last)-1]
	if c.Kind != "temporal" || c.Confidence < correlationThreshold {
		t.Fatalf("a busy thread should exceed the threshold, got %+v", c)
	}
}

func TestCorrelationEventsNotReorchestrated(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	registry := event.NewRegistry(zap.NewNop())
	o := New(bus, registry, failingScorer{}, zap.NewNop())
	o.Attach()

	// Drive enough same-thread traffic through the bus to trigger a
	// correlation event; the orchestrator must not feed on its own output.
	for i := 0; i < 6; i++ {
		bus.Publish(messageEvent("c1", "u1"))
	}

	detected := bus.GetEventsByType(event.TypeCorrelationDetected, 0)
	if len(detected) == 0 {
		t.Fatal("expected correlation events from the busy thread")
	}
	for _, e := range detected {
		if e.Metadata.TargetHandler != "" {
			t.Fatal("correlation events must not be routed")
		}
	}
}
