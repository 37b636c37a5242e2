package eventstore

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/event"
)

func TestJournalRecordsPublishedEvents(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	store := New(zap.NewNop())
	AttachJournal(bus, store, zap.NewNop())

	bus.Publish(messageEvent("c1", "a", 0))
	bus.Publish(messageEvent("c1", "b", 0))

	events := store.GetEvents("c1", 0)
	if len(events) != 2 {
		t.Fatalf("expected 2 journaled events, got %d", len(events))
	}
	if events[0].Metadata.Version != 0 || events[1].Metadata.Version != 1 {
		t.Fatalf("journal must stamp publish order, got %d,%d",
			events[0].Metadata.Version, events[1].Metadata.Version)
	}
}

func TestJournalSkipsReplays(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	store := New(zap.NewNop())
	AttachJournal(bus, store, zap.NewNop())

	bus.Publish(messageEvent("c1", "a", 0))
	if err := bus.ReplayEvents("c1", time.Time{}, time.Time{}); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if got := len(store.GetEvents("c1", 0)); got != 1 {
		t.Fatalf("replays must not be re-journaled, have %d events", got)
	}
}
