package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/event"
)

func newTestConsumer(bus *event.Bus) *Consumer {
	return &Consumer{bus: bus, log: zap.NewNop()}
}

func TestHandleRepublishesGroupEvent(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	c := newTestConsumer(bus)

	var got []event.Event
	bus.Subscribe(event.TypeGroupMemberAdded, func(e event.Event) error {
		got = append(got, e)
		return nil
	})

	record, _ := json.Marshal(envelope{
		Type:     event.TypeGroupMemberAdded,
		GroupID:  "g1",
		MemberID: "u1",
		Source:   "group-service",
	})
	c.handle(record)

	if len(got) != 1 {
		t.Fatalf("expected one published event, got %d", len(got))
	}
	data, ok := got[0].Data.(event.GroupPayload)
	if !ok || data.GroupID != "g1" || data.MemberID != "u1" {
		t.Fatalf("unexpected payload: %+v", got[0].Data)
	}
	if got[0].AggregateID != "g1" {
		t.Fatalf("group id should back the aggregate, got %q", got[0].AggregateID)
	}
	if got[0].Metadata.Source != "group-service" {
		t.Fatalf("source should be carried through, got %q", got[0].Metadata.Source)
	}
}

func TestHandleDropsGarbage(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	c := newTestConsumer(bus)

	published := 0
	bus.Subscribe(event.TypeWildcard, func(e event.Event) error {
		published++
		return nil
	})

	c.handle([]byte("{not json"))
	if published != 0 {
		t.Fatal("undecodable records must be dropped")
	}
}

func TestHandleDropsUnknownTypes(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	c := newTestConsumer(bus)

	published := 0
	bus.Subscribe(event.TypeWildcard, func(e event.Event) error {
		published++
		return nil
	})

	record, _ := json.Marshal(envelope{Type: "billing.invoice.created", GroupID: "g1"})
	c.handle(record)
	if published != 0 {
		t.Fatal("unknown event types must be dropped")
	}
}

func TestHandleDefaultsSourceAndTimestamp(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	c := newTestConsumer(bus)

	var got event.Event
	bus.Subscribe(event.TypeGroupCreated, func(e event.Event) error {
		got = e
		return nil
	})

	record, _ := json.Marshal(envelope{Type: event.TypeGroupCreated, GroupID: "g1"})
	c.handle(record)

	if got.Metadata.Source != "ingest" {
		t.Fatalf("missing source should default to ingest, got %q", got.Metadata.Source)
	}
	if time.Since(got.Timestamp) > time.Minute {
		t.Fatal("event should carry a fresh timestamp")
	}
}
