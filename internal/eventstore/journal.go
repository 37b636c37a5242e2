package eventstore

import (
	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/event"
)

// AttachJournal subscribes the store to every event on the bus so published
// events land in their aggregate logs with versions stamped in publish order.
// Replayed events are skipped; they are already in the log.
func AttachJournal(bus *event.Bus, store *Store, logr *zap.Logger) {
	bus.Subscribe(event.TypeWildcard, func(e event.Event) error {
		if e.IsReplay {
			return nil
		}
		if _, err := store.Record(e); err != nil {
			logr.Error("journal record failed",
				zap.String("event_type", e.Type),
				zap.String("aggregate_id", e.AggregateID),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
}
