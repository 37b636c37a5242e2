package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/event"
)

// Features is the flattened view of an event handed to the scoring
// collaborator.
type Features struct {
	EventType   string
	AggregateID string
	Source      string
	HasUserID   bool
	HasTenantID bool
	Timestamp   time.Time
}

// RouteDecision names the handlers an event should reach and how confident
// the scorer is about that.
type RouteDecision struct {
	TargetHandlers []string
	Priority       int
	Confidence     float64
}

// Scorer is the opaque routing collaborator. It may be slow or failing;
// the orchestrator always falls back to default routing.
type Scorer interface {
	Score(ctx context.Context, f Features) (RouteDecision, error)
}

// StaticScorer returns the same decision for every event. It is the
// default-route fallback and a useful test double.
type StaticScorer struct {
	Decision RouteDecision
}

func (s StaticScorer) Score(ctx context.Context, f Features) (RouteDecision, error) {
	return s.Decision, nil
}

var defaultRoute = RouteDecision{
	TargetHandlers: []string{"default"},
	Priority:       1,
	Confidence:     0.1,
}

const correlationThreshold = 0.8

// Orchestrator consumes published events, enriches them, asks the scorer
// where to route, detects cross-event correlations and dispatches through
// the handler registry.
type Orchestrator struct {
	bus          *event.Bus
	registry     *event.Registry
	scorer       Scorer
	correlations *correlationEngine
	scoreTimeout time.Duration
	log          *zap.Logger
}

func New(bus *event.Bus, registry *event.Registry, scorer Scorer, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		bus:          bus,
		registry:     registry,
		scorer:       scorer,
		correlations: newCorrelationEngine(30*time.Second, 256),
		scoreTimeout: 2 * time.Second,
		log:          log,
	}
}

// Attach subscribes the orchestrator to every event on the bus.
func (o *Orchestrator) Attach() {
	o.bus.Subscribe(event.TypeWildcard, func(e event.Event) error {
		o.Orchestrate(context.Background(), e)
		return nil
	})
}

// Orchestrate runs the pipeline for one event. Events the orchestrator
// itself produced are skipped to keep the loop closed.
func (o *Orchestrator) Orchestrate(ctx context.Context, e event.Event) {
	if e.Type == event.TypeCorrelationDetected || e.Metadata.TargetHandler != "" {
		return
	}

	enriched := o.enrich(e)
	decision := o.route(ctx, enriched)
	correlations := o.correlations.detect(enriched)

	for _, target := range decision.TargetHandlers {
		routed := enriched
		routed.Metadata.TargetHandler = target
		o.registry.Handle(ctx, routed)
	}

	for _, c := range correlations {
		if c.Confidence < correlationThreshold {
			continue
		}
		correlated := event.New(event.TypeCorrelationDetected, enriched.AggregateID,
			event.CorrelationPayload{
				CorrelationID: c.ID,
				Kind:          c.Kind,
				EventIDs:      c.EventIDs,
				Confidence:    c.Confidence,
			},
			event.Metadata{
				Source:        "orchestrator",
				CorrelationID: c.ID,
				CausationID:   enriched.ID,
			})
		if err := o.bus.Publish(correlated); err != nil {
			o.log.Error("publish correlation event", zap.Error(err))
		}
	}
}

// enrich stamps a correlation id when missing so downstream consumers can
// chain related events, and tags the orchestration pass. The Extra map is
// copied before writing: the published event is shared with the bus history
// and must stay untouched.
func (o *Orchestrator) enrich(e event.Event) event.Event {
	if e.Metadata.CorrelationID == "" {
		e.Metadata.CorrelationID = uuid.NewString()
	}
	extra := make(map[string]string, len(e.Metadata.Extra)+1)
	for k, v := range e.Metadata.Extra {
		extra[k] = v
	}
	extra["orchestratedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	e.Metadata.Extra = extra
	return e
}

func (o *Orchestrator) route(ctx context.Context, e event.Event) RouteDecision {
	scoreCtx, cancel := context.WithTimeout(ctx, o.scoreTimeout)
	defer cancel()

	decision, err := o.scorer.Score(scoreCtx, Features{
		EventType:   e.Type,
		AggregateID: e.AggregateID,
		Source:      e.Metadata.Source,
		HasUserID:   e.Metadata.UserID != "",
		HasTenantID: e.Metadata.TenantID != "",
		Timestamp:   e.Timestamp,
	})
	if err != nil || len(decision.TargetHandlers) == 0 {
		if err != nil {
			o.log.Warn("scorer failed, using default route",
				zap.String("event_type", e.Type),
				zap.Error(err),
			)
		}
		return defaultRoute
	}
	return decision
}
