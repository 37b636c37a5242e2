package event

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/observability"
)

// Handler processes events dispatched by the Registry. Name identifies the
// handler for routing decisions and logs.
type Handler interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}

type registration struct {
	handler  Handler
	priority int
	seq      int
}

// Registry dispatches events to registered handlers: global handlers first,
// then type-specific ones, each group ordered by descending priority with
// registration order breaking ties. All applicable handlers run concurrently;
// a failing handler is logged and isolated, never blocking its siblings.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]registration
	global   []registration
	nextSeq  int
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string][]registration),
		log:      log,
	}
}

func (r *Registry) Register(eventType string, h Handler, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = insertSorted(r.handlers[eventType], registration{h, priority, r.nextSeq})
	r.nextSeq++
}

func (r *Registry) RegisterGlobal(h Handler, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = insertSorted(r.global, registration{h, priority, r.nextSeq})
	r.nextSeq++
}

func insertSorted(regs []registration, reg registration) []registration {
	regs = append(regs, reg)
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority > regs[j].priority
		}
		return regs[i].seq < regs[j].seq
	})
	return regs
}

// Handle runs every applicable handler concurrently and waits for all of
// them to settle. There is no retry; a dead-letter queue is the extension
// point for events whose handlers keep failing.
func (r *Registry) Handle(ctx context.Context, e Event) {
	r.mu.RLock()
	regs := make([]registration, 0, len(r.global)+len(r.handlers[e.Type]))
	regs = append(regs, r.global...)
	regs = append(regs, r.handlers[e.Type]...)
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, reg := range regs {
		wg.Add(1)
		go func(reg registration) {
			defer wg.Done()
			r.run(ctx, reg.handler, e)
		}(reg)
	}
	wg.Wait()
}

func (r *Registry) run(ctx context.Context, h Handler, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			observability.HandlerErrorsTotal.WithLabelValues(h.Name()).Inc()
			r.log.Error("handler panic",
				zap.String("handler", h.Name()),
				zap.String("event_type", e.Type),
				zap.Any("panic", rec),
			)
		}
	}()
	if err := h.Handle(ctx, e); err != nil {
		observability.HandlerErrorsTotal.WithLabelValues(h.Name()).Inc()
		r.log.Error("handler error",
			zap.String("handler", h.Name()),
			zap.String("event_type", e.Type),
			zap.String("event_id", e.ID),
			zap.Error(err),
		)
	}
}

// Registered reports how many handlers would run for an event type.
func (r *Registry) Registered(eventType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.global) + len(r.handlers[eventType])
}

// Unregister removes a handler by name from one event type's list.
func (r *Registry) Unregister(eventType, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	regs := r.handlers[eventType]
	for i, reg := range regs {
		if reg.handler.Name() == name {
			r.handlers[eventType] = append(regs[:i], regs[i+1:]...)
			return
		}
	}
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, e Event) error
}

func (h HandlerFunc) Name() string { return h.HandlerName }

func (h HandlerFunc) Handle(ctx context.Context, e Event) error { return h.Fn(ctx, e) }
