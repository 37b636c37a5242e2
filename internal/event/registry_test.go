package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type callLog struct {
	mu    sync.Mutex
	names []string
}

func (c *callLog) handler(name string) HandlerFunc {
	return HandlerFunc{
		HandlerName: name,
		Fn: func(ctx context.Context, e Event) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.names = append(c.names, name)
			return nil
		},
	}
}

func (c *callLog) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

func TestHandleRunsAllApplicable(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	log := &callLog{}

	r.Register(TypeMessageSent, log.handler("typed"), 0)
	r.RegisterGlobal(log.handler("global"), 0)
	r.Register(TypeTypingStarted, log.handler("other"), 0)

	r.Handle(context.Background(), testEvent(TypeMessageSent, "c1"))

	calls := log.calls()
	if len(calls) != 2 {
		t.Fatalf("expected global and typed handlers, got %v", calls)
	}
	for _, name := range calls {
		if name == "other" {
			t.Fatal("handler for another type must not run")
		}
	}
}

func TestRegistrationOrderedByPriority(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	log := &callLog{}

	r.Register(TypeMessageSent, log.handler("low"), 1)
	r.Register(TypeMessageSent, log.handler("high"), 10)
	r.Register(TypeMessageSent, log.handler("mid"), 5)

	r.mu.RLock()
	regs := r.handlers[TypeMessageSent]
	r.mu.RUnlock()

	want := []string{"high", "mid", "low"}
	for i, reg := range regs {
		if reg.handler.Name() != want[i] {
			t.Fatalf("position %d: want %s, got %s", i, want[i], reg.handler.Name())
		}
	}
}

func TestPriorityTieBrokenByRegistration(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	log := &callLog{}

	r.Register(TypeMessageSent, log.handler("first"), 5)
	r.Register(TypeMessageSent, log.handler("second"), 5)

	r.mu.RLock()
	regs := r.handlers[TypeMessageSent]
	r.mu.RUnlock()

	if regs[0].handler.Name() != "first" || regs[1].handler.Name() != "second" {
		t.Fatal("equal priorities must keep registration order")
	}
}

func TestFailingHandlerIsolated(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	log := &callLog{}

	r.Register(TypeMessageSent, HandlerFunc{
		HandlerName: "failing",
		Fn: func(ctx context.Context, e Event) error {
			return errors.New("down")
		},
	}, 10)
	r.Register(TypeMessageSent, log.handler("healthy"), 0)

	r.Handle(context.Background(), testEvent(TypeMessageSent, "c1"))

	if calls := log.calls(); len(calls) != 1 || calls[0] != "healthy" {
		t.Fatalf("healthy handler must run despite the failure, got %v", calls)
	}
}

func TestPanickingHandlerIsolated(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	log := &callLog{}

	r.Register(TypeMessageSent, HandlerFunc{
		HandlerName: "panicking",
		Fn: func(ctx context.Context, e Event) error {
			panic("boom")
		},
	}, 10)
	r.Register(TypeMessageSent, log.handler("healthy"), 0)

	r.Handle(context.Background(), testEvent(TypeMessageSent, "c1"))

	if calls := log.calls(); len(calls) != 1 {
		t.Fatalf("healthy handler must survive a sibling panic, got %v", calls)
	}
}

func TestUnregister(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	log := &callLog{}

	r.Register(TypeMessageSent, log.handler("a"), 0)
	r.Register(TypeMessageSent, log.handler("b"), 0)
	r.Unregister(TypeMessageSent, "a")

	if got := r.Registered(TypeMessageSent); got != 1 {
		t.Fatalf("expected 1 remaining handler, got %d", got)
	}

	r.Handle(context.Background(), testEvent(TypeMessageSent, "c1"))
	if calls := log.calls(); len(calls) != 1 || calls[0] != "b" {
		t.Fatalf("only b should run, got %v", calls)
	}
}
