package presence

import (
	"strings"
	"sync"
	"time"
)

const DefaultTypingExpiry = 3 * time.Second

type typingState struct {
	timer *time.Timer
	gen   uint64
}

// TypingTracker owns the auto-expiry timers behind typing indicators. At most
// one live timer exists per (conversation, user) key: starting again cancels
// and reschedules, stopping cancels, expiry fires the callback exactly once.
type TypingTracker struct {
	mu       sync.Mutex
	states   map[string]*typingState
	expiry   time.Duration
	nextGen  uint64
	onExpire func(conversationID, userID string)
}

func NewTypingTracker(expiry time.Duration, onExpire func(conversationID, userID string)) *TypingTracker {
	if expiry <= 0 {
		expiry = DefaultTypingExpiry
	}
	return &TypingTracker{
		states:   make(map[string]*typingState),
		expiry:   expiry,
		onExpire: onExpire,
	}
}

func typingKey(conversationID, userID string) string {
	return conversationID + ":" + userID
}

// Start arms (or re-arms) the expiry timer for a key.
func (t *TypingTracker) Start(conversationID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey(conversationID, userID)
	if st, ok := t.states[key]; ok {
		st.timer.Stop()
	}

	t.nextGen++
	gen := t.nextGen
	st := &typingState{gen: gen}
	st.timer = time.AfterFunc(t.expiry, func() {
		t.expire(conversationID, userID, gen)
	})
	t.states[key] = st
}

func (t *TypingTracker) expire(conversationID, userID string, gen uint64) {
	t.mu.Lock()
	key := typingKey(conversationID, userID)
	st, ok := t.states[key]
	if !ok || st.gen != gen {
		// A refresh or stop won the race; this timer is stale.
		t.mu.Unlock()
		return
	}
	delete(t.states, key)
	t.mu.Unlock()

	t.onExpire(conversationID, userID)
}

// Stop cancels the timer for a key. Returns false when nothing was armed.
func (t *TypingTracker) Stop(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey(conversationID, userID)
	st, ok := t.states[key]
	if !ok {
		return false
	}
	st.timer.Stop()
	delete(t.states, key)
	return true
}

// StopAllForUser cancels every timer the user owns and returns the affected
// conversations, so disconnect cleanup can broadcast one stop per room.
func (t *TypingTracker) StopAllForUser(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	suffix := ":" + userID
	var out []string
	for key, st := range t.states {
		if strings.HasSuffix(key, suffix) {
			st.timer.Stop()
			delete(t.states, key)
			out = append(out, strings.TrimSuffix(key, suffix))
		}
	}
	return out
}

// Active reports whether a timer is currently armed for the key.
func (t *TypingTracker) Active(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.states[typingKey(conversationID, userID)]
	return ok
}
