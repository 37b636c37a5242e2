package eventstore

import (
	"sync"
	"time"

	"github.com/teamgrid/realtime/internal/event"
)

// ConversationActivity is a read-model of per-conversation message traffic.
// It can always be rebuilt from scratch by replaying the store.
type ConversationActivity struct {
	mu    sync.RWMutex
	stats map[string]*ActivityEntry
}

type ActivityEntry struct {
	MessageCount int
	LastSenderID string
	LastActivity time.Time
}

func NewConversationActivity() *ConversationActivity {
	return &ConversationActivity{stats: make(map[string]*ActivityEntry)}
}

func (p *ConversationActivity) Name() string { return "conversation_activity" }

func (p *ConversationActivity) Apply(e event.Event) error {
	msg, ok := e.Data.(event.MessagePayload)
	if !ok || e.Type != event.TypeMessageSent {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.stats[msg.ConversationID]
	if !ok {
		entry = &ActivityEntry{}
		p.stats[msg.ConversationID] = entry
	}
	entry.MessageCount++
	entry.LastSenderID = msg.SenderID
	entry.LastActivity = e.Timestamp
	return nil
}

func (p *ConversationActivity) Rebuild() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = make(map[string]*ActivityEntry)
	return nil
}

func (p *ConversationActivity) Activity(conversationID string) (ActivityEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.stats[conversationID]
	if !ok {
		return ActivityEntry{}, false
	}
	return *entry, true
}
