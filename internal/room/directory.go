package room

import "sync"

// Directory tracks which users belong to which conversation room. It keeps a
// reverse index so a disconnecting user's rooms can be found with one lookup.
type Directory struct {
	mu          sync.RWMutex
	members     map[string]map[string]struct{}
	userToConvs map[string]map[string]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		members:     make(map[string]map[string]struct{}),
		userToConvs: make(map[string]map[string]struct{}),
	}
}

// Add records membership. Set semantics: re-adding is a no-op.
func (d *Directory) Add(conversationID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.members[conversationID] == nil {
		d.members[conversationID] = make(map[string]struct{})
	}
	d.members[conversationID][userID] = struct{}{}

	if d.userToConvs[userID] == nil {
		d.userToConvs[userID] = make(map[string]struct{})
	}
	d.userToConvs[userID][conversationID] = struct{}{}
}

func (d *Directory) Remove(conversationID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remove(conversationID, userID)
}

func (d *Directory) remove(conversationID, userID string) {
	if m := d.members[conversationID]; m != nil {
		delete(m, userID)
		if len(m) == 0 {
			delete(d.members, conversationID)
		}
	}
	if convs := d.userToConvs[userID]; convs != nil {
		delete(convs, conversationID)
		if len(convs) == 0 {
			delete(d.userToConvs, userID)
		}
	}
}

// RemoveUser drops the user from every room and returns the rooms they were
// in, so the caller can broadcast one user_left per room.
func (d *Directory) RemoveUser(userID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []string
	for conversationID := range d.userToConvs[userID] {
		out = append(out, conversationID)
	}
	for _, conversationID := range out {
		d.remove(conversationID, userID)
	}
	return out
}

// Members returns a snapshot copy of a room's member set. Broadcast loops
// iterate the copy so a concurrent join or leave cannot corrupt delivery.
func (d *Directory) Members(conversationID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for userID := range d.members[conversationID] {
		out = append(out, userID)
	}
	return out
}

func (d *Directory) Contains(conversationID, userID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.members[conversationID][userID]
	return ok
}

func (d *Directory) UserConversations(userID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for conversationID := range d.userToConvs[userID] {
		out = append(out, conversationID)
	}
	return out
}
