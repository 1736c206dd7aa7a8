package chat

import "sync"

// Registry is the single in-process authority for which identities currently
// hold a live connection. One slot exists per identity; the most recent
// connect wins, and a disconnect for a replaced connection is ignored so a
// newer device is never knocked offline by an older one going away.
//
// The mutex guards only the map. Callers must not invoke collaborator I/O
// while holding registry state.
type Registry struct {
	mu    sync.RWMutex
	slots map[string]presenceSlot
}

type presenceSlot struct {
	connID string
	sink   EventSink
}

func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]presenceSlot)}
}

// MarkOnline records connID as the authoritative connection for userID,
// replacing any previous slot. It returns the sink that was displaced, if any,
// so the transport can close the stale connection.
func (r *Registry) MarkOnline(userID, connID string, sink EventSink) (EventSink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, existed := r.slots[userID]
	r.slots[userID] = presenceSlot{connID: connID, sink: sink}
	if existed && previous.connID != connID {
		return previous.sink, true
	}
	return nil, false
}

// MarkOffline clears the slot only when connID still owns it. It reports
// whether the identity actually went offline; a stale disconnect returns
// false and leaves the newer connection untouched.
func (r *Registry) MarkOffline(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[userID]
	if !ok || slot.connID != connID {
		return false
	}
	delete(r.slots, userID)
	return true
}

// Sink returns the live connection for userID when one is registered.
func (r *Registry) Sink(userID string) (EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slot, ok := r.slots[userID]
	if !ok {
		return nil, false
	}
	return slot.sink, true
}

// IsOnline reports whether userID currently has a live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.slots[userID]
	return ok
}
