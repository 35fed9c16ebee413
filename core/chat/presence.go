package chat

import (
	"sort"
	"sync"
)

// PresenceTracker maintains the process-wide set of currently-online peers.
// The set is replaced wholesale by snapshot events and updated incrementally
// by online/offline deltas between snapshots; its lifecycle is bound to the
// socket connection.
type PresenceTracker struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{online: make(map[string]struct{})}
}

// SetSnapshot replaces the whole set, e.g. after a (re)connect.
func (pt *PresenceTracker) SetSnapshot(userIDs []string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.online = make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		pt.online[id] = struct{}{}
	}
}

func (pt *PresenceTracker) SetOnline(userID string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.online[userID] = struct{}{}
}

func (pt *PresenceTracker) SetOffline(userID string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.online, userID)
}

func (pt *PresenceTracker) IsOnline(userID string) bool {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	_, ok := pt.online[userID]
	return ok
}

// Online returns the online peer ids, sorted for stable rendering.
func (pt *PresenceTracker) Online() []string {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	out := make([]string, 0, len(pt.online))
	for id := range pt.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clear empties the set, e.g. when the connection is lost.
func (pt *PresenceTracker) Clear() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.online = make(map[string]struct{})
}
