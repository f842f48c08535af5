// Package notify broadcasts group entitlement snapshots to observers.
package notify

import (
	"sync"

	"github.com/google/uuid"
)

// Snapshot is an immutable view of per-group entitlement. It is published
// as one versioned value, never as per-field deltas, so observers cannot
// see partial updates.
type Snapshot struct {
	Version      uint64
	DefaultGroup string
	groups       map[string]bool
}

// Entitled reports whether the named group is entitled.
func (s Snapshot) Entitled(group string) bool {
	return s.groups[group]
}

// Default reports entitlement of the designated default group.
func (s Snapshot) Default() bool {
	return s.groups[s.DefaultGroup]
}

// Groups returns a copy of the per-group entitlement map.
func (s Snapshot) Groups() map[string]bool {
	out := make(map[string]bool, len(s.groups))
	for k, v := range s.groups {
		out[k] = v
	}
	return out
}

func (s Snapshot) sameGroups(groups map[string]bool) bool {
	if len(s.groups) != len(groups) {
		return false
	}
	for k, v := range groups {
		if s.groups[k] != v {
			return false
		}
	}
	return true
}

// Hub fans snapshots out to subscribers. Delivery is latest-wins: a slow
// subscriber may miss an intermediate snapshot but always ends on the
// newest one, and a late subscriber receives the current snapshot on join.
type Hub struct {
	defaultGroup string

	mu      sync.Mutex
	subs    map[uuid.UUID]chan Snapshot
	latest  *Snapshot
	version uint64
}

// NewHub creates a hub whose snapshots designate the given default group.
func NewHub(defaultGroup string) *Hub {
	return &Hub{
		defaultGroup: defaultGroup,
		subs:         make(map[uuid.UUID]chan Snapshot),
	}
}

// Subscribe registers an observer and replays the latest snapshot, if any.
// The channel is closed on Unsubscribe.
func (h *Hub) Subscribe() (uuid.UUID, <-chan Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.New()
	ch := make(chan Snapshot, 1)
	h.subs[id] = ch
	if h.latest != nil {
		ch <- *h.latest
	}
	return id, ch
}

// Unsubscribe removes an observer and closes its channel.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish builds a new versioned snapshot from the given group statuses and
// delivers it to every subscriber, replacing any undelivered older value.
// The input map is copied.
func (h *Hub) Publish(groups map[string]bool) Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.publishLocked(groups)
}

// PublishIfChanged publishes only when the group statuses differ from the
// latest snapshot. Returns the current snapshot and whether a publish
// happened.
func (h *Hub) PublishIfChanged(groups map[string]bool) (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest != nil && h.latest.sameGroups(groups) {
		return *h.latest, false
	}
	return h.publishLocked(groups), true
}

func (h *Hub) publishLocked(groups map[string]bool) Snapshot {
	cp := make(map[string]bool, len(groups))
	for k, v := range groups {
		cp[k] = v
	}
	h.version++
	snap := Snapshot{Version: h.version, DefaultGroup: h.defaultGroup, groups: cp}
	h.latest = &snap

	for _, ch := range h.subs {
		select {
		case ch <- snap:
		default:
			// Buffer holds an unconsumed older snapshot; drop it in favor
			// of the new one. Publish is the only sender, so this cannot
			// block.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

// Latest returns the most recently published snapshot.
func (h *Hub) Latest() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return Snapshot{}, false
	}
	return *h.latest, true
}
