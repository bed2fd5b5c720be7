// Package timer provides the per-room registry of scheduled callbacks
// that drive round phase transitions.
package timer

import (
	"sync"
	"time"
)

// Kind identifies one of the scheduled callbacks a room can carry.
type Kind string

const (
	KindSettle    Kind = "settle"
	KindNextRound Kind = "nextRound"
	KindBotTrades Kind = "botTrades"
)

// Registry holds at most one pending timer per (room id, kind). Arming a
// kind always replaces any pending timer of that kind for the room.
type Registry struct {
	mu      sync.Mutex
	timers  map[string]map[Kind]*time.Timer
	stopped bool
}

// NewRegistry creates an empty timer registry.
func NewRegistry() *Registry {
	return &Registry{
		timers: make(map[string]map[Kind]*time.Timer),
	}
}

// Arm schedules fn to run after d, replacing any pending timer of the
// same kind for the room. Arming after Stop is a no-op.
func (r *Registry) Arm(roomID string, kind Kind, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}

	byKind, ok := r.timers[roomID]
	if !ok {
		byKind = make(map[Kind]*time.Timer)
		r.timers[roomID] = byKind
	}
	if existing, ok := byKind[kind]; ok {
		existing.Stop()
	}

	byKind[kind] = time.AfterFunc(d, func() {
		r.clear(roomID, kind)
		fn()
	})
}

// clear removes the bookkeeping entry for a fired timer.
func (r *Registry) clear(roomID string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if byKind, ok := r.timers[roomID]; ok {
		delete(byKind, kind)
		if len(byKind) == 0 {
			delete(r.timers, roomID)
		}
	}
}

// Cancel stops the pending timer of the given kind for the room, if any.
func (r *Registry) Cancel(roomID string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if byKind, ok := r.timers[roomID]; ok {
		if t, ok := byKind[kind]; ok {
			t.Stop()
			delete(byKind, kind)
		}
		if len(byKind) == 0 {
			delete(r.timers, roomID)
		}
	}
}

// CancelAll stops every pending timer for the room.
func (r *Registry) CancelAll(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.timers[roomID] {
		t.Stop()
	}
	delete(r.timers, roomID)
}

// Pending reports whether a timer of the given kind is armed for the room.
func (r *Registry) Pending(roomID string, kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	byKind, ok := r.timers[roomID]
	if !ok {
		return false
	}
	_, ok = byKind[kind]
	return ok
}

// Stop cancels all timers in the registry and rejects further arming.
// Used during process shutdown.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for _, byKind := range r.timers {
		for _, t := range byKind {
			t.Stop()
		}
	}
	r.timers = make(map[string]map[Kind]*time.Timer)
}
