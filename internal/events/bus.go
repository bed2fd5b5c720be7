// Package events provides the process-local publish point for room
// lifecycle events. A real-time broadcaster subscribes at wiring time and
// fans events out to connected clients.
package events

import (
	"sync"

	"trading-room-game/internal/model"
)

// Bus dispatches room lifecycle events to registered subscribers.
// Publishing happens strictly after the corresponding store write commits,
// at most once per successful mutation.
type Bus struct {
	mu        sync.RWMutex
	onUpdated []func(room *model.Room)
	onRemoved []func(roomID string)
}

// NewBus creates an event bus with no subscribers.
func NewBus() *Bus {
	return &Bus{}
}

// OnRoomUpdated registers a subscriber for room:updated events.
func (b *Bus) OnRoomUpdated(fn func(room *model.Room)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onUpdated = append(b.onUpdated, fn)
}

// OnRoomRemoved registers a subscriber for room:removed events.
func (b *Bus) OnRoomRemoved(fn func(roomID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRemoved = append(b.onRemoved, fn)
}

// PublishRoomUpdated notifies subscribers of a committed room mutation.
// Each subscriber receives its own clone of the record.
func (b *Bus) PublishRoomUpdated(room *model.Room) {
	b.mu.RLock()
	subs := b.onUpdated
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(room.Clone())
	}
}

// PublishRoomRemoved notifies subscribers that a room was deleted.
func (b *Bus) PublishRoomRemoved(roomID string) {
	b.mu.RLock()
	subs := b.onRemoved
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(roomID)
	}
}
