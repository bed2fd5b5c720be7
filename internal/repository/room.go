// Package repository provides room persistence implementations.
package repository

import (
	"context"
	"errors"

	"trading-room-game/internal/model"
)

// Common errors for repository operations.
var (
	ErrRoomNotFound = errors.New("room not found")
)

// MutateFunc computes the next room record from the current one.
// current is nil when no record exists for the id; returning a room in
// that case inserts it. Returning (nil, nil) deletes the record in the
// same atomic step. Returning an error aborts without writing anything.
type MutateFunc func(current *model.Room) (*model.Room, error)

// RoomStore abstracts room persistence. All implementations guarantee
// that concurrent RunAtomic calls on the same room id never lose an
// update: each call observes the previous call's committed record.
type RoomStore interface {
	// List returns rooms ordered by most recent update. limit <= 0
	// returns all rooms.
	List(ctx context.Context, limit int) ([]*model.Room, error)

	// Get returns the room or ErrRoomNotFound.
	Get(ctx context.Context, id string) (*model.Room, error)

	// RunAtomic performs a read-modify-write cycle for the room id and
	// returns the committed record (nil if fn deleted it).
	RunAtomic(ctx context.Context, id string, fn MutateFunc) (*model.Room, error)

	// Delete removes the room. Deleting an absent room is not an error.
	Delete(ctx context.Context, id string) error
}
