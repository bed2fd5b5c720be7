package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"trading-room-game/internal/model"
	"trading-room-game/internal/pkg/lock"
)

// MemoryStore is the in-process fallback used when no durable backend is
// configured. Records are deep-cloned on every read and write so callers
// never alias the stored aggregate.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*model.Room
	locks *lock.RoomLock
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory room store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]*model.Room),
		locks: lock.NewRoomLock(),
		now:   time.Now,
	}
}

// List returns rooms ordered by most recent update.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]*model.Room, error) {
	s.mu.RLock()
	rooms := make([]*model.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	if limit > 0 && len(rooms) > limit {
		rooms = rooms[:limit]
	}
	return rooms, nil
}

// Get returns a clone of the room or ErrRoomNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.Clone(), nil
}

// RunAtomic serializes mutations per room id with a keyed lock. fn runs
// on a clone of the current record; the result replaces it wholesale.
func (s *MemoryStore) RunAtomic(ctx context.Context, id string, fn MutateFunc) (*model.Room, error) {
	var committed *model.Room
	var deleted bool
	err := s.locks.WithLock(id, func() error {
		s.mu.RLock()
		current := s.rooms[id].Clone()
		s.mu.RUnlock()

		next, err := fn(current)
		if err != nil {
			return err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if next == nil {
			delete(s.rooms, id)
			deleted = true
			return nil
		}
		next.UpdatedAt = s.now()
		s.rooms[id] = next.Clone()
		committed = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	if deleted {
		s.locks.Forget(id)
	}
	return committed, nil
}

// Delete removes the room if present.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.rooms, id)
	s.mu.Unlock()
	s.locks.Forget(id)
	return nil
}
