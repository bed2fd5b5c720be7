// Package lock provides per-room locking so that read-modify-write cycles
// against the same room id are serialized within the process.
package lock

import "sync"

// RoomLock provides per-room mutexes keyed by room id. Locks are created
// lazily on first use.
type RoomLock struct {
	locks sync.Map // map[string]*sync.Mutex
}

// NewRoomLock creates a new RoomLock instance.
func NewRoomLock() *RoomLock {
	return &RoomLock{}
}

// getLock retrieves or creates the mutex for the given room id.
func (rl *RoomLock) getLock(roomID string) *sync.Mutex {
	if v, ok := rl.locks.Load(roomID); ok {
		return v.(*sync.Mutex)
	}
	actual, _ := rl.locks.LoadOrStore(roomID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// Lock acquires the lock for a room.
func (rl *RoomLock) Lock(roomID string) {
	rl.getLock(roomID).Lock()
}

// Unlock releases the lock for a room.
func (rl *RoomLock) Unlock(roomID string) {
	if v, ok := rl.locks.Load(roomID); ok {
		v.(*sync.Mutex).Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired.
func (rl *RoomLock) TryLock(roomID string) bool {
	return rl.getLock(roomID).TryLock()
}

// WithLock executes fn while holding the room's lock.
func (rl *RoomLock) WithLock(roomID string, fn func() error) error {
	rl.Lock(roomID)
	defer rl.Unlock(roomID)
	return fn()
}

// Forget drops the lock entry for a room. Call only after the room has
// been deleted and no goroutine can still be waiting on the lock.
func (rl *RoomLock) Forget(roomID string) {
	rl.locks.Delete(roomID)
}

// Len returns the number of rooms currently holding a lock entry.
func (rl *RoomLock) Len() int {
	n := 0
	rl.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
