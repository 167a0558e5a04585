package game

import (
	"sync"

	"github.com/google/uuid"
)

// RoomStore holds the live room instances in memory.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
}

// NewRoomStore returns an in-memory store for Rooms.
func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[uuid.UUID]*Room),
	}
}

// AddRoom registers a room.
func (s *RoomStore) AddRoom(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
}

// GetRoom retrieves a room if it exists.
func (s *RoomStore) GetRoom(id uuid.UUID) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// DeleteRoom removes a room from the store.
func (s *RoomStore) DeleteRoom(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
}
