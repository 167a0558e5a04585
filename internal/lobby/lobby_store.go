package lobby

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// LobbyStore manages active ephemeral lobbies in memory.
type LobbyStore struct {
	mu      sync.Mutex
	lobbies map[uuid.UUID]*Lobby
}

// NewLobbyStore initializes and returns an empty LobbyStore.
func NewLobbyStore() *LobbyStore {
	return &LobbyStore{
		lobbies: make(map[uuid.UUID]*Lobby),
	}
}

// AddLobby adds a lobby to the store. Configure the lobby's OnEmpty callback
// before adding it so it is cleaned up when the last member leaves.
func (s *LobbyStore) AddLobby(lobby *Lobby) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lobbies[lobby.ID]; exists {
		log.Printf("LobbyStore: lobby %s already exists, not overwriting", lobby.ID)
		return
	}
	s.lobbies[lobby.ID] = lobby
}

// DeleteLobby removes a lobby by ID, typically via the OnEmpty callback.
func (s *LobbyStore) DeleteLobby(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lobbies, id)
}

// GetLobby retrieves a lobby by ID.
func (s *LobbyStore) GetLobby(id uuid.UUID) (*Lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[id]
	return l, ok
}

// GetLobbies returns a copy of the active lobby map.
func (s *LobbyStore) GetLobbies() map[uuid.UUID]*Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]*Lobby, len(s.lobbies))
	for k, v := range s.lobbies {
		out[k] = v
	}
	return out
}
