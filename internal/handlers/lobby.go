package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/deckards/deckards-server/internal/auth"
	"github.com/deckards/deckards-server/internal/game"
	"github.com/deckards/deckards-server/internal/lobby"
)

type createLobbyRequest struct {
	Game       string `json:"game"`
	MaxPlayers int    `json:"maxPlayers"`
}

// CreateLobbyHandler creates an ephemeral in-memory lobby. No DB writes; the
// lobby removes itself from the store when the last member leaves.
func CreateLobbyHandler(rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie := r.Header.Get("Cookie")
		if !strings.Contains(cookie, "auth_token=") {
			http.Error(w, "missing auth_token", http.StatusUnauthorized)
			return
		}
		token := extractCookieToken(cookie, "auth_token")
		if _, err := auth.AuthenticateJWT(token); err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		lob := lobby.NewLobbyWithDefaults()

		var req createLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Game != "" {
			maxPlayers := req.MaxPlayers
			if maxPlayers == 0 {
				maxPlayers = game.BlackjackMaxPlayers
			}
			if err := lob.SelectGame(req.Game, maxPlayers); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		lob.OnEmpty = func(lobbyID uuid.UUID) {
			rs.LobbyStore.DeleteLobby(lobbyID)
		}
		rs.LobbyStore.AddLobby(lob)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"lobby_id":    lob.ID.String(),
			"game":        lob.GameMode,
			"max_players": lob.MaxPlayers,
		})
	}
}

// ListLobbiesHandler returns the in-memory lobby store, mainly for debugging.
func ListLobbiesHandler(rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie := r.Header.Get("Cookie")
		if !strings.Contains(cookie, "auth_token=") {
			http.Error(w, "missing auth_token", http.StatusUnauthorized)
			return
		}
		token := extractCookieToken(cookie, "auth_token")
		if _, err := auth.AuthenticateJWT(token); err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		type lobbyInfo struct {
			ID         string `json:"lobby_id"`
			Game       string `json:"game"`
			MaxPlayers int    `json:"max_players"`
			Members    int    `json:"members"`
			InGame     bool   `json:"in_game"`
		}
		var out []lobbyInfo
		for _, lob := range rs.LobbyStore.GetLobbies() {
			lob.Mu.Lock()
			out = append(out, lobbyInfo{
				ID:         lob.ID.String(),
				Game:       lob.GameMode,
				MaxPlayers: lob.MaxPlayers,
				Members:    len(lob.Members()),
				InGame:     lob.InGame,
			})
			lob.Mu.Unlock()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}
