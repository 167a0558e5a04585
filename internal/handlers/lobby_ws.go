package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/deckards/deckards-server/internal/lobby"
)

// LobbyWSHandler runs the ephemeral in-memory lobby flow. Members gather
// here, ready up, and are handed off to a game room with single-use seat
// tokens.
func LobbyWSHandler(logger *logrus.Logger, rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/lobby/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing lobby_id", http.StatusBadRequest)
			return
		}
		lobbyID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "invalid lobby_id", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "lobby" {
			c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
			return
		}

		user, err := EnsureUser(w, r)
		if err != nil {
			logger.Warnf("user authentication failed for lobby %s: %v", lobbyID, err)
			c.Close(websocket.StatusPolicyViolation, "authentication failed")
			return
		}

		lob, exists := rs.LobbyStore.GetLobby(lobbyID)
		if !exists {
			c.Close(InvalidLobbyIDError, "lobby does not exist")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := &lobby.Connection{
			SessionID: user.ID.String(),
			UserID:    user.ID,
			Username:  user.Username,
			AvatarURL: user.AvatarURL,
			Cancel:    cancel,
			OutChan:   make(chan map[string]interface{}, 10),
		}

		if err := lob.AddConnection(conn); err != nil {
			logger.Warnf("failed to add %s to lobby %s: %v", conn.SessionID, lobbyID, err)
			c.Close(websocket.StatusPolicyViolation, err.Error())
			cancel()
			return
		}
		logger.Infof("user %s (%s) connected to lobby %s", user.ID, r.RemoteAddr, lobbyID)

		go lobbyWritePump(ctx, c, conn, logger)

		lobbyReadPump(ctx, c, lob, conn, rs, logger)

		lob.RemoveConnection(conn.SessionID)
	}
}

// lobbyReadPump reads client messages and dispatches them under the lobby
// lock until the connection dies.
func lobbyReadPump(ctx context.Context, c *websocket.Conn, lob *lobby.Lobby, conn *lobby.Connection, rs *RoomServer, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway &&
				!strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("lobby %s: read error for %s: %v", lob.ID, conn.SessionID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			conn.WriteError("invalid JSON format")
			continue
		}

		leftLobby := false
		shouldStartCountdown := false
		startNow := false

		lob.Mu.Lock()
		handleLobbyMessage(packet, lob, conn, logger, &shouldStartCountdown, &startNow, &leftLobby)
		lob.Mu.Unlock()

		if leftLobby {
			lob.RemoveConnection(conn.SessionID)
			return
		}
		if startNow {
			startLobbyGame(lob, rs, logger)
			continue
		}
		if shouldStartCountdown {
			lob.Mu.Lock()
			lob.StartCountdown(func(l *lobby.Lobby) {
				logger.Infof("lobby %s: auto-start countdown finished", l.ID)
				startLobbyGame(l, rs, logger)
			})
			lob.Mu.Unlock()
		}
	}
}

// handleLobbyMessage interprets one lobby packet. Assumes the lobby lock is
// held; signals deferred work through the out flags so it runs after release.
func handleLobbyMessage(packet map[string]interface{}, lob *lobby.Lobby, conn *lobby.Connection, logger *logrus.Logger, shouldStartCountdown, startNow, leftLobby *bool) {
	action, _ := packet["type"].(string)

	switch action {
	case "ready":
		if lob.MarkReady(conn.SessionID) {
			*shouldStartCountdown = true
		}
	case "unready":
		lob.MarkUnready(conn.SessionID)
	case "chat":
		if msg, _ := packet["msg"].(string); msg != "" {
			lob.BroadcastChat(conn.SessionID, msg)
		}
	case "leave_lobby":
		*leftLobby = true
	case "select_game":
		if !lob.IsLeader(conn.SessionID) {
			conn.WriteError("only the lobby leader can select the game")
			return
		}
		gameMode, _ := packet["game"].(string)
		maxPlayers := lob.MaxPlayers
		if mp, ok := packet["maxPlayers"].(float64); ok {
			maxPlayers = int(mp)
		}
		if err := lob.SelectGame(gameMode, maxPlayers); err != nil {
			conn.WriteError(err.Error())
		}
	case "start_game":
		if !lob.IsLeader(conn.SessionID) {
			conn.WriteError("only the lobby leader can start the game")
			return
		}
		if lob.InGame {
			conn.WriteError("game already in progress")
			return
		}
		*startNow = true
	default:
		logger.Warnf("lobby %s: unknown action %q from %s", lob.ID, action, conn.SessionID)
		conn.WriteError(fmt.Sprintf("unknown action type: %s", action))
	}
}

// startLobbyGame performs the lobby-to-room handoff. Must be called without
// the lobby lock held. BeginStart claims the lobby before any room is built,
// so a concurrent caller finds it already in game and backs off.
func startLobbyGame(lob *lobby.Lobby, rs *RoomServer, logger *logrus.Logger) {
	if !lob.BeginStart() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := rs.NewBlackjackRoomFromLobby(ctx, lob); err != nil {
		logger.WithError(err).Errorf("lobby %s: failed to create room", lob.ID)
		lob.AbortStart()
	}
}

// lobbyWritePump drains the connection's OutChan onto the websocket and keeps
// the connection alive with periodic pings.
func lobbyWritePump(ctx context.Context, c *websocket.Conn, conn *lobby.Connection, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("failed to marshal outgoing lobby msg for %s: %v", conn.SessionID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
