package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/deckards/deckards-server/internal/cache"
	"github.com/deckards/deckards-server/internal/game"
	"github.com/deckards/deckards-server/internal/middleware"
	"github.com/deckards/deckards-server/internal/models"
)

// RoomWSHandler upgrades the connection for a specific room. The client must
// present the single-use seat token issued during the lobby handoff; the
// token is consumed atomically so a replay can never seat a second player.
func RoomWSHandler(logger *logrus.Logger, rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/room/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing room_id in path (/room/ws/{room_id})", http.StatusBadRequest)
			return
		}
		roomID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "invalid room_id format", http.StatusBadRequest)
			return
		}

		room, ok := rs.RoomStore.GetRoom(roomID)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		rawToken := r.URL.Query().Get("token")
		if rawToken == "" {
			http.Error(w, "missing seat token", http.StatusUnauthorized)
			return
		}
		seatToken, err := uuid.Parse(rawToken)
		if err != nil {
			http.Error(w, "invalid seat token format", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error for room %s: %v", roomID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "game" {
			c.Close(BadSubprotocolError, "client must speak the game subprotocol")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		res, err := rs.Reservations.Consume(r.Context(), seatToken)
		if err != nil {
			if errors.Is(err, cache.ErrReservationNotFound) {
				logger.Warnf("rejected unknown or replayed seat token for room %s", roomID)
				c.Close(InvalidSeatTokenError, "seat token invalid or already used")
			} else {
				logger.WithError(err).Error("reservation lookup failed")
				c.Close(websocket.StatusInternalError, "reservation lookup failed")
			}
			return
		}
		if res.RoomID != roomID {
			logger.Warnf("seat token for room %s presented to room %s", res.RoomID, roomID)
			c.Close(InvalidSeatTokenError, "seat token does not match this room")
			return
		}

		player, err := room.Join(res.SessionID, res.Username, res.AvatarURL, res.IsLeader, c)
		if err != nil {
			logger.Warnf("join rejected for %s in room %s: %v", res.SessionID, roomID, err)
			c.Close(websocket.StatusPolicyViolation, err.Error())
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readRoomMessages(ctx, c, room, player.SessionID, logger)

		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
		room.Leave(player.SessionID)
	}
}

// readRoomMessages reads client intents and routes them into the room under
// its lock. Exits on read error or context cancellation.
func readRoomMessages(ctx context.Context, c *websocket.Conn, room *game.Room, sessionID string, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("websocket closed normally for %s in room %s", sessionID, room.ID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("read error for %s in room %s: %v", sessionID, room.ID, err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var intent models.Intent
		if err := json.Unmarshal(data, &intent); err != nil {
			logger.Warnf("invalid json from %s in room %s: %v", sessionID, room.ID, err)
			sendWsError(c, "invalid JSON format")
			continue
		}

		if intent.Type == "ping" {
			sendWsMessage(c, map[string]string{"type": "pong"})
			continue
		}

		room.Mu.Lock()
		room.HandleIntent(sessionID, intent)
		room.Mu.Unlock()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// sendWsMessage marshals and writes one message with a write timeout.
func sendWsMessage(c *websocket.Conn, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.Write(ctx, websocket.MessageText, data)
}

// sendWsError sends a structured error message to the client.
func sendWsError(c *websocket.Conn, errorMsg string) {
	sendWsMessage(c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}
