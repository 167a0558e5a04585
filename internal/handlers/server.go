package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/quartz"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/deckards/deckards-server/internal/cache"
	"github.com/deckards/deckards-server/internal/database"
	"github.com/deckards/deckards-server/internal/game"
	"github.com/deckards/deckards-server/internal/lobby"
)

// RoomServer holds the in-memory stores plus the reservation backend, and
// knows how to turn a lobby into a live game room.
type RoomServer struct {
	LobbyStore   *lobby.LobbyStore
	RoomStore    *game.RoomStore
	Reservations *cache.ReservationStore
	Clock        quartz.Clock
	Logger       *logrus.Logger
}

// NewRoomServer wires up empty stores against the real clock and the global
// redis client.
func NewRoomServer(logger *logrus.Logger) *RoomServer {
	return &RoomServer{
		LobbyStore:   lobby.NewLobbyStore(),
		RoomStore:    game.NewRoomStore(),
		Reservations: cache.NewReservationStore(cache.Rdb, cache.DefaultReservationTTL),
		Clock:        quartz.NewReal(),
		Logger:       logger,
	}
}

// NewBlackjackRoomFromLobby creates a blackjack room for the lobby's members
// and issues one single-use seat reservation per member. The lobby's first
// member carries the leader role into the room. Each member receives a
// private game_start message containing the room id and their seat token.
func (rs *RoomServer) NewBlackjackRoomFromLobby(ctx context.Context, l *lobby.Lobby) (*game.Room, error) {
	room, bj := game.NewBlackjackRoom(rs.Clock, rs.Logger)
	room.BroadcastFn = createBroadcastFunc(room, rs.Logger)
	room.SendToFn = createSendToFunc(room, rs.Logger)
	room.OnEmpty = func(roomID uuid.UUID) {
		rs.RoomStore.DeleteRoom(roomID)
	}
	bj.OnRoundEnd = func(roomID uuid.UUID, results game.GameOverResults) {
		// Called with the room lock held; hand persistence off.
		record := cache.RoundResultRecord{
			RoomID:      roomID,
			Winners:     results.Winners,
			DealerScore: results.DealerScore,
			DealerBust:  results.DealerBust,
			Timestamp:   time.Now().Unix(),
		}
		go rs.persistRoundResult(record)
	}
	rs.RoomStore.AddRoom(room)

	l.Mu.Lock()
	members := l.Members()
	leaderID := l.LeaderSessionID()

	type issued struct {
		conn  *lobby.Connection
		token string
	}
	var tokens []issued
	for _, member := range members {
		res := cache.Reservation{
			Token:     uuid.New(),
			RoomID:    room.ID,
			SessionID: member.SessionID,
			Username:  member.Username,
			AvatarURL: member.AvatarURL,
			IsLeader:  member.SessionID == leaderID,
		}
		if err := rs.Reservations.Put(ctx, res); err != nil {
			l.Mu.Unlock()
			rs.RoomStore.DeleteRoom(room.ID)
			return nil, err
		}
		tokens = append(tokens, issued{conn: member, token: res.Token.String()})
	}

	l.InGame = true
	l.RoomID = room.ID
	for _, iss := range tokens {
		iss.conn.Write(map[string]interface{}{
			"type":       "game_start",
			"room_id":    room.ID.String(),
			"seat_token": iss.token,
		})
	}
	l.Mu.Unlock()

	rs.Logger.WithFields(logrus.Fields{
		"lobby":   l.ID.String(),
		"room":    room.ID.String(),
		"members": len(members),
	}).Info("blackjack room created from lobby")
	return room, nil
}

// persistRoundResult pushes the round outcome onto the result queue and
// stores it in postgres. Failures are logged, never surfaced to the table.
func (rs *RoomServer) persistRoundResult(record cache.RoundResultRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.PublishRoundResult(ctx, record); err != nil {
		rs.Logger.WithError(err).Warn("failed to publish round result")
	}
	if database.DB != nil {
		finishedAt := time.Unix(record.Timestamp, 0)
		if err := database.InsertRoundResult(ctx, record.RoomID, record.Winners, record.DealerScore, record.DealerBust, finishedAt); err != nil {
			rs.Logger.WithError(err).Warn("failed to store round result")
		}
	}
}

// createBroadcastFunc returns a Room.BroadcastFn. It runs with the room lock
// held, so it snapshots the connection list synchronously and writes
// asynchronously.
func createBroadcastFunc(room *game.Room, logger *logrus.Logger) func(ev game.Event) {
	return func(ev game.Event) {
		conns := room.ConnectedConnsUnsafe()

		data, err := json.Marshal(ev)
		if err != nil {
			logger.WithError(err).Errorf("failed to marshal %s broadcast", ev.Type)
			return
		}

		go func(conns []*websocket.Conn, data []byte) {
			for _, c := range conns {
				writeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				err := c.Write(writeCtx, websocket.MessageText, data)
				cancel()
				if err != nil {
					logger.WithError(err).Warnf("failed to write %s broadcast", ev.Type)
				}
			}
		}(conns, data)
	}
}

// createSendToFunc returns a Room.SendToFn targeting a single session. Also
// runs with the room lock held.
func createSendToFunc(room *game.Room, logger *logrus.Logger) func(sessionID string, ev game.Event) {
	return func(sessionID string, ev game.Event) {
		conn := room.ConnUnsafe(sessionID)
		if conn == nil {
			return
		}

		data, err := json.Marshal(ev)
		if err != nil {
			logger.WithError(err).Errorf("failed to marshal %s event", ev.Type)
			return
		}

		go func(conn *websocket.Conn, data []byte) {
			writeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
				logger.WithError(err).Warnf("failed to write %s event to %s", ev.Type, sessionID)
			}
		}(conn, data)
	}
}
