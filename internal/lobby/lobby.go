package lobby

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deckards/deckards-server/internal/game"
)

const (
	// DefaultGameMode is the only game currently served.
	DefaultGameMode = "blackjack"

	autoStartCountdownSec = 10
)

// Connection is a single user's live presence in a lobby.
type Connection struct {
	SessionID string
	UserID    uuid.UUID
	Username  string
	AvatarURL string
	Cancel    func()
	OutChan   chan map[string]interface{}
}

// Write pushes a message onto the connection's OutChan without blocking.
// Dropped messages are logged.
func (conn *Connection) Write(msg map[string]interface{}) {
	select {
	case conn.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		log.Printf("lobby connection %s: OutChan closed or full, dropped message type %q", conn.SessionID, msgType)
	}
}

// WriteError is a convenience to send an error object.
func (conn *Connection) WriteError(msg string) {
	conn.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}

// Lobby is an ephemeral staging area where players gather, pick a game and
// ready up before being handed off to a room. Members keep their join order;
// the first member is the leader and carries that role into the room.
type Lobby struct {
	ID uuid.UUID

	GameMode   string
	MaxPlayers int

	// members in join order. members[0] is the leader.
	members     []*Connection
	readyStates map[string]bool

	InGame bool
	RoomID uuid.UUID

	CountdownTimer *time.Timer

	// OnEmpty is called after the last member leaves, typically wired to
	// the store's DeleteLobby.
	OnEmpty func(lobbyID uuid.UUID)

	Mu sync.Mutex
}

// NewLobbyWithDefaults creates an empty lobby configured for a default
// seven-seat blackjack table.
func NewLobbyWithDefaults() *Lobby {
	id, _ := uuid.NewRandom()
	return &Lobby{
		ID:          id,
		GameMode:    DefaultGameMode,
		MaxPlayers:  game.BlackjackMaxPlayers,
		readyStates: make(map[string]bool),
	}
}

// SelectGame validates and applies the leader's game choice. Assumes lock is
// held.
func (l *Lobby) SelectGame(gameMode string, maxPlayers int) error {
	if gameMode != DefaultGameMode {
		return game.ErrInvalidGameSelection
	}
	if maxPlayers < game.BlackjackMinPlayers || maxPlayers > game.BlackjackMaxPlayers {
		return game.ErrInvalidGameSelection
	}
	l.GameMode = gameMode
	l.MaxPlayers = maxPlayers
	l.broadcastStateUnsafe()
	return nil
}

// AddConnection seats a new member at the end of the join order. Acquires
// the lock.
func (l *Lobby) AddConnection(conn *Connection) error {
	l.Mu.Lock()

	if l.InGame {
		l.Mu.Unlock()
		return game.ErrRoomLocked
	}
	if len(l.members) >= l.MaxPlayers {
		l.Mu.Unlock()
		return game.ErrRoomFull
	}

	// Replace a stale connection for the same session rather than seating
	// the user twice.
	for i, existing := range l.members {
		if existing.SessionID == conn.SessionID {
			close(existing.OutChan)
			if existing.Cancel != nil {
				existing.Cancel()
			}
			l.members[i] = conn
			l.readyStates[conn.SessionID] = false
			l.broadcastStateUnsafe()
			l.Mu.Unlock()
			return nil
		}
	}

	l.members = append(l.members, conn)
	l.readyStates[conn.SessionID] = false

	log.Printf("lobby %s: %s (%s) joined, %d member(s)", l.ID, conn.Username, conn.SessionID, len(l.members))

	l.broadcastUnsafe(map[string]interface{}{
		"type":      "lobby_update",
		"user_join": conn.SessionID,
		"username":  conn.Username,
	})
	conn.Write(l.statePayloadUnsafe(conn.SessionID))

	l.Mu.Unlock()
	return nil
}

// RemoveConnection removes a member. Leadership passes to the next member in
// join order. Acquires the lock.
func (l *Lobby) RemoveConnection(sessionID string) {
	l.Mu.Lock()

	idx := -1
	for i, conn := range l.members {
		if conn.SessionID == sessionID {
			idx = i
			break
		}
	}
	if idx == -1 {
		l.Mu.Unlock()
		return
	}

	conn := l.members[idx]
	go func(ch chan map[string]interface{}, cancel func()) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("lobby %s: recovered closing OutChan for %s: %v", l.ID, sessionID, r)
			}
		}()
		close(ch)
		if cancel != nil {
			cancel()
		}
	}(conn.OutChan, conn.Cancel)

	l.members = append(l.members[:idx], l.members[idx+1:]...)
	delete(l.readyStates, sessionID)

	log.Printf("lobby %s: %s left, %d member(s) remain", l.ID, sessionID, len(l.members))

	l.cancelCountdownUnsafe()

	isEmpty := len(l.members) == 0
	onEmpty := l.OnEmpty
	if !isEmpty {
		l.broadcastUnsafe(map[string]interface{}{
			"type":      "lobby_update",
			"user_left": sessionID,
			"username":  conn.Username,
		})
		l.broadcastStateUnsafe()
	}

	l.Mu.Unlock()

	if isEmpty && onEmpty != nil {
		onEmpty(l.ID)
	}
}

// LeaderSessionID returns the current leader. Assumes lock is held.
func (l *Lobby) LeaderSessionID() string {
	if len(l.members) == 0 {
		return ""
	}
	return l.members[0].SessionID
}

// IsLeader reports whether sessionID currently leads the lobby. Assumes lock
// is held.
func (l *Lobby) IsLeader(sessionID string) bool {
	return sessionID != "" && l.LeaderSessionID() == sessionID
}

// MarkReady flags a member as ready and reports whether an auto-start
// countdown should begin. Assumes lock is held.
func (l *Lobby) MarkReady(sessionID string) bool {
	conn := l.memberUnsafe(sessionID)
	if conn == nil || l.readyStates[sessionID] {
		return false
	}
	l.readyStates[sessionID] = true

	l.broadcastUnsafe(map[string]interface{}{
		"type":     "ready_update",
		"id":       sessionID,
		"username": conn.Username,
		"is_ready": true,
	})

	return l.allReadyUnsafe() && !l.InGame
}

// MarkUnready clears a member's ready flag and cancels any pending
// auto-start. Assumes lock is held.
func (l *Lobby) MarkUnready(sessionID string) {
	conn := l.memberUnsafe(sessionID)
	if conn == nil || !l.readyStates[sessionID] {
		return
	}
	l.readyStates[sessionID] = false

	l.broadcastUnsafe(map[string]interface{}{
		"type":     "ready_update",
		"id":       sessionID,
		"username": conn.Username,
		"is_ready": false,
	})

	l.cancelCountdownUnsafe()
}

// StartCountdown schedules an auto-start. The callback runs outside the lock
// once the countdown elapses, unless it is cancelled first. Assumes lock is
// held.
func (l *Lobby) StartCountdown(callback func(*Lobby)) bool {
	if l.InGame || l.CountdownTimer != nil {
		return false
	}

	l.broadcastUnsafe(map[string]interface{}{
		"type":    "lobby_countdown_start",
		"seconds": autoStartCountdownSec,
	})

	var timer *time.Timer
	timer = time.AfterFunc(autoStartCountdownSec*time.Second, func() {
		l.Mu.Lock()
		if l.CountdownTimer != timer {
			l.Mu.Unlock()
			return
		}
		l.CountdownTimer = nil
		l.Mu.Unlock()
		callback(l)
	})
	l.CountdownTimer = timer
	return true
}

// BeginStart atomically claims the lobby for a game start, so a leader
// start_game racing the auto-start countdown creates at most one room.
// Returns false if a start already claimed the lobby or no members remain.
// Acquires the lock.
func (l *Lobby) BeginStart() bool {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	if l.InGame || len(l.members) == 0 {
		return false
	}
	l.InGame = true
	return true
}

// AbortStart releases a BeginStart claim after a failed room creation so the
// lobby can try again. Acquires the lock.
func (l *Lobby) AbortStart() {
	l.Mu.Lock()
	l.InGame = false
	l.RoomID = uuid.Nil
	l.Mu.Unlock()
}

func (l *Lobby) cancelCountdownUnsafe() {
	if l.CountdownTimer == nil {
		return
	}
	if l.CountdownTimer.Stop() {
		l.broadcastUnsafe(map[string]interface{}{
			"type": "lobby_countdown_cancel",
		})
	}
	l.CountdownTimer = nil
}

// BroadcastChat relays a chat line from a member. Assumes lock is held.
func (l *Lobby) BroadcastChat(sessionID, msg string) {
	conn := l.memberUnsafe(sessionID)
	if conn == nil {
		return
	}
	l.broadcastUnsafe(map[string]interface{}{
		"type":     "chat",
		"id":       sessionID,
		"username": conn.Username,
		"msg":      msg,
		"ts":       time.Now().Unix(),
	})
}

// Members returns the join-ordered member list. Assumes lock is held.
func (l *Lobby) Members() []*Connection {
	out := make([]*Connection, len(l.members))
	copy(out, l.members)
	return out
}

// SendState sends the full lobby state to one member. Assumes lock is held.
func (l *Lobby) SendState(sessionID string) {
	conn := l.memberUnsafe(sessionID)
	if conn == nil {
		return
	}
	conn.Write(l.statePayloadUnsafe(sessionID))
}

func (l *Lobby) memberUnsafe(sessionID string) *Connection {
	for _, conn := range l.members {
		if conn.SessionID == sessionID {
			return conn
		}
	}
	return nil
}

func (l *Lobby) allReadyUnsafe() bool {
	if len(l.members) == 0 {
		return false
	}
	for _, conn := range l.members {
		if !l.readyStates[conn.SessionID] {
			return false
		}
	}
	return true
}

func (l *Lobby) broadcastUnsafe(msg map[string]interface{}) {
	for _, conn := range l.members {
		conn.Write(msg)
	}
}

func (l *Lobby) broadcastStateUnsafe() {
	for _, conn := range l.members {
		conn.Write(l.statePayloadUnsafe(conn.SessionID))
	}
}

func (l *Lobby) statePayloadUnsafe(sessionID string) map[string]interface{} {
	members := make([]map[string]interface{}, 0, len(l.members))
	for _, conn := range l.members {
		members = append(members, map[string]interface{}{
			"id":        conn.SessionID,
			"username":  conn.Username,
			"avatarUrl": conn.AvatarURL,
			"is_leader": l.IsLeader(conn.SessionID),
			"is_ready":  l.readyStates[conn.SessionID],
		})
	}

	roomIDStr := ""
	if l.RoomID != uuid.Nil {
		roomIDStr = l.RoomID.String()
	}

	return map[string]interface{}{
		"type":        "lobby_state",
		"lobby_id":    l.ID.String(),
		"your_id":     sessionID,
		"game_mode":   l.GameMode,
		"max_players": l.MaxPlayers,
		"in_game":     l.InGame,
		"room_id":     roomIDStr,
		"leader_id":   l.LeaderSessionID(),
		"members":     members,
	}
}
