package lobby

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckards/deckards-server/internal/game"
)

func newTestConn(n int) *Connection {
	return &Connection{
		SessionID: fmt.Sprintf("s%d", n),
		UserID:    uuid.New(),
		Username:  fmt.Sprintf("player%d", n),
		OutChan:   make(chan map[string]interface{}, 64),
	}
}

func addMembers(t *testing.T, l *Lobby, n int) []*Connection {
	t.Helper()
	conns := make([]*Connection, 0, n)
	for i := 1; i <= n; i++ {
		conn := newTestConn(i)
		require.NoError(t, l.AddConnection(conn))
		conns = append(conns, conn)
	}
	return conns
}

func TestJoinOrderAndLeaderSuccession(t *testing.T) {
	l := NewLobbyWithDefaults()
	addMembers(t, l, 3)

	l.Mu.Lock()
	members := l.Members()
	require.Len(t, members, 3)
	assert.Equal(t, "s1", members[0].SessionID)
	assert.Equal(t, "s2", members[1].SessionID)
	assert.Equal(t, "s3", members[2].SessionID)
	assert.Equal(t, "s1", l.LeaderSessionID(), "first joiner leads")
	assert.True(t, l.IsLeader("s1"))
	assert.False(t, l.IsLeader("s2"))
	l.Mu.Unlock()

	l.RemoveConnection("s1")

	l.Mu.Lock()
	defer l.Mu.Unlock()
	assert.Equal(t, "s2", l.LeaderSessionID(), "leadership passes in join order")
}

func TestSelectGameValidation(t *testing.T) {
	l := NewLobbyWithDefaults()
	l.Mu.Lock()
	defer l.Mu.Unlock()

	assert.ErrorIs(t, l.SelectGame("poker", 4), game.ErrInvalidGameSelection)
	assert.ErrorIs(t, l.SelectGame("blackjack", 0), game.ErrInvalidGameSelection)
	assert.ErrorIs(t, l.SelectGame("blackjack", game.BlackjackMaxPlayers+1), game.ErrInvalidGameSelection)

	require.NoError(t, l.SelectGame("blackjack", 5))
	assert.Equal(t, "blackjack", l.GameMode)
	assert.Equal(t, 5, l.MaxPlayers)
}

func TestLobbyRejectsJoinsWhenFull(t *testing.T) {
	l := NewLobbyWithDefaults()
	addMembers(t, l, game.BlackjackMaxPlayers)

	err := l.AddConnection(newTestConn(game.BlackjackMaxPlayers + 1))
	assert.ErrorIs(t, err, game.ErrRoomFull)
}

func TestLobbyRejectsJoinsWhileInGame(t *testing.T) {
	l := NewLobbyWithDefaults()
	l.InGame = true

	err := l.AddConnection(newTestConn(1))
	assert.ErrorIs(t, err, game.ErrRoomLocked)
}

func TestAllReadySignalsAutoStart(t *testing.T) {
	l := NewLobbyWithDefaults()
	addMembers(t, l, 2)

	l.Mu.Lock()
	defer l.Mu.Unlock()
	assert.False(t, l.MarkReady("s1"), "not everyone is ready yet")
	assert.True(t, l.MarkReady("s2"), "last ready member triggers auto-start")
	assert.False(t, l.MarkReady("s2"), "repeat ready is a no-op")
}

func TestUnreadyCancelsCountdown(t *testing.T) {
	l := NewLobbyWithDefaults()
	addMembers(t, l, 2)

	l.Mu.Lock()
	defer l.Mu.Unlock()
	l.MarkReady("s1")
	l.MarkReady("s2")

	require.True(t, l.StartCountdown(func(*Lobby) {}))
	require.NotNil(t, l.CountdownTimer)
	assert.False(t, l.StartCountdown(func(*Lobby) {}), "only one countdown at a time")

	l.MarkUnready("s1")
	assert.Nil(t, l.CountdownTimer, "unready cancels the pending auto-start")
}

func TestBeginStartClaimsLobbyOnce(t *testing.T) {
	l := NewLobbyWithDefaults()
	addMembers(t, l, 2)

	require.True(t, l.BeginStart())
	assert.True(t, l.InGame)
	assert.False(t, l.BeginStart(), "a racing second start must not claim the lobby")

	l.AbortStart()
	assert.False(t, l.InGame)
	assert.True(t, l.BeginStart(), "an aborted start releases the claim")
}

func TestBeginStartRequiresMembers(t *testing.T) {
	l := NewLobbyWithDefaults()
	assert.False(t, l.BeginStart())
}

func TestLastLeaverTriggersOnEmpty(t *testing.T) {
	l := NewLobbyWithDefaults()

	var emptied uuid.UUID
	l.OnEmpty = func(id uuid.UUID) { emptied = id }

	addMembers(t, l, 2)
	l.RemoveConnection("s1")
	assert.Equal(t, uuid.Nil, emptied)

	l.RemoveConnection("s2")
	assert.Equal(t, l.ID, emptied)
}

func TestLobbyStore(t *testing.T) {
	store := NewLobbyStore()
	l := NewLobbyWithDefaults()

	store.AddLobby(l)
	got, ok := store.GetLobby(l.ID)
	require.True(t, ok)
	assert.Same(t, l, got)

	store.DeleteLobby(l.ID)
	_, ok = store.GetLobby(l.ID)
	assert.False(t, ok)
}
