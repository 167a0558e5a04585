package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckards/deckards-server/internal/models"
)

// mockBroadcaster collects events instead of sending them over WS.
type mockBroadcaster struct {
	mu           sync.Mutex
	events       []Event
	playerEvents map[string][]Event
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{playerEvents: make(map[string][]Event)}
}

func (mb *mockBroadcaster) broadcast(ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.events = append(mb.events, ev)
}

func (mb *mockBroadcaster) sendTo(sessionID string, ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[sessionID] = append(mb.playerEvents[sessionID], ev)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.events = nil
	mb.playerEvents = make(map[string][]Event)
}

func (mb *mockBroadcaster) eventsOfType(t EventType) []Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []Event
	for _, ev := range mb.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (mb *mockBroadcaster) lastPlayerEvent(sessionID string) *Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events := mb.playerEvents[sessionID]
	if len(events) == 0 {
		return nil
	}
	return &events[len(events)-1]
}

// setupBlackjack joins numPlayers into a fresh room on a mock clock. Sessions
// are s1..sN in join order, so s1 holds the leader seat.
func setupBlackjack(t *testing.T, numPlayers int) (*Room, *Blackjack, *mockBroadcaster, *quartz.Mock) {
	t.Helper()

	clock := quartz.NewMock(t)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	room, bj := NewBlackjackRoom(clock, logger)
	mb := newMockBroadcaster()
	room.BroadcastFn = mb.broadcast
	room.SendToFn = mb.sendTo

	for i := 1; i <= numPlayers; i++ {
		_, err := room.Join(fmt.Sprintf("s%d", i), fmt.Sprintf("player%d", i), "", false, nil)
		require.NoError(t, err)
	}
	mb.clear()
	return room, bj, mb, clock
}

func sendIntent(room *Room, sessionID, typ string) {
	room.Mu.Lock()
	room.HandleIntent(sessionID, models.Intent{Type: typ})
	room.Mu.Unlock()
}

// stackTop places cards on top of the shoe so they come off in the given
// order.
func stackTop(room *Room, ranks ...string) {
	for i := len(ranks) - 1; i >= 0; i-- {
		room.deck = append(room.deck, &models.Card{Suit: "S", Rank: ranks[i], IsHidden: true})
	}
}

func advanceSeconds(t *testing.T, clock *quartz.Mock, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		clock.Advance(time.Second).MustWait(ctx)
	}
}

func TestStartRoundDealShape(t *testing.T) {
	room, bj, mb, _ := setupBlackjack(t, 3)

	sendIntent(room, "s1", "start_game")

	room.Mu.Lock()
	defer room.Mu.Unlock()

	require.True(t, bj.roundActive)
	assert.True(t, room.locked, "room locks for the round")
	assert.Equal(t, "s1", room.currentTurn, "first joiner opens the round")
	assert.Equal(t, turnSeconds, room.roundTimeLeft)

	for _, p := range room.players {
		require.Len(t, p.Hand, 2)
		for _, c := range p.Hand {
			assert.False(t, c.IsHidden, "player cards are dealt face up")
			assert.Equal(t, p.SessionID, c.OwnerID)
		}
		assert.Equal(t, Score(p.Hand), p.RoundScore)
	}

	require.Len(t, bj.dealerHand, 2)
	assert.False(t, bj.dealerHand[0].IsHidden, "up card is revealed")
	assert.True(t, bj.dealerHand[1].IsHidden, "hole card stays concealed")

	// 3 players x 2 cards + 2 dealer cards out of a six-deck shoe.
	assert.Equal(t, 6*52-8, len(room.deck))

	assert.NotEmpty(t, mb.eventsOfType(EventRoundStarted))
}

func TestSnapshotConcealsHoleCard(t *testing.T) {
	room, bj, _, _ := setupBlackjack(t, 1)

	sendIntent(room, "s1", "start_game")

	room.Mu.Lock()
	defer room.Mu.Unlock()

	snap := bj.Snapshot()
	require.Len(t, snap.DealerHand, 2)

	hole := snap.DealerHand[1]
	assert.True(t, hole.Hidden)
	assert.Empty(t, hole.Suit, "hole card suit must not reach the wire")
	assert.Empty(t, hole.Rank, "hole card rank must not reach the wire")

	up := bj.dealerHand[0]
	assert.Equal(t, Score([]*models.Card{up}), snap.DealerScore,
		"broadcast dealer score covers visible cards only")
}

func TestStartRoundRequiresLeader(t *testing.T) {
	room, bj, mb, _ := setupBlackjack(t, 2)

	sendIntent(room, "s2", "start_game")

	room.Mu.Lock()
	assert.False(t, bj.roundActive, "round must not start")
	room.Mu.Unlock()

	ev := mb.lastPlayerEvent("s2")
	require.NotNil(t, ev)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, ErrNotLeader.Error(), ev.Message)
}

func TestHitOutOfTurn(t *testing.T) {
	room, _, mb, _ := setupBlackjack(t, 2)
	sendIntent(room, "s1", "start_game")

	sendIntent(room, "s2", "hit")

	room.Mu.Lock()
	p2 := room.playerBySession("s2")
	assert.Len(t, p2.Hand, 2, "out-of-turn hit must not deal a card")
	room.Mu.Unlock()

	ev := mb.lastPlayerEvent("s2")
	require.NotNil(t, ev)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, ErrNotYourTurn.Error(), ev.Message)
}

func TestStandRotationThroughDealerPlay(t *testing.T) {
	room, bj, mb, _ := setupBlackjack(t, 3)
	sendIntent(room, "s1", "start_game")

	sendIntent(room, "s1", "stand")
	room.Mu.Lock()
	assert.Equal(t, "s2", room.currentTurn)
	room.Mu.Unlock()

	sendIntent(room, "s2", "stand")
	room.Mu.Lock()
	assert.Equal(t, "s3", room.currentTurn)
	room.Mu.Unlock()

	sendIntent(room, "s3", "stand")

	room.Mu.Lock()
	defer room.Mu.Unlock()

	assert.False(t, bj.roundActive, "round ends once every player has stood")
	assert.Empty(t, room.currentTurn)
	assert.GreaterOrEqual(t, bj.dealerScore, dealerStandScore, "dealer draws to seventeen")
	assert.False(t, bj.dealerHand[1].IsHidden, "hole card revealed for dealer play")

	overs := mb.eventsOfType(EventGameOver)
	require.Len(t, overs, 1)
	require.NotNil(t, overs[0].Results)
	assert.Equal(t, bj.dealerScore, overs[0].Results.DealerScore)
}

func TestHitBustAdvancesTurn(t *testing.T) {
	room, bj, _, _ := setupBlackjack(t, 2)
	sendIntent(room, "s1", "start_game")

	room.Mu.Lock()
	p1 := room.playerBySession("s1")
	p1.Hand = hand("K", "Q")
	bj.updateScores()
	stackTop(room, "5")
	room.Mu.Unlock()

	sendIntent(room, "s1", "hit")

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.True(t, p1.IsBusted)
	assert.True(t, p1.IsStanding)
	assert.Equal(t, 25, p1.RoundScore)
	assert.Equal(t, "s2", room.currentTurn, "busting passes the turn")
}

func TestStandReplayAfterRoundOverIsIgnored(t *testing.T) {
	room, bj, mb, _ := setupBlackjack(t, 2)

	roundEnds := 0
	bj.OnRoundEnd = func(uuid.UUID, GameOverResults) { roundEnds++ }

	sendIntent(room, "s1", "start_game")

	room.Mu.Lock()
	p1 := room.playerBySession("s1")
	p1.Hand = hand("K", "Q")
	bj.updateScores()
	stackTop(room, "5")
	room.Mu.Unlock()

	sendIntent(room, "s1", "hit")
	sendIntent(room, "s2", "stand")

	room.Mu.Lock()
	require.True(t, p1.IsBusted)
	require.False(t, bj.roundActive)
	room.Mu.Unlock()
	require.Len(t, mb.eventsOfType(EventGameOver), 1)
	require.Equal(t, 1, roundEnds)

	// A busted player's stand may scrape in after settlement; the dealer
	// must not play the round again.
	sendIntent(room, "s1", "stand")

	assert.Len(t, mb.eventsOfType(EventGameOver), 1, "settled round must not settle twice")
	assert.Equal(t, 1, roundEnds, "round results must not be reported twice")
}

func TestHitToTwentyOneAutoStands(t *testing.T) {
	room, bj, _, _ := setupBlackjack(t, 2)
	sendIntent(room, "s1", "start_game")

	room.Mu.Lock()
	p1 := room.playerBySession("s1")
	p1.Hand = hand("5", "6")
	bj.updateScores()
	stackTop(room, "10")
	room.Mu.Unlock()

	sendIntent(room, "s1", "hit")

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Equal(t, 21, p1.RoundScore)
	assert.True(t, p1.IsStanding, "an exact 21 stands automatically")
	assert.False(t, p1.IsBusted)
	assert.Equal(t, "s2", room.currentTurn)
}

func TestTurnTimeoutAutoStands(t *testing.T) {
	room, _, _, clock := setupBlackjack(t, 2)
	sendIntent(room, "s1", "start_game")

	advanceSeconds(t, clock, turnSeconds)

	room.Mu.Lock()
	p1 := room.playerBySession("s1")
	assert.True(t, p1.IsStanding, "timed-out player is stood automatically")
	assert.Equal(t, "s2", room.currentTurn)
	assert.Equal(t, turnSeconds, room.roundTimeLeft,
		"a tick landing on the handoff instant must not shave the fresh timer")
	room.Mu.Unlock()

	advanceSeconds(t, clock, 2)

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Equal(t, "s2", room.currentTurn)
	assert.Less(t, room.roundTimeLeft, turnSeconds, "successor countdown keeps ticking")
}

func TestCountdownDecrementsEachSecond(t *testing.T) {
	room, _, _, clock := setupBlackjack(t, 2)
	sendIntent(room, "s1", "start_game")

	advanceSeconds(t, clock, 3)

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Equal(t, turnSeconds-3, room.roundTimeLeft)
	assert.Equal(t, "s1", room.currentTurn, "turn unchanged before the timeout")
}

func TestLeaveMidTurnAdvancesAndTransfersLeadership(t *testing.T) {
	room, _, _, _ := setupBlackjack(t, 3)
	sendIntent(room, "s1", "start_game")

	room.Leave("s1")

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.Len(t, room.players, 2)
	assert.Equal(t, "s2", room.currentTurn, "turn passes when the holder leaves")
	assert.Equal(t, "s2", room.leader, "leadership passes in join order")
	assert.Nil(t, room.playerBySession("s1"))
}

func TestJoinRejectedWhenFull(t *testing.T) {
	room, _, _, _ := setupBlackjack(t, BlackjackMaxPlayers)

	_, err := room.Join("s8", "player8", "", false, nil)
	assert.ErrorIs(t, err, ErrRoomFull)

	room.Mu.Lock()
	assert.Len(t, room.players, BlackjackMaxPlayers)
	room.Mu.Unlock()
}

func TestJoinRejectedWhileRoundActive(t *testing.T) {
	room, _, _, _ := setupBlackjack(t, 2)
	sendIntent(room, "s1", "start_game")

	_, err := room.Join("s3", "player3", "", false, nil)
	assert.ErrorIs(t, err, ErrRoomLocked)
}

func TestRoundOverUnlocksThenAutoRestarts(t *testing.T) {
	room, bj, mb, clock := setupBlackjack(t, 1)
	sendIntent(room, "s1", "start_game")
	sendIntent(room, "s1", "stand")

	room.Mu.Lock()
	require.False(t, bj.roundActive, "round is over after the lone player stands")
	require.True(t, room.locked, "room stays locked right after the round")
	room.Mu.Unlock()

	advanceSeconds(t, clock, 3)
	room.Mu.Lock()
	assert.False(t, room.locked, "room reopens three seconds after the round")
	room.Mu.Unlock()

	mb.clear()
	advanceSeconds(t, clock, 7)

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.True(t, bj.roundActive, "next round starts automatically")
	assert.True(t, room.locked)
	p1 := room.playerBySession("s1")
	assert.Len(t, p1.Hand, 2)
	assert.False(t, p1.IsStanding, "player state resets for the new round")
	assert.NotEmpty(t, mb.eventsOfType(EventRoundStarted))
}

func TestDetermineWinners(t *testing.T) {
	t.Run("dealer stands", func(t *testing.T) {
		room, bj, mb, _ := setupBlackjack(t, 3)

		room.Mu.Lock()
		p1 := room.playerBySession("s1")
		p2 := room.playerBySession("s2")
		p3 := room.playerBySession("s3")
		p1.Hand = hand("K", "K", "5")
		p1.IsBusted = true
		p2.Hand = hand("K", "9")
		p3.Hand = hand("K", "7")
		bj.dealerHand = hand("K", "7")
		bj.roundActive = true
		bj.updateScores()
		bj.determineWinners()
		room.Mu.Unlock()

		overs := mb.eventsOfType(EventGameOver)
		require.Len(t, overs, 1)
		results := overs[0].Results
		require.NotNil(t, results)
		assert.Equal(t, []string{"player2"}, results.Winners, "beat the dealer to win; a tie pushes")
		assert.Equal(t, 17, results.DealerScore)
		assert.False(t, results.DealerBust)
	})

	t.Run("dealer busts", func(t *testing.T) {
		room, bj, mb, _ := setupBlackjack(t, 3)

		room.Mu.Lock()
		p1 := room.playerBySession("s1")
		p2 := room.playerBySession("s2")
		p3 := room.playerBySession("s3")
		p1.Hand = hand("K", "K", "5")
		p1.IsBusted = true
		p2.Hand = hand("K", "9")
		p3.Hand = hand("2", "3")
		bj.dealerHand = hand("K", "Q", "5")
		bj.roundActive = true
		bj.updateScores()
		bj.determineWinners()
		room.Mu.Unlock()

		overs := mb.eventsOfType(EventGameOver)
		require.Len(t, overs, 1)
		results := overs[0].Results
		require.NotNil(t, results)
		assert.Equal(t, []string{"player2", "player3"}, results.Winners,
			"every non-busted player beats a busted dealer")
		assert.True(t, results.DealerBust)
	})
}

func TestRoundEndCallback(t *testing.T) {
	room, bj, _, _ := setupBlackjack(t, 1)

	var gotRoom uuid.UUID
	var gotResults GameOverResults
	called := false
	bj.OnRoundEnd = func(roomID uuid.UUID, results GameOverResults) {
		called = true
		gotRoom = roomID
		gotResults = results
	}

	sendIntent(room, "s1", "start_game")
	sendIntent(room, "s1", "stand")

	require.True(t, called)
	assert.Equal(t, room.ID, gotRoom)
	assert.GreaterOrEqual(t, gotResults.DealerScore, dealerStandScore)
}

func TestEmptyDeckAbortsRound(t *testing.T) {
	room, bj, mb, _ := setupBlackjack(t, 1)
	sendIntent(room, "s1", "start_game")

	room.Mu.Lock()
	room.deck = nil
	room.Mu.Unlock()

	sendIntent(room, "s1", "hit")

	room.Mu.Lock()
	defer room.Mu.Unlock()
	assert.False(t, bj.roundActive, "an exhausted shoe aborts the round")
	assert.False(t, room.locked, "aborted round reopens the room")

	errs := mb.eventsOfType(EventError)
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrEmptyDeck.Error(), errs[len(errs)-1].Message)
}

func TestLastLeaverDisposesRoom(t *testing.T) {
	room, _, _, _ := setupBlackjack(t, 2)

	var emptied uuid.UUID
	room.OnEmpty = func(roomID uuid.UUID) { emptied = roomID }

	room.Leave("s1")
	assert.False(t, room.Disposed())

	room.Leave("s2")
	assert.True(t, room.Disposed())
	assert.Equal(t, room.ID, emptied)

	_, err := room.Join("s3", "player3", "", false, nil)
	assert.ErrorIs(t, err, ErrRoomLocked, "disposed rooms accept no joins")
}
