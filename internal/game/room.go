package game

import (
	"math/rand"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/deckards/deckards-server/internal/models"
)

// Ruleset is the extension surface a concrete card game implements on top of
// the generic room container. The container owns the deck, membership and
// leader bookkeeping; everything game-specific flows through these hooks.
// All hooks are invoked with the room mutex held.
type Ruleset interface {
	Name() string
	MinPlayers() int
	MaxPlayers() int
	NumDecks() int

	// HandleIntent routes a client intent (start_game, hit, stand, ...).
	HandleIntent(sessionID string, intent models.Intent)

	// HandleCardPlay handles the generic play_card message for rulesets
	// where players select a card from their hand.
	HandleCardPlay(sessionID string, cardIndex int)

	// OnJoin runs after a player has been seated.
	OnJoin(p *models.Player)

	// OnLeave runs while the departing player is still seated, so the
	// ruleset can settle turn ownership before the seat disappears.
	OnLeave(p *models.Player)

	// OnDispose runs when the last player leaves; rulesets cancel their
	// timers here so nothing fires against a dead room.
	OnDispose()

	// Snapshot builds the redacted observer projection of the room.
	Snapshot() *RoomSnapshot
}

// Room is the shared mutable aggregate for one game instance. Every intent
// and timer callback targeting the room serializes through Mu, so state is
// only ever mutated by one caller at a time. Clients observe the state
// exclusively through redacted snapshots.
type Room struct {
	ID uuid.UUID

	// players is insertion-ordered: index order is join order, which also
	// defines deal order, turn order and leader succession.
	players []*models.Player
	deck    []*models.Card

	currentTurn   string
	leader        string
	roundTimeLeft int

	locked   bool
	disposed bool

	rng   *rand.Rand
	clock quartz.Clock
	rules Ruleset

	// BroadcastFn fans an event out to every connected player. SendToFn
	// targets a single session. Both are fire-and-forget: a lost update is
	// superseded by the next full snapshot.
	BroadcastFn func(ev Event)
	SendToFn    func(sessionID string, ev Event)

	// OnEmpty is invoked (outside the lock) after the last player leaves,
	// typically to drop the room from its store.
	OnEmpty func(roomID uuid.UUID)

	log *logrus.Entry
	Mu  sync.Mutex
}

// NewRoom builds an empty container. The ruleset is attached by the concrete
// game constructor before the room is exposed to clients.
func NewRoom(clock quartz.Clock, logger *logrus.Logger) *Room {
	id := uuid.New()
	return &Room{
		ID:    id,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		clock: clock,
		log:   logger.WithField("room", id.String()),
	}
}

// SetRuleset attaches the concrete game. Must be called exactly once before
// the room accepts joins.
func (r *Room) SetRuleset(rules Ruleset) {
	r.rules = rules
}

// Rules returns the attached ruleset.
func (r *Room) Rules() Ruleset {
	return r.rules
}

// Clock returns the room's time source.
func (r *Room) Clock() quartz.Clock {
	return r.clock
}

// Join seats a new player. claimsLeader is set for the player the lobby
// designated as leader; otherwise the first joiner becomes leader if the
// seat is vacant. Returns ErrRoomFull or ErrRoomLocked without mutating
// state when the join is rejected.
func (r *Room) Join(sessionID, username, avatarURL string, claimsLeader bool, conn *websocket.Conn) (*models.Player, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.disposed {
		return nil, ErrRoomLocked
	}
	if r.locked {
		return nil, ErrRoomLocked
	}
	if len(r.players) >= r.rules.MaxPlayers() {
		r.log.WithField("player", username).Warn("join rejected, room is full")
		return nil, ErrRoomFull
	}

	if claimsLeader {
		r.leader = sessionID
		r.log.WithField("player", username).Info("game leader set from lobby")
	} else if len(r.players) == 0 && r.leader == "" {
		r.leader = sessionID
		r.log.WithField("player", username).Info("game leader set by join order")
	}

	p := &models.Player{
		SessionID: sessionID,
		Username:  username,
		AvatarURL: avatarURL,
		Hand:      []*models.Card{},
		Connected: true,
		Conn:      conn,
	}
	r.players = append(r.players, p)
	r.log.WithFields(logrus.Fields{"player": username, "session": sessionID}).Info("player joined")

	r.rules.OnJoin(p)
	r.fireEvent(Event{Type: EventRoomState, State: r.rules.Snapshot()})
	return p, nil
}

// Leave removes a player and their hand from the room. Discarded cards are
// not returned to the shoe. If the leaver held the leader seat it passes to
// the next player in join order; if they held the turn the ruleset's OnLeave
// hook settles it before the seat is removed.
func (r *Room) Leave(sessionID string) {
	r.Mu.Lock()

	idx := r.sessionIndex(sessionID)
	if idx < 0 {
		r.Mu.Unlock()
		return
	}
	p := r.players[idx]
	r.log.WithField("player", p.Username).Info("player left")

	r.rules.OnLeave(p)

	// OnLeave may advance the turn; re-resolve the index in case the slice
	// was not what it was when we entered.
	idx = r.sessionIndex(sessionID)
	if idx >= 0 {
		r.players = append(r.players[:idx], r.players[idx+1:]...)
	}

	if r.leader == sessionID {
		if len(r.players) > 0 {
			r.leader = r.players[0].SessionID
			r.log.WithField("leader", r.leader).Info("leadership transferred")
		} else {
			r.leader = ""
		}
	}

	var onEmpty func(uuid.UUID)
	if len(r.players) == 0 && !r.disposed {
		r.disposed = true
		r.rules.OnDispose()
		onEmpty = r.OnEmpty
		r.log.Info("room empty, disposing")
	} else {
		r.fireEvent(Event{Type: EventRoomState, State: r.rules.Snapshot()})
	}
	r.Mu.Unlock()

	if onEmpty != nil {
		onEmpty(r.ID)
	}
}

// HandleIntent forwards a client intent into the ruleset.
// Assumes lock is held by the caller (the WS read loop).
func (r *Room) HandleIntent(sessionID string, intent models.Intent) {
	if r.disposed {
		return
	}
	if intent.Type == "play_card" {
		r.rules.HandleCardPlay(sessionID, intent.CardIndex)
		return
	}
	r.rules.HandleIntent(sessionID, intent)
}

// shuffleDeck replaces the shoe with a freshly generated, freshly shuffled
// one. Cards from the previous round are never reused. Assumes lock is held.
func (r *Room) shuffleDeck(numDecks int) {
	deck := GenerateDeck(numDecks)
	shuffle(deck, r.rng)
	r.deck = deck
}

// draw pops the top card of the shoe. Assumes lock is held.
func (r *Room) draw() (*models.Card, error) {
	if len(r.deck) == 0 {
		r.log.Error("draw from empty deck; shoe invariant violated")
		return nil, ErrEmptyDeck
	}
	card := r.deck[len(r.deck)-1]
	r.deck = r.deck[:len(r.deck)-1]
	return card, nil
}

// dealCards deals amount cards to every seated player, round-robin: one card
// per player per pass, in join order. Dealt cards are revealed and tagged
// with their owner. Assumes lock is held.
func (r *Room) dealCards(amount int) error {
	for i := 0; i < amount; i++ {
		for _, p := range r.players {
			card, err := r.draw()
			if err != nil {
				return err
			}
			card.IsHidden = false
			card.OwnerID = p.SessionID
			p.Hand = append(p.Hand, card)
		}
	}
	return nil
}

// lock closes the room to new joins for the duration of a round.
// Assumes lock is held.
func (r *Room) lockJoins() {
	r.locked = true
}

// unlockJoins reopens the room. Assumes lock is held.
func (r *Room) unlockJoins() {
	r.locked = false
}

// playerBySession returns the seated player for a session, or nil.
// Assumes lock is held.
func (r *Room) playerBySession(sessionID string) *models.Player {
	idx := r.sessionIndex(sessionID)
	if idx < 0 {
		return nil
	}
	return r.players[idx]
}

// sessionIndex returns the join-order index for a session, or -1.
// Assumes lock is held.
func (r *Room) sessionIndex(sessionID string) int {
	for i, p := range r.players {
		if p.SessionID == sessionID {
			return i
		}
	}
	return -1
}

// fireEvent broadcasts to all connected players. Assumes lock is held.
func (r *Room) fireEvent(ev Event) {
	if r.BroadcastFn != nil {
		r.BroadcastFn(ev)
	}
}

// fireEventTo sends to a single session. Assumes lock is held.
func (r *Room) fireEventTo(sessionID string, ev Event) {
	if r.SendToFn != nil {
		r.SendToFn(sessionID, ev)
	}
}

// fireError reports a validation failure to the offending client only.
// Assumes lock is held.
func (r *Room) fireError(sessionID string, err error) {
	r.fireEventTo(sessionID, Event{Type: EventError, Message: err.Error()})
}

// ConnectedConnsUnsafe returns the live websocket connections of every
// connected player. Assumes lock is held.
func (r *Room) ConnectedConnsUnsafe() []*websocket.Conn {
	conns := make([]*websocket.Conn, 0, len(r.players))
	for _, p := range r.players {
		if p.Connected && p.Conn != nil {
			conns = append(conns, p.Conn)
		}
	}
	return conns
}

// ConnUnsafe returns the connection for one session, or nil. Assumes lock is
// held.
func (r *Room) ConnUnsafe(sessionID string) *websocket.Conn {
	p := r.playerBySession(sessionID)
	if p == nil || !p.Connected {
		return nil
	}
	return p.Conn
}

// Disposed reports whether the room has been torn down.
func (r *Room) Disposed() bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.disposed
}
