package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/deckards/deckards-server/internal/models"
)

const (
	blackjackDecks      = 6
	BlackjackMinPlayers = 1
	BlackjackMaxPlayers = 7

	turnSeconds      = 20
	dealerStandScore = 17
	dealerDrawPace   = time.Second
	unlockDelay      = 3 * time.Second
	autoRestartDelay = 10 * time.Second
)

// errCountdownDone stops the 1Hz countdown ticker once its round is over.
var errCountdownDone = errors.New("countdown finished")

// Blackjack implements the Ruleset for the blackjack card game: the round
// lifecycle, per-turn timeouts, the dealer's turn and win determination.
//
// Every scheduled callback is stamped with the round generation (and, for
// turn timers, the turn id) at creation and re-validates the stamp under the
// room mutex before mutating anything; a timer surviving a restart or turn
// change is a no-op.
type Blackjack struct {
	room *Room

	dealerHand  []*models.Card
	dealerScore int

	roundActive bool

	// roundGen increments on every round start; turnID on every turn.
	roundGen int
	turnID   int

	turnTimer    *quartz.Timer
	unlockTimer  *quartz.Timer
	restartTimer *quartz.Timer
	paceTimers   []*quartz.Timer

	countdownCancel context.CancelFunc

	// OnRoundEnd, if set, receives each round's results after game_over is
	// broadcast. It runs with the room lock held and must not block;
	// persistence hooks dispatch their own goroutine.
	OnRoundEnd func(roomID uuid.UUID, results GameOverResults)
}

// NewBlackjackRoom builds a room container running the blackjack ruleset.
func NewBlackjackRoom(clock quartz.Clock, logger *logrus.Logger) (*Room, *Blackjack) {
	r := NewRoom(clock, logger)
	b := &Blackjack{room: r}
	r.SetRuleset(b)
	return r, b
}

func (b *Blackjack) Name() string    { return "blackjack" }
func (b *Blackjack) MinPlayers() int { return BlackjackMinPlayers }
func (b *Blackjack) MaxPlayers() int { return BlackjackMaxPlayers }
func (b *Blackjack) NumDecks() int   { return blackjackDecks }

// HandleIntent routes start_game, hit and stand. Assumes lock is held.
func (b *Blackjack) HandleIntent(sessionID string, intent models.Intent) {
	r := b.room
	switch intent.Type {
	case "start_game":
		if sessionID != r.leader {
			r.log.WithField("session", sessionID).Warn("non-leader attempted to start round")
			r.fireError(sessionID, ErrNotLeader)
			return
		}
		b.startRound()
	case "hit":
		b.handleHit(sessionID)
	case "stand":
		b.handleStand(sessionID)
	default:
		r.fireError(sessionID, fmt.Errorf("unknown intent type: %s", intent.Type))
	}
}

// HandleCardPlay is a no-op: blackjack players never select hand cards.
func (b *Blackjack) HandleCardPlay(sessionID string, cardIndex int) {}

func (b *Blackjack) OnJoin(p *models.Player) {}

// OnLeave settles turn ownership before the seat disappears: a departing
// current-turn player is auto-stood so the round can never stall on an
// empty seat. Assumes lock is held and the player is still seated.
func (b *Blackjack) OnLeave(p *models.Player) {
	if b.roundActive && b.room.currentTurn == p.SessionID {
		b.room.log.WithField("player", p.Username).Info("current player left, auto-standing")
		b.stand(p.SessionID)
	}
}

// OnDispose cancels every pending timer so nothing fires against the dead
// room. Assumes lock is held.
func (b *Blackjack) OnDispose() {
	b.roundActive = false
	b.stopTurnTimer()
	b.stopCountdown()
	b.clearUnlockTimer()
	b.clearRestartTimer()
	b.clearPaceTimers()
}

// startRound begins a fresh round: cancels any pending auto-restart, locks
// the room, rebuilds the shoe, deals two cards to every player and the
// dealer (up card revealed, hole card concealed) and opens the first
// player's turn. Assumes lock is held.
func (b *Blackjack) startRound() {
	r := b.room
	if r.disposed || len(r.players) == 0 {
		return
	}

	b.clearRestartTimer()
	b.clearUnlockTimer()
	b.clearPaceTimers()
	b.stopTurnTimer()
	b.stopCountdown()

	b.roundGen++
	b.turnID = 0

	r.lockJoins()
	r.shuffleDeck(b.NumDecks())
	r.fireEvent(Event{Type: EventRoundStarted})
	r.log.WithField("players", len(r.players)).Info("round started")

	for _, p := range r.players {
		p.Hand = p.Hand[:0]
		p.IsStanding = false
		p.IsBusted = false
		p.RoundScore = 0
	}
	b.dealerHand = b.dealerHand[:0]
	b.dealerScore = 0

	if err := r.dealCards(2); err != nil {
		b.abortRound(err)
		return
	}

	upCard, err := r.draw()
	if err != nil {
		b.abortRound(err)
		return
	}
	upCard.IsHidden = false
	b.dealerHand = append(b.dealerHand, upCard)

	holeCard, err := r.draw()
	if err != nil {
		b.abortRound(err)
		return
	}
	holeCard.IsHidden = true
	b.dealerHand = append(b.dealerHand, holeCard)

	b.updateScores()
	b.roundActive = true

	b.setTurn(r.players[0].SessionID)
	b.startCountdown()
}

// handleHit draws one revealed card for the current player and recomputes
// their score. Busting marks the player and stands them internally; an exact
// 21 also auto-stands. Assumes lock is held.
func (b *Blackjack) handleHit(sessionID string) {
	r := b.room
	if sessionID != r.currentTurn {
		r.fireError(sessionID, ErrNotYourTurn)
		return
	}
	p := r.playerBySession(sessionID)
	if p == nil || p.IsStanding || p.IsBusted {
		return
	}

	card, err := r.draw()
	if err != nil {
		b.abortRound(err)
		return
	}
	card.IsHidden = false
	card.OwnerID = p.SessionID
	p.Hand = append(p.Hand, card)
	b.updateScores()

	if p.RoundScore >= 21 {
		if p.RoundScore > 21 {
			p.IsBusted = true
		}
		b.stand(sessionID)
		return
	}
	b.syncState()
}

// handleStand validates a stand intent. A player who has just busted may
// self-stand without holding the turn. Assumes lock is held.
func (b *Blackjack) handleStand(sessionID string) {
	r := b.room
	p := r.playerBySession(sessionID)
	if p == nil {
		return
	}
	if sessionID != r.currentTurn && !p.IsBusted {
		r.fireError(sessionID, ErrNotYourTurn)
		return
	}
	b.stand(sessionID)
}

// stand marks the player standing and advances the turn. Internal entry
// point with no turn check. A stand arriving after the round has settled is
// ignored so the dealer never plays the same round twice. Assumes lock is
// held.
func (b *Blackjack) stand(sessionID string) {
	if !b.roundActive {
		return
	}
	p := b.room.playerBySession(sessionID)
	if p == nil {
		return
	}
	p.IsStanding = true
	b.advanceTurn(sessionID)
}

// advanceTurn scans join order starting after the given player, wrapping
// around and skipping anyone standing or busted. The first eligible player
// gets the turn and a fresh timer; if none remain the dealer plays.
// Assumes lock is held.
func (b *Blackjack) advanceTurn(afterSession string) {
	r := b.room
	b.stopTurnTimer()

	start := r.sessionIndex(afterSession)
	n := len(r.players)
	if n > 0 && start >= 0 {
		for i := 1; i <= n; i++ {
			p := r.players[(start+i)%n]
			if !p.IsStanding && !p.IsBusted {
				b.setTurn(p.SessionID)
				return
			}
		}
	}

	r.currentTurn = ""
	r.roundTimeLeft = 0
	b.playDealerTurn()
}

// setTurn hands the turn to a player and schedules their timeout. The timer
// callback re-validates round generation, turn id and turn ownership before
// auto-standing. Assumes lock is held.
func (b *Blackjack) setTurn(sessionID string) {
	r := b.room
	b.turnID++
	gen, turn := b.roundGen, b.turnID

	r.currentTurn = sessionID
	r.roundTimeLeft = turnSeconds
	b.syncState()

	b.turnTimer = r.clock.AfterFunc(turnSeconds*time.Second, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		if b.roundGen != gen || b.turnID != turn || !b.roundActive || r.currentTurn != sessionID {
			return
		}
		r.log.WithField("session", sessionID).Info("turn timer expired, auto-standing")
		b.stand(sessionID)
	})
}

// startCountdown runs the 1Hz roundTimeLeft tick for this round. The ticker
// stops itself once the round it was started for is over. Assumes lock is
// held.
func (b *Blackjack) startCountdown() {
	r := b.room
	gen := b.roundGen
	lastTurn := b.turnID
	ctx, cancel := context.WithCancel(context.Background())
	b.countdownCancel = cancel

	r.clock.TickerFunc(ctx, time.Second, func() error {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		if b.roundGen != gen || !b.roundActive {
			return errCountdownDone
		}
		if b.turnID != lastTurn {
			// The turn changed since the last tick, possibly in this same
			// instant. The successor's clock starts fresh.
			lastTurn = b.turnID
			return nil
		}
		if r.currentTurn != "" && r.roundTimeLeft > 0 {
			r.roundTimeLeft--
			b.syncState()
		}
		return nil
	}, "roundCountdown")
}

// playDealerTurn reveals the hole card and draws until the dealer reaches
// 17 or better. State settles synchronously; the per-draw delay is purely
// cosmetic pacing for clients. Assumes lock is held.
func (b *Blackjack) playDealerTurn() {
	r := b.room

	if len(b.dealerHand) >= 2 {
		b.dealerHand[1].IsHidden = false
	}
	b.updateScores()
	b.syncState()

	gen := b.roundGen
	draws := 0
	for b.dealerScore < dealerStandScore {
		card, err := r.draw()
		if err != nil {
			b.abortRound(err)
			return
		}
		card.IsHidden = false
		b.dealerHand = append(b.dealerHand, card)
		b.updateScores()

		draws++
		t := r.clock.AfterFunc(time.Duration(draws)*dealerDrawPace, func() {
			r.Mu.Lock()
			defer r.Mu.Unlock()
			if b.roundGen != gen {
				return
			}
			r.fireEvent(Event{Type: EventDealerDraw})
		})
		b.paceTimers = append(b.paceTimers, t)
	}

	b.determineWinners()
}

// determineWinners settles the round: reveals every player's first card,
// computes win/push/lose against the dealer, broadcasts game_over, reopens
// the room after a short delay and schedules the automatic next round.
// Assumes lock is held.
func (b *Blackjack) determineWinners() {
	r := b.room

	for _, p := range r.players {
		if len(p.Hand) > 0 {
			p.Hand[0].IsHidden = false
		}
	}
	b.updateScores()

	dealerScore := b.dealerScore
	dealerBust := dealerScore > 21
	winners := []string{}
	for _, p := range r.players {
		switch {
		case p.IsBusted:
			// busted players lose regardless of the dealer
		case dealerBust:
			winners = append(winners, p.Username)
		case p.RoundScore > dealerScore:
			winners = append(winners, p.Username)
		case p.RoundScore == dealerScore:
			// push
		}
	}

	b.roundActive = false
	b.stopCountdown()

	results := GameOverResults{Winners: winners, DealerScore: dealerScore, DealerBust: dealerBust}
	r.log.WithFields(logrus.Fields{
		"winners":     len(winners),
		"dealerScore": dealerScore,
		"dealerBust":  dealerBust,
	}).Info("round settled")
	r.fireEvent(Event{Type: EventGameOver, Results: &results})
	b.syncState()

	if b.OnRoundEnd != nil {
		b.OnRoundEnd(r.ID, results)
	}

	gen := b.roundGen
	b.unlockTimer = r.clock.AfterFunc(unlockDelay, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		if b.roundGen != gen || r.disposed {
			return
		}
		r.unlockJoins()
		b.syncState()
	})

	b.restartTimer = r.clock.AfterFunc(autoRestartDelay, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		if b.roundGen != gen || r.disposed || len(r.players) == 0 {
			return
		}
		r.log.Info("auto-starting next round")
		b.startRound()
	})
}

// abortRound tears a round down after an invariant violation (an exhausted
// shoe mid-round). The error is logged, surfaced to the room and the room
// reopened. Assumes lock is held.
func (b *Blackjack) abortRound(err error) {
	r := b.room
	r.log.WithError(err).Error("round aborted")

	b.roundActive = false
	r.currentTurn = ""
	r.roundTimeLeft = 0
	b.stopTurnTimer()
	b.stopCountdown()
	r.unlockJoins()

	r.fireEvent(Event{Type: EventError, Message: err.Error()})
	b.syncState()
}

// updateScores recomputes every score from the hands. Dealer logic and win
// determination read the full-hand score; observer snapshots substitute the
// visible-only score while the hole card is concealed. Assumes lock is held.
func (b *Blackjack) updateScores() {
	for _, p := range b.room.players {
		p.RoundScore = Score(p.Hand)
	}
	b.dealerScore = Score(b.dealerHand)
}

// syncState broadcasts the redacted snapshot. Assumes lock is held.
func (b *Blackjack) syncState() {
	b.room.fireEvent(Event{Type: EventRoomState, State: b.Snapshot()})
}

func (b *Blackjack) stopTurnTimer() {
	if b.turnTimer != nil {
		b.turnTimer.Stop()
		b.turnTimer = nil
	}
}

func (b *Blackjack) stopCountdown() {
	if b.countdownCancel != nil {
		b.countdownCancel()
		b.countdownCancel = nil
	}
}

func (b *Blackjack) clearUnlockTimer() {
	if b.unlockTimer != nil {
		b.unlockTimer.Stop()
		b.unlockTimer = nil
	}
}

func (b *Blackjack) clearRestartTimer() {
	if b.restartTimer != nil {
		b.restartTimer.Stop()
		b.restartTimer = nil
	}
}

func (b *Blackjack) clearPaceTimers() {
	for _, t := range b.paceTimers {
		t.Stop()
	}
	b.paceTimers = nil
}
