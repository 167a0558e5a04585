package game

import "github.com/deckards/deckards-server/internal/models"

// SnapshotCard is a card as observers see it. Face-down cards carry no suit
// or rank on the wire; the hole card cannot be recovered from any broadcast.
type SnapshotCard struct {
	Suit    string `json:"suit,omitempty"`
	Rank    string `json:"rank,omitempty"`
	Hidden  bool   `json:"hidden"`
	OwnerID string `json:"ownerId,omitempty"`
}

// SnapshotPlayer is one seat in the observer projection.
type SnapshotPlayer struct {
	SessionID  string         `json:"id"`
	Username   string         `json:"username"`
	AvatarURL  string         `json:"avatarUrl,omitempty"`
	IsReady    bool           `json:"isReady"`
	IsStanding bool           `json:"isStanding"`
	IsBusted   bool           `json:"isBusted"`
	RoundScore int            `json:"roundScore"`
	Hand       []SnapshotCard `json:"hand"`
}

// RoomSnapshot is the full synchronized projection broadcast to every
// client after each mutation. It is the only way state leaves the room.
type RoomSnapshot struct {
	RoomID        string           `json:"roomId"`
	Players       []SnapshotPlayer `json:"players"`
	DeckSize      int              `json:"deckSize"`
	CurrentTurn   string           `json:"currentTurn"`
	Leader        string           `json:"leader"`
	RoundTimeLeft int              `json:"roundTimeLeft"`
	RoundActive   bool             `json:"roundActive"`
	Locked        bool             `json:"locked"`

	DealerHand []SnapshotCard `json:"dealerHand"`

	// DealerScore covers only the dealer's visible cards while the hole
	// card is concealed; once revealed it equals the full-hand score.
	DealerScore int `json:"dealerScore"`
}

// Snapshot builds the redacted projection. Assumes lock is held.
func (b *Blackjack) Snapshot() *RoomSnapshot {
	r := b.room

	snap := &RoomSnapshot{
		RoomID:        r.ID.String(),
		Players:       make([]SnapshotPlayer, 0, len(r.players)),
		DeckSize:      len(r.deck),
		CurrentTurn:   r.currentTurn,
		Leader:        r.leader,
		RoundTimeLeft: r.roundTimeLeft,
		RoundActive:   b.roundActive,
		Locked:        r.locked,
		DealerHand:    snapshotHand(b.dealerHand),
		DealerScore:   VisibleScore(b.dealerHand),
	}

	for _, p := range r.players {
		snap.Players = append(snap.Players, SnapshotPlayer{
			SessionID:  p.SessionID,
			Username:   p.Username,
			AvatarURL:  p.AvatarURL,
			IsReady:    p.IsReady,
			IsStanding: p.IsStanding,
			IsBusted:   p.IsBusted,
			RoundScore: p.RoundScore,
			Hand:       snapshotHand(p.Hand),
		})
	}
	return snap
}

func snapshotHand(hand []*models.Card) []SnapshotCard {
	out := make([]SnapshotCard, 0, len(hand))
	for _, c := range hand {
		sc := SnapshotCard{Hidden: c.IsHidden, OwnerID: c.OwnerID}
		if !c.IsHidden {
			sc.Suit = c.Suit
			sc.Rank = c.Rank
		}
		out = append(out, sc)
	}
	return out
}
