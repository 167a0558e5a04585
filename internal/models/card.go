package models

// Suits and Ranks enumerate a standard French-suited deck. Deck generation
// iterates these in order, so the pre-shuffle layout is deterministic
// (suit-major, rank-minor).
var (
	Suits = []string{"H", "D", "C", "S"}
	Ranks = []string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}
)

// Card is a single playing card inside a room. Cards have no identity beyond
// (suit, rank); two cards from different sub-decks of the shoe compare equal.
type Card struct {
	Suit string `json:"suit"`
	Rank string `json:"rank"`

	// IsHidden marks a face-down card. Hidden cards are redacted from every
	// observer-facing snapshot; only the room itself may read them.
	IsHidden bool `json:"isHidden"`

	// OwnerID is the session ID of the holding player, or "" while the card
	// sits in the deck or the dealer's hand.
	OwnerID string `json:"ownerId"`
}

// Matches reports whether two cards are the same (suit, rank) pair.
func (c *Card) Matches(other *Card) bool {
	return c.Suit == other.Suit && c.Rank == other.Rank
}
