package game

import (
	"strconv"

	"github.com/deckards/deckards-server/internal/models"
)

// Score computes the blackjack value of a hand: face cards count ten,
// numeric ranks their value, and each ace eleven until the total exceeds 21,
// at which point aces convert to one, one at a time. Order-independent.
func Score(hand []*models.Card) int {
	score := 0
	aces := 0

	for _, card := range hand {
		switch card.Rank {
		case "J", "Q", "K":
			score += 10
		case "A":
			aces++
			score += 11
		default:
			v, _ := strconv.Atoi(card.Rank)
			score += v
		}
	}

	// Downgrade aces from 11 to 1 while over 21.
	for score > 21 && aces > 0 {
		score -= 10
		aces--
	}

	return score
}

// VisibleScore scores only the face-up subset of a hand. Observer-facing
// displays use it while the dealer's hole card is still concealed, so the
// broadcast score never leaks hidden information.
func VisibleScore(hand []*models.Card) int {
	visible := make([]*models.Card, 0, len(hand))
	for _, card := range hand {
		if !card.IsHidden {
			visible = append(visible, card)
		}
	}
	return Score(visible)
}
