package game

import (
	"math/rand"

	"github.com/deckards/deckards-server/internal/models"
)

// GenerateDeck composes a fresh shoe of numDecks standard 52-card decks in
// deterministic suit-major, rank-minor order. Every card starts face down
// and unowned.
func GenerateDeck(numDecks int) []*models.Card {
	deck := make([]*models.Card, 0, numDecks*52)
	for d := 0; d < numDecks; d++ {
		for _, suit := range models.Suits {
			for _, rank := range models.Ranks {
				deck = append(deck, &models.Card{
					Suit:     suit,
					Rank:     rank,
					IsHidden: true,
				})
			}
		}
	}
	return deck
}

// shuffle performs an in-place Fisher-Yates shuffle.
func shuffle(deck []*models.Card, rng *rand.Rand) {
	for i := len(deck) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
}
