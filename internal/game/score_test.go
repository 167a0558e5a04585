package game

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deckards/deckards-server/internal/models"
)

func hand(ranks ...string) []*models.Card {
	cards := make([]*models.Card, 0, len(ranks))
	for _, r := range ranks {
		cards = append(cards, &models.Card{Suit: "S", Rank: r})
	}
	return cards
}

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		ranks []string
		want  int
	}{
		{"empty hand", nil, 0},
		{"numeric cards", []string{"2", "5", "9"}, 16},
		{"face cards count ten", []string{"J", "Q", "K"}, 30},
		{"natural blackjack", []string{"A", "K"}, 21},
		{"soft seventeen", []string{"A", "6"}, 17},
		{"ace converts on bust", []string{"A", "9", "5"}, 15},
		{"two aces one converts", []string{"A", "A", "9"}, 21},
		{"four aces", []string{"A", "A", "A", "A"}, 14},
		{"hard bust", []string{"K", "K", "2"}, 22},
		{"ten stays ten", []string{"10", "9"}, 19},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(hand(tt.ranks...)))
		})
	}
}

func TestScoreOrderIndependent(t *testing.T) {
	assert.Equal(t, Score(hand("A", "9", "5")), Score(hand("5", "9", "A")))
	assert.Equal(t, Score(hand("A", "K")), Score(hand("K", "A")))
}

func TestVisibleScoreIgnoresHiddenCards(t *testing.T) {
	h := hand("K", "7")
	h[1].IsHidden = true

	assert.Equal(t, 10, VisibleScore(h))
	assert.Equal(t, 17, Score(h))
}
