package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeckComposition(t *testing.T) {
	deck := GenerateDeck(6)
	require.Len(t, deck, 6*52)

	counts := make(map[string]int)
	for _, c := range deck {
		counts[c.Suit+c.Rank]++
		assert.True(t, c.IsHidden, "fresh cards start face down")
		assert.Empty(t, c.OwnerID, "fresh cards start unowned")
	}

	// Every suit/rank combination appears exactly once per deck.
	assert.Len(t, counts, 52)
	for key, n := range counts {
		assert.Equal(t, 6, n, "card %s", key)
	}
}

func TestShuffleConservesCards(t *testing.T) {
	deck := GenerateDeck(2)

	before := make(map[string]int)
	for _, c := range deck {
		before[c.Suit+c.Rank]++
	}

	shuffle(deck, rand.New(rand.NewSource(1)))

	after := make(map[string]int)
	for _, c := range deck {
		after[c.Suit+c.Rank]++
	}
	assert.Equal(t, before, after)
	assert.Len(t, deck, 2*52)
}
