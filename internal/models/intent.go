package models

// Intent is a client's in-game request. Intents are one-way: there is no
// request ID and no response correlation; rejected intents come back as an
// "error" event to the sender only.
type Intent struct {
	Type string `json:"type"`

	// CardIndex accompanies play_card for rulesets that select a hand card.
	// Blackjack's hit/stand carry no payload.
	CardIndex int `json:"cardIndex,omitempty"`
}
