package models

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Player is one seat in a room, keyed by the session ID minted with the
// player's seat reservation. The room owns the struct exclusively; it is
// created on join and discarded (hand included) on leave.
type Player struct {
	SessionID string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
	IsReady   bool   `json:"isReady"`

	Hand []*Card `json:"hand"`

	// Blackjack round state. RoundScore is derived from Hand and recomputed
	// whenever the hand changes, never incrementally maintained.
	IsStanding bool `json:"isStanding"`
	IsBusted   bool `json:"isBusted"`
	RoundScore int  `json:"roundScore"`

	UserID    uuid.UUID       `json:"-"`
	Connected bool            `json:"-"`
	Conn      *websocket.Conn `json:"-"`
}
