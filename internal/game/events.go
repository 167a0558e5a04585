package game

// EventType is an enum-like type for room-to-client signals.
type EventType string

const (
	// EventRoundStarted is broadcast when a new round begins. No payload.
	EventRoundStarted EventType = "round_started"

	// EventDealerDraw is a cosmetic pacing signal emitted once per dealer
	// draw, delayed so clients can animate the dealer's hand filling in.
	EventDealerDraw EventType = "dealer_draw"

	// EventGameOver is broadcast with the round results after the dealer
	// finishes playing.
	EventGameOver EventType = "game_over"

	// EventRoomState carries the full redacted snapshot. Every mutation is
	// followed by one; lost updates are superseded by the next.
	EventRoomState EventType = "room_state"

	// EventError is sent to the offending client only, never broadcast.
	EventError EventType = "error"
)

// GameOverResults is the payload of a game_over event.
type GameOverResults struct {
	Winners     []string `json:"winners"`
	DealerScore int      `json:"dealerScore"`
	DealerBust  bool     `json:"dealerBust"`
}

// Event is the single wire format for everything a room sends to clients.
type Event struct {
	Type    EventType        `json:"type"`
	Message string           `json:"message,omitempty"`
	Results *GameOverResults `json:"results,omitempty"`
	State   *RoomSnapshot    `json:"state,omitempty"`
}
