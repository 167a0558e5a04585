package game

import "errors"

// Validation errors surfaced to clients via the "error" event. A rejected
// intent leaves room state untouched.
var (
	// ErrNotLeader is returned when a non-leader sends a leader-only intent.
	ErrNotLeader = errors.New("only the game leader can start a new round")

	// ErrNotYourTurn is returned when a player acts outside their turn.
	ErrNotYourTurn = errors.New("it's not your turn")

	// ErrRoomFull is returned when a join would exceed the ruleset's
	// configured capacity. The connection is closed after the error is sent.
	ErrRoomFull = errors.New("maximum number of active players reached")

	// ErrRoomLocked is returned when a join arrives while a round is in
	// progress and the room is locked against new seats.
	ErrRoomLocked = errors.New("room is locked while a round is in progress")

	// ErrInvalidGameSelection is returned by the lobby when the requested
	// game is unknown or the player count is out of range for it.
	ErrInvalidGameSelection = errors.New("invalid game selection")

	// ErrEmptyDeck indicates a draw from an exhausted shoe. With a six-deck
	// shoe and seven seats this cannot happen in a legal round; it is
	// treated as an invariant violation, logged and surfaced, never
	// silently ignored.
	ErrEmptyDeck = errors.New("deck is empty")
)
