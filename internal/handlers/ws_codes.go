package handlers

// Custom WebSocket close codes used by the lobby and room handlers. These
// give clients more specific reasons than the standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Auth token was invalid or expired.
	InvalidLobbyIDError   = 3003 // Target lobby does not exist.
	InvalidSeatTokenError = 3004 // Seat reservation token unknown, expired or already consumed.
)
