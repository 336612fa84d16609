// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the game socket.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError websocket.StatusCode = 3001 // Auth failed after the upgrade.
	NotSeatedError        websocket.StatusCode = 3002 // The user is not a player in the requested game.
	GameEndedError        websocket.StatusCode = 3003 // The game finished; no further moves are accepted.
)
