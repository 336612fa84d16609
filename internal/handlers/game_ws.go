// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/game"
	"github.com/jason-s-yu/courts/internal/middleware"
	"github.com/jason-s-yu/courts/internal/models"
	"github.com/sirupsen/logrus"
)

// GameMessage is an incoming websocket message.
type GameMessage struct {
	Type string `json:"type"`

	// Cards is the selection for submit_play, e.g. ["King of Hearts", "9 of Clubs"].
	Cards []string `json:"cards,omitempty"`
}

const (
	msgSubmitPlay      = "submit_play"
	msgRequestDraw     = "request_draw"
	msgRequestAutoMove = "request_auto_move"
	msgSyncState       = "sync_state"
	msgPing            = "ping"
)

// GameWSHandler upgrades a seated player's connection for game /game/ws/{id}, sends the
// current table and then relays the player's actions until the socket closes. The token comes
// from the Authorization header or the auth cookie.
func (s *GameServer) GameWSHandler(w http.ResponseWriter, r *http.Request) {
	gameID, err := gameIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}
	g, err := s.LoadGame(r.Context(), gameID)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	id, authed := s.authenticate(r)
	userID := id.UserID
	log := s.logger.WithFields(logrus.Fields{"game_id": gameID, "player_id": userID})

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"game"},
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		log.WithError(err).Warn("websocket accept failed")
		return
	}

	if c.Subprotocol() != "game" {
		log.Warnf("client connected with invalid subprotocol %q", c.Subprotocol())
		c.Close(BadSubprotocolError, "client must use the 'game' subprotocol")
		return
	}
	if !authed {
		log.Warn("game socket without a valid token")
		c.Close(InvalidAuthTokenError, "invalid or missing auth token")
		return
	}
	if !g.HasPlayer(userID) {
		log.Warn("user is not seated in this game")
		c.Close(NotSeatedError, "you are not a player in this game")
		return
	}

	middleware.LogWebSocketConnect(log, r.RemoteAddr, r.URL.Path)
	h := s.hubFor(gameID)
	cl := h.add(userID, c)
	defer h.remove(cl)

	h.sendClient(cl, syncEvent(g, userID))
	if g.IsOver() {
		// the writer closes the socket once the final state is out
		h.closeClient(cl, GameEndedError, "game over")
		<-c.CloseRead(r.Context()).Done()
		return
	}

	err = s.readGameMessages(r.Context(), c, g, h, cl, log)
	middleware.LogWebSocketDisconnect(log, r.RemoteAddr, r.URL.Path, err)
}

func syncEvent(g *game.Game, viewer uuid.UUID) game.GameEvent {
	snap := g.SnapshotFor(viewer)
	return game.GameEvent{Type: game.EventPrivateSyncState, State: &snap}
}

func errorEvent(message string) game.GameEvent {
	return game.GameEvent{Type: "error", Payload: map[string]interface{}{"message": message}}
}

// readGameMessages routes a client's messages to the game until the socket fails or closes.
// Successful actions are announced by the game's own broadcasts.
func (s *GameServer) readGameMessages(ctx context.Context, c *websocket.Conn, g *game.Game, h *hub, cl *client, log logrus.FieldLogger) error {
	userID := cl.playerID
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			log.Debugf("ignoring non-text message type %d", msgType)
			continue
		}

		var msg GameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendClient(cl, errorEvent("invalid JSON format"))
			continue
		}
		log.Debugf("received %s", msg.Type)

		switch msg.Type {
		case msgSubmitPlay:
			cards, err := models.ParseCards(msg.Cards)
			if err != nil {
				h.sendClient(cl, errorEvent(err.Error()))
				continue
			}
			// rejections reach the player as private_play_rejected
			if _, err := g.SubmitPlay(userID, cards); err != nil && !isRejectionErr(err) {
				h.sendClient(cl, errorEvent(err.Error()))
			}
		case msgRequestDraw:
			if err := g.RequestDraw(userID); err != nil {
				h.sendClient(cl, errorEvent(err.Error()))
			}
		case msgRequestAutoMove:
			if _, err := g.RequestAutoMove(userID); err != nil {
				h.sendClient(cl, errorEvent(err.Error()))
			}
		case msgSyncState:
			h.sendClient(cl, syncEvent(g, userID))
		case msgPing:
			h.sendClient(cl, game.GameEvent{Type: "pong"})
		default:
			h.sendClient(cl, errorEvent("unknown message type "+msg.Type))
		}
	}
}

func isRejectionErr(err error) bool {
	var rej *game.Rejection
	return errors.As(err, &rej)
}
