// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jason-s-yu/courts/internal/game"
	"github.com/jason-s-yu/courts/internal/models"
)

type playRequest struct {
	Cards []string `json:"cards"`
}

type actionResponse struct {
	Score *game.Score   `json:"score,omitempty"`
	Move  *game.Move    `json:"move,omitempty"`
	State game.Snapshot `json:"state"`
}

// writeGameError maps session errors and rejections onto HTTP statuses.
func (s *GameServer) writeGameError(w http.ResponseWriter, err error) {
	var rej *game.Rejection
	switch {
	case errors.As(err, &rej):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  rej.Error(),
			"reason": rej.Reason,
		})
	case errors.Is(err, game.ErrNotYourTurn):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrGameOver):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, game.ErrUnknownPlayer):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.WithError(err).Error("game request failed")
			writeError(w, status, "internal error")
			return
		}
		writeError(w, status, err.Error())
	}
}

// gameFor loads the game named in the path.
func (s *GameServer) gameFor(w http.ResponseWriter, r *http.Request) (*game.Game, bool) {
	id, err := gameIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return nil, false
	}
	g, err := s.LoadGame(r.Context(), id)
	if err != nil {
		s.writeGameError(w, err)
		return nil, false
	}
	return g, true
}

// CreateGameHandler starts a game for the caller. An empty body plays the computer.
func (s *GameServer) CreateGameHandler(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	me := mustIdentity(r).UserID
	g, err := s.CreateGame(r.Context(), me, req)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"game_id": g.ID,
		"state":   g.SnapshotFor(me),
	})
}

func (s *GameServer) ListGamesHandler(w http.ResponseWriter, r *http.Request) {
	games, err := s.ListGames(r.Context(), mustIdentity(r).UserID)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	if games == nil {
		games = []gameSummary{}
	}
	writeJSON(w, http.StatusOK, games)
}

// GetGameHandler returns the table as the caller sees it; spectators see no hands.
func (s *GameServer) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gameFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, g.SnapshotFor(mustIdentity(r).UserID))
}

func (s *GameServer) PlayHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gameFor(w, r)
	if !ok {
		return
	}
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	cards, err := models.ParseCards(req.Cards)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	me := mustIdentity(r).UserID
	score, err := g.SubmitPlay(me, cards)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Score: &score, State: g.SnapshotFor(me)})
}

func (s *GameServer) DrawHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gameFor(w, r)
	if !ok {
		return
	}
	me := mustIdentity(r).UserID
	if err := g.RequestDraw(me); err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{State: g.SnapshotFor(me)})
}

// AutoMoveHandler lets the heuristic take the caller's turn.
func (s *GameServer) AutoMoveHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gameFor(w, r)
	if !ok {
		return
	}
	me := mustIdentity(r).UserID
	move, err := g.RequestAutoMove(me)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Move: &move, State: g.SnapshotFor(me)})
}

// DeleteGameHandler abandons a game. Only a seated player may delete it.
func (s *GameServer) DeleteGameHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gameFor(w, r)
	if !ok {
		return
	}
	if !g.HasPlayer(mustIdentity(r).UserID) {
		s.writeGameError(w, game.ErrUnknownPlayer)
		return
	}
	s.discard(r.Context(), g.ID, "game deleted")
	w.WriteHeader(http.StatusNoContent)
}
