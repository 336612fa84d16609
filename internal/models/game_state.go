// internal/models/game_state.go
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrGameNotFound is returned by state stores for an unknown game id.
var ErrGameNotFound = errors.New("game not found")

// LastPlay records a player's most recently completed play.
// Points is signed: positive for recovery, negative for attack.
type LastPlay struct {
	Cards  []Card `json:"cards"`
	Points int    `json:"points"`

	// Drew marks an empty record produced by the player drawing instead of playing.
	Drew bool `json:"drew"`
}

// IsEmpty reports whether no play is on record.
func (lp LastPlay) IsEmpty() bool {
	return len(lp.Cards) == 0
}

// Court returns the court card of the recorded play, if any.
func (lp LastPlay) Court() (Card, bool) {
	for _, c := range lp.Cards {
		if c.IsCourt() {
			return c, true
		}
	}
	return Card{}, false
}

// Describe renders the record the way the table shows it.
func (lp LastPlay) Describe() string {
	switch {
	case lp.Points > 0:
		return fmt.Sprintf("RECOVER %d", lp.Points)
	case lp.Points < 0:
		return fmt.Sprintf("ATTACK %d", -lp.Points)
	case lp.Drew:
		return "drew a card"
	default:
		return "hasn't played yet"
	}
}

// GameStatus is the turn controller state.
type GameStatus string

const (
	StatusAwaitingPlayerA GameStatus = "awaiting_player_a"
	StatusAwaitingPlayerB GameStatus = "awaiting_player_b"
	StatusGameOver        GameStatus = "game_over"
)

// GameResult is set once a game is over. WinnerID is uuid.Nil on a tie.
type GameResult struct {
	WinnerID uuid.UUID `json:"winner_id"`
	Tie      bool      `json:"tie"`
	Reason   string    `json:"reason"`
}

// PlayerState is the persisted per-player slice of a game.
type PlayerState struct {
	ID       uuid.UUID `json:"id"`
	Auto     bool      `json:"auto"`
	HP       int       `json:"hp"`
	Cards    []Card    `json:"cards"`
	LastPlay LastPlay  `json:"last_play"`
}

// GameState is the resumable shape of a game: both players, the remaining deck,
// the cards already played and whose turn it is.
type GameState struct {
	ID        uuid.UUID      `json:"id"`
	Version   int64          `json:"version"`
	Actions   int            `json:"actions"` // actions logged so far
	Players   [2]PlayerState `json:"players"`
	Deck      []Card         `json:"deck"`
	Played    []Card         `json:"played"`
	Turn      uuid.UUID      `json:"turn"`
	Status    GameStatus     `json:"status"`
	Result    *GameResult    `json:"result,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HasPlayer reports whether id is seated in the game.
func (s GameState) HasPlayer(id uuid.UUID) bool {
	return s.Players[0].ID == id || s.Players[1].ID == id
}
