package game

import (
	"sync"

	"github.com/google/uuid"
)

// GameStore holds the games currently live in this process.
type GameStore struct {
	mu    sync.Mutex
	games map[uuid.UUID]*Game
}

func NewGameStore() *GameStore {
	return &GameStore{
		games: make(map[uuid.UUID]*Game),
	}
}

func (s *GameStore) AddGame(game *Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[game.ID] = game
}

func (s *GameStore) GetGame(id uuid.UUID) (*Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, exists := s.games[id]
	return g, exists
}

func (s *GameStore) DeleteGame(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, id)
}

// ListForPlayer returns the live games playerID is seated in.
func (s *GameStore) ListForPlayer(playerID uuid.UUID) []*Game {
	s.mu.Lock()
	games := make([]*Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	s.mu.Unlock()

	// HasPlayer takes the game lock, so filter outside the store lock
	out := games[:0]
	for _, g := range games {
		if g.HasPlayer(playerID) {
			out = append(out, g)
		}
	}
	return out
}

// FindBetween returns an unfinished game seating both a and b, or nil if none is found.
func (s *GameStore) FindBetween(a, b uuid.UUID) *Game {
	for _, g := range s.ListForPlayer(a) {
		if g.HasPlayer(b) && !g.IsOver() {
			return g
		}
	}
	return nil
}

// FindAgainstAuto returns an unfinished game seating playerID against an automatic player, or nil.
func (s *GameStore) FindAgainstAuto(playerID uuid.UUID) *Game {
	for _, g := range s.ListForPlayer(playerID) {
		if g.AgainstAuto(playerID) && !g.IsOver() {
			return g
		}
	}
	return nil
}
