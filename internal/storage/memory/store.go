// Package memory keeps users and game state in process memory. It backs development hosts and
// tests; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/auth"
	"github.com/jason-s-yu/courts/internal/models"
	"github.com/jason-s-yu/courts/internal/rating"
)

// Store implements the user, game state and result stores of the server.
type Store struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID
	states  map[uuid.UUID]models.GameState
}

func NewStore() *Store {
	return &Store{
		users:   make(map[uuid.UUID]models.User),
		byEmail: make(map[string]uuid.UUID),
		states:  make(map[uuid.UUID]models.GameState),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser stores user, assigning an id and hashing the password as needed.
func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Rating == 0 {
		r := rating.Default()
		user.Rating, user.RatingDeviation, user.Volatility = r.Rating, r.Deviation, r.Volatility
	}
	if user.Password != "" {
		hash, err := auth.CreateHash(user.Password, auth.Params)
		if err != nil {
			return err
		}
		user.Password = hash
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email := normalizeEmail(user.Email)
	if email != "" {
		if _, taken := s.byEmail[email]; taken {
			return models.ErrEmailTaken
		}
		s.byEmail[email] = user.ID
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &u, nil
}

// AuthenticateUser checks email and password and returns the matching user.
func (s *Store) AuthenticateUser(_ context.Context, email, password string) (*models.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[normalizeEmail(email)]
	u := s.users[id]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrInvalidCredentials
	}
	match, err := auth.ComparePasswordAndHash(password, u.Password)
	if err != nil || !match {
		return nil, models.ErrInvalidCredentials
	}
	return &u, nil
}

// UpdateUserCredentials replaces the email, password and username of an existing user.
func (s *Store) UpdateUserCredentials(_ context.Context, u *models.User) error {
	hash, err := auth.CreateHash(u.Password, auth.Params)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.users[u.ID]
	if !ok {
		return models.ErrUserNotFound
	}
	email := normalizeEmail(u.Email)
	if owner, taken := s.byEmail[email]; taken && owner != u.ID {
		return models.ErrEmailTaken
	}
	delete(s.byEmail, normalizeEmail(old.Email))
	if email != "" {
		s.byEmail[email] = u.ID
	}

	old.Email = u.Email
	old.Password = hash
	old.Username = u.Username
	old.IsEphemeral = u.IsEphemeral
	s.users[u.ID] = old
	return nil
}

// SaveGameState keeps state unless a newer version is already stored.
func (s *Store) SaveGameState(_ context.Context, state models.GameState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.states[state.ID]; ok && cur.Version >= state.Version {
		return nil
	}
	s.states[state.ID] = state
	return nil
}

func (s *Store) LoadGameState(_ context.Context, id uuid.UUID) (models.GameState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return models.GameState{}, models.ErrGameNotFound
	}
	return st, nil
}

// ListGameStates returns the games seating playerID, most recently updated first.
func (s *Store) ListGameStates(_ context.Context, playerID uuid.UUID) ([]models.GameState, error) {
	s.mu.RLock()
	var out []models.GameState
	for _, st := range s.states {
		if st.HasPlayer(playerID) {
			out = append(out, st)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) DeleteGameState(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
	return nil
}

// RecordGameResult bumps the win, loss or tie counter of each seated user and, when both
// players are users, rates the game.
func (s *Store) RecordGameResult(_ context.Context, _ uuid.UUID, result models.GameResult, final models.GameState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range final.Players {
		u, ok := s.users[p.ID]
		if !ok {
			continue
		}
		switch {
		case result.Tie:
			u.Ties++
		case p.ID == result.WinnerID:
			u.Wins++
		default:
			u.Losses++
		}
		s.users[p.ID] = u
	}

	ua, okA := s.users[final.Players[0].ID]
	ub, okB := s.users[final.Players[1].ID]
	if !okA || !okB {
		return nil
	}
	score := rating.Loss
	switch {
	case result.Tie:
		score = rating.Tie
	case result.WinnerID == ua.ID:
		score = rating.Win
	}
	ra, rb := rating.Update(userRating(ua), userRating(ub), score)
	ua.Rating, ua.RatingDeviation, ua.Volatility = ra.Rating, ra.Deviation, ra.Volatility
	ub.Rating, ub.RatingDeviation, ub.Volatility = rb.Rating, rb.Deviation, rb.Volatility
	s.users[ua.ID], s.users[ub.ID] = ua, ub
	return nil
}

func userRating(u models.User) rating.Rating {
	return rating.Rating{Rating: u.Rating, Deviation: u.RatingDeviation, Volatility: u.Volatility}
}
