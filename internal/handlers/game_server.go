// internal/handlers/game_server.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/auth"
	"github.com/jason-s-yu/courts/internal/game"
	"github.com/jason-s-yu/courts/internal/models"
	"github.com/sirupsen/logrus"
)

// UserStore is the account storage the user endpoints need.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*models.User, error)
	UpdateUserCredentials(ctx context.Context, u *models.User) error
}

// ResultRecorder stores the outcome of finished games.
type ResultRecorder interface {
	RecordGameResult(ctx context.Context, gameID uuid.UUID, result models.GameResult, final models.GameState) error
}

// ServerOptions wires the GameServer's collaborators. Only Signer is required.
type ServerOptions struct {
	Signer    *auth.Signer
	Users     UserStore
	States    game.StateStore
	Results   ResultRecorder
	Publisher game.ActionPublisher
	Rules     game.HouseRules
	Logger    *logrus.Logger

	// OriginPatterns are the hosts allowed to open game sockets; empty allows same-origin only.
	OriginPatterns []string
	// TokenTTL bounds the auth cookie; zero leaves it a session cookie.
	TokenTTL time.Duration
	// RetainFinished is how long a finished game stays in memory for late viewers.
	RetainFinished time.Duration
}

// GameServer owns the live games of this process and the sockets attached to them.
type GameServer struct {
	GameStore *game.GameStore

	signer         *auth.Signer
	users          UserStore
	states         game.StateStore
	results        ResultRecorder
	publisher      game.ActionPublisher
	rules          game.HouseRules
	logger         *logrus.Logger
	tokenTTL       time.Duration
	originPatterns []string
	retainFinished time.Duration

	mu     sync.Mutex
	hubs   map[uuid.UUID]*hub
	loadMu sync.Mutex
}

func NewGameServer(opts ServerOptions) *GameServer {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	rules := opts.Rules
	if rules == (game.HouseRules{}) {
		rules = game.NewHouseRules()
	}
	retain := opts.RetainFinished
	if retain <= 0 {
		retain = 10 * time.Minute
	}
	return &GameServer{
		GameStore:      game.NewGameStore(),
		signer:         opts.Signer,
		users:          opts.Users,
		states:         opts.States,
		results:        opts.Results,
		publisher:      opts.Publisher,
		rules:          rules,
		logger:         logger,
		tokenTTL:       opts.TokenTTL,
		originPatterns: opts.OriginPatterns,
		retainFinished: retain,
		hubs:           make(map[uuid.UUID]*hub),
	}
}

// createGameRequest is the body of POST /game/create.
type createGameRequest struct {
	OpponentID *uuid.UUID             `json:"opponent_id,omitempty"` // nil plays the computer
	First      string                 `json:"first,omitempty"`       // "me", "opponent" or "random"
	Rules      map[string]interface{} `json:"rules,omitempty"`
}

var errBadRequest = errors.New("bad request")

// CreateGame seats host against the requested opponent and starts the game. An unfinished game
// between the same two players is replaced; every computer opponent counts as the same player.
func (s *GameServer) CreateGame(ctx context.Context, host uuid.UUID, req createGameRequest) (*game.Game, error) {
	rules, err := game.ParseRules(req.Rules, s.rules)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	hostPlayer := game.NewPlayer(host)
	var opponent *game.Player
	if req.OpponentID == nil {
		opponent = game.NewAutoPlayer()
	} else {
		if *req.OpponentID == host || *req.OpponentID == uuid.Nil {
			return nil, fmt.Errorf("%w: cannot play against yourself", errBadRequest)
		}
		opponent = game.NewPlayer(*req.OpponentID)
	}

	var first uuid.UUID
	switch req.First {
	case "", "random":
	case "me":
		first = host
	case "opponent":
		first = opponent.ID
	default:
		return nil, fmt.Errorf("%w: first must be me, opponent or random", errBadRequest)
	}

	if err := s.replaceUnfinished(ctx, host, opponent); err != nil {
		return nil, err
	}

	g, err := game.NewGame(hostPlayer, opponent, s.gameOptions(uuid.Nil, &rules, first))
	if err != nil {
		return nil, err
	}
	s.attach(g)
	s.GameStore.AddGame(g)
	g.Start()
	return g, nil
}

// replaceUnfinished discards host's unfinished games against opponent, live or only stored.
func (s *GameServer) replaceUnfinished(ctx context.Context, host uuid.UUID, opponent *game.Player) error {
	stale := make(map[uuid.UUID]bool)
	var live *game.Game
	if opponent.Auto {
		live = s.GameStore.FindAgainstAuto(host)
	} else {
		live = s.GameStore.FindBetween(host, opponent.ID)
	}
	if live != nil {
		stale[live.ID] = true
	}

	if s.states != nil {
		stored, err := s.states.ListGameStates(ctx, host)
		if err != nil {
			return fmt.Errorf("list games of %s: %w", host, err)
		}
		for _, st := range stored {
			if st.Status == models.StatusGameOver {
				continue
			}
			if _, ok := s.GameStore.GetGame(st.ID); ok {
				// live games were checked above; their stored status may lag
				continue
			}
			opp := st.Players[0]
			if opp.ID == host {
				opp = st.Players[1]
			}
			if (opponent.Auto && opp.Auto) || (!opponent.Auto && opp.ID == opponent.ID) {
				stale[st.ID] = true
			}
		}
	}

	for id := range stale {
		s.logger.WithField("game_id", id).Info("replacing unfinished game between the same players")
		s.discard(ctx, id, "game replaced")
	}
	return nil
}

func (s *GameServer) gameOptions(id uuid.UUID, rules *game.HouseRules, first uuid.UUID) game.Options {
	return game.Options{
		ID:                id,
		Rules:             rules,
		FirstPlayer:       first,
		Logger:            s.logger,
		Store:             s.states,
		Publisher:         s.publisher,
		ScheduleAutoMoves: true,
	}
}

// LoadGame returns the live game, restoring it from the state store if it is not in memory.
func (s *GameServer) LoadGame(ctx context.Context, id uuid.UUID) (*game.Game, error) {
	if g, ok := s.GameStore.GetGame(id); ok {
		return g, nil
	}
	if s.states == nil {
		return nil, models.ErrGameNotFound
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if g, ok := s.GameStore.GetGame(id); ok {
		return g, nil
	}

	st, err := s.states.LoadGameState(ctx, id)
	if err != nil {
		return nil, err
	}
	rules := s.rules
	g, err := game.Restore(st, s.gameOptions(id, &rules, uuid.Nil))
	if err != nil {
		return nil, fmt.Errorf("restore game %s: %w", id, err)
	}
	s.attach(g)
	s.GameStore.AddGame(g)
	if g.IsOver() {
		s.scheduleEvict(id)
	}
	g.Resume()
	return g, nil
}

// attach wires a game's broadcasts to its hub and its end to result recording.
func (s *GameServer) attach(g *game.Game) {
	h := s.hubFor(g.ID)
	g.BroadcastFn = h.broadcast
	g.BroadcastToPlayerFn = h.sendTo
	g.OnGameEnd = func(gameID uuid.UUID, result models.GameResult, final models.GameState) {
		// runs under the game lock
		go s.finish(gameID, result, final)
	}
}

func (s *GameServer) finish(gameID uuid.UUID, result models.GameResult, final models.GameState) {
	if s.results != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.results.RecordGameResult(ctx, gameID, result, final); err != nil {
			s.logger.WithError(err).WithField("game_id", gameID).Error("failed to record game result")
		}
	}
	s.scheduleEvict(gameID)
}

// scheduleEvict drops a finished game from memory once late viewers have had their chance.
func (s *GameServer) scheduleEvict(id uuid.UUID) {
	time.AfterFunc(s.retainFinished, func() {
		s.evict(id, GameEndedError, "game over")
	})
}

func (s *GameServer) hubFor(id uuid.UUID) *hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hubs[id]
	if !ok {
		h = newHub(s.logger.WithField("game_id", id))
		s.hubs[id] = h
	}
	return h
}

// evict drops a game from memory and closes its sockets. Persisted state is kept.
func (s *GameServer) evict(id uuid.UUID, code websocket.StatusCode, reason string) {
	if g, ok := s.GameStore.GetGame(id); ok {
		g.Close()
	}
	s.GameStore.DeleteGame(id)

	s.mu.Lock()
	h := s.hubs[id]
	delete(s.hubs, id)
	s.mu.Unlock()
	if h != nil {
		h.closeAll(code, reason)
	}
}

// discard evicts a game and deletes its persisted state.
func (s *GameServer) discard(ctx context.Context, id uuid.UUID, reason string) {
	s.evict(id, websocket.StatusNormalClosure, reason)
	if s.states != nil {
		if err := s.states.DeleteGameState(ctx, id); err != nil {
			s.logger.WithError(err).WithField("game_id", id).Warn("failed to delete game state")
		}
	}
}

// gameSummary is one entry of GET /game/list.
type gameSummary struct {
	ID         uuid.UUID         `json:"id"`
	Status     models.GameStatus `json:"status"`
	OpponentID uuid.UUID         `json:"opponent_id"`
	VsComputer bool              `json:"vs_computer"`
	YourTurn   bool              `json:"your_turn"`
	UpdatedAt  *time.Time        `json:"updated_at,omitempty"`
}

// ListGames merges the live games of playerID with the ones only found in the state store.
func (s *GameServer) ListGames(ctx context.Context, playerID uuid.UUID) ([]gameSummary, error) {
	seen := make(map[uuid.UUID]bool)
	var out []gameSummary

	for _, g := range s.GameStore.ListForPlayer(playerID) {
		st := g.State()
		seen[st.ID] = true
		out = append(out, summarize(st, playerID, nil))
	}
	if s.states != nil {
		stored, err := s.states.ListGameStates(ctx, playerID)
		if err != nil {
			return nil, err
		}
		for _, st := range stored {
			if seen[st.ID] {
				continue
			}
			updated := st.UpdatedAt
			out = append(out, summarize(st, playerID, &updated))
		}
	}
	return out, nil
}

func summarize(st models.GameState, viewer uuid.UUID, updated *time.Time) gameSummary {
	opp := st.Players[0]
	if opp.ID == viewer {
		opp = st.Players[1]
	}
	return gameSummary{
		ID:         st.ID,
		Status:     st.Status,
		OpponentID: opp.ID,
		VsComputer: opp.Auto,
		YourTurn:   st.Status != models.StatusGameOver && st.Turn == viewer,
		UpdatedAt:  updated,
	}
}
