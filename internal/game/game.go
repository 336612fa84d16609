// internal/game/game.go
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/models"
	"github.com/sirupsen/logrus"
)

// Session errors. Rejections of the cards themselves are *Rejection values instead.
var (
	ErrGameOver      = errors.New("game is over")
	ErrNotYourTurn   = errors.New("it's not your turn")
	ErrUnknownPlayer = errors.New("player is not seated in this game")
)

// OnGameEndFunc is invoked once when a game reaches its terminal state.
type OnGameEndFunc func(gameID uuid.UUID, result models.GameResult, final models.GameState)

// StateStore persists resumable game state. Implementations must ignore a save whose
// Version is not newer than the stored one, since saves may arrive out of order.
type StateStore interface {
	SaveGameState(ctx context.Context, state models.GameState) error
	LoadGameState(ctx context.Context, id uuid.UUID) (models.GameState, error)
	ListGameStates(ctx context.Context, playerID uuid.UUID) ([]models.GameState, error)
	DeleteGameState(ctx context.Context, id uuid.UUID) error
}

// ActionPublisher receives every action for the historian.
type ActionPublisher interface {
	PublishGameAction(ctx context.Context, action models.GameAction) error
}

// GameEventType names an event broadcast to clients.
type GameEventType string

const (
	EventPlayerPlay          GameEventType = "player_play"
	EventPlayerDraw          GameEventType = "player_draw"
	EventGamePlayerTurn      GameEventType = "game_player_turn"
	EventPrivateSyncState    GameEventType = "private_sync_state"
	EventPrivatePlayRejected GameEventType = "private_play_rejected"
	EventGameEnd             GameEventType = "game_end"
)

// EventUser identifies the acting player of an event.
type EventUser struct {
	ID uuid.UUID `json:"id"`
}

// GameEvent is the single envelope for everything sent to clients.
type GameEvent struct {
	Type    GameEventType          `json:"type"`
	User    *EventUser             `json:"user,omitempty"`
	Cards   []models.Card          `json:"cards,omitempty"`
	Score   *Score                 `json:"score,omitempty"`
	Result  *models.GameResult     `json:"result,omitempty"`
	State   *Snapshot              `json:"state,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Options configures a new or restored game. Zero values select defaults.
type Options struct {
	ID          uuid.UUID
	Rules       *HouseRules
	Rand        *rand.Rand
	FirstPlayer uuid.UUID // uuid.Nil picks a random side
	Logger      logrus.FieldLogger
	Store       StateStore
	Publisher   ActionPublisher

	// ScheduleAutoMoves makes the game move automatic players on its own after Rules.AutoMoveDelay.
	// Without it the host triggers them through RequestAutoMove.
	ScheduleAutoMoves bool
}

// Game is one two-player session. It exclusively owns both players, the deck and the played pile.
// All exported methods are safe for concurrent use; actions are serialized.
type Game struct {
	ID    uuid.UUID
	Rules HouseRules

	mu      sync.Mutex
	players [2]*Player
	deck    *Deck
	played  []models.Card

	turn        int // seat index of the player to act
	turnID      int // increments on every turn change; guards stale timers
	actionIndex int
	version     int64
	gameOver    bool
	result      *models.GameResult
	emptyPasses int // consecutive passes on an empty deck

	// BroadcastFn sends an event to every seat. Called with the game lock held; it must not call back into the game.
	BroadcastFn func(ev GameEvent)
	// BroadcastToPlayerFn sends an event to one seat. Same locking contract as BroadcastFn.
	BroadcastToPlayerFn func(playerID uuid.UUID, ev GameEvent)
	// OnGameEnd is invoked once, with the lock held, when the game ends.
	OnGameEnd OnGameEndFunc

	log          logrus.FieldLogger
	store        StateStore
	publisher    ActionPublisher
	scheduleAuto bool
	autoTimer    *time.Timer
	saves        sync.WaitGroup // in-flight persist calls
	ctx          context.Context
	cancel       context.CancelFunc
}

func newGame(opts Options) *Game {
	id := opts.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	rules := NewHouseRules()
	if opts.Rules != nil {
		rules = *opts.Rules
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Game{
		ID:           id,
		Rules:        rules,
		log:          logger.WithField("game_id", id),
		store:        opts.Store,
		publisher:    opts.Publisher,
		scheduleAuto: opts.ScheduleAutoMoves,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// NewGame seats a and b, deals each an opening hand from a fresh deck and sets hit points.
// Call Start once broadcast callbacks are wired.
func NewGame(a, b *Player, opts Options) (*Game, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("new game: two players are required")
	}
	if a.ID == b.ID {
		return nil, fmt.Errorf("new game: players must be distinct, both are %s", a.ID)
	}
	if opts.FirstPlayer != uuid.Nil && opts.FirstPlayer != a.ID && opts.FirstPlayer != b.ID {
		return nil, fmt.Errorf("new game: first player %s: %w", opts.FirstPlayer, ErrUnknownPlayer)
	}

	g := newGame(opts)
	rng := opts.Rand
	if rng == nil {
		rng = newTimeSeededRand()
	}
	g.deck = NewDeck(rng)
	g.players = [2]*Player{a, b}

	for _, p := range g.players {
		hand, err := g.deck.DealInitial(g.Rules.HandSize)
		if err != nil {
			return nil, fmt.Errorf("new game: deal opening hand: %w", err)
		}
		p.Cards = hand
		p.HP = g.Rules.StartingHP
		p.LastPlay = models.LastPlay{}
	}

	switch opts.FirstPlayer {
	case uuid.Nil:
		g.turn = rng.IntN(2)
	case b.ID:
		g.turn = 1
	default:
		g.turn = 0
	}

	g.log.WithFields(logrus.Fields{
		"player_a": a.ID,
		"player_b": b.ID,
		"first":    g.players[g.turn].ID,
	}).Info("game created")
	return g, nil
}

// Start announces the first turn, persists the opening state and, if enabled, schedules an
// automatic first move.
func (g *Game) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.version++
	g.logAction(uuid.Nil, "game_start", map[string]interface{}{
		"first": g.players[g.turn].ID,
		"deck":  g.deck.Len(),
	})
	g.persist()
	g.broadcastSyncStateToAll()
	g.broadcastPlayerTurn()
	g.maybeScheduleAutoMove()
}

// Resume re-arms a restored game: if an automatic player is to act, its move is scheduled.
func (g *Game) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeScheduleAutoMove()
}

// Close stops any pending automatic move. The game state is left untouched.
func (g *Game) Close() {
	g.mu.Lock()
	g.stopAutoTimer()
	g.cancel()
	g.mu.Unlock()

	// a save still running could land after the host deletes the stored state
	g.saves.Wait()
}

// SubmitPlay plays cards for playerID. A *Rejection means the cards broke a rule and nothing changed.
func (g *Game) SubmitPlay(playerID uuid.UUID, cards []models.Card) (Score, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	seat, err := g.actingSeat(playerID)
	if err != nil {
		return Score{}, err
	}
	return g.play(seat, cards, "player")
}

// RequestDraw is the pass: playerID draws one card (if any remain) and the turn passes.
func (g *Game) RequestDraw(playerID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	seat, err := g.actingSeat(playerID)
	if err != nil {
		return err
	}
	g.draw(seat, "player")
	return nil
}

// RequestAutoMove lets the heuristic move for playerID, who must be the player to act.
func (g *Game) RequestAutoMove(playerID uuid.UUID) (Move, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	seat, err := g.actingSeat(playerID)
	if err != nil {
		return Move{}, err
	}
	return g.autoMove(seat)
}

// actingSeat resolves playerID to a seat that may act now. Assumes lock is held.
func (g *Game) actingSeat(playerID uuid.UUID) (int, error) {
	if g.gameOver {
		return 0, ErrGameOver
	}
	seat, ok := g.seatOf(playerID)
	if !ok {
		return 0, ErrUnknownPlayer
	}
	if seat != g.turn {
		return 0, ErrNotYourTurn
	}
	return seat, nil
}

// seatOf finds the seat of playerID. Assumes lock is held.
func (g *Game) seatOf(playerID uuid.UUID) (int, bool) {
	for i, p := range g.players {
		if p.ID == playerID {
			return i, true
		}
	}
	return 0, false
}

// play applies a candidate and ends the turn, or reports the rejection privately.
// Assumes lock is held.
func (g *Game) play(seat int, cards []models.Card, source string) (Score, error) {
	player := g.players[seat]
	score, err := g.applyPlay(seat, cards)
	if err != nil {
		if isRejection(err) {
			g.log.WithFields(logrus.Fields{"player_id": player.ID, "cards": models.CardStrings(cards)}).
				Debugf("play rejected: %v", err)
			var rej *Rejection
			errors.As(err, &rej)
			g.fireEventToPlayer(player.ID, GameEvent{
				Type:  EventPrivatePlayRejected,
				User:  &EventUser{ID: player.ID},
				Cards: cards,
				Payload: map[string]interface{}{
					"reason":  rej.Reason,
					"message": rej.Error(),
				},
			})
		}
		return Score{}, err
	}

	g.log.WithFields(logrus.Fields{
		"player_id": player.ID,
		"cards":     models.CardStrings(player.LastPlay.Cards),
		"points":    score.Signed(),
		"source":    source,
	}).Info("hand played")

	g.logAction(player.ID, string(EventPlayerPlay), map[string]interface{}{
		"cards":    models.CardStrings(player.LastPlay.Cards),
		"points":   score.Signed(),
		"base":     score.Base,
		"factor":   score.Factor,
		"recovery": score.Recovery,
		"source":   source,
	})
	g.fireEvent(GameEvent{
		Type:  EventPlayerPlay,
		User:  &EventUser{ID: player.ID},
		Cards: player.LastPlay.Cards,
		Score: &score,
		Payload: map[string]interface{}{
			"description": player.LastPlay.Describe(),
		},
	})

	g.emptyPasses = 0
	g.endTurn()
	return score, nil
}

// draw applies the pass action and ends the turn. Assumes lock is held.
func (g *Game) draw(seat int, source string) {
	player := g.players[seat]
	drew := g.applyDraw(seat)
	if drew {
		g.emptyPasses = 0
	} else {
		g.emptyPasses++
		g.log.WithField("player_id", player.ID).Debug("draw requested on an empty deck")
	}

	g.logAction(player.ID, string(EventPlayerDraw), map[string]interface{}{
		"drew":     drew,
		"deckSize": g.deck.Len(),
		"source":   source,
	})
	g.fireEvent(GameEvent{
		Type: EventPlayerDraw,
		User: &EventUser{ID: player.ID},
		Payload: map[string]interface{}{
			"drew":     drew,
			"deckSize": g.deck.Len(),
		},
	})

	g.endTurn()
}

// endTurn hands the turn to the other seat, then checks whether the game is over.
// Assumes lock is held.
func (g *Game) endTurn() {
	g.stopAutoTimer()
	g.turn = 1 - g.turn
	g.turnID++
	g.version++

	if result := g.checkGameOver(); result != nil {
		g.endGame(*result)
		return
	}

	g.persist()
	g.broadcastSyncStateToAll()
	g.broadcastPlayerTurn()
	g.maybeScheduleAutoMove()
}

// checkGameOver returns the result if a player is out of hit points, if the deck is empty
// and the player to act holds no numbered card and so can never play again, or if both
// players passed in a row on an empty deck. Assumes lock is held.
func (g *Game) checkGameOver() *models.GameResult {
	a, b := g.players[0], g.players[1]
	var reason string
	switch {
	case a.Defeated() || b.Defeated():
		reason = "defeated"
	case g.deck.IsEmpty() && !g.players[g.turn].HasNumbered():
		reason = "exhausted"
	case g.deck.IsEmpty() && g.emptyPasses >= 2:
		reason = "stalled"
	default:
		return nil
	}

	result := models.GameResult{Reason: reason}
	switch {
	case a.HP > b.HP:
		result.WinnerID = a.ID
	case b.HP > a.HP:
		result.WinnerID = b.ID
	default:
		result.Tie = true
	}
	return &result
}

// endGame moves to the terminal state and notifies everyone. Assumes lock is held.
func (g *Game) endGame(result models.GameResult) {
	if g.gameOver {
		return
	}
	g.gameOver = true
	g.result = &result
	g.stopAutoTimer()

	g.log.WithFields(logrus.Fields{
		"winner": result.WinnerID,
		"tie":    result.Tie,
		"reason": result.Reason,
		"hp_a":   g.players[0].HP,
		"hp_b":   g.players[1].HP,
	}).Info("game over")

	g.logAction(uuid.Nil, string(EventGameEnd), map[string]interface{}{
		"winner": result.WinnerID,
		"tie":    result.Tie,
		"reason": result.Reason,
		"hp": map[string]int{
			g.players[0].ID.String(): g.players[0].HP,
			g.players[1].ID.String(): g.players[1].HP,
		},
	})
	g.persist()
	g.broadcastSyncStateToAll()
	g.fireEvent(GameEvent{Type: EventGameEnd, Result: &result})

	if g.OnGameEnd != nil {
		g.OnGameEnd(g.ID, result, g.stateLocked())
	}
}

// maybeScheduleAutoMove arms the pacing timer when the player to act is automatic.
// Assumes lock is held.
func (g *Game) maybeScheduleAutoMove() {
	if !g.scheduleAuto || g.gameOver || !g.players[g.turn].Auto {
		return
	}
	g.stopAutoTimer()

	turnID := g.turnID
	seat := g.turn
	g.autoTimer = time.AfterFunc(g.Rules.AutoMoveDelay, func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		if g.ctx.Err() != nil || g.gameOver || g.turnID != turnID {
			g.log.WithField("turn", turnID).Debug("stale automatic move timer ignored")
			return
		}
		if _, err := g.autoMove(seat); err != nil {
			g.log.WithError(err).Warn("automatic move failed")
		}
	})
}

// stopAutoTimer cancels a pending automatic move. Assumes lock is held.
func (g *Game) stopAutoTimer() {
	if g.autoTimer != nil {
		g.autoTimer.Stop()
		g.autoTimer = nil
	}
}

// broadcastPlayerTurn notifies everyone whose turn it is. Assumes lock is held.
func (g *Game) broadcastPlayerTurn() {
	if g.gameOver {
		return
	}
	current := g.players[g.turn]
	g.fireEvent(GameEvent{
		Type: EventGamePlayerTurn,
		User: &EventUser{ID: current.ID},
		Payload: map[string]interface{}{
			"turn": g.turnID,
		},
	})
}

// broadcastSyncStateToAll sends each seat its own view of the table. Assumes lock is held.
func (g *Game) broadcastSyncStateToAll() {
	if g.BroadcastToPlayerFn == nil {
		return
	}
	for _, p := range g.players {
		snap := g.snapshotFor(p.ID)
		g.BroadcastToPlayerFn(p.ID, GameEvent{Type: EventPrivateSyncState, State: &snap})
	}
}

// fireEvent broadcasts to every seat. Assumes lock is held.
func (g *Game) fireEvent(ev GameEvent) {
	if g.BroadcastFn != nil {
		g.BroadcastFn(ev)
	}
}

// fireEventToPlayer sends an event to one seat. Assumes lock is held.
func (g *Game) fireEventToPlayer(playerID uuid.UUID, ev GameEvent) {
	if g.BroadcastToPlayerFn != nil {
		g.BroadcastToPlayerFn(playerID, ev)
	}
}

// logAction queues the action for the historian. Assumes lock is held.
func (g *Game) logAction(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	g.actionIndex++
	if g.publisher == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := models.GameAction{
		GameID:      g.ID,
		ActionIndex: g.actionIndex,
		ActorID:     actorID,
		ActionType:  actionType,
		Payload:     payload,
		Timestamp:   time.Now().UnixMilli(),
	}
	go func(rec models.GameAction) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := g.publisher.PublishGameAction(ctx, rec); err != nil {
			g.log.WithError(err).Warnf("failed to publish action %d", rec.ActionIndex)
		}
	}(record)
}

// persist hands the current state to the store. Saves run asynchronously and carry the
// version so the store can drop stale ones. Assumes lock is held.
func (g *Game) persist() {
	if g.store == nil || g.ctx.Err() != nil {
		return
	}
	state := g.stateLocked()
	g.saves.Add(1)
	go func(st models.GameState) {
		defer g.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.store.SaveGameState(ctx, st); err != nil {
			g.log.WithError(err).Warnf("failed to persist version %d", st.Version)
		}
	}(state)
}

// HasPlayer reports whether playerID is seated in the game.
func (g *Game) HasPlayer(playerID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seatOf(playerID)
	return ok
}

// AgainstAuto reports whether playerID is seated opposite an automatic player.
func (g *Game) AgainstAuto(playerID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	seat, ok := g.seatOf(playerID)
	return ok && g.players[1-seat].Auto
}

// PlayerIDs returns the ids of seat A and seat B.
func (g *Game) PlayerIDs() [2]uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return [2]uuid.UUID{g.players[0].ID, g.players[1].ID}
}

// ActivePlayerID is the player to act, or uuid.Nil once the game is over.
func (g *Game) ActivePlayerID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gameOver {
		return uuid.Nil
	}
	return g.players[g.turn].ID
}

// Status reports the turn controller state.
func (g *Game) Status() models.GameStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

func (g *Game) statusLocked() models.GameStatus {
	switch {
	case g.gameOver:
		return models.StatusGameOver
	case g.turn == 0:
		return models.StatusAwaitingPlayerA
	default:
		return models.StatusAwaitingPlayerB
	}
}

// IsOver reports whether the game has ended.
func (g *Game) IsOver() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gameOver
}

// Result returns the outcome once the game is over.
func (g *Game) Result() (models.GameResult, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.result == nil {
		return models.GameResult{}, false
	}
	return *g.result, true
}
