// internal/game/sync_state.go
package game

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/models"
)

// PlayerView is one seat as seen by a particular viewer. Cards is only filled in for the viewer's
// own seat; the opponent's hand is reduced to its size.
type PlayerView struct {
	PlayerID      uuid.UUID       `json:"player_id"`
	Auto          bool            `json:"auto"`
	HP            int             `json:"hp"`
	HandSize      int             `json:"hand_size"`
	Cards         []models.Card   `json:"cards,omitempty"`
	LastPlay      models.LastPlay `json:"last_play"`
	LastPlayText  string          `json:"last_play_text"`
	IsCurrentTurn bool            `json:"is_current_turn"`
}

// Snapshot is a viewer-specific picture of the table.
type Snapshot struct {
	GameID          uuid.UUID          `json:"game_id"`
	Status          models.GameStatus  `json:"status"`
	CurrentPlayerID uuid.UUID          `json:"current_player_id,omitempty"`
	DeckSize        int                `json:"deck_size"`
	PlayedSize      int                `json:"played_size"`
	Turn            int                `json:"turn"`
	Players         [2]PlayerView      `json:"players"`
	Result          *models.GameResult `json:"result,omitempty"`
}

// SnapshotFor returns the table as seen by viewer. A viewer who is not seated sees no cards.
func (g *Game) SnapshotFor(viewer uuid.UUID) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotFor(viewer)
}

// PublicSnapshot hides both hands.
func (g *Game) PublicSnapshot() Snapshot {
	return g.SnapshotFor(uuid.Nil)
}

// snapshotFor assumes lock is held.
func (g *Game) snapshotFor(viewer uuid.UUID) Snapshot {
	snap := Snapshot{
		GameID:     g.ID,
		Status:     g.statusLocked(),
		DeckSize:   g.deck.Len(),
		PlayedSize: len(g.played),
		Turn:       g.turnID,
	}
	if !g.gameOver {
		snap.CurrentPlayerID = g.players[g.turn].ID
	}
	if g.result != nil {
		r := *g.result
		snap.Result = &r
	}

	for i, p := range g.players {
		view := PlayerView{
			PlayerID:      p.ID,
			Auto:          p.Auto,
			HP:            p.HP,
			HandSize:      len(p.Cards),
			LastPlay:      p.LastPlay,
			LastPlayText:  p.LastPlay.Describe(),
			IsCurrentTurn: !g.gameOver && i == g.turn,
		}
		if viewer != uuid.Nil && p.ID == viewer {
			view.Cards = append([]models.Card(nil), p.Cards...)
		}
		snap.Players[i] = view
	}
	return snap
}

// State exports the full, unhidden game state for persistence.
func (g *Game) State() models.GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked()
}

// stateLocked assumes lock is held.
func (g *Game) stateLocked() models.GameState {
	st := models.GameState{
		ID:        g.ID,
		Version:   g.version,
		Actions:   g.actionIndex,
		Deck:      g.deck.Cards(),
		Played:    append([]models.Card(nil), g.played...),
		Turn:      g.players[g.turn].ID,
		Status:    g.statusLocked(),
		UpdatedAt: time.Now().UTC(),
	}
	if g.result != nil {
		r := *g.result
		st.Result = &r
	}
	for i, p := range g.players {
		st.Players[i] = models.PlayerState{
			ID:       p.ID,
			Auto:     p.Auto,
			HP:       p.HP,
			Cards:    append([]models.Card(nil), p.Cards...),
			LastPlay: p.LastPlay,
		}
	}
	return st
}

// Restore rebuilds a game from persisted state. The deck, both hands and the played pile must
// partition the 52-card deck exactly.
func Restore(state models.GameState, opts Options) (*Game, error) {
	if state.ID == uuid.Nil {
		return nil, fmt.Errorf("restore: missing game id")
	}
	if state.Players[0].ID == uuid.Nil || state.Players[0].ID == state.Players[1].ID {
		return nil, fmt.Errorf("restore %s: players must be two distinct ids", state.ID)
	}
	turn := 0
	switch state.Turn {
	case state.Players[0].ID:
	case state.Players[1].ID:
		turn = 1
	default:
		return nil, fmt.Errorf("restore %s: turn holder %s: %w", state.ID, state.Turn, ErrUnknownPlayer)
	}
	if err := checkPartition(state); err != nil {
		return nil, fmt.Errorf("restore %s: %w", state.ID, err)
	}

	opts.ID = state.ID
	g := newGame(opts)
	rng := opts.Rand
	if rng == nil {
		rng = newTimeSeededRand()
	}
	g.deck = RestoreDeck(state.Deck, rng)
	g.played = append([]models.Card(nil), state.Played...)
	g.turn = turn
	g.version = state.Version
	g.actionIndex = state.Actions

	for i, ps := range state.Players {
		g.players[i] = &Player{
			ID:       ps.ID,
			Auto:     ps.Auto,
			HP:       ps.HP,
			Cards:    append([]models.Card(nil), ps.Cards...),
			LastPlay: ps.LastPlay,
		}
	}

	if state.Status == models.StatusGameOver {
		g.gameOver = true
		if state.Result != nil {
			r := *state.Result
			g.result = &r
		} else if r := g.checkGameOver(); r != nil {
			g.result = r
		}
	}

	g.log.WithField("version", g.version).Info("game restored")
	return g, nil
}

// checkPartition verifies every card of the full deck appears exactly once across the draw pile,
// both hands and the played pile.
func checkPartition(state models.GameState) error {
	seen := make(map[models.Card]string, 52)
	mark := func(where string, cards []models.Card) error {
		for _, c := range cards {
			if !c.Suit.Valid() || c.Rank < models.Ace || c.Rank > models.King {
				return fmt.Errorf("invalid card %v in %s", c, where)
			}
			if prev, dup := seen[c]; dup {
				return fmt.Errorf("%s appears in both %s and %s", c, prev, where)
			}
			seen[c] = where
		}
		return nil
	}

	if err := mark("deck", state.Deck); err != nil {
		return err
	}
	if err := mark("played", state.Played); err != nil {
		return err
	}
	for i, p := range state.Players {
		if err := mark(fmt.Sprintf("hand %d", i), p.Cards); err != nil {
			return err
		}
	}
	if len(seen) != len(models.FullDeck()) {
		return fmt.Errorf("expected %d cards, found %d", len(models.FullDeck()), len(seen))
	}
	return nil
}
