// internal/database/game.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/courts/internal/models"
	"github.com/jason-s-yu/courts/internal/rating"
)

// SaveGameState upserts the resumable state of a game. A save whose version is not newer
// than the stored one is ignored, so late asynchronous saves cannot roll a game back.
func (s *Store) SaveGameState(ctx context.Context, state models.GameState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal game state: %w", err)
	}
	q := `
		INSERT INTO games (id, status, player_a, player_b, version, state, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, version = EXCLUDED.version,
		    state = EXCLUDED.state, updated_at = NOW()
		WHERE games.version < EXCLUDED.version
	`
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q,
			state.ID, dbStatus(state.Status), state.Players[0].ID, state.Players[1].ID,
			state.Version, data,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("upsert game state %s: %w", state.ID, err)
	}
	return nil
}

// LoadGameState returns the newest saved state of a game, or models.ErrGameNotFound.
func (s *Store) LoadGameState(ctx context.Context, id uuid.UUID) (models.GameState, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM games WHERE id = $1 AND state IS NOT NULL`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.GameState{}, models.ErrGameNotFound
	}
	if err != nil {
		return models.GameState{}, fmt.Errorf("load game state %s: %w", id, err)
	}
	var state models.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return models.GameState{}, fmt.Errorf("decode game state %s: %w", id, err)
	}
	return state, nil
}

// ListGameStates returns every saved game the player is seated in, newest first.
func (s *Store) ListGameStates(ctx context.Context, playerID uuid.UUID) ([]models.GameState, error) {
	q := `
		SELECT state FROM games
		WHERE (player_a = $1 OR player_b = $1) AND state IS NOT NULL
		ORDER BY updated_at DESC
	`
	rows, err := s.pool.Query(ctx, q, playerID)
	if err != nil {
		return nil, fmt.Errorf("list games for %s: %w", playerID, err)
	}
	defer rows.Close()

	var out []models.GameState
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var state models.GameState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("decode game state: %w", err)
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

// DeleteGameState drops a game and its action log.
func (s *Store) DeleteGameState(ctx context.Context, id uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, e := tx.Exec(ctx, `DELETE FROM game_actions WHERE game_id = $1`, id); e != nil {
			return e
		}
		_, e := tx.Exec(ctx, `DELETE FROM games WHERE id = $1`, id)
		return e
	})
}

// RecordGameResult marks the game completed and updates both players' win/loss/tie counters.
// Players without a users row (the automatic opponent) are skipped by the UPDATE.
func (s *Store) RecordGameResult(ctx context.Context, gameID uuid.UUID, result models.GameResult, final models.GameState) error {
	var winner *uuid.UUID
	if !result.Tie {
		winner = &result.WinnerID
	}

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertGame := `
			INSERT INTO games (id, status, player_a, player_b, winner_id, tie, end_reason, end_time)
			VALUES ($1, 'completed', $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (id) DO UPDATE
			SET status = 'completed', winner_id = $4, tie = $5, end_reason = $6, end_time = NOW()
		`
		if _, e := tx.Exec(ctx, upsertGame, gameID, final.Players[0].ID, final.Players[1].ID,
			winner, result.Tie, result.Reason); e != nil {
			return e
		}

		for _, p := range final.Players {
			var column string
			switch {
			case result.Tie:
				column = "ties"
			case p.ID == result.WinnerID:
				column = "wins"
			default:
				column = "losses"
			}
			q := fmt.Sprintf(`UPDATE users SET %s = %s + 1 WHERE id = $1`, column, column)
			if _, e := tx.Exec(ctx, q, p.ID); e != nil {
				return e
			}
		}
		return rateGame(ctx, tx, result, final)
	})
	if err != nil {
		return fmt.Errorf("tx record game result: %w", err)
	}
	return nil
}

// rateGame updates the Glicko-2 ratings of both players when both are users.
func rateGame(ctx context.Context, tx pgx.Tx, result models.GameResult, final models.GameState) error {
	a, b := final.Players[0].ID, final.Players[1].ID
	rows, err := tx.Query(ctx,
		`SELECT id, rating, rating_deviation, volatility FROM users WHERE id IN ($1, $2) FOR UPDATE`, a, b)
	if err != nil {
		return err
	}
	defer rows.Close()

	current := make(map[uuid.UUID]rating.Rating, 2)
	for rows.Next() {
		var id uuid.UUID
		var r rating.Rating
		if err := rows.Scan(&id, &r.Rating, &r.Deviation, &r.Volatility); err != nil {
			return err
		}
		current[id] = r
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(current) != 2 {
		// the automatic opponent has no users row
		return nil
	}

	newA, newB := rating.Update(current[a], current[b], scoreFor(result, a))
	update := `UPDATE users SET rating = $1, rating_deviation = $2, volatility = $3 WHERE id = $4`
	for id, r := range map[uuid.UUID]rating.Rating{a: newA, b: newB} {
		if _, err := tx.Exec(ctx, update, r.Rating, r.Deviation, r.Volatility, id); err != nil {
			return err
		}
	}
	return nil
}

// scoreFor is the rating score of playerID in a finished game.
func scoreFor(result models.GameResult, playerID uuid.UUID) float64 {
	switch {
	case result.Tie:
		return rating.Tie
	case result.WinnerID == playerID:
		return rating.Win
	default:
		return rating.Loss
	}
}

// dbStatus maps a turn controller status onto the games.status column.
func dbStatus(status models.GameStatus) string {
	if status == models.StatusGameOver {
		return "completed"
	}
	return "in_progress"
}
