// Package sqlite keeps resumable game state in a single local SQLite file, for hosts that run
// without postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/models"
	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS game_states (
	id TEXT PRIMARY KEY,
	player_a TEXT NOT NULL,
	player_b TEXT NOT NULL,
	status TEXT NOT NULL,
	version INTEGER NOT NULL,
	state TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS game_states_player_a ON game_states (player_a);
CREATE INDEX IF NOT EXISTS game_states_player_b ON game_states (player_b);
`

// Store is a SQLite-backed game state store.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) a SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveGameState upserts state unless a newer version is already stored.
func (s *Store) SaveGameState(ctx context.Context, state models.GameState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state.ID == uuid.Nil {
		return fmt.Errorf("game id is required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal game state: %w", err)
	}
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO game_states (id, player_a, player_b, status, version, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET status = excluded.status, version = excluded.version,
		    state = excluded.state, updated_at = excluded.updated_at
		WHERE game_states.version < excluded.version`,
		state.ID.String(), state.Players[0].ID.String(), state.Players[1].ID.String(),
		string(state.Status), state.Version, string(data), updatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("upsert game state %s: %w", state.ID, err)
	}
	return nil
}

// LoadGameState returns the stored state, or models.ErrGameNotFound.
func (s *Store) LoadGameState(ctx context.Context, id uuid.UUID) (models.GameState, error) {
	var data string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT state FROM game_states WHERE id = ?`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GameState{}, models.ErrGameNotFound
	}
	if err != nil {
		return models.GameState{}, fmt.Errorf("load game state %s: %w", id, err)
	}
	return decodeState(data)
}

// ListGameStates returns the games playerID is seated in, most recently updated first.
func (s *Store) ListGameStates(ctx context.Context, playerID uuid.UUID) ([]models.GameState, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT state FROM game_states
		WHERE player_a = ? OR player_b = ?
		ORDER BY updated_at DESC`,
		playerID.String(), playerID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list game states: %w", err)
	}
	defer rows.Close()

	var out []models.GameState
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		st, err := decodeState(data)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// DeleteGameState removes a game; deleting an unknown id is not an error.
func (s *Store) DeleteGameState(ctx context.Context, id uuid.UUID) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM game_states WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete game state %s: %w", id, err)
	}
	return nil
}

func decodeState(data string) (models.GameState, error) {
	var st models.GameState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return models.GameState{}, fmt.Errorf("decode game state: %w", err)
	}
	return st, nil
}
