package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT UNIQUE,
		password TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		is_ephemeral BOOLEAN NOT NULL DEFAULT FALSE,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		ties INTEGER NOT NULL DEFAULT 0,
		rating DOUBLE PRECISION NOT NULL DEFAULT 1500,
		rating_deviation DOUBLE PRECISION NOT NULL DEFAULT 350,
		volatility DOUBLE PRECISION NOT NULL DEFAULT 0.06,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id UUID PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'in_progress',
		player_a UUID,
		player_b UUID,
		version BIGINT NOT NULL DEFAULT 0,
		state JSONB,
		winner_id UUID,
		tie BOOLEAN NOT NULL DEFAULT FALSE,
		end_reason TEXT,
		start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS games_player_a_idx ON games (player_a)`,
	`CREATE INDEX IF NOT EXISTS games_player_b_idx ON games (player_b)`,
	`CREATE TABLE IF NOT EXISTS game_actions (
		game_id UUID NOT NULL,
		action_index INTEGER NOT NULL,
		actor_user_id UUID,
		action_type TEXT NOT NULL,
		action_payload JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (game_id, action_index)
	)`,
}

// EnsureSchema creates the tables the service needs if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
