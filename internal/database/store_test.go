package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore connects to TEST_DATABASE_URL, skipping when it is unset or unreachable.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := Connect(ctx, url)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	s := NewStore(pool)
	require.NoError(t, s.EnsureSchema(ctx))
	t.Cleanup(s.Close)
	return s
}

func TestGameStateNewerVersionWins(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	st := models.GameState{
		ID:      uuid.New(),
		Version: 2,
		Status:  models.StatusAwaitingPlayerA,
		Players: [2]models.PlayerState{{ID: uuid.New(), HP: 60}, {ID: uuid.New(), HP: 60}},
		Deck:    models.FullDeck(),
	}
	st.Turn = st.Players[0].ID
	t.Cleanup(func() { _ = s.DeleteGameState(ctx, st.ID) })

	require.NoError(t, s.SaveGameState(ctx, st))

	stale := st
	stale.Version = 1
	stale.Players[0].HP = 1
	require.NoError(t, s.SaveGameState(ctx, stale))

	got, err := s.LoadGameState(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 60, got.Players[0].HP)
	assert.Len(t, got.Deck, 52)

	list, err := s.ListGameStates(ctx, st.Players[1].ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, st.ID, list[0].ID)

	require.NoError(t, s.DeleteGameState(ctx, st.ID))
	_, err = s.LoadGameState(ctx, st.ID)
	assert.ErrorIs(t, err, models.ErrGameNotFound)
}

func TestUsersAndResults(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	alice := &models.User{Email: uuid.NewString() + "@example.com", Password: "hunter22", Username: "alice"}
	require.NoError(t, s.CreateUser(ctx, alice))
	guest := &models.User{Username: "guest", IsEphemeral: true}
	require.NoError(t, s.CreateUser(ctx, guest))

	authed, err := s.AuthenticateUser(ctx, alice.Email, "hunter22")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, authed.ID)

	_, err = s.AuthenticateUser(ctx, alice.Email, "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	gameID := uuid.New()
	final := models.GameState{
		ID:      gameID,
		Status:  models.StatusGameOver,
		Players: [2]models.PlayerState{{ID: alice.ID}, {ID: guest.ID}},
	}
	result := models.GameResult{WinnerID: alice.ID, Reason: "defeated"}
	require.NoError(t, s.RecordGameResult(ctx, gameID, result, final))
	t.Cleanup(func() { _ = s.DeleteGameState(ctx, gameID) })

	a, err := s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Wins)
	g, err := s.GetUserByID(ctx, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Losses)
	assert.Greater(t, a.Rating, g.Rating)
}

func TestInsertGameActionsIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	gameID := uuid.New()
	t.Cleanup(func() { _ = s.DeleteGameState(ctx, gameID) })
	batch := []models.GameAction{
		{GameID: gameID, ActionIndex: 1, ActionType: "game_start"},
		{GameID: gameID, ActionIndex: 2, ActorID: uuid.New(), ActionType: "player_draw", Payload: map[string]interface{}{"drew": true}},
	}
	require.NoError(t, s.InsertGameActions(ctx, batch))
	require.NoError(t, s.InsertGameActions(ctx, batch))

	var n int
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM game_actions WHERE game_id = $1`, gameID).Scan(&n))
	assert.Equal(t, 2, n)

	require.NoError(t, s.MarkGameAbandoned(ctx, gameID))
	var status string
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT status FROM games WHERE id = $1`, gameID).Scan(&status))
	assert.Equal(t, "abandoned", status)
}
