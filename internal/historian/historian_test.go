// internal/historian/historian_test.go
package historian

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanSource feeds actions from a channel, standing in for the Redis queue.
type chanSource struct {
	ch chan models.GameAction
}

func (c *chanSource) Pop(ctx context.Context, timeout time.Duration) (models.GameAction, bool, error) {
	select {
	case <-ctx.Done():
		return models.GameAction{}, false, ctx.Err()
	case a := <-c.ch:
		return a, true, nil
	case <-time.After(timeout):
		return models.GameAction{}, false, nil
	}
}

type memorySink struct {
	mu        sync.Mutex
	actions   []models.GameAction
	abandoned []uuid.UUID
	failNext  bool
}

func (m *memorySink) InsertGameActions(_ context.Context, actions []models.GameAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return errors.New("db down")
	}
	m.actions = append(m.actions, actions...)
	return nil
}

func (m *memorySink) MarkGameAbandoned(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abandoned = append(m.abandoned, id)
	return nil
}

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.actions)
}

func action(gameID uuid.UUID, i int, typ string) models.GameAction {
	return models.GameAction{GameID: gameID, ActionIndex: i, ActionType: typ, Timestamp: time.Now().UnixMilli()}
}

func TestRunBatchesAndFlushesOnShutdown(t *testing.T) {
	src := &chanSource{ch: make(chan models.GameAction, 10)}
	sink := &memorySink{}
	svc := NewService(src, sink, Options{BatchSize: 2, FlushDelay: time.Hour, PopTimeout: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	gameID := uuid.New()
	for i := 1; i <= 3; i++ {
		src.ch <- action(gameID, i, "player_draw")
	}

	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond,
		"a full batch is flushed immediately")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("historian did not stop")
	}
	assert.Equal(t, 3, sink.count(), "the partial batch is flushed on shutdown")
}

func TestFlushRetriesAfterFailure(t *testing.T) {
	sink := &memorySink{failNext: true}
	svc := NewService(nil, sink, Options{BatchSize: 10})
	ctx := context.Background()

	svc.Add(ctx, action(uuid.New(), 1, "game_start"))
	svc.Flush(ctx)
	assert.Equal(t, 0, sink.count())

	svc.Flush(ctx)
	assert.Equal(t, 1, sink.count(), "the failed batch is kept for the next flush")
}

func TestSweepInactiveMarksQuietGames(t *testing.T) {
	sink := &memorySink{}
	svc := NewService(nil, sink, Options{BatchSize: 10, Inactivity: time.Minute})
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }

	quiet, finished, busy := uuid.New(), uuid.New(), uuid.New()
	svc.Add(ctx, action(quiet, 1, "player_play"))
	svc.Add(ctx, action(finished, 1, "player_play"))
	svc.Add(ctx, action(finished, 2, "game_end"))

	svc.now = func() time.Time { return base.Add(50 * time.Second) }
	svc.Add(ctx, action(busy, 1, "player_play"))

	svc.now = func() time.Time { return base.Add(90 * time.Second) }
	svc.SweepInactive(ctx)

	require.Equal(t, []uuid.UUID{quiet}, sink.abandoned)
	assert.Equal(t, 4, sink.count(), "pending actions are flushed before marking")

	svc.SweepInactive(ctx)
	assert.Len(t, sink.abandoned, 1, "a game is only marked once")
}
