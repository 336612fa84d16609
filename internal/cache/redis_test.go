package cache

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Needs a reachable Redis; set REDIS_ADDR to run against something other than localhost.
func TestPublishGameAction(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb, err := Connect(ctx, addr, 0)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer rdb.Close()

	queue := "courts_actions_test_" + uuid.NewString()
	defer rdb.Del(context.Background(), queue)

	pub := NewPublisher(rdb, queue)
	action := models.GameAction{
		GameID:      uuid.New(),
		ActionIndex: 3,
		ActorID:     uuid.New(),
		ActionType:  "player_play",
		Payload:     map[string]interface{}{"points": float64(-12)},
		Timestamp:   time.Now().UnixMilli(),
	}
	require.NoError(t, pub.PublishGameAction(ctx, action))

	raw, err := rdb.LPop(ctx, queue).Result()
	require.NoError(t, err)

	var got models.GameAction
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, action, got)
}

func TestNewPublisherDefaultsQueue(t *testing.T) {
	assert.Equal(t, DefaultQueueName, NewPublisher(nil, "").Queue())
	assert.Equal(t, "q", NewPublisher(nil, "q").Queue())
}
