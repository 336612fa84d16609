package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHouseRulesUpdate(t *testing.T) {
	rules := NewHouseRules()
	err := rules.Update(map[string]interface{}{
		"startingHp":      float64(200),
		"autoMoveDelayMs": float64(250),
		"autoPassRatio":   0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, rules.StartingHP)
	assert.Equal(t, DefaultHandSize, rules.HandSize, "absent keys keep their value")
	assert.Equal(t, 250*time.Millisecond, rules.AutoMoveDelay)
	assert.Equal(t, 0.5, rules.AutoPassRatio)
}

func TestParseRulesRejectsBadValues(t *testing.T) {
	current := NewHouseRules()

	_, err := ParseRules(map[string]interface{}{"handSize": float64(0)}, current)
	assert.Error(t, err)

	_, err = ParseRules(map[string]interface{}{"startingHp": "lots"}, current)
	assert.Error(t, err)

	_, err = ParseRules(map[string]interface{}{"autoPassRatio": -1.0}, current)
	assert.Error(t, err)

	_, err = ParseRules(map[string]interface{}{"handSize": float64(MaxHandSize + 1)}, current)
	assert.Error(t, err, "two hands larger than half the deck cannot be dealt")

	rules, err := ParseRules(map[string]interface{}{"handSize": float64(MaxHandSize)}, current)
	require.NoError(t, err)
	assert.Equal(t, MaxHandSize, rules.HandSize)

	assert.Equal(t, NewHouseRules(), current, "ParseRules leaves current untouched")
}
