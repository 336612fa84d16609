package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateWinnerGainsLoserLoses(t *testing.T) {
	w, l := Update(Default(), Default(), Win)

	assert.Greater(t, w.Rating, DefaultRating)
	assert.Less(t, l.Rating, DefaultRating)
	assert.InDelta(t, w.Rating-DefaultRating, DefaultRating-l.Rating, 1e-6, "equal players move symmetrically")
	assert.Less(t, w.Deviation, DefaultDeviation)
	assert.Less(t, l.Deviation, DefaultDeviation)
}

func TestUpdateTieBetweenEqualsKeepsRating(t *testing.T) {
	a, b := Update(Default(), Default(), Tie)
	assert.InDelta(t, DefaultRating, a.Rating, 1e-6)
	assert.InDelta(t, DefaultRating, b.Rating, 1e-6)
}

func TestUpsetMovesMoreThanExpectedWin(t *testing.T) {
	strong := Rating{Rating: 1900, Deviation: 80, Volatility: DefaultVolatility}
	weak := Rating{Rating: 1400, Deviation: 80, Volatility: DefaultVolatility}

	expectedWin, _ := Update(strong, weak, Win)
	upset, _ := Update(weak, strong, Win)

	assert.Less(t, expectedWin.Rating-strong.Rating, upset.Rating-weak.Rating)
}

// The single-opponent step of Glickman's worked example: 1500/200 beats 1400/30.
func TestUpdateMatchesReferenceStep(t *testing.T) {
	player := Rating{Rating: 1500, Deviation: 200, Volatility: 0.06}
	opp := Rating{Rating: 1400, Deviation: 30, Volatility: 0.06}

	got, _ := Update(player, opp, Win)
	assert.Greater(t, got.Rating, 1550.0)
	assert.Less(t, got.Rating, 1600.0)
	assert.InDelta(t, 0.06, got.Volatility, 0.001)
}

func TestZeroRatingIsNewPlayer(t *testing.T) {
	assert.Equal(t, Default(), Rating{}.OrDefault())
}
