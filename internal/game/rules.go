// internal/game/rules.go
package game

import (
	"fmt"
	"time"
)

// Defaults used by NewHouseRules.
const (
	DefaultStartingHP    = 60
	DefaultHandSize      = 5
	DefaultAutoMoveDelay = 3 * time.Second
	DefaultAutoPassRatio = 0.3

	// MaxHandSize lets both opening hands come out of one deck.
	MaxHandSize = 26
)

// HouseRules holds the tunable constants of a table.
type HouseRules struct {
	StartingHP    int           `json:"startingHp"`    // hit points each player starts with
	HandSize      int           `json:"handSize"`      // cards dealt initially and refilled to after a play
	AutoMoveDelay time.Duration `json:"autoMoveDelay"` // pacing delay before an automatic player moves
	AutoPassRatio float64       `json:"autoPassRatio"` // numbered/courts ratio under which the automatic player draws instead
}

// NewHouseRules returns the standard table.
func NewHouseRules() HouseRules {
	return HouseRules{
		StartingHP:    DefaultStartingHP,
		HandSize:      DefaultHandSize,
		AutoMoveDelay: DefaultAutoMoveDelay,
		AutoPassRatio: DefaultAutoPassRatio,
	}
}

// Update applies the rules present in newRules; absent keys keep their current value.
// Numbers arrive as float64 from JSON; autoMoveDelayMs is milliseconds.
func (rules *HouseRules) Update(newRules map[string]interface{}) error {
	assignInt := func(field *int, key string, minVal int) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		var n int
		switch v := val.(type) {
		case float64:
			n = int(v)
		case int:
			n = v
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		if n < minVal {
			return fmt.Errorf("%s must be at least %d", key, minVal)
		}
		*field = n
		return nil
	}

	if err := assignInt(&rules.StartingHP, "startingHp", 1); err != nil {
		return err
	}
	if err := assignInt(&rules.HandSize, "handSize", 1); err != nil {
		return err
	}
	if rules.HandSize > MaxHandSize {
		return fmt.Errorf("handSize must be at most %d", MaxHandSize)
	}

	delayMs := -1
	if err := assignInt(&delayMs, "autoMoveDelayMs", 0); err != nil {
		return err
	}
	if delayMs >= 0 {
		rules.AutoMoveDelay = time.Duration(delayMs) * time.Millisecond
	}

	if val, exists := newRules["autoPassRatio"]; exists && val != nil {
		ratio, ok := val.(float64)
		if !ok {
			return fmt.Errorf("invalid type for autoPassRatio")
		}
		if ratio < 0 {
			return fmt.Errorf("autoPassRatio must be non-negative")
		}
		rules.AutoPassRatio = ratio
	}
	return nil
}

// ParseRules applies rules on top of current and returns the result; current is not modified.
func ParseRules(rules map[string]interface{}, current HouseRules) (HouseRules, error) {
	houseRules := current
	err := houseRules.Update(rules)
	return houseRules, err
}
