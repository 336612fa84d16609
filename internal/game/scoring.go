// internal/game/scoring.go
package game

import "github.com/jason-s-yu/courts/internal/models"

// Score is the outcome of a validated play.
type Score struct {
	Base     int  `json:"base"`     // sum of numbered values, counter-bonus applied
	Factor   int  `json:"factor"`   // 2 when both courts share a suit, else 1
	Recovery bool `json:"recovery"` // heals the actor; otherwise damages the opponent
}

// Points is the magnitude of the HP change.
func (s Score) Points() int {
	return s.Base * s.Factor
}

// Signed is Points with recovery positive and attack negative.
func (s Score) Signed() int {
	if s.Recovery {
		return s.Points()
	}
	return -s.Points()
}

// ScorePlay scores cards that already passed Validate. opponentCourt is the court of the
// opponent's last play, or nil when they have none on record.
//
// Numbered cards sharing the opponent court's suit count double, and the whole play doubles
// when the actor's court mirrors the opponent court's suit.
func ScorePlay(cards []models.Card, opponentCourt *models.Card) Score {
	court, numbered := splitPlay(cards)

	base := 0
	for _, c := range numbered {
		v := c.Value()
		if opponentCourt != nil && c.Suit == opponentCourt.Suit {
			v *= 2
		}
		base += v
	}

	factor := 1
	if court != nil && opponentCourt != nil && court.Suit == opponentCourt.Suit {
		factor = 2
	}

	return Score{
		Base:     base,
		Factor:   factor,
		Recovery: isRecoverySet(numbered),
	}
}
