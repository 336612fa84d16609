// internal/game/validate.go
package game

import (
	"fmt"

	"github.com/jason-s-yu/courts/internal/models"
)

// Play is what a player submits on their turn: either a candidate set of cards or a pass.
// The zero value is an empty candidate, which is rejected; use Pass to draw instead.
type Play struct {
	pass  bool
	cards []models.Card
}

// Candidate wraps the cards a player proposes to play.
func Candidate(cards ...models.Card) Play {
	return Play{cards: cards}
}

// Pass is the draw-instead-of-play signal.
func Pass() Play {
	return Play{pass: true}
}

// IsPass reports whether the play is a pass.
func (p Play) IsPass() bool { return p.pass }

// Cards returns the candidate cards; nil for a pass.
func (p Play) Cards() []models.Card { return p.cards }

// RejectionReason is a machine-readable code for an illegal play.
type RejectionReason string

const (
	EmptySelection     RejectionReason = "EMPTY_SELECTION"
	MultipleCourts     RejectionReason = "MULTIPLE_COURTS"
	CourtCountMismatch RejectionReason = "COURT_COUNT_MISMATCH"
	SingleCardRequired RejectionReason = "SINGLE_CARD_REQUIRED"
	MixedNumberedSuits RejectionReason = "MIXED_NUMBERED_SUITS"
	CardsNotHeld       RejectionReason = "CARDS_NOT_HELD"
)

// Rejection explains why a play was refused. It is always recoverable: the player resubmits.
type Rejection struct {
	Reason RejectionReason
	// Court and Required are set for CourtCountMismatch.
	Court    models.Rank
	Required int
	// Card is set for CardsNotHeld.
	Card models.Card
}

// Error returns a message suitable for showing to the player.
func (r *Rejection) Error() string {
	switch r.Reason {
	case EmptySelection:
		return "Please select some cards."
	case MultipleCourts:
		return "Can only play one court card on each turn."
	case CourtCountMismatch:
		return fmt.Sprintf("A %s must accompany %d cards.", r.Court, r.Required)
	case SingleCardRequired:
		return "Can only play one card without a court card."
	case MixedNumberedSuits:
		return "Numbered cards must be all recovery points (Hearts) or all attack points (not Hearts)."
	case CardsNotHeld:
		return fmt.Sprintf("You are not holding the %s.", r.Card)
	default:
		return string(r.Reason)
	}
}

// CourtCompanions returns how many numbered cards must accompany a court of the given rank.
func CourtCompanions(rank models.Rank) (int, bool) {
	switch rank {
	case models.Jack:
		return 2, true
	case models.Queen:
		return 3, true
	case models.King:
		return 4, true
	default:
		return 0, false
	}
}

// splitPlay separates the single designated court (if any) from the rest of the cards.
// Only the first court found is designated; callers reject extra courts before relying on this.
func splitPlay(cards []models.Card) (court *models.Card, numbered []models.Card) {
	for i := range cards {
		if court == nil && cards[i].IsCourt() {
			c := cards[i]
			court = &c
			continue
		}
		numbered = append(numbered, cards[i])
	}
	return court, numbered
}

// isRecoverySet reports whether every card is a Heart. An empty set is not a recovery.
func isRecoverySet(numbered []models.Card) bool {
	if len(numbered) == 0 {
		return false
	}
	for _, c := range numbered {
		if !c.IsHeart() {
			return false
		}
	}
	return true
}

// Validate applies the play rules in order and returns a *Rejection for the first one broken.
// A pass is always valid.
func Validate(play Play) error {
	if play.IsPass() {
		return nil
	}
	cards := play.Cards()
	if len(cards) == 0 {
		return &Rejection{Reason: EmptySelection}
	}
	if len(models.Courts(cards)) > 1 {
		return &Rejection{Reason: MultipleCourts}
	}

	court, numbered := splitPlay(cards)
	if court != nil {
		required, _ := CourtCompanions(court.Rank)
		if len(numbered) != required {
			return &Rejection{Reason: CourtCountMismatch, Court: court.Rank, Required: required}
		}
	} else if len(numbered) != 1 {
		return &Rejection{Reason: SingleCardRequired}
	}

	hearts := 0
	for _, c := range numbered {
		if c.IsHeart() {
			hearts++
		}
	}
	if hearts != 0 && hearts != len(numbered) {
		return &Rejection{Reason: MixedNumberedSuits}
	}
	return nil
}
