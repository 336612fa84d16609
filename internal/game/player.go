// internal/game/player.go
package game

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/models"
)

// Player is one side of the table. The opponent is the other seat of the owning Game.
type Player struct {
	ID       uuid.UUID
	Auto     bool // moves are chosen by the automatic heuristic
	HP       int
	Cards    []models.Card
	LastPlay models.LastPlay
}

// NewPlayer seats a human-controlled player.
func NewPlayer(id uuid.UUID) *Player {
	return &Player{ID: id}
}

// NewAutoPlayer seats a computer-controlled player with a fresh id.
func NewAutoPlayer() *Player {
	return &Player{ID: uuid.New(), Auto: true}
}

// Defeated reports whether the player has run out of hit points.
func (p *Player) Defeated() bool {
	return p.HP <= 0
}

// HasNumbered reports whether any numbered card is in hand; without one no legal play exists.
func (p *Player) HasNumbered() bool {
	for _, c := range p.Cards {
		if c.IsNumbered() {
			return true
		}
	}
	return false
}

// lastCourt is the court of the player's last play, or nil.
func (p *Player) lastCourt() *models.Card {
	c, ok := p.LastPlay.Court()
	if !ok {
		return nil
	}
	return &c
}

// checkHolds returns a CardsNotHeld rejection unless every card is in hand, counting repeats.
func (p *Player) checkHolds(cards []models.Card) error {
	held := make(map[models.Card]int, len(p.Cards))
	for _, c := range p.Cards {
		held[c]++
	}
	for _, c := range cards {
		if held[c] == 0 {
			return &Rejection{Reason: CardsNotHeld, Card: c}
		}
		held[c]--
	}
	return nil
}

// removeCards drops the given cards from the hand. Callers check holdings first.
func (p *Player) removeCards(cards []models.Card) {
	remove := make(map[models.Card]int, len(cards))
	for _, c := range cards {
		remove[c]++
	}
	kept := make([]models.Card, 0, len(p.Cards))
	for _, c := range p.Cards {
		if remove[c] > 0 {
			remove[c]--
			continue
		}
		kept = append(kept, c)
	}
	p.Cards = kept
}

// drawOne adds one card from deck; an empty deck is a no-op.
func (p *Player) drawOne(deck *Deck) bool {
	c, err := deck.Draw()
	if err != nil {
		return false
	}
	p.Cards = append(p.Cards, c)
	return true
}

// refill draws until the hand holds size cards or the deck runs out.
func (p *Player) refill(deck *Deck, size int) int {
	drawn := 0
	for len(p.Cards) < size && p.drawOne(deck) {
		drawn++
	}
	return drawn
}

// applyPlay validates and applies a candidate for the player in seat. Nothing changes unless
// every check passes. Assumes lock is held.
func (g *Game) applyPlay(seat int, cards []models.Card) (Score, error) {
	player := g.players[seat]
	opponent := g.players[1-seat]

	if err := Validate(Candidate(cards...)); err != nil {
		return Score{}, err
	}
	if err := player.checkHolds(cards); err != nil {
		return Score{}, err
	}

	score := ScorePlay(cards, opponent.lastCourt())

	played := make([]models.Card, len(cards))
	copy(played, cards)

	player.removeCards(played)
	g.played = append(g.played, played...)

	if score.Recovery {
		player.HP += score.Points()
	} else {
		opponent.HP -= score.Points()
	}
	player.LastPlay = models.LastPlay{Cards: played, Points: score.Signed()}

	player.refill(g.deck, g.Rules.HandSize)
	return score, nil
}

// applyDraw is the pass action: draw one card and clear both last plays, since the court
// mirroring bonus only links consecutive plays. Assumes lock is held.
func (g *Game) applyDraw(seat int) bool {
	player := g.players[seat]
	drew := player.drawOne(g.deck)
	player.LastPlay = models.LastPlay{Drew: true}
	g.players[1-seat].LastPlay = models.LastPlay{}
	return drew
}

// isRejection reports whether err is a validation rejection rather than a session error.
func isRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}
