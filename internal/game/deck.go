// internal/game/deck.go
package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jason-s-yu/courts/internal/models"
)

// ErrEmptyDeck is returned by Draw when no cards remain. Callers treat it as "no card drawn".
var ErrEmptyDeck = errors.New("no more cards in draw pile")

// Deck is the shared draw pile of one game. Cards leave it for good; nothing is ever returned.
type Deck struct {
	cards []models.Card
	rng   *rand.Rand
}

// NewRand returns a deterministic source for the given seed, for reproducible games and tests.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// newTimeSeededRand is the default source when none is injected.
func newTimeSeededRand() *rand.Rand {
	return NewRand(uint64(time.Now().UnixNano()))
}

// NewDeck builds a full 52-card deck. A nil rng is replaced by a time-seeded one.
func NewDeck(rng *rand.Rand) *Deck {
	return RestoreDeck(models.FullDeck(), rng)
}

// RestoreDeck rebuilds a deck from persisted remaining cards.
func RestoreDeck(cards []models.Card, rng *rand.Rand) *Deck {
	if rng == nil {
		rng = newTimeSeededRand()
	}
	owned := make([]models.Card, len(cards))
	copy(owned, cards)
	return &Deck{cards: owned, rng: rng}
}

// Draw removes and returns a uniformly random card from those remaining.
func (d *Deck) Draw() (models.Card, error) {
	n := len(d.cards)
	if n == 0 {
		return models.Card{}, ErrEmptyDeck
	}
	i := d.rng.IntN(n)
	card := d.cards[i]
	// order carries no meaning, so swap-remove
	d.cards[i] = d.cards[n-1]
	d.cards = d.cards[:n-1]
	return card, nil
}

// DealInitial draws n cards for an opening hand.
func (d *Deck) DealInitial(n int) ([]models.Card, error) {
	if n > len(d.cards) {
		return nil, fmt.Errorf("deal %d cards from %d remaining: %w", n, len(d.cards), ErrEmptyDeck)
	}
	hand := make([]models.Card, 0, n)
	for i := 0; i < n; i++ {
		c, err := d.Draw()
		if err != nil {
			return nil, err
		}
		hand = append(hand, c)
	}
	return hand, nil
}

// IsEmpty reports whether the draw pile is exhausted.
func (d *Deck) IsEmpty() bool {
	return len(d.cards) == 0
}

// Len is the number of cards remaining.
func (d *Deck) Len() int {
	return len(d.cards)
}

// Cards returns a copy of the remaining cards, for persistence.
func (d *Deck) Cards() []models.Card {
	out := make([]models.Card, len(d.cards))
	copy(out, d.cards)
	return out
}
