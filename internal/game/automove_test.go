package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChooseAutoMove(t *testing.T) {
	rules := NewHouseRules()

	t.Run("best court pairing by points", func(t *testing.T) {
		hand := cards("Jack of Clubs", "10 of Spades", "9 of Diamonds", "2 of Hearts", "3 of Hearts")
		move := ChooseAutoMove(hand, nil, rules)
		assert.False(t, move.Pass)
		assert.Equal(t, cards("Jack of Clubs", "10 of Spades", "9 of Diamonds"), move.Cards)
		assert.Equal(t, 19, move.Score.Points())
	})

	t.Run("opponent court can favour recovery", func(t *testing.T) {
		hand := cards("Jack of Hearts", "4 of Hearts", "3 of Hearts", "5 of Spades", "2 of Spades")
		move := ChooseAutoMove(hand, court("Queen of Hearts"), rules)
		assert.Equal(t, cards("Jack of Hearts", "4 of Hearts", "3 of Hearts"), move.Cards)
		assert.Equal(t, Score{Base: 14, Factor: 2, Recovery: true}, move.Score)
	})

	t.Run("falls back to highest single card", func(t *testing.T) {
		hand := cards("Queen of Hearts", "4 of Spades", "9 of Hearts")
		move := ChooseAutoMove(hand, nil, rules)
		assert.Equal(t, cards("9 of Hearts"), move.Cards)
		assert.True(t, move.Score.Recovery)
	})

	t.Run("too few numbered cards draws", func(t *testing.T) {
		hand := cards("Queen of Hearts", "Jack of Clubs", "King of Spades", "Jack of Diamonds", "Ace of Spades")
		assert.True(t, ChooseAutoMove(hand, nil, rules).Pass)

		hand = cards("Jack of Clubs", "Queen of Spades", "King of Hearts", "Jack of Diamonds", "9 of Spades")
		assert.True(t, ChooseAutoMove(hand, nil, rules).Pass, "1 numbered to 4 courts is under the ratio")
	})

	t.Run("no courts plays numbered cards", func(t *testing.T) {
		move := ChooseAutoMove(cards("3 of Clubs", "8 of Hearts"), nil, rules)
		assert.False(t, move.Pass)
		assert.Equal(t, cards("8 of Hearts"), move.Cards)
	})

	t.Run("only courts passes", func(t *testing.T) {
		hand := cards("Queen of Hearts", "Jack of Clubs")
		assert.True(t, ChooseAutoMove(hand, nil, rules).Pass)
	})

	t.Run("chosen cards always validate", func(t *testing.T) {
		d := NewDeck(NewRand(5))
		for i := 0; i < 10; i++ {
			hand, err := d.DealInitial(5)
			if err != nil {
				break
			}
			move := ChooseAutoMove(hand, nil, rules)
			if !move.Pass {
				assert.NoError(t, Validate(Candidate(move.Cards...)))
			}
		}
	})
}
