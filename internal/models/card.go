// internal/models/card.go
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Suit is one of the four standard suits.
type Suit uint8

const (
	Hearts Suit = iota + 1
	Spades
	Diamonds
	Clubs
)

// Suits lists every suit in deck-building order.
var Suits = [...]Suit{Hearts, Spades, Diamonds, Clubs}

func (s Suit) String() string {
	switch s {
	case Hearts:
		return "Hearts"
	case Spades:
		return "Spades"
	case Diamonds:
		return "Diamonds"
	case Clubs:
		return "Clubs"
	default:
		return "?"
	}
}

// Valid reports whether s is one of the four suits.
func (s Suit) Valid() bool {
	return s >= Hearts && s <= Clubs
}

// ParseSuit converts a suit name ("Hearts", "spades", ...) into a Suit.
func ParseSuit(name string) (Suit, error) {
	for _, s := range Suits {
		if strings.EqualFold(name, s.String()) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown suit %q", name)
}

// Rank is a card rank. Ace is 1, numbered cards are 1..10 and the courts follow.
type Rank uint8

const (
	Ace   Rank = 1
	Ten   Rank = 10
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
)

// Ranks lists every rank from Ace to King.
var Ranks = [...]Rank{Ace, 2, 3, 4, 5, 6, 7, 8, 9, Ten, Jack, Queen, King}

// IsCourt reports whether r is a Jack, Queen or King.
func (r Rank) IsCourt() bool {
	return r >= Jack && r <= King
}

// IsNumbered reports whether r is Ace through 10.
func (r Rank) IsNumbered() bool {
	return r >= Ace && r <= Ten
}

func (r Rank) String() string {
	switch {
	case r == Ace:
		return "Ace"
	case r == Jack:
		return "Jack"
	case r == Queen:
		return "Queen"
	case r == King:
		return "King"
	case r.IsNumbered():
		return strconv.Itoa(int(r))
	default:
		return "?"
	}
}

// ParseRank accepts "Ace", "2".."10", "Jack", "Queen", "King". "1" is read as Ace.
func ParseRank(name string) (Rank, error) {
	switch strings.ToLower(name) {
	case "ace", "1":
		return Ace, nil
	case "jack":
		return Jack, nil
	case "queen":
		return Queen, nil
	case "king":
		return King, nil
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 2 || n > 10 {
		return 0, fmt.Errorf("unknown rank %q", name)
	}
	return Rank(n), nil
}

// Card is an immutable playing card. Two cards are equal when rank and suit match.
type Card struct {
	Rank Rank
	Suit Suit
}

// IsCourt reports whether the card is a Jack, Queen or King.
func (c Card) IsCourt() bool { return c.Rank.IsCourt() }

// IsNumbered reports whether the card is Ace through 10.
func (c Card) IsNumbered() bool { return c.Rank.IsNumbered() }

// IsHeart reports whether the card is a Heart.
func (c Card) IsHeart() bool { return c.Suit == Hearts }

// Value is the scoring value of a numbered card (Ace counts 1).
func (c Card) Value() int { return int(c.Rank) }

// String returns the canonical "<rank> of <suit>" form, e.g. "Queen of Hearts".
func (c Card) String() string {
	return c.Rank.String() + " of " + c.Suit.String()
}

// ParseCard parses the canonical "<rank> of <suit>" form.
func ParseCard(s string) (Card, error) {
	rankPart, suitPart, ok := strings.Cut(strings.TrimSpace(s), " of ")
	if !ok {
		return Card{}, fmt.Errorf("malformed card %q", s)
	}
	rank, err := ParseRank(strings.TrimSpace(rankPart))
	if err != nil {
		return Card{}, fmt.Errorf("parse card %q: %w", s, err)
	}
	suit, err := ParseSuit(strings.TrimSpace(suitPart))
	if err != nil {
		return Card{}, fmt.Errorf("parse card %q: %w", s, err)
	}
	return Card{Rank: rank, Suit: suit}, nil
}

// MustParseCard is ParseCard for literals; it panics on malformed input.
func MustParseCard(s string) Card {
	c, err := ParseCard(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCards parses a list of canonical card strings.
func ParseCards(names []string) ([]Card, error) {
	cards := make([]Card, 0, len(names))
	for _, n := range names {
		c, err := ParseCard(n)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// MarshalText encodes the card in its canonical string form for JSON and storage.
func (c Card) MarshalText() ([]byte, error) {
	if !c.Suit.Valid() || !(c.Rank.IsNumbered() || c.Rank.IsCourt()) {
		return nil, fmt.Errorf("invalid card rank=%d suit=%d", c.Rank, c.Suit)
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes the canonical string form.
func (c *Card) UnmarshalText(text []byte) error {
	parsed, err := ParseCard(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// FullDeck returns the 52 distinct cards, suit by suit.
func FullDeck() []Card {
	cards := make([]Card, 0, len(Suits)*len(Ranks))
	for _, s := range Suits {
		for _, r := range Ranks {
			cards = append(cards, Card{Rank: r, Suit: s})
		}
	}
	return cards
}

// Courts returns the court cards of hand, in hand order.
func Courts(hand []Card) []Card {
	var out []Card
	for _, c := range hand {
		if c.IsCourt() {
			out = append(out, c)
		}
	}
	return out
}

// Numbered returns the numbered cards of hand, in hand order.
func Numbered(hand []Card) []Card {
	var out []Card
	for _, c := range hand {
		if c.IsNumbered() {
			out = append(out, c)
		}
	}
	return out
}

// CardStrings renders cards in canonical form.
func CardStrings(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}
