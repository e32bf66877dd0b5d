// Package card provides the playing card and deck model for Trash.
package card

import "fmt"

// Suit identifies one of the four standard suits.
type Suit string

const (
	SuitClubs    Suit = "clubs"
	SuitDiamonds Suit = "diamonds"
	SuitHearts   Suit = "hearts"
	SuitSpades   Suit = "spades"
)

// Suits lists the suits in canonical deck-construction order.
var Suits = []Suit{SuitClubs, SuitDiamonds, SuitHearts, SuitSpades}

// Rank identifies a card rank. Joker never appears in a built deck; it
// exists so the progression penalty table can reference it.
type Rank string

const (
	RankAce   Rank = "ace"
	RankTwo   Rank = "two"
	RankThree Rank = "three"
	RankFour  Rank = "four"
	RankFive  Rank = "five"
	RankSix   Rank = "six"
	RankSeven Rank = "seven"
	RankEight Rank = "eight"
	RankNine  Rank = "nine"
	RankTen   Rank = "ten"
	RankJack  Rank = "jack"
	RankQueen Rank = "queen"
	RankKing  Rank = "king"
	RankJoker Rank = "joker"
)

// Ranks lists the deck ranks in canonical order (ace low).
var Ranks = []Rank{
	RankAce, RankTwo, RankThree, RankFour, RankFive, RankSix, RankSeven,
	RankEight, RankNine, RankTen, RankJack, RankQueen, RankKing,
}

var rankValues = map[Rank]int{
	RankAce: 1, RankTwo: 2, RankThree: 3, RankFour: 4, RankFive: 5,
	RankSix: 6, RankSeven: 7, RankEight: 8, RankNine: 9, RankTen: 10,
	RankJack: 11, RankQueen: 12, RankKing: 13,
}

// Card is a single playing card. Identity is rank_of_suit within a
// standard 52-card deck.
type Card struct {
	Rank   Rank `json:"rank"`
	Suit   Suit `json:"suit"`
	FaceUp bool `json:"faceUp"`
}

// ID returns the card identity, e.g. "ace_of_spades".
func (c Card) ID() string {
	return fmt.Sprintf("%s_of_%s", c.Rank, c.Suit)
}

// Value returns the numeric value 1..13 (ace low). Jokers have no value
// and return 0.
func (c Card) Value() int {
	return rankValues[c.Rank]
}

// IsWild reports whether the card is a face card (jack, queen, king).
// Wild cards may be placed in any open slot.
func (c Card) IsWild() bool {
	return c.Rank == RankJack || c.Rank == RankQueen || c.Rank == RankKing
}

func (c Card) String() string {
	return c.ID()
}
