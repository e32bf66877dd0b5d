package card

import (
	"fmt"
	"math/rand"
)

// DeckSize is the number of cards in a standard deck.
const DeckSize = 52

// NewDeck returns the canonical 52-card deck, all face down, in
// deterministic generation order (suit-major, rank-minor).
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, suit := range Suits {
		for _, rank := range Ranks {
			deck = append(deck, Card{Rank: rank, Suit: suit})
		}
	}
	return deck
}

// Shuffle permutes the deck in place using Fisher-Yates with a fresh
// random source.
func Shuffle(deck []Card) {
	shuffle(deck, rand.Int63())
}

// ShuffleSeeded permutes the deck in place using Fisher-Yates. The same
// seed always yields the same permutation, which keeps dealt games
// reproducible in tests.
func ShuffleSeeded(deck []Card, seed int64) {
	shuffle(deck, seed)
}

func shuffle(deck []Card, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := len(deck) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
}

// Deal removes up to n cards from the top (head) of the deck in order and
// returns them face down alongside the remaining deck. When fewer than n
// cards are available it deals as many as it can and returns an empty
// remainder. The short deal is a deliberate signal the caller must handle;
// use DealExact when a short deck is an error.
func Deal(deck []Card, n int) (dealt, rest []Card) {
	if n < 0 {
		n = 0
	}
	if n > len(deck) {
		n = len(deck)
	}
	dealt = make([]Card, n)
	copy(dealt, deck[:n])
	for i := range dealt {
		dealt[i].FaceUp = false
	}
	rest = make([]Card, len(deck)-n)
	copy(rest, deck[n:])
	return dealt, rest
}

// DealExact behaves like Deal but fails when the deck cannot cover the
// request. Only full-game initialization uses it, so a short deck is
// surfaced before any player state is built.
func DealExact(deck []Card, n int) (dealt, rest []Card, err error) {
	if n > len(deck) {
		return nil, deck, fmt.Errorf("deal %d cards: only %d in deck", n, len(deck))
	}
	dealt, rest = Deal(deck, n)
	return dealt, rest, nil
}

// Verify reports whether the deck holds exactly 52 cards with unique
// identities covering all 13 ranks in all 4 suits.
func Verify(deck []Card) bool {
	if len(deck) != DeckSize {
		return false
	}
	seen := make(map[string]bool, DeckSize)
	for _, c := range deck {
		if c.Value() == 0 {
			return false
		}
		id := c.ID()
		if seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}
