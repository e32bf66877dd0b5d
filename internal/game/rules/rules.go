// Package rules implements the pure Trash rule checks: slot matching,
// wildcard handling, win detection and the round schedule. Everything here
// is state-in/value-out; nothing mutates its inputs.
package rules

import (
	"fmt"

	"github.com/trashgame/trash-server-go/internal/game/card"
)

// MaxRounds is the number of rounds in a full match.
const MaxRounds = 10

// MoveResult is the verdict of a placement check.
type MoveResult struct {
	Legal  bool
	Reason string
}

func legal() MoveResult {
	return MoveResult{Legal: true}
}

func illegal(format string, args ...interface{}) MoveResult {
	return MoveResult{Legal: false, Reason: fmt.Sprintf(format, args...)}
}

// CanPlaceCard reports whether the card may occupy the given zero-based
// slot. Numbered cards (ace=1 .. ten=10) fit only slot value-1; jacks,
// queens and kings are wild and fit any slot.
func CanPlaceCard(c card.Card, slot int) bool {
	if slot < 0 {
		return false
	}
	if c.IsWild() {
		return true
	}
	return c.Value() >= 1 && c.Value() <= 10 && slot == c.Value()-1
}

// ValidateMove composes the slot-range, slot-occupancy and slot-matching
// checks for placing c into the hand at targetSlot. Turn ownership is
// checked by the command validator before this is consulted.
func ValidateMove(hand []card.Card, c card.Card, targetSlot int) MoveResult {
	if targetSlot < 0 || targetSlot >= len(hand) {
		return illegal("slot %d out of range for a %d-card hand", targetSlot, len(hand))
	}
	if hand[targetSlot].FaceUp {
		return illegal("slot %d already holds %s face up", targetSlot, hand[targetSlot].ID())
	}
	if !CanPlaceCard(c, targetSlot) {
		return illegal("%s does not fit slot %d", c.ID(), targetSlot)
	}
	return legal()
}

// HasPlayerWon reports whether the hand completes the current round: all
// roundSize slots face up, each slot i holding a card of value i+1 or a
// wildcard standing in for it.
func HasPlayerWon(hand []card.Card, roundSize int) bool {
	if len(hand) != roundSize {
		return false
	}
	for i, c := range hand {
		if !c.FaceUp {
			return false
		}
		if !c.IsWild() && c.Value() != i+1 {
			return false
		}
	}
	return true
}

// CardsForRound returns the hand size for the given one-based round. The
// schedule decreases from 10 cards in round 1 to 1 card in round 10 and is
// clamped to [1, 10] outside that range.
func CardsForRound(round int) int {
	n := 11 - round
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}
