package rules

import "github.com/trashgame/trash-server-go/internal/game/card"

// Hint action kinds.
const (
	HintActionDraw = "draw"
)

// Pile sources a hint can point at.
const (
	SourceDeck    = "deck"
	SourceDiscard = "discard"
)

// Hint is a greedy move suggestion for an AI player.
type Hint struct {
	Action     string
	Source     string
	TargetSlot int // -1 when no slot is suggested
	Confidence float64
}

// HintMove suggests the next move for the given hand: draw from discard
// when its top card fits an open slot (confidence 0.9), otherwise draw
// blind from the deck (confidence 0.5).
func HintMove(hand []card.Card, discardTop *card.Card) Hint {
	if discardTop != nil {
		if slot, ok := openSlotFor(hand, *discardTop); ok {
			return Hint{
				Action:     HintActionDraw,
				Source:     SourceDiscard,
				TargetSlot: slot,
				Confidence: 0.9,
			}
		}
	}
	return Hint{
		Action:     HintActionDraw,
		Source:     SourceDeck,
		TargetSlot: -1,
		Confidence: 0.5,
	}
}

// PlacementSlot returns the open slot the card should occupy, preferring
// the card's own slot for numbered cards and the first open slot for
// wildcards.
func PlacementSlot(hand []card.Card, c card.Card) (int, bool) {
	return openSlotFor(hand, c)
}

func openSlotFor(hand []card.Card, c card.Card) (int, bool) {
	if !c.IsWild() {
		slot := c.Value() - 1
		if slot >= 0 && slot < len(hand) && !hand[slot].FaceUp {
			return slot, true
		}
		return -1, false
	}
	for i := range hand {
		if !hand[i].FaceUp {
			return i, true
		}
	}
	return -1, false
}
