// Package game implements the Trash GCMS core: the authoritative game
// state, the sealed command/event surfaces, the validator and the
// controller that executes commands and broadcasts events.
package game

import (
	"github.com/trashgame/trash-server-go/internal/game/card"
	"github.com/trashgame/trash-server-go/internal/game/progression"
)

// GamePhase is the match state machine position.
type GamePhase string

const (
	PhaseSetup    GamePhase = "SETUP"
	PhaseDealing  GamePhase = "DEALING"
	PhasePlaying  GamePhase = "PLAYING"
	PhaseRoundEnd GamePhase = "ROUND_END"
	PhaseGameOver GamePhase = "GAME_OVER"
)

// Player is one seat at the table. Hand is a fixed-slot layout whose
// length always equals the cards-for-round value while PLAYING.
type Player struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Hand        []card.Card `json:"hand"`
	Drawn       *card.Card  `json:"drawn,omitempty"`
	Score       int         `json:"score"`
	IsAI        bool        `json:"isAI"`
	HasFinished bool        `json:"hasFinished"`
}

// GameState is the single authoritative snapshot of a match. Executors
// never mutate a published snapshot: the controller clones the current
// state, applies one command to the clone and swaps it in, so any held
// reference stays internally consistent.
//
// PlayerProgress lives outside the snapshot: it persists across matches,
// is never rolled back by UndoMove and is mutated only through the
// progression package.
type GameState struct {
	Phase              GamePhase   `json:"phase"`
	Players            []Player    `json:"players"`
	Deck               []card.Card `json:"deck"`
	DiscardPile        []card.Card `json:"discardPile"`
	CurrentPlayerIndex int         `json:"currentPlayerIndex"`
	Round              int         `json:"round"`
	InputLocked        bool        `json:"inputLocked"`
	Paused             bool        `json:"paused"`

	// FaceDownTally accumulates, per rank, the cards still face down in
	// any hand at each round end. It feeds the winner's AP penalty when
	// the match completes.
	FaceDownTally map[card.Rank]int `json:"faceDownTally,omitempty"`

	// Transient ability/skill flags, recomputed or consumed by executors.
	ProtectedCards map[string]bool                     `json:"protectedCards,omitempty"`
	DoubledCards   map[string]bool                     `json:"doubledCards,omitempty"`
	SkipDrawFor    map[string]bool                     `json:"skipDrawFor,omitempty"`
	ForcedDiscard  map[string]bool                     `json:"forcedDiscard,omitempty"`
	Passives       map[string]progression.PassiveFlags `json:"passives,omitempty"`
}

// NewGameState returns an empty pre-initialization snapshot.
func NewGameState() *GameState {
	return &GameState{
		Phase:          PhaseSetup,
		Round:          1,
		FaceDownTally:  make(map[card.Rank]int),
		ProtectedCards: make(map[string]bool),
		DoubledCards:   make(map[string]bool),
		SkipDrawFor:    make(map[string]bool),
		ForcedDiscard:  make(map[string]bool),
		Passives:       make(map[string]progression.PassiveFlags),
	}
}

// Clone deep-copies the snapshot.
func (s *GameState) Clone() *GameState {
	next := *s
	next.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		cp := p
		cp.Hand = append([]card.Card(nil), p.Hand...)
		if p.Drawn != nil {
			drawn := *p.Drawn
			cp.Drawn = &drawn
		}
		next.Players[i] = cp
	}
	next.Deck = append([]card.Card(nil), s.Deck...)
	next.DiscardPile = append([]card.Card(nil), s.DiscardPile...)
	next.FaceDownTally = cloneCounts(s.FaceDownTally)
	next.ProtectedCards = cloneSet(s.ProtectedCards)
	next.DoubledCards = cloneSet(s.DoubledCards)
	next.SkipDrawFor = cloneSet(s.SkipDrawFor)
	next.ForcedDiscard = cloneSet(s.ForcedDiscard)
	next.Passives = make(map[string]progression.PassiveFlags, len(s.Passives))
	for k, v := range s.Passives {
		next.Passives[k] = v
	}
	return &next
}

func cloneSet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneCounts(in map[card.Rank]int) map[card.Rank]int {
	out := make(map[card.Rank]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// PlayerByID returns the player and their index, or nil when absent.
func (s *GameState) PlayerByID(id string) (*Player, int) {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i], i
		}
	}
	return nil, -1
}

// CurrentPlayer returns the player whose turn it is, or nil before
// initialization.
func (s *GameState) CurrentPlayer() *Player {
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return nil
	}
	return &s.Players[s.CurrentPlayerIndex]
}

// DiscardTop returns the top of the discard pile, or nil when empty.
func (s *GameState) DiscardTop() *card.Card {
	if len(s.DiscardPile) == 0 {
		return nil
	}
	top := s.DiscardPile[len(s.DiscardPile)-1]
	return &top
}

// CardIdentityMultiset returns the multiset of card identities across
// deck, discard and all hands (drawn cards included). Every command
// execution except deal/reshuffle must preserve it.
func (s *GameState) CardIdentityMultiset() map[string]int {
	m := make(map[string]int)
	for _, c := range s.Deck {
		m[c.ID()]++
	}
	for _, c := range s.DiscardPile {
		m[c.ID()]++
	}
	for _, p := range s.Players {
		for _, c := range p.Hand {
			m[c.ID()]++
		}
		if p.Drawn != nil {
			m[p.Drawn.ID()]++
		}
	}
	return m
}
