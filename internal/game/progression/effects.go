package progression

import (
	"fmt"
	"math/rand"
)

// maxDieValue caps rerolled dice; out-of-range rolls clamp, never fail.
const maxDieValue = 6

// EffectContext carries the slice of game state an ability handler may
// inspect. The progression engine never touches game state directly; the
// controller fills this in and applies the returned outcome.
type EffectContext struct {
	PlayerID string
	// DeckPeek returns the identities of the top n deck cards without
	// moving them.
	DeckPeek func(n int) []string
	// TargetCardIDs are the card ids named in the command payload.
	TargetCardIDs []string
	// TargetPlayerID is the opponent named in the command payload.
	TargetPlayerID string
	// Rand drives random effects; tests inject a seeded source.
	Rand *rand.Rand
}

// EffectOutcome describes what an ability activation did. The controller
// translates it into state flags and events.
type EffectOutcome struct {
	Handled        bool
	Message        string
	PeekedCardIDs  []string
	DiceValue      int
	ProtectedCards []string
	DoubledCards   []string
	SkipDraw       bool
	ForceDiscard   bool
}

type effectHandler func(node Node, ctx EffectContext) EffectOutcome

// effectHandlers dispatches ability activation by effect tag.
var effectHandlers = map[string]effectHandler{
	EffectPeekDeck: func(node Node, ctx EffectContext) EffectOutcome {
		n := node.Effect.Amount
		if n <= 0 {
			n = 1
		}
		var peeked []string
		if ctx.DeckPeek != nil {
			peeked = ctx.DeckPeek(n)
		}
		return EffectOutcome{
			Handled:       true,
			PeekedCardIDs: peeked,
			Message:       fmt.Sprintf("peeked at %d deck cards", len(peeked)),
		}
	},
	EffectRerollDice: func(node Node, ctx EffectContext) EffectOutcome {
		value := maxDieValue
		if ctx.Rand != nil {
			value = ctx.Rand.Intn(maxDieValue) + 1
		}
		if value > maxDieValue {
			value = maxDieValue
		}
		return EffectOutcome{
			Handled:   true,
			DiceValue: value,
			Message:   fmt.Sprintf("rerolled die to %d", value),
		}
	},
	EffectProtectCard: func(node Node, ctx EffectContext) EffectOutcome {
		return EffectOutcome{
			Handled:        true,
			ProtectedCards: ctx.TargetCardIDs,
			Message:        fmt.Sprintf("protected %d cards", len(ctx.TargetCardIDs)),
		}
	},
	EffectDoubleScore: func(node Node, ctx EffectContext) EffectOutcome {
		return EffectOutcome{
			Handled:      true,
			DoubledCards: ctx.TargetCardIDs,
			Message:      fmt.Sprintf("doubled score for %d cards", len(ctx.TargetCardIDs)),
		}
	},
	EffectSkipDraw: func(node Node, ctx EffectContext) EffectOutcome {
		return EffectOutcome{
			Handled:  true,
			SkipDraw: true,
			Message:  "draw phase skipped",
		}
	},
	EffectForceDiscard: func(node Node, ctx EffectContext) EffectOutcome {
		return EffectOutcome{
			Handled:      true,
			ForceDiscard: true,
			Message:      fmt.Sprintf("forced %s to discard", ctx.TargetPlayerID),
		}
	},
}

// CheckAbilityUse runs the ability gates without mutating: the ability
// must exist, be unlocked, and have uses left this match and round.
func CheckAbilityUse(p *Progress, reg *Registry, abilityID string) *Rejection {
	node, ok := reg.NodeInTree(abilityID, PointAbility)
	if !ok {
		return reject(CodeNotFound, "ability %q not found", abilityID)
	}
	if !p.UnlockedAbilities[abilityID] {
		return reject(CodeNotUnlocked, "ability %q is not unlocked", abilityID)
	}
	if node.UsesPerMatch > 0 && p.AbilityUsesMatch[abilityID] >= node.UsesPerMatch {
		return reject(CodeUsageExhausted,
			"ability %q already used %d times this match", abilityID, node.UsesPerMatch)
	}
	if node.UsesPerRound > 0 && p.AbilityUsesRound[abilityID] >= node.UsesPerRound {
		return reject(CodeUsageExhausted,
			"ability %q already used %d times this round", abilityID, node.UsesPerRound)
	}
	return nil
}

// UseAbility activates an unlocked ability for the player. It enforces
// the per-match and per-round usage ceilings, increments the usage
// counters and dispatches the effect handler for the ability's tag.
// Unknown tags degrade to a no-op success with an explanatory message.
func UseAbility(p *Progress, reg *Registry, abilityID string, ctx EffectContext) (EffectOutcome, *Rejection) {
	if rej := CheckAbilityUse(p, reg, abilityID); rej != nil {
		return EffectOutcome{}, rej
	}
	node, _ := reg.NodeInTree(abilityID, PointAbility)

	p.AbilityUsesMatch[abilityID]++
	p.AbilityUsesRound[abilityID]++

	handler, ok := effectHandlers[node.Effect.Tag]
	if !ok {
		return EffectOutcome{
			Handled: false,
			Message: fmt.Sprintf("effect %q has no handler; ability consumed with no effect", node.Effect.Tag),
		}, nil
	}
	return handler(node, ctx), nil
}

// PassiveFlags is the transient fold of all unlocked passive skills.
// Passive effects are not invoked on demand: the controller recomputes
// the flags whenever state is refreshed.
type PassiveFlags struct {
	Immunity       bool
	DrawBonusPct   int
	DoubledScoreUp int
}

// RecomputePassives scans the player's unlocked skills and folds their
// effects into flags.
func RecomputePassives(p *Progress, reg *Registry) PassiveFlags {
	var flags PassiveFlags
	for id := range p.UnlockedSkills {
		node, ok := reg.Node(id)
		if !ok {
			continue
		}
		switch node.Effect.Tag {
		case EffectImmunity:
			flags.Immunity = true
		case EffectDrawBonus:
			flags.DrawBonusPct += node.Effect.Amount
		case EffectDoubleScore:
			flags.DoubledScoreUp += node.Effect.Amount
		}
	}
	return flags
}
