// Package progression implements the Trash skill/ability progression
// system: the SP/AP point economy, the XP-driven leveling formula, the
// prerequisite-gated unlock tree and effect application.
package progression

import "fmt"

// PointType selects one of the two progression currencies.
type PointType string

const (
	PointSkill   PointType = "sp"
	PointAbility PointType = "ap"
)

// NodeKind distinguishes skill nodes (passive, bought with SP) from
// ability nodes (active, bought with AP).
type NodeKind string

const (
	KindSkill   NodeKind = "skill"
	KindAbility NodeKind = "ability"
)

// Effect tags handled by the effect processor. Tags without a handler
// degrade to a no-op success, never a failure.
const (
	EffectPeekDeck     = "peek_deck"
	EffectRerollDice   = "reroll_dice"
	EffectProtectCard  = "protect_card"
	EffectDoubleScore  = "double_score"
	EffectSkipDraw     = "skip_draw"
	EffectForceDiscard = "force_discard"
	EffectDrawBonus    = "draw_bonus"
	EffectImmunity     = "immunity"
)

// Effect describes what a node does when unlocked (passive skills) or
// activated (abilities). Amount is tag-specific: cards to peek, bonus
// percentage, and so on.
type Effect struct {
	Tag    string `json:"tag"`
	Amount int    `json:"amount,omitempty"`
}

// Node is a single unlockable entry in a progression tree.
type Node struct {
	ID            string   `json:"id"`
	Kind          NodeKind `json:"kind"`
	Name          string   `json:"name"`
	Cost          int      `json:"cost"`
	LevelRequired int      `json:"levelRequired"`
	Prerequisites []string `json:"prerequisites,omitempty"`
	Tier          int      `json:"tier"`
	Category      string   `json:"category"`
	Effect        Effect   `json:"effect"`
	XPReward      int      `json:"xpReward"`
	// Usage ceilings apply to abilities only; zero means unlimited.
	UsesPerMatch int `json:"usesPerMatch,omitempty"`
	UsesPerRound int `json:"usesPerRound,omitempty"`
}

// TierForLevel maps a level to its difficulty-scaling tier bucket.
func TierForLevel(level int) string {
	switch {
	case level <= 20:
		return "Newbie"
	case level <= 50:
		return "Beginner"
	case level <= 100:
		return "Adept"
	default:
		return "Master"
	}
}

// Registry is the immutable database of all unlockable nodes. It is
// constructed once at process start and injected into the controller,
// never accessed as ambient global state.
type Registry struct {
	nodes map[string]Node
}

// NewRegistry validates the node set and builds a registry. Duplicate
// ids, dangling prerequisites and prerequisite cycles are authoring bugs
// and fail construction.
func NewRegistry(nodes []Node) (*Registry, error) {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node with empty id")
		}
		if _, dup := byID[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		if n.Kind != KindSkill && n.Kind != KindAbility {
			return nil, fmt.Errorf("node %q has unknown kind %q", n.ID, n.Kind)
		}
		byID[n.ID] = n
	}
	for _, n := range byID {
		for _, pre := range n.Prerequisites {
			dep, ok := byID[pre]
			if !ok {
				return nil, fmt.Errorf("node %q requires unknown node %q", n.ID, pre)
			}
			if dep.Kind != n.Kind {
				return nil, fmt.Errorf("node %q requires %q from the other tree", n.ID, pre)
			}
		}
	}
	if err := checkAcyclic(byID); err != nil {
		return nil, err
	}
	return &Registry{nodes: byID}, nil
}

// checkAcyclic verifies the prerequisite relation forms a DAG.
func checkAcyclic(nodes map[string]Node) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(nodes))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("prerequisite cycle through node %q", id)
		}
		state[id] = visiting
		for _, pre := range nodes[id].Prerequisites {
			if err := visit(pre); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for id := range nodes {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Node returns the node with the given id regardless of tree.
func (r *Registry) Node(id string) (Node, bool) {
	n, ok := r.nodes[id]
	return n, ok
}

// NodeInTree resolves a node id within the tree funded by the given
// currency: the skill tree for SP, the ability tree for AP.
func (r *Registry) NodeInTree(id string, pt PointType) (Node, bool) {
	n, ok := r.nodes[id]
	if !ok {
		return Node{}, false
	}
	if pt == PointSkill && n.Kind != KindSkill {
		return Node{}, false
	}
	if pt == PointAbility && n.Kind != KindAbility {
		return Node{}, false
	}
	return n, true
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	return len(r.nodes)
}

// Nodes returns a copy of all nodes, usable for fixture inspection.
func (r *Registry) Nodes() []Node {
	out := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// DefaultRegistry returns the shipped node database.
func DefaultRegistry() *Registry {
	reg, err := NewRegistry(defaultNodes)
	if err != nil {
		// Shipped content is validated by tests; a bad default is a
		// build-time bug, not a runtime condition.
		panic(err)
	}
	return reg
}

var defaultNodes = []Node{
	// Skill tree (SP, passive).
	{
		ID: "skill_keen_eye", Kind: KindSkill, Name: "Keen Eye",
		Cost: 2, LevelRequired: 1, Tier: 1, Category: "insight",
		Effect: Effect{Tag: EffectDrawBonus, Amount: 10}, XPReward: 10,
	},
	{
		ID: "skill_card_sense", Kind: KindSkill, Name: "Card Sense",
		Cost: 3, LevelRequired: 2, Prerequisites: []string{"skill_keen_eye"},
		Tier: 1, Category: "insight",
		Effect: Effect{Tag: EffectDrawBonus, Amount: 15}, XPReward: 15,
	},
	{
		ID: "skill_iron_hand", Kind: KindSkill, Name: "Iron Hand",
		Cost: 4, LevelRequired: 3, Tier: 2, Category: "defense",
		Effect: Effect{Tag: EffectImmunity}, XPReward: 20,
	},
	{
		ID: "skill_lucky_ace", Kind: KindSkill, Name: "Lucky Ace",
		Cost: 5, LevelRequired: 4,
		Prerequisites: []string{"skill_card_sense"},
		Tier:          2, Category: "fortune",
		Effect: Effect{Tag: EffectDoubleScore, Amount: 1}, XPReward: 25,
	},
	{
		ID: "skill_grand_strategy", Kind: KindSkill, Name: "Grand Strategy",
		Cost: 8, LevelRequired: 6,
		Prerequisites: []string{"skill_lucky_ace", "skill_iron_hand"},
		Tier:          3, Category: "insight",
		Effect: Effect{Tag: EffectDrawBonus, Amount: 25}, XPReward: 40,
	},

	// Ability tree (AP, active).
	{
		ID: "ability_peek", Kind: KindAbility, Name: "Peek",
		Cost: 2, LevelRequired: 1, Tier: 1, Category: "scout",
		Effect: Effect{Tag: EffectPeekDeck, Amount: 3}, XPReward: 10,
		UsesPerMatch: 3, UsesPerRound: 1,
	},
	{
		ID: "ability_reroll", Kind: KindAbility, Name: "Reroll",
		Cost: 3, LevelRequired: 2, Tier: 1, Category: "fortune",
		Effect: Effect{Tag: EffectRerollDice}, XPReward: 15,
		UsesPerMatch: 2,
	},
	{
		ID: "ability_shield", Kind: KindAbility, Name: "Shield",
		Cost: 4, LevelRequired: 3, Prerequisites: []string{"ability_peek"},
		Tier: 2, Category: "defense",
		Effect: Effect{Tag: EffectProtectCard}, XPReward: 20,
		UsesPerMatch: 2, UsesPerRound: 1,
	},
	{
		ID: "ability_fast_hand", Kind: KindAbility, Name: "Fast Hand",
		Cost: 5, LevelRequired: 4, Tier: 2, Category: "tempo",
		Effect: Effect{Tag: EffectSkipDraw}, XPReward: 25,
		UsesPerMatch: 1,
	},
	{
		ID: "ability_sabotage", Kind: KindAbility, Name: "Sabotage",
		Cost: 7, LevelRequired: 5,
		Prerequisites: []string{"ability_reroll"},
		Tier:          3, Category: "tempo",
		Effect: Effect{Tag: EffectForceDiscard}, XPReward: 35,
		UsesPerMatch: 1,
	},
}
