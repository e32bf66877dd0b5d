package progression

import (
	"fmt"
	"sort"
	"time"

	"github.com/trashgame/trash-server-go/internal/game/card"
)

// Rejection codes. Rejections are recoverable data, surfaced to players as
// CommandRejected events; they are never Go errors inside the engine.
const (
	CodeNotFound            = "NotFound"
	CodeLevelTooLow         = "LevelTooLow"
	CodeAlreadyUnlocked     = "AlreadyUnlocked"
	CodeInsufficientPoints  = "InsufficientPoints"
	CodePrerequisitesNotMet = "PrerequisitesNotMet"
	CodeNotUnlocked         = "NotUnlocked"
	CodeUsageExhausted      = "UsageExhausted"
)

// Rejection describes why a progression operation was refused.
type Rejection struct {
	Code   string
	Reason string
}

func reject(code, format string, args ...interface{}) *Rejection {
	return &Rejection{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// MatchRecord captures one completed match for a player.
type MatchRecord struct {
	MatchNumber int               `json:"matchNumber"`
	Round       int               `json:"round"`
	Won         bool              `json:"won"`
	FaceDown    map[card.Rank]int `json:"faceDown,omitempty"`
	SPEarned    int               `json:"spEarned"`
	APEarned    int               `json:"apEarned"`
	CompletedAt time.Time         `json:"completedAt"`
}

// Progress is a player's cross-match progression state. It survives
// ResetGame and is mutated only through the operations in this package.
type Progress struct {
	PlayerID          string          `json:"playerId"`
	TotalSP           int             `json:"totalSP"`
	TotalAP           int             `json:"totalAP"`
	TotalXP           int             `json:"totalXP"`
	Level             int             `json:"level"`
	UnlockedSkills    map[string]bool `json:"unlockedSkills"`
	UnlockedAbilities map[string]bool `json:"unlockedAbilities"`
	AbilityUsesMatch  map[string]int  `json:"abilityUsesMatch"`
	AbilityUsesRound  map[string]int  `json:"abilityUsesRound"`
	MatchHistory      []MatchRecord   `json:"matchHistory"`
	HasPurchasedAny   bool            `json:"hasPurchasedAny"`
}

// NewProgress creates empty progression state for a player. XP starts and
// stays at zero until the first node unlock.
func NewProgress(playerID string) *Progress {
	return &Progress{
		PlayerID:          playerID,
		Level:             1,
		UnlockedSkills:    make(map[string]bool),
		UnlockedAbilities: make(map[string]bool),
		AbilityUsesMatch:  make(map[string]int),
		AbilityUsesRound:  make(map[string]int),
	}
}

// Points returns the balance of the given currency.
func (p *Progress) Points(pt PointType) int {
	if pt == PointSkill {
		return p.TotalSP
	}
	return p.TotalAP
}

func (p *Progress) unlockedSet(kind NodeKind) map[string]bool {
	if kind == KindSkill {
		return p.UnlockedSkills
	}
	return p.UnlockedAbilities
}

// IsUnlocked reports whether the node id is in either unlocked set.
func (p *Progress) IsUnlocked(nodeID string) bool {
	return p.UnlockedSkills[nodeID] || p.UnlockedAbilities[nodeID]
}

// recomputeLevel derives the level from current XP. Level is never a
// ratchet; losing XP lowers it.
func (p *Progress) recomputeLevel() {
	p.Level = LevelForXP(p.TotalXP)
}

// UnlockResult reports a successful node purchase.
type UnlockResult struct {
	NodeID          string
	PointType       PointType
	CostPaid        int
	PointsRemaining int
	XPGained        int
	TotalXP         int
	NewLevel        int
	LeveledUp       bool
	XPToNextLevel   int
}

// CheckUnlock runs the unlock gates without mutating, in a fixed order
// that short-circuits on the first failure: resolution, level gate,
// already-unlocked, point balance, prerequisites. The validator calls it
// directly; the same state and command always yield the same rejection.
func CheckUnlock(p *Progress, reg *Registry, nodeID string, pt PointType) *Rejection {
	node, ok := reg.NodeInTree(nodeID, pt)
	if !ok {
		return reject(CodeNotFound, "node %q not found in %s tree", nodeID, pt)
	}
	if p.Level < node.LevelRequired {
		return reject(CodeLevelTooLow,
			"node %q requires level %d, player is level %d", nodeID, node.LevelRequired, p.Level)
	}
	unlocked := p.unlockedSet(node.Kind)
	if unlocked[nodeID] {
		return reject(CodeAlreadyUnlocked, "node %q is already unlocked", nodeID)
	}
	if p.Points(pt) < node.Cost {
		return reject(CodeInsufficientPoints,
			"node %q costs %d %s, player has %d", nodeID, node.Cost, pt, p.Points(pt))
	}
	var missing []string
	for _, pre := range node.Prerequisites {
		if !unlocked[pre] {
			missing = append(missing, pre)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return reject(CodePrerequisitesNotMet,
			"node %q is missing prerequisites %v", nodeID, missing)
	}
	return nil
}

// UnlockNode purchases a node for the player. On success the cost is
// deducted, the node recorded, the XP reward applied and the level
// recomputed.
func UnlockNode(p *Progress, reg *Registry, nodeID string, pt PointType) (*UnlockResult, *Rejection) {
	if rej := CheckUnlock(p, reg, nodeID, pt); rej != nil {
		return nil, rej
	}
	node, _ := reg.NodeInTree(nodeID, pt)
	unlocked := p.unlockedSet(node.Kind)

	oldLevel := p.Level
	if pt == PointSkill {
		p.TotalSP -= node.Cost
	} else {
		p.TotalAP -= node.Cost
	}
	unlocked[nodeID] = true
	p.TotalXP += node.XPReward
	p.recomputeLevel()
	p.HasPurchasedAny = true

	return &UnlockResult{
		NodeID:          nodeID,
		PointType:       pt,
		CostPaid:        node.Cost,
		PointsRemaining: p.Points(pt),
		XPGained:        node.XPReward,
		TotalXP:         p.TotalXP,
		NewLevel:        p.Level,
		LeveledUp:       p.Level > oldLevel,
		XPToNextLevel:   XPForNextLevel(p.Level) - p.TotalXP,
	}, nil
}

// SellNode refunds an unlocked node. The cost is returned in full, the
// node leaves the unlocked set and its XP reward is removed; the level is
// recomputed and drops if the XP now falls below a threshold.
func SellNode(p *Progress, reg *Registry, nodeID string, pt PointType) (*UnlockResult, *Rejection) {
	node, ok := reg.NodeInTree(nodeID, pt)
	if !ok {
		return nil, reject(CodeNotFound, "node %q not found in %s tree", nodeID, pt)
	}
	unlocked := p.unlockedSet(node.Kind)
	if !unlocked[nodeID] {
		return nil, reject(CodeNotUnlocked, "node %q is not unlocked", nodeID)
	}
	oldLevel := p.Level
	delete(unlocked, nodeID)
	if pt == PointSkill {
		p.TotalSP += node.Cost
	} else {
		p.TotalAP += node.Cost
	}
	p.TotalXP -= node.XPReward
	if p.TotalXP < 0 {
		p.TotalXP = 0
	}
	p.recomputeLevel()
	return &UnlockResult{
		NodeID:          nodeID,
		PointType:       pt,
		CostPaid:        -node.Cost,
		PointsRemaining: p.Points(pt),
		XPGained:        -node.XPReward,
		TotalXP:         p.TotalXP,
		NewLevel:        p.Level,
		LeveledUp:       p.Level > oldLevel,
		XPToNextLevel:   XPForNextLevel(p.Level) - p.TotalXP,
	}, nil
}

// ApplyXPPenalty removes XP and recomputes the level downward. XP never
// goes negative.
func ApplyXPPenalty(p *Progress, amount int) {
	if amount < 0 {
		amount = 0
	}
	p.TotalXP -= amount
	if p.TotalXP < 0 {
		p.TotalXP = 0
	}
	p.recomputeLevel()
}

// MatchResult reports the points awarded by AddMatchResult.
type MatchResult struct {
	SPEarned  int
	APEarned  int
	APPenalty int
	TotalSP   int
	TotalAP   int
}

// AddMatchResult records a completed match. Only the winner earns points:
// SP in full, AP reduced by the face-down penalty and floored at zero.
// Match completion never grants XP, so a player can bank large SP/AP
// reserves while remaining level 1 until their first unlock.
func AddMatchResult(p *Progress, won bool, round int, faceDown map[card.Rank]int, at time.Time) MatchResult {
	matchNumber := len(p.MatchHistory) + 1
	rec := MatchRecord{
		MatchNumber: matchNumber,
		Round:       round,
		Won:         won,
		FaceDown:    faceDown,
		CompletedAt: at,
	}
	var result MatchResult
	if won {
		sp, ap := MatchReward(matchNumber, p.Level, round)
		penalty := APPenalty(faceDown)
		ap -= penalty
		if ap < 0 {
			ap = 0
		}
		p.TotalSP += sp
		p.TotalAP += ap
		rec.SPEarned = sp
		rec.APEarned = ap
		result = MatchResult{SPEarned: sp, APEarned: ap, APPenalty: penalty}
	}
	p.MatchHistory = append(p.MatchHistory, rec)
	result.TotalSP = p.TotalSP
	result.TotalAP = p.TotalAP
	return result
}

// ResetMatchUsage clears per-match and per-round ability usage counters at
// the start of a new match.
func (p *Progress) ResetMatchUsage() {
	p.AbilityUsesMatch = make(map[string]int)
	p.AbilityUsesRound = make(map[string]int)
}

// ResetRoundUsage clears per-round ability usage counters at the start of
// a new round.
func (p *Progress) ResetRoundUsage() {
	p.AbilityUsesRound = make(map[string]int)
}
