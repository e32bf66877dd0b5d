package progression

import (
	"math"

	"github.com/trashgame/trash-server-go/internal/game/card"
)

// levelFormulaBase is the growth base of the XP-to-level curve.
const levelFormulaBase = 1.2

// rewardFormulaLevel is the level at which match rewards switch from the
// fixed per-match table to the round-scaled formula.
const rewardFormulaLevel = 4

// matchRewardTable holds (SP, AP) per match number for players below
// rewardFormulaLevel. Index 0 is match 1; matches past the table clamp to
// the last entry.
var matchRewardTable = [][2]int{
	{1, 0}, {1, 1}, {2, 2}, {2, 2}, {3, 3},
	{3, 3}, {4, 4}, {4, 4}, {5, 5}, {5, 5},
}

// apPenaltyByRank is the per-card AP deduction for cards still face down
// across the whole match history.
var apPenaltyByRank = map[card.Rank]int{
	card.RankKing:  3,
	card.RankQueen: 2,
	card.RankJack:  1,
	card.RankJoker: 20,
}

// LevelForXP computes the level for a given XP total. Level is a pure
// function of XP: floor(ln(xp+1) / ln(1.2)) + 1, clamped to a minimum
// of 1. It is recomputed from scratch on every XP change, never
// incremented, so XP removal lowers the level too.
func LevelForXP(totalXP int) int {
	if totalXP <= 0 {
		return 1
	}
	level := int(math.Floor(math.Log(float64(totalXP)+1)/math.Log(levelFormulaBase))) + 1
	if level < 1 {
		return 1
	}
	return level
}

// XPForNextLevel returns the total XP at which the given level rolls over
// to the next one.
func XPForNextLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return int(math.Ceil(math.Pow(levelFormulaBase, float64(level)) - 1))
}

// MatchReward sizes the SP/AP award for winning a match, before any AP
// penalty. Levels 1-3 use the fixed per-match lookup table; level 4+
// switches to 10 x round applied identically to both currencies.
func MatchReward(matchNumber, level, round int) (sp, ap int) {
	if level >= rewardFormulaLevel {
		reward := 10 * round
		if reward < 0 {
			reward = 0
		}
		return reward, reward
	}
	idx := matchNumber - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(matchRewardTable) {
		idx = len(matchRewardTable) - 1
	}
	return matchRewardTable[idx][0], matchRewardTable[idx][1]
}

// APPenalty totals the deduction for the given face-down card counts,
// keyed by rank. Ranks outside the penalty table cost nothing.
func APPenalty(faceDown map[card.Rank]int) int {
	total := 0
	for rank, count := range faceDown {
		if count <= 0 {
			continue
		}
		total += apPenaltyByRank[rank] * count
	}
	return total
}
