package scoring

import (
	"math"

	"studion-points-service/internal/domain"
)

// RewardTable determines the points earned for completing a quiz as a
// function of quiz difficulty and performance tier. Both dimensions are
// monotonic: harder quizzes and better tiers never pay less.
type RewardTable struct {
	BasePoints   int
	ByDifficulty map[domain.Difficulty]float64
	ByTier       map[domain.PerformanceTier]float64
}

// DefaultRewardTable returns the stock multipliers. Deployments override
// these through configuration, not code.
func DefaultRewardTable() RewardTable {
	return RewardTable{
		BasePoints: 10,
		ByDifficulty: map[domain.Difficulty]float64{
			domain.DifficultyEasy:   1.0,
			domain.DifficultyMedium: 1.5,
			domain.DifficultyHard:   2.0,
		},
		ByTier: map[domain.PerformanceTier]float64{
			domain.TierExcellent:    1.5,
			domain.TierGood:         1.2,
			domain.TierAverage:      1.0,
			domain.TierBelowAverage: 0.75,
			domain.TierPoor:         0.5,
		},
	}
}

// QuizPoints computes the award for one completed quiz. Unknown difficulties
// and tiers fall back to the lowest multiplier so a bad input can never
// over-award.
func (t RewardTable) QuizPoints(difficulty domain.Difficulty, tier domain.PerformanceTier) int {
	base := t.BasePoints
	if base <= 0 {
		base = 10
	}
	dm, ok := t.ByDifficulty[difficulty]
	if !ok || dm <= 0 {
		dm = lowestMultiplier(t.ByDifficulty, 1.0)
	}
	tm, ok := t.ByTier[tier]
	if !ok || tm <= 0 {
		tm = lowestMultiplier(t.ByTier, 0.5)
	}

	points := int(math.Round(float64(base) * dm * tm))
	if points < 1 {
		points = 1
	}
	return points
}

func lowestMultiplier[K comparable](m map[K]float64, fallback float64) float64 {
	lowest := math.Inf(1)
	for _, v := range m {
		if v > 0 && v < lowest {
			lowest = v
		}
	}
	if math.IsInf(lowest, 1) {
		return fallback
	}
	return lowest
}
