// Package scoring contains the pure score and reward computations. Nothing in
// here touches storage, so every rule is unit-testable in isolation.
package scoring

import (
	"math"
	"strings"

	"studion-points-service/internal/domain"
)

// Score computes the aggregate result from an attempt's recorded answers.
// totalQuestions comes from the attempt's snapshot so that unanswered
// questions count against the percentage.
func Score(answers []domain.AnswerRecord, totalQuestions int) domain.ScoreSummary {
	correct := 0
	for _, rec := range answers {
		if rec.IsCorrect {
			correct++
		}
	}

	summary := domain.ScoreSummary{
		CorrectCount:   correct,
		TotalQuestions: totalQuestions,
		Tier:           domain.TierPoor,
	}
	if totalQuestions == 0 {
		return summary
	}

	summary.Percentage = Round2(float64(correct) / float64(totalQuestions) * 100)
	summary.Tier = TierFor(summary.Percentage)
	return summary
}

// TierFor buckets a percentage into a performance tier. Boundaries are
// inclusive at the lower bound of each range.
func TierFor(percentage float64) domain.PerformanceTier {
	switch {
	case percentage >= 90:
		return domain.TierExcellent
	case percentage >= 80:
		return domain.TierGood
	case percentage >= 70:
		return domain.TierAverage
	case percentage >= 60:
		return domain.TierBelowAverage
	default:
		return domain.TierPoor
	}
}

// Correct compares a submitted answer against the authored answer key.
// Comparison ignores surrounding whitespace and letter case.
func Correct(correctAnswer, submitted string) bool {
	return strings.EqualFold(strings.TrimSpace(correctAnswer), strings.TrimSpace(submitted))
}

// Round2 rounds to two decimal places, the precision used for percentages
// and averages throughout.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
