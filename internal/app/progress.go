package app

import (
	"time"

	"studion-points-service/internal/domain"
	"studion-points-service/internal/scoring"
)

// applyCompletion folds one completed quiz into the aggregate. The average is
// a running weighted mean, never recomputed from history. Streak rules: same
// day leaves it unchanged, exactly one day since the last study bumps it, a
// longer gap resets it to 1.
func applyCompletion(p domain.Progress, score domain.ScoreSummary, balance domain.Balance, now time.Time) domain.Progress {
	completed := float64(p.QuizzesCompleted)
	p.AverageScore = scoring.Round2((p.AverageScore*completed + score.Percentage) / (completed + 1))
	p.QuizzesCompleted++
	if score.Percentage > p.BestScore {
		p.BestScore = score.Percentage
	}

	// Mirror the ledger totals instead of incrementing locally, so the
	// aggregate cannot drift from the balance it denormalizes.
	p.TotalPoints = balance.Earned
	p.PointsUsed = balance.Used

	switch {
	case p.LastStudyDate.IsZero():
		p.StudyStreak = 1
	case daysBetween(p.LastStudyDate, now) == 0:
		// same-day completion, streak unchanged
	case daysBetween(p.LastStudyDate, now) == 1:
		p.StudyStreak++
	default:
		p.StudyStreak = 1
	}
	p.LastStudyDate = now
	return p
}

// daysBetween counts calendar days between two instants in UTC.
func daysBetween(earlier, later time.Time) int {
	ed := earlier.UTC().Truncate(24 * time.Hour)
	ld := later.UTC().Truncate(24 * time.Hour)
	return int(ld.Sub(ed).Hours() / 24)
}
