package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"studion-points-service/internal/domain"
	"studion-points-service/internal/scoring"
)

// Orchestrator coordinates "attempt completed" -> "compute points" ->
// "append ledger entry" -> "update aggregate progress" as one logical unit.
// The attempt's own completion is the source of truth; the award and the
// aggregate update are a secondary reward layer that degrades gracefully
// instead of rolling back a user-visible result.
type Orchestrator struct {
	attempts *AttemptService
	ledger   *LedgerService
	progress ProgressRepository
	rewards  scoring.RewardTable
	log      *logrus.Logger
	now      func() time.Time
}

func NewOrchestrator(attempts *AttemptService, ledger *LedgerService, progress ProgressRepository, rewards scoring.RewardTable, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		attempts: attempts,
		ledger:   ledger,
		progress: progress,
		rewards:  rewards,
		log:      log,
		now:      time.Now,
	}
}

// WithClock is test-only for deterministic timestamps.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// CompletionResult is what the caller sees after completing a quiz.
type CompletionResult struct {
	Attempt      domain.Attempt      `json:"attempt"`
	Score        domain.ScoreSummary `json:"score"`
	PointsEarned int                 `json:"pointsEarned"`
	NewBalance   domain.Balance      `json:"newBalance"`
}

// CompleteQuizAndAward completes the attempt, scores it, awards points, and
// updates the progress aggregate. A retry of the whole call for an attempt
// that is already completed is safe: the award is idempotent per attempt, so
// the balance reflects exactly one award no matter how often the client
// retries.
func (o *Orchestrator) CompleteQuizAndAward(ctx context.Context, attemptID, userID string) (CompletionResult, error) {
	attempt, err := o.attempts.Complete(ctx, attemptID, userID)
	retry := false
	if errors.Is(err, domain.ErrInvalidState) {
		// Distinguish a client retry of a completed attempt from a genuinely
		// bad transition (e.g. completing an abandoned attempt).
		existing, getErr := o.attempts.Get(ctx, attemptID, userID)
		if getErr != nil || existing.Status != domain.AttemptCompleted {
			return CompletionResult{}, err
		}
		attempt = existing
		retry = true
	} else if err != nil {
		return CompletionResult{}, err
	}

	score := scoring.Score(attempt.Answers, attempt.Snapshot.TotalQuestions)
	points := o.rewards.QuizPoints(attempt.Snapshot.Difficulty, score.Tier)
	result := CompletionResult{Attempt: attempt, Score: score}

	entry, awardErr := o.ledger.Award(ctx, userID, domain.KindEarnQuiz, points, attempt.ID)
	if awardErr != nil {
		// Non-fatal: the user must never be blocked from seeing their scored
		// result because the ledger write failed.
		o.log.WithError(awardErr).WithFields(logrus.Fields{
			"attemptId": attemptID,
			"userId":    userID,
			"points":    points,
		}).Error("quiz point award failed; returning completion without points")
	} else {
		result.PointsEarned = entry.PointsEarned
	}

	balance, balErr := o.ledger.Balance(ctx, userID)
	if balErr == nil {
		result.NewBalance = balance
	} else {
		o.log.WithError(balErr).WithField("userId", userID).Warn("balance read after completion failed")
	}

	// The aggregate is updated only on the call that actually performed the
	// transition, so a retry cannot bump the streak or the quiz count twice.
	if !retry {
		if err := o.updateProgress(ctx, userID, score, result.NewBalance, balErr == nil); err != nil {
			o.log.WithError(err).WithFields(logrus.Fields{
				"attemptId": attemptID,
				"userId":    userID,
			}).Error("progress aggregate update failed")
		}
	}

	return result, nil
}

func (o *Orchestrator) updateProgress(ctx context.Context, userID string, score domain.ScoreSummary, balance domain.Balance, haveBalance bool) error {
	current, err := o.progress.GetProgress(ctx, userID)
	if err != nil {
		return err
	}
	if !haveBalance {
		// The balance read failed; keep the totals mirrored on an earlier
		// completion instead of overwriting them with zeros. The next
		// successful completion re-mirrors the real totals.
		balance = domain.Balance{Earned: current.TotalPoints, Used: current.PointsUsed}
	}
	return o.progress.SaveProgress(ctx, userID, applyCompletion(current, score, balance, o.now()))
}
