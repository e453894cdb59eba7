package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"studion-points-service/internal/domain"
	"studion-points-service/internal/scoring"
)

// AttemptService is the quiz attempt state machine: not started ->
// in_progress -> completed/abandoned.
type AttemptService struct {
	attempts AttemptRepository
	quizzes  QuizRepository
	log      *logrus.Logger
	now      func() time.Time
	newID    func() string
}

func NewAttemptService(attempts AttemptRepository, quizzes QuizRepository, log *logrus.Logger) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		quizzes:  quizzes,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *AttemptService) WithClock(now func() time.Time) *AttemptService {
	s.now = now
	return s
}

// SubmitResult is the caller-facing outcome of one submitted answer.
type SubmitResult struct {
	IsCorrect          bool    `json:"isCorrect"`
	ProgressPercentage float64 `json:"progressPercentage"`
}

// Start creates an in-progress attempt with a snapshot of the quiz metadata,
// or returns the caller's existing in-progress attempt for the same quiz.
// At most one concurrent attempt per (quiz, user) exists at any time.
func (s *AttemptService) Start(ctx context.Context, quizID, userID string) (domain.Attempt, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if quiz.OwnerID != userID || quiz.Status != domain.QuizActive {
		return domain.Attempt{}, domain.ErrQuizNotFound
	}

	attempt := domain.Attempt{
		ID:        s.newID(),
		QuizID:    quizID,
		UserID:    userID,
		Status:    domain.AttemptInProgress,
		StartedAt: s.now(),
		Snapshot: domain.QuizSnapshot{
			Title:            quiz.Title,
			Difficulty:       quiz.Difficulty,
			TotalQuestions:   len(quiz.Questions),
			EstimatedMinutes: quiz.EstimatedMinutes,
		},
	}

	stored, created, err := s.attempts.StartAttempt(ctx, attempt)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !created {
		s.log.WithFields(logrus.Fields{
			"quizId":    quizID,
			"userId":    userID,
			"attemptId": stored.ID,
		}).Debug("returning existing in-progress attempt")
	}
	return stored, nil
}

// SubmitAnswer records correctness for one question against the live quiz's
// answer key. Resubmitting a question replaces its prior record, so the
// progress percentage never double counts.
func (s *AttemptService) SubmitAnswer(ctx context.Context, attemptID, userID, questionID, answer string, timeSpentMs int64) (SubmitResult, error) {
	if questionID == "" || timeSpentMs < 0 {
		return SubmitResult{}, domain.ErrInvalidArgument
	}

	attempt, err := s.Get(ctx, attemptID, userID)
	if err != nil {
		return SubmitResult{}, err
	}
	if attempt.Status != domain.AttemptInProgress {
		return SubmitResult{}, domain.ErrAttemptNotFound
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return SubmitResult{}, err
	}
	question, ok := quiz.QuestionByID(questionID)
	if !ok {
		return SubmitResult{}, domain.ErrQuestionNotFound
	}

	rec := domain.AnswerRecord{
		QuestionID:      questionID,
		SubmittedAnswer: answer,
		TimeSpentMs:     timeSpentMs,
	}
	if scoring.Correct(question.CorrectAnswer, answer) {
		rec.IsCorrect = true
		rec.PointsEarned = question.Points
		if rec.PointsEarned == 0 {
			rec.PointsEarned = 1
		}
	}

	updated, err := s.attempts.PutAnswer(ctx, attemptID, userID, rec)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		IsCorrect:          rec.IsCorrect,
		ProgressPercentage: updated.ProgressPercentage(),
	}, nil
}

// Complete freezes the attempt. The transition is one-way and exactly-once;
// a second call fails with domain.ErrInvalidState, which is what makes the
// downstream point award single-shot.
func (s *AttemptService) Complete(ctx context.Context, attemptID, userID string) (domain.Attempt, error) {
	return s.attempts.CompleteAttempt(ctx, attemptID, userID, s.now())
}

// Abandon retires an in-progress attempt without scoring it. Abandoned is a
// terminal state, so retired attempts can never resurface as scorable.
func (s *AttemptService) Abandon(ctx context.Context, attemptID, userID string) (domain.Attempt, error) {
	return s.attempts.AbandonAttempt(ctx, attemptID, userID)
}

// Get fetches an attempt, enforcing that only its owner can see it.
func (s *AttemptService) Get(ctx context.Context, attemptID, userID string) (domain.Attempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.UserID != userID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}
