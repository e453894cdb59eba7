package memory

import (
	"context"
	"sync"
	"time"

	"studion-points-service/internal/domain"
)

type activeKey struct {
	quizID string
	userID string
}

// AttemptStore is an in-memory implementation of app.AttemptRepository. A
// single mutex makes the check-then-insert on start and the status
// transitions atomic, mirroring what the Postgres store gets from its
// partial unique index and conditional updates.
type AttemptStore struct {
	mu     sync.Mutex
	byID   map[string]*domain.Attempt
	active map[activeKey]string
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		byID:   make(map[string]*domain.Attempt),
		active: make(map[activeKey]string),
	}
}

func (s *AttemptStore) StartAttempt(_ context.Context, attempt domain.Attempt) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activeKey{quizID: attempt.QuizID, userID: attempt.UserID}
	if id, ok := s.active[key]; ok {
		return copyAttempt(s.byID[id]), false, nil
	}

	stored := attempt
	s.byID[attempt.ID] = &stored
	s.active[key] = attempt.ID
	return copyAttempt(&stored), true, nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.byID[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return copyAttempt(attempt), nil
}

func (s *AttemptStore) PutAnswer(_ context.Context, attemptID, userID string, rec domain.AnswerRecord) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.byID[attemptID]
	if !ok || attempt.UserID != userID || attempt.Status != domain.AttemptInProgress {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}

	replaced := false
	for i := range attempt.Answers {
		if attempt.Answers[i].QuestionID == rec.QuestionID {
			attempt.Answers[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		attempt.Answers = append(attempt.Answers, rec)
	}
	return copyAttempt(attempt), nil
}

func (s *AttemptStore) CompleteAttempt(_ context.Context, attemptID, userID string, completedAt time.Time) (domain.Attempt, error) {
	return s.transition(attemptID, userID, domain.AttemptCompleted, &completedAt)
}

func (s *AttemptStore) AbandonAttempt(_ context.Context, attemptID, userID string) (domain.Attempt, error) {
	return s.transition(attemptID, userID, domain.AttemptAbandoned, nil)
}

func (s *AttemptStore) transition(attemptID, userID string, to domain.AttemptStatus, completedAt *time.Time) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.byID[attemptID]
	if !ok || attempt.UserID != userID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if attempt.Status != domain.AttemptInProgress {
		return domain.Attempt{}, domain.ErrInvalidState
	}

	attempt.Status = to
	attempt.CompletedAt = completedAt
	delete(s.active, activeKey{quizID: attempt.QuizID, userID: attempt.UserID})
	return copyAttempt(attempt), nil
}

func copyAttempt(a *domain.Attempt) domain.Attempt {
	out := *a
	out.Answers = append([]domain.AnswerRecord(nil), a.Answers...)
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
