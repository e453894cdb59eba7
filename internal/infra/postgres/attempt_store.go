package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"studion-points-service/internal/domain"
)

// AttemptStore is the Postgres implementation of app.AttemptRepository.
// Uniqueness of the active attempt per (quiz, user) is a partial unique
// index, and the status transitions are conditional updates, so concurrent
// starts and completes resolve in the database rather than in a
// read-then-write race.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

const attemptColumns = `id, quiz_id, user_id, status, started_at, completed_at, snapshot, answers`

func (s *AttemptStore) StartAttempt(ctx context.Context, attempt domain.Attempt) (domain.Attempt, bool, error) {
	snapshot, err := json.Marshal(attempt.Snapshot)
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("marshal snapshot: %w", err)
	}
	answers, err := json.Marshal(emptyIfNil(attempt.Answers))
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("marshal answers: %w", err)
	}

	for {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO attempts (id, quiz_id, user_id, status, started_at, snapshot, answers)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (quiz_id, user_id) WHERE status = 'in_progress' DO NOTHING`,
			attempt.ID, attempt.QuizID, attempt.UserID, attempt.Status, attempt.StartedAt, snapshot, answers)
		if err != nil {
			return domain.Attempt{}, false, fmt.Errorf("insert attempt: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return attempt, true, nil
		}

		// Another request won the insert; hand back the live attempt.
		row := s.pool.QueryRow(ctx, `
			SELECT `+attemptColumns+` FROM attempts
			WHERE quiz_id=$1 AND user_id=$2 AND status='in_progress'`,
			attempt.QuizID, attempt.UserID)
		existing, err := scanAttempt(row)
		if errors.Is(err, domain.ErrAttemptNotFound) {
			// The conflicting attempt ended between the insert and the
			// re-select; the slot is free again, so retry the insert.
			continue
		}
		if err != nil {
			return domain.Attempt{}, false, err
		}
		return existing, false, nil
	}
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id=$1`, attemptID)
	return scanAttempt(row)
}

func (s *AttemptStore) PutAnswer(ctx context.Context, attemptID, userID string, rec domain.AnswerRecord) (domain.Attempt, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+attemptColumns+` FROM attempts
		WHERE id=$1 AND user_id=$2 AND status='in_progress'
		FOR UPDATE`,
		attemptID, userID)
	attempt, err := scanAttempt(row)
	if err != nil {
		return domain.Attempt{}, err
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

	answers, err := json.Marshal(attempt.Answers)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("marshal answers: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE attempts SET answers=$1 WHERE id=$2`, answers, attemptID); err != nil {
		return domain.Attempt{}, fmt.Errorf("update answers: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Attempt{}, fmt.Errorf("commit: %w", err)
	}
	return attempt, nil
}

func (s *AttemptStore) CompleteAttempt(ctx context.Context, attemptID, userID string, completedAt time.Time) (domain.Attempt, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE attempts SET status='completed', completed_at=$3
		WHERE id=$1 AND user_id=$2 AND status='in_progress'
		RETURNING `+attemptColumns,
		attemptID, userID, completedAt)
	attempt, err := scanAttempt(row)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return domain.Attempt{}, s.transitionFailure(ctx, attemptID, userID)
	}
	return attempt, err
}

func (s *AttemptStore) AbandonAttempt(ctx context.Context, attemptID, userID string) (domain.Attempt, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE attempts SET status='abandoned'
		WHERE id=$1 AND user_id=$2 AND status='in_progress'
		RETURNING `+attemptColumns,
		attemptID, userID)
	attempt, err := scanAttempt(row)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return domain.Attempt{}, s.transitionFailure(ctx, attemptID, userID)
	}
	return attempt, err
}

// transitionFailure decides between not-found and invalid-state after a
// conditional update touched no rows.
func (s *AttemptStore) transitionFailure(ctx context.Context, attemptID, userID string) error {
	var status domain.AttemptStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM attempts WHERE id=$1 AND user_id=$2`, attemptID, userID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrAttemptNotFound
	}
	if err != nil {
		return fmt.Errorf("check attempt status: %w", err)
	}
	return domain.ErrInvalidState
}

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var (
		attempt     domain.Attempt
		completedAt *time.Time
		snapshot    []byte
		answers     []byte
	)
	err := row.Scan(&attempt.ID, &attempt.QuizID, &attempt.UserID, &attempt.Status,
		&attempt.StartedAt, &completedAt, &snapshot, &answers)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	attempt.CompletedAt = completedAt
	if err := json.Unmarshal(snapshot, &attempt.Snapshot); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if err := json.Unmarshal(answers, &attempt.Answers); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	return attempt, nil
}

func emptyIfNil(answers []domain.AnswerRecord) []domain.AnswerRecord {
	if answers == nil {
		return []domain.AnswerRecord{}
	}
	return answers
}
