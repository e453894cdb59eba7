package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"studion-points-service/internal/domain"
)

// ProgressStore is the Postgres implementation of app.ProgressRepository.
type ProgressStore struct {
	pool *pgxpool.Pool
}

func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

func (s *ProgressStore) GetProgress(ctx context.Context, accountID string) (domain.Progress, error) {
	var p domain.Progress
	err := s.pool.QueryRow(ctx, `
		SELECT quizzes_completed, average_score, best_score, total_points,
		       points_used, study_streak, last_study_date
		FROM user_progress WHERE account_id=$1`, accountID).
		Scan(&p.QuizzesCompleted, &p.AverageScore, &p.BestScore, &p.TotalPoints,
			&p.PointsUsed, &p.StudyStreak, &p.LastStudyDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Progress{}, nil
	}
	if err != nil {
		return domain.Progress{}, fmt.Errorf("load progress: %w", err)
	}
	return p, nil
}

func (s *ProgressStore) SaveProgress(ctx context.Context, accountID string, p domain.Progress) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_progress (account_id, quizzes_completed, average_score, best_score,
		                           total_points, points_used, study_streak, last_study_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id) DO UPDATE SET
			quizzes_completed = EXCLUDED.quizzes_completed,
			average_score     = EXCLUDED.average_score,
			best_score        = EXCLUDED.best_score,
			total_points      = EXCLUDED.total_points,
			points_used       = EXCLUDED.points_used,
			study_streak      = EXCLUDED.study_streak,
			last_study_date   = EXCLUDED.last_study_date`,
		accountID, p.QuizzesCompleted, p.AverageScore, p.BestScore,
		p.TotalPoints, p.PointsUsed, p.StudyStreak, p.LastStudyDate)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}
