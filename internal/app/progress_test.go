package app

import (
	"testing"
	"time"

	"studion-points-service/internal/domain"
)

func TestApplyCompletionFirstEver(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	p := applyCompletion(domain.Progress{}, domain.ScoreSummary{Percentage: 80}, domain.Balance{Earned: 18}, now)

	if p.QuizzesCompleted != 1 || p.AverageScore != 80 || p.BestScore != 80 {
		t.Fatalf("unexpected aggregate: %+v", p)
	}
	if p.StudyStreak != 1 {
		t.Fatalf("first completion must start the streak at 1, got %d", p.StudyStreak)
	}
	if p.TotalPoints != 18 {
		t.Fatalf("expected mirrored totals, got %+v", p)
	}
	if !p.LastStudyDate.Equal(now) {
		t.Fatalf("expected last study date %v, got %v", now, p.LastStudyDate)
	}
}

func TestApplyCompletionRunningAverage(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	p := domain.Progress{QuizzesCompleted: 3, AverageScore: 70, BestScore: 85, LastStudyDate: now}

	p = applyCompletion(p, domain.ScoreSummary{Percentage: 90}, domain.Balance{}, now)
	// (70*3 + 90) / 4
	if p.AverageScore != 75 {
		t.Fatalf("expected average 75, got %v", p.AverageScore)
	}
	if p.QuizzesCompleted != 4 {
		t.Fatalf("expected 4 completions, got %d", p.QuizzesCompleted)
	}
	if p.BestScore != 90 {
		t.Fatalf("expected best score 90, got %v", p.BestScore)
	}

	p = applyCompletion(p, domain.ScoreSummary{Percentage: 66.67}, domain.Balance{}, now)
	if p.AverageScore != 73.33 {
		t.Fatalf("expected average rounded to 73.33, got %v", p.AverageScore)
	}
	if p.BestScore != 90 {
		t.Fatalf("a worse score must not lower the best, got %v", p.BestScore)
	}
}

func TestApplyCompletionStreak(t *testing.T) {
	monday := time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		lastStudy time.Time
		streak    int
		want      int
	}{
		{"same day later hour", monday.Add(-3 * time.Hour), 4, 4},
		{"next calendar day", monday.AddDate(0, 0, -1), 4, 5},
		{"two day gap resets", monday.AddDate(0, 0, -2), 4, 1},
		{"week gap resets", monday.AddDate(0, 0, -7), 9, 1},
	}
	for _, tc := range cases {
		p := domain.Progress{QuizzesCompleted: 1, LastStudyDate: tc.lastStudy, StudyStreak: tc.streak}
		p = applyCompletion(p, domain.ScoreSummary{Percentage: 100}, domain.Balance{}, monday)
		if p.StudyStreak != tc.want {
			t.Fatalf("%s: expected streak %d, got %d", tc.name, tc.want, p.StudyStreak)
		}
	}
}

func TestDaysBetweenUsesCalendarDays(t *testing.T) {
	lateEvening := time.Date(2025, 5, 1, 23, 30, 0, 0, time.UTC)
	earlyMorning := time.Date(2025, 5, 2, 0, 15, 0, 0, time.UTC)
	if got := daysBetween(lateEvening, earlyMorning); got != 1 {
		t.Fatalf("expected 1 calendar day across midnight, got %d", got)
	}
	if got := daysBetween(earlyMorning, earlyMorning.Add(23*time.Hour)); got != 0 {
		t.Fatalf("expected same calendar day, got %d", got)
	}
}
