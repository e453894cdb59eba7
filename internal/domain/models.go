package domain

import "time"

// AttemptStatus is the lifecycle state of a quiz attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// Difficulty of a quiz, fixed at authoring time.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// PerformanceTier is a coarse bucket derived from the score percentage.
type PerformanceTier string

const (
	TierExcellent    PerformanceTier = "excellent"
	TierGood         PerformanceTier = "good"
	TierAverage      PerformanceTier = "average"
	TierBelowAverage PerformanceTier = "below_average"
	TierPoor         PerformanceTier = "poor"
)

// EntryKind tags a ledger entry with the event that produced it.
type EntryKind string

const (
	KindEarnQuiz            EntryKind = "earn_quiz"
	KindEarnUpload          EntryKind = "earn_upload"
	KindEarnDailyLogin      EntryKind = "earn_daily_login"
	KindEarnReferral        EntryKind = "earn_referral"
	KindSpendCourseDiscount EntryKind = "spend_course_discount"
	KindSpendPremiumFeature EntryKind = "spend_premium_feature"
)

// IsEarn reports whether the kind credits points to an account.
func (k EntryKind) IsEarn() bool {
	switch k {
	case KindEarnQuiz, KindEarnUpload, KindEarnDailyLogin, KindEarnReferral:
		return true
	}
	return false
}

// IsSpend reports whether the kind debits points from an account.
func (k EntryKind) IsSpend() bool {
	switch k {
	case KindSpendCourseDiscount, KindSpendPremiumFeature:
		return true
	}
	return false
}

// EntryStatus marks whether a ledger entry counts toward the balance.
// Failed entries are diagnostic records only.
type EntryStatus string

const (
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
)

// LedgerEntry is one immutable record of a point-affecting event.
// Exactly one of PointsEarned/PointsUsed is nonzero on a committed entry.
type LedgerEntry struct {
	ID              string      `json:"id"`
	AccountID       string      `json:"accountId"`
	Kind            EntryKind   `json:"kind"`
	PointsEarned    int         `json:"pointsEarned"`
	PointsUsed      int         `json:"pointsUsed"`
	RelatedEntityID string      `json:"relatedEntityId,omitempty"`
	Status          EntryStatus `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Balance is derived from ledger totals, never stored on its own.
type Balance struct {
	Earned    int `json:"earned"`
	Used      int `json:"used"`
	Available int `json:"available"`
}

// HistoryFilter narrows a ledger history query.
type HistoryFilter struct {
	Kind   EntryKind
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Account is the canonical identity the ledger keys on.
type Account struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "active" or "inactive"
}

const AccountActive = "active"

// QuizSnapshot is the immutable copy of quiz metadata taken at attempt start,
// so later quiz edits cannot change historical results.
type QuizSnapshot struct {
	Title            string     `json:"title"`
	Difficulty       Difficulty `json:"difficulty"`
	TotalQuestions   int        `json:"totalQuestions"`
	EstimatedMinutes int        `json:"estimatedMinutes"`
}

// AnswerRecord is one answered question inside an attempt. Resubmitting a
// question replaces its record rather than appending a second one.
type AnswerRecord struct {
	QuestionID      string `json:"questionId"`
	SubmittedAnswer string `json:"submittedAnswer"`
	IsCorrect       bool   `json:"isCorrect"`
	PointsEarned    int    `json:"pointsEarned"`
	TimeSpentMs     int64  `json:"timeSpentMs"`
}

// Attempt models one user's progress through one quiz instance.
type Attempt struct {
	ID          string         `json:"id"`
	QuizID      string         `json:"quizId"`
	UserID      string         `json:"userId"`
	Status      AttemptStatus  `json:"status"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Snapshot    QuizSnapshot   `json:"snapshot"`
	Answers     []AnswerRecord `json:"answers"`
}

// ProgressPercentage is answered questions over the snapshot's total.
func (a Attempt) ProgressPercentage() float64 {
	if a.Snapshot.TotalQuestions == 0 {
		return 0
	}
	return float64(len(a.Answers)) / float64(a.Snapshot.TotalQuestions) * 100
}

// AnswerFor returns the recorded answer for a question, if any.
func (a Attempt) AnswerFor(questionID string) (AnswerRecord, bool) {
	for _, rec := range a.Answers {
		if rec.QuestionID == questionID {
			return rec, true
		}
	}
	return AnswerRecord{}, false
}

// Question is the authored answer key for one quiz question.
type Question struct {
	ID            string `json:"id"`
	CorrectAnswer string `json:"correctAnswer"`
	Points        int    `json:"points"` // defaults to 1 if zero
}

// Quiz is the live quiz definition as authored. Correctness checks always go
// against this, not the snapshot.
type Quiz struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"ownerId"`
	Title            string     `json:"title"`
	Difficulty       Difficulty `json:"difficulty"`
	Status           string     `json:"status"` // "active" or "inactive"
	EstimatedMinutes int        `json:"estimatedMinutes"`
	Questions        []Question `json:"questions"`
}

const QuizActive = "active"

// QuestionByID returns the authored question, if present.
func (q Quiz) QuestionByID(questionID string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == questionID {
			return question, true
		}
	}
	return Question{}, false
}

// ScoreSummary is the output of the scoring engine.
type ScoreSummary struct {
	CorrectCount   int             `json:"correctCount"`
	TotalQuestions int             `json:"totalQuestions"`
	Percentage     float64         `json:"percentage"`
	Tier           PerformanceTier `json:"tier"`
}

// Progress is the denormalized per-account aggregate. It is written only by
// the completion/orchestration path.
type Progress struct {
	QuizzesCompleted int       `json:"quizzesCompleted"`
	AverageScore     float64   `json:"averageScore"`
	BestScore        float64   `json:"bestScore"`
	TotalPoints      int       `json:"totalPoints"`
	PointsUsed       int       `json:"pointsUsed"`
	StudyStreak      int       `json:"studyStreak"`
	LastStudyDate    time.Time `json:"lastStudyDate"`
}
