package app

import (
	"context"
	"time"

	"studion-points-service/internal/domain"
)

// QuizRepository loads live quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AccountRepository resolves the canonical account identity. Implementations
// return domain.ErrAccountNotFound for absent or inactive accounts.
type AccountRepository interface {
	GetAccount(ctx context.Context, accountID string) (domain.Account, error)
}

// AttemptRepository abstracts attempt persistence. Implementations must make
// the start/complete transitions atomic: two concurrent starts for the same
// (quiz, user) yield one attempt, and two concurrent completes for the same
// attempt yield exactly one success.
type AttemptRepository interface {
	// StartAttempt stores the attempt unless an in-progress attempt already
	// exists for the same (quiz, user); in that case the existing attempt is
	// returned with created=false.
	StartAttempt(ctx context.Context, attempt domain.Attempt) (domain.Attempt, bool, error)
	// GetAttempt fetches an attempt by id regardless of owner. Callers
	// enforce ownership.
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	// PutAnswer replaces or appends the record for its question on an
	// in-progress attempt owned by userID, returning the updated attempt.
	// Fails with domain.ErrAttemptNotFound otherwise.
	PutAnswer(ctx context.Context, attemptID, userID string, rec domain.AnswerRecord) (domain.Attempt, error)
	// CompleteAttempt transitions in_progress -> completed exactly once.
	// Returns domain.ErrAttemptNotFound when absent or not owned, and
	// domain.ErrInvalidState when owned but no longer in progress.
	CompleteAttempt(ctx context.Context, attemptID, userID string, completedAt time.Time) (domain.Attempt, error)
	// AbandonAttempt transitions in_progress -> abandoned with the same
	// error contract as CompleteAttempt.
	AbandonAttempt(ctx context.Context, attemptID, userID string) (domain.Attempt, error)
}

// LedgerRepository abstracts the append-only points ledger and the derived
// account totals. Balance mutations are atomic with respect to concurrent
// calls on the same account.
type LedgerRepository interface {
	// AppendEarn appends a completed earn entry and increments the account's
	// earned total. When a completed entry with the same idempotency key
	// (account, kind, related entity) already exists, the existing entry is
	// returned with created=false and nothing is written.
	AppendEarn(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, bool, error)
	// AppendSpend appends a completed spend entry and increments the used
	// total, with the balance check and decrement performed atomically.
	// Fails with *domain.InsufficientBalanceError when the account cannot
	// cover the amount; a failed diagnostic entry is recorded in that case.
	// Duplicate idempotency keys return the existing entry with created=false.
	AppendSpend(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, bool, error)
	// Balance returns the account totals; unknown accounts read as zero.
	Balance(ctx context.Context, accountID string) (domain.Balance, error)
	// History returns completed and failed entries, newest first.
	History(ctx context.Context, accountID string, filter domain.HistoryFilter) ([]domain.LedgerEntry, error)
}

// ProgressRepository persists the denormalized per-account aggregate.
// Accounts without progress read as the zero value.
type ProgressRepository interface {
	GetProgress(ctx context.Context, accountID string) (domain.Progress, error)
	SaveProgress(ctx context.Context, accountID string, progress domain.Progress) error
}
