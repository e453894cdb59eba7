package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"studion-points-service/internal/domain"
)

// LedgerService is the points ledger: an append-only record of point-affecting
// events plus the derived balance per account. Awards are idempotent per
// (account, kind, related entity), so a duplicate award is structurally
// impossible rather than a matter of call-site discipline.
type LedgerService struct {
	entries  LedgerRepository
	accounts AccountRepository
	log      *logrus.Logger
	now      func() time.Time
	newID    func() string
}

func NewLedgerService(entries LedgerRepository, accounts AccountRepository, log *logrus.Logger) *LedgerService {
	return &LedgerService{
		entries:  entries,
		accounts: accounts,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// Award credits points to an account. Re-awarding the same (kind, related
// entity) returns the original entry unchanged.
func (s *LedgerService) Award(ctx context.Context, accountID string, kind domain.EntryKind, amount int, relatedEntityID string) (domain.LedgerEntry, error) {
	if amount <= 0 || !kind.IsEarn() {
		return domain.LedgerEntry{}, domain.ErrInvalidArgument
	}
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return domain.LedgerEntry{}, err
	}

	entry, created, err := s.entries.AppendEarn(ctx, domain.LedgerEntry{
		ID:              s.newID(),
		AccountID:       accountID,
		Kind:            kind,
		PointsEarned:    amount,
		RelatedEntityID: relatedEntityID,
		Status:          domain.EntryCompleted,
		CreatedAt:       s.now(),
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if !created {
		s.log.WithFields(logrus.Fields{
			"accountId": accountID,
			"kind":      kind,
			"relatedId": relatedEntityID,
		}).Debug("duplicate award suppressed")
	}
	return entry, nil
}

// Spend debits points from an account. The balance check and decrement are a
// single atomic operation against concurrent awards and spends, so a
// committed balance can never go negative.
func (s *LedgerService) Spend(ctx context.Context, accountID string, kind domain.EntryKind, amount int, relatedEntityID string) (domain.LedgerEntry, error) {
	if amount <= 0 || !kind.IsSpend() {
		return domain.LedgerEntry{}, domain.ErrInvalidArgument
	}
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return domain.LedgerEntry{}, err
	}

	entry, created, err := s.entries.AppendSpend(ctx, domain.LedgerEntry{
		ID:              s.newID(),
		AccountID:       accountID,
		Kind:            kind,
		PointsUsed:      amount,
		RelatedEntityID: relatedEntityID,
		Status:          domain.EntryCompleted,
		CreatedAt:       s.now(),
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if !created {
		s.log.WithFields(logrus.Fields{
			"accountId": accountID,
			"kind":      kind,
			"relatedId": relatedEntityID,
		}).Debug("duplicate spend suppressed")
	}
	return entry, nil
}

// Balance returns earned, used, and available points for an account.
// Available is earned minus used and is never negative by construction.
func (s *LedgerService) Balance(ctx context.Context, accountID string) (domain.Balance, error) {
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return domain.Balance{}, err
	}
	return s.entries.Balance(ctx, accountID)
}

// History returns the account's ledger entries, newest first, filterable by
// kind and date range.
func (s *LedgerService) History(ctx context.Context, accountID string, filter domain.HistoryFilter) ([]domain.LedgerEntry, error) {
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.entries.History(ctx, accountID, filter)
}
