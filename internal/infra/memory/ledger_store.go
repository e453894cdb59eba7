package memory

import (
	"context"
	"sync"

	"studion-points-service/internal/domain"
)

type idemKey struct {
	accountID string
	kind      domain.EntryKind
	relatedID string
}

type accountTotals struct {
	earned int
	used   int
}

// LedgerStore is an in-memory implementation of app.LedgerRepository. One
// mutex covers both the entry append and the balance mutation, so the
// check-and-update is atomic against concurrent awards and spends.
type LedgerStore struct {
	mu       sync.Mutex
	entries  []domain.LedgerEntry
	byKey    map[idemKey]int
	accounts map[string]*accountTotals
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		byKey:    make(map[idemKey]int),
		accounts: make(map[string]*accountTotals),
	}
}

func (s *LedgerStore) AppendEarn(_ context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.findCompleted(entry); ok {
		return existing, false, nil
	}

	s.totals(entry.AccountID).earned += entry.PointsEarned
	s.append(entry)
	return entry, true, nil
}

func (s *LedgerStore) AppendSpend(_ context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.findCompleted(entry); ok {
		return existing, false, nil
	}

	totals := s.totals(entry.AccountID)
	available := totals.earned - totals.used
	if entry.PointsUsed > available {
		// Keep a diagnostic record of the rejected spend. Failed entries are
		// never counted toward the balance and never satisfy idempotency.
		failed := entry
		failed.Status = domain.EntryFailed
		s.entries = append(s.entries, failed)
		return domain.LedgerEntry{}, false, &domain.InsufficientBalanceError{
			Available: available,
			Requested: entry.PointsUsed,
		}
	}

	totals.used += entry.PointsUsed
	s.append(entry)
	return entry, true, nil
}

func (s *LedgerStore) Balance(_ context.Context, accountID string) (domain.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals, ok := s.accounts[accountID]
	if !ok {
		return domain.Balance{}, nil
	}
	return domain.Balance{
		Earned:    totals.earned,
		Used:      totals.used,
		Available: totals.earned - totals.used,
	}, nil
}

func (s *LedgerStore) History(_ context.Context, accountID string, filter domain.HistoryFilter) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]domain.LedgerEntry, 0)
	// Entries are appended chronologically; walk backwards for newest first.
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.AccountID != accountID {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if !filter.From.IsZero() && e.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.CreatedAt.After(filter.To) {
			continue
		}
		matched = append(matched, e)
	}

	if filter.Offset >= len(matched) {
		return []domain.LedgerEntry{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *LedgerStore) findCompleted(entry domain.LedgerEntry) (domain.LedgerEntry, bool) {
	if entry.RelatedEntityID == "" {
		return domain.LedgerEntry{}, false
	}
	key := idemKey{accountID: entry.AccountID, kind: entry.Kind, relatedID: entry.RelatedEntityID}
	if i, ok := s.byKey[key]; ok {
		return s.entries[i], true
	}
	return domain.LedgerEntry{}, false
}

func (s *LedgerStore) append(entry domain.LedgerEntry) {
	s.entries = append(s.entries, entry)
	if entry.RelatedEntityID != "" {
		key := idemKey{accountID: entry.AccountID, kind: entry.Kind, relatedID: entry.RelatedEntityID}
		s.byKey[key] = len(s.entries) - 1
	}
}

func (s *LedgerStore) totals(accountID string) *accountTotals {
	totals, ok := s.accounts[accountID]
	if !ok {
		totals = &accountTotals{}
		s.accounts[accountID] = totals
	}
	return totals
}
