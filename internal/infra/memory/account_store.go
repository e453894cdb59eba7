package memory

import (
	"context"

	"studion-points-service/internal/domain"
)

// AccountStore is a static in-memory implementation of app.AccountRepository
// (for tests/demos). Inactive accounts resolve the same as absent ones.
type AccountStore struct {
	accounts map[string]domain.Account
}

func NewAccountStore(accounts map[string]domain.Account) *AccountStore {
	return &AccountStore{accounts: accounts}
}

func (s *AccountStore) GetAccount(_ context.Context, accountID string) (domain.Account, error) {
	account, ok := s.accounts[accountID]
	if !ok || account.Status != domain.AccountActive {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return account, nil
}
