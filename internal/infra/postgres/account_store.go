package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"studion-points-service/internal/domain"
)

// AccountStore resolves the canonical account identity from the accounts
// table. There is exactly one lookup path; inactive accounts resolve the
// same as absent ones.
type AccountStore struct {
	pool *pgxpool.Pool
}

func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

func (s *AccountStore) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	var account domain.Account
	err := s.pool.QueryRow(ctx, `SELECT id, status FROM accounts WHERE id=$1`, accountID).
		Scan(&account.ID, &account.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	if account.Status != domain.AccountActive {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return account, nil
}
