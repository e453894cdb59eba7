package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"studion-points-service/internal/domain"
)

// LedgerStore is the Postgres implementation of app.LedgerRepository.
// Idempotency is a partial unique index over (account_id, kind,
// related_entity_id) for completed entries; balance mutations are single
// conditional UPDATE statements, so concurrent awards and spends serialize
// at the row.
type LedgerStore struct {
	pool *pgxpool.Pool
}

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const entryColumns = `id, account_id, kind, points_earned, points_used, related_entity_id, status, created_at`

func (s *LedgerStore) AppendEarn(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, 0, $5, 'completed', $6)
		ON CONFLICT (account_id, kind, related_entity_id) WHERE status = 'completed' DO NOTHING`,
		entry.ID, entry.AccountID, entry.Kind, entry.PointsEarned, nullable(entry.RelatedEntityID), entry.CreatedAt)
	if err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("insert earn entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := s.findCompleted(ctx, entry)
		return existing, false, err
	}

	if err := s.bumpTotals(ctx, tx, entry.AccountID, entry.PointsEarned, 0); err != nil {
		return domain.LedgerEntry{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("commit: %w", err)
	}
	return entry, true, nil
}

func (s *LedgerStore) AppendSpend(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, 0, $4, $5, 'completed', $6)
		ON CONFLICT (account_id, kind, related_entity_id) WHERE status = 'completed' DO NOTHING`,
		entry.ID, entry.AccountID, entry.Kind, entry.PointsUsed, nullable(entry.RelatedEntityID), entry.CreatedAt)
	if err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("insert spend entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := s.findCompleted(ctx, entry)
		return existing, false, err
	}

	// The balance check and decrement are one statement; zero rows means the
	// account cannot cover the amount and the whole transaction rolls back.
	updated, err := tx.Exec(ctx, `
		UPDATE accounts SET total_used = total_used + $1
		WHERE id = $2 AND total_earned - total_used >= $1`,
		entry.PointsUsed, entry.AccountID)
	if err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("debit balance: %w", err)
	}
	if updated.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		balance, balErr := s.Balance(ctx, entry.AccountID)
		if balErr != nil {
			return domain.LedgerEntry{}, false, balErr
		}
		s.recordFailed(ctx, entry)
		return domain.LedgerEntry{}, false, &domain.InsufficientBalanceError{
			Available: balance.Available,
			Requested: entry.PointsUsed,
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("commit: %w", err)
	}
	return entry, true, nil
}

func (s *LedgerStore) Balance(ctx context.Context, accountID string) (domain.Balance, error) {
	var earned, used int
	err := s.pool.QueryRow(ctx,
		`SELECT total_earned, total_used FROM accounts WHERE id=$1`, accountID).Scan(&earned, &used)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Balance{}, nil
	}
	if err != nil {
		return domain.Balance{}, fmt.Errorf("read balance: %w", err)
	}
	return domain.Balance{Earned: earned, Used: used, Available: earned - used}, nil
}

func (s *LedgerStore) History(ctx context.Context, accountID string, filter domain.HistoryFilter) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE account_id=$1`
	args := []interface{}{accountID}

	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += ` AND kind=$` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND created_at <= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *LedgerStore) findCompleted(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE account_id=$1 AND kind=$2 AND related_entity_id=$3 AND status='completed'`,
		entry.AccountID, entry.Kind, entry.RelatedEntityID)
	existing, err := scanEntry(row)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("find existing entry: %w", err)
	}
	return existing, nil
}

// recordFailed keeps a diagnostic entry for a rejected spend. Best-effort:
// the rejection itself is already reported to the caller.
func (s *LedgerStore) recordFailed(ctx context.Context, entry domain.LedgerEntry) {
	_, _ = s.pool.Exec(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, 0, $4, $5, 'failed', $6)`,
		entry.ID, entry.AccountID, entry.Kind, entry.PointsUsed, nullable(entry.RelatedEntityID), entry.CreatedAt)
}

func (s *LedgerStore) bumpTotals(ctx context.Context, tx pgx.Tx, accountID string, earned, used int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE accounts SET total_earned = total_earned + $1, total_used = total_used + $2
		WHERE id = $3`,
		earned, used, accountID)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credit balance: account %s has no totals row", accountID)
	}
	return nil
}

func scanEntry(row pgx.Row) (domain.LedgerEntry, error) {
	var (
		entry     domain.LedgerEntry
		relatedID sql.NullString
		createdAt time.Time
	)
	err := row.Scan(&entry.ID, &entry.AccountID, &entry.Kind, &entry.PointsEarned,
		&entry.PointsUsed, &relatedID, &entry.Status, &createdAt)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	entry.RelatedEntityID = relatedID.String
	entry.CreatedAt = createdAt
	return entry, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
