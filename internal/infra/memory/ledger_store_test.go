package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"studion-points-service/internal/domain"
)

func TestAppendEarnConcurrentRetriesAwardOnce(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore()

	entry := domain.LedgerEntry{
		ID:              "e1",
		AccountID:       "u1",
		Kind:            domain.KindEarnQuiz,
		Status:          domain.EntryCompleted,
		PointsEarned:    25,
		RelatedEntityID: "attempt-1",
	}

	const callers = 16
	var wg sync.WaitGroup
	var createdCount int
	var mu sync.Mutex

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dup := entry
			dup.ID = fmt.Sprintf("e%d", i)
			_, created, err := store.AppendEarn(ctx, dup)
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if createdCount != 1 {
		t.Fatalf("expected one created entry, got %d", createdCount)
	}
	balance, _ := store.Balance(ctx, "u1")
	if balance.Earned != 25 {
		t.Fatalf("expected 25 earned, got %+v", balance)
	}
}

func TestAppendSpendConcurrentNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore()

	if _, _, err := store.AppendEarn(ctx, domain.LedgerEntry{
		ID: "seed", AccountID: "u1", Kind: domain.KindEarnQuiz,
		Status: domain.EntryCompleted, PointsEarned: 100, RelatedEntityID: "attempt-1",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// 20 spends of 10 against a balance of 100: exactly 10 may succeed.
	const callers = 20
	var wg sync.WaitGroup
	var succeeded, rejected int
	var mu sync.Mutex

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := store.AppendSpend(ctx, domain.LedgerEntry{
				ID:              fmt.Sprintf("s%d", i),
				AccountID:       "u1",
				Kind:            domain.KindSpendCourseDiscount,
				Status:          domain.EntryCompleted,
				PointsUsed:      10,
				RelatedEntityID: fmt.Sprintf("course-%d", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientBalance):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 10 || rejected != 10 {
		t.Fatalf("expected 10 successes and 10 rejections, got %d/%d", succeeded, rejected)
	}
	balance, _ := store.Balance(ctx, "u1")
	if balance.Available != 0 || balance.Used != 100 {
		t.Fatalf("balance must land exactly at zero, got %+v", balance)
	}
	if balance.Available < 0 {
		t.Fatalf("balance went negative: %+v", balance)
	}
}

func TestRejectedSpendLeavesFailedEntry(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore()

	_, _, err := store.AppendSpend(ctx, domain.LedgerEntry{
		ID: "s1", AccountID: "u1", Kind: domain.KindSpendCourseDiscount,
		Status: domain.EntryCompleted, PointsUsed: 10, RelatedEntityID: "course-1",
	})
	var detail *domain.InsufficientBalanceError
	if !errors.As(err, &detail) {
		t.Fatalf("expected insufficiency error, got %v", err)
	}
	if detail.Available != 0 || detail.Requested != 10 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	history, _ := store.History(ctx, "u1", domain.HistoryFilter{})
	if len(history) != 1 || history[0].Status != domain.EntryFailed {
		t.Fatalf("expected one failed diagnostic entry, got %+v", history)
	}

	// A failed entry never satisfies idempotency: once funded, the same
	// related entity may spend.
	if _, _, err := store.AppendEarn(ctx, domain.LedgerEntry{
		ID: "e1", AccountID: "u1", Kind: domain.KindEarnQuiz,
		Status: domain.EntryCompleted, PointsEarned: 10, RelatedEntityID: "attempt-1",
	}); err != nil {
		t.Fatalf("earn: %v", err)
	}
	if _, created, err := store.AppendSpend(ctx, domain.LedgerEntry{
		ID: "s2", AccountID: "u1", Kind: domain.KindSpendCourseDiscount,
		Status: domain.EntryCompleted, PointsUsed: 10, RelatedEntityID: "course-1",
	}); err != nil || !created {
		t.Fatalf("funded retry must succeed, created=%v err=%v", created, err)
	}
}

func TestBalanceUnknownAccountIsZero(t *testing.T) {
	store := NewLedgerStore()
	balance, err := store.Balance(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != (domain.Balance{}) {
		t.Fatalf("expected zero balance, got %+v", balance)
	}
}
