package memory

import (
	"context"
	"sync"

	"studion-points-service/internal/domain"
)

// ProgressStore is an in-memory implementation of app.ProgressRepository.
type ProgressStore struct {
	mu       sync.RWMutex
	progress map[string]domain.Progress
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{progress: make(map[string]domain.Progress)}
}

func (s *ProgressStore) GetProgress(_ context.Context, accountID string) (domain.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress[accountID], nil
}

func (s *ProgressStore) SaveProgress(_ context.Context, accountID string, progress domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[accountID] = progress
	return nil
}
