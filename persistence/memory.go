package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/wfunc/quizserver/models"
)

// MemoryStore keeps stats in process. It backs development runs without a database and
// the package tests.
type MemoryStore struct {
	games map[string]models.GameResult
	stats map[string]*models.UserStats
	mutex sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games: make(map[string]models.GameResult),
		stats: make(map[string]*models.UserStats),
	}
}

func (m *MemoryStore) RecordGameCompletion(ctx context.Context, result models.GameResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, seen := m.games[result.GameID]; seen {
		return nil
	}
	m.games[result.GameID] = result
	for _, pr := range result.Players {
		s, ok := m.stats[pr.UserID]
		if !ok {
			s = &models.UserStats{}
			m.stats[pr.UserID] = s
		}
		s.Apply(pr, result.EndedAt)
	}
	return nil
}

func (m *MemoryStore) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	s, ok := m.stats[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) GetLeaderboard(ctx context.Context, limit int) ([]models.UserStats, error) {
	m.mutex.RLock()
	board := make([]models.UserStats, 0, len(m.stats))
	for _, s := range m.stats {
		board = append(board, *s)
	}
	m.mutex.RUnlock()

	sort.Slice(board, func(i, j int) bool {
		if board[i].GamesWon != board[j].GamesWon {
			return board[i].GamesWon > board[j].GamesWon
		}
		if board[i].TotalPoints != board[j].TotalPoints {
			return board[i].TotalPoints > board[j].TotalPoints
		}
		return board[i].UserID < board[j].UserID
	})
	if limit = clampLimit(limit); len(board) > limit {
		board = board[:limit]
	}
	return board, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
