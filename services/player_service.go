// services/player_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/persistence"
)

const defaultTimeout = 5 * time.Second

// PlayerService 玩家统计服务: bounds every store call with a timeout and hides
// missing rows behind empty stats.
type PlayerService struct {
	store   persistence.StatsStore
	timeout time.Duration
}

func NewPlayerService(store persistence.StatsStore, timeout time.Duration) *PlayerService {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &PlayerService{store: store, timeout: timeout}
}

// RecordGameCompletion 保存一局结果
func (s *PlayerService) RecordGameCompletion(ctx context.Context, result models.GameResult) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.RecordGameCompletion(ctx, result); err != nil {
		logger.Log.Errorf("record game %s for room %s: %v", result.GameID, result.RoomCode, err)
		return fmt.Errorf("record game %s: %w", result.GameID, err)
	}
	logger.Log.Infof("recorded game %s for room %s (%d players)", result.GameID, result.RoomCode, len(result.Players))
	return nil
}

// GetUserStats 获取玩家统计. A user with no finished games gets zeroed stats.
func (s *PlayerService) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, models.Errorf(models.KindInvalidInput, "a user id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stats, err := s.store.GetUserStats(ctx, userID)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return &models.UserStats{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stats for %s: %w", userID, err)
	}
	return stats, nil
}

// GetLeaderboard 排行榜
func (s *PlayerService) GetLeaderboard(ctx context.Context, limit int) ([]models.UserStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	board, err := s.store.GetLeaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	if board == nil {
		board = []models.UserStats{}
	}
	return board, nil
}
