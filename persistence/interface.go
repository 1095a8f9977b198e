// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/quizserver/models"
)

// StatsStore 统计存储接口
type StatsStore interface {
	// RecordGameCompletion stores a finished game and folds it into every player's
	// aggregate. Recording the same GameID twice is a no-op.
	RecordGameCompletion(ctx context.Context, result models.GameResult) error
	GetUserStats(ctx context.Context, userID string) (*models.UserStats, error)
	GetLeaderboard(ctx context.Context, limit int) ([]models.UserStats, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
)

// DSN builds a key/value PostgreSQL connection string.
func DSN(host string, port int, user, password, dbname, sslmode string) string {
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 10
	case limit > 100:
		return 100
	default:
		return limit
	}
}
