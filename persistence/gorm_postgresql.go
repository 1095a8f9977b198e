// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/wfunc/quizserver/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,         // 禁用彩色打印
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &GormPostgreSQL{db: db}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormGame{},
		&models.GormGamePlayer{},
		&models.GormUserStats{},
	)
}

// RecordGameCompletion 保存一局结果并更新玩家统计
func (p *GormPostgreSQL) RecordGameCompletion(ctx context.Context, result models.GameResult) error {
	return p.Transaction(ctx, func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.GormGame{}).Where("game_id = ?", result.GameID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		game := models.NewGormGame(result)
		if err := tx.Create(&game).Error; err != nil {
			return fmt.Errorf("insert game: %w", err)
		}

		for _, pr := range result.Players {
			var row models.GormUserStats
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ?", pr.UserID).First(&row).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			stats := row.ToUserStats()
			stats.Apply(pr, result.EndedAt)
			row.FromUserStats(stats)
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("save stats for %s: %w", pr.UserID, err)
			}
		}
		return nil
	})
}

// GetUserStats 获取玩家统计
func (p *GormPostgreSQL) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	var row models.GormUserStats
	if err := p.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	stats := row.ToUserStats()
	return &stats, nil
}

// GetLeaderboard 排行榜: wins first, then total points
func (p *GormPostgreSQL) GetLeaderboard(ctx context.Context, limit int) ([]models.UserStats, error) {
	var rows []models.GormUserStats
	err := p.db.WithContext(ctx).
		Order("games_won DESC").
		Order("total_points DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	board := make([]models.UserStats, 0, len(rows))
	for i := range rows {
		board = append(board, rows[i].ToUserStats())
	}
	return board, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// 添加事务支持
func (p *GormPostgreSQL) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return p.db.WithContext(ctx).Transaction(fn)
}
