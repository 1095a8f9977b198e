// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq" // PostgreSQL 驱动
	"github.com/wfunc/quizserver/models"
)

// PostgreSQL 数据库实现. The schema matches the GORM models so either driver can
// serve the same database.
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tables: %w", err)
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	statements := []string{`
        CREATE TABLE IF NOT EXISTS games (
            id BIGSERIAL PRIMARY KEY,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ,
            game_id TEXT NOT NULL,
            room_code TEXT NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            ended_at TIMESTAMPTZ NOT NULL,
            winner_id TEXT
        )`, `
        CREATE TABLE IF NOT EXISTS game_players (
            id BIGSERIAL PRIMARY KEY,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ,
            game_ref_id BIGINT NOT NULL REFERENCES games(id),
            user_id TEXT NOT NULL,
            name TEXT NOT NULL,
            final_score BIGINT NOT NULL,
            placement BIGINT NOT NULL,
            correct_answers BIGINT DEFAULT 0,
            wrong_answers BIGINT DEFAULT 0,
            buzzer_attempts BIGINT DEFAULT 0,
            buzzer_wins BIGINT DEFAULT 0,
            daily_double_correct BIGINT DEFAULT 0,
            final_correct BOOLEAN DEFAULT FALSE,
            best_streak BIGINT DEFAULT 0
        )`, `
        CREATE TABLE IF NOT EXISTS user_stats (
            id BIGSERIAL PRIMARY KEY,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ,
            user_id TEXT NOT NULL,
            name TEXT NOT NULL,
            games_played BIGINT DEFAULT 0,
            games_won BIGINT DEFAULT 0,
            total_points BIGINT DEFAULT 0,
            highest_score BIGINT DEFAULT 0,
            lowest_score BIGINT DEFAULT 0,
            correct_answers BIGINT DEFAULT 0,
            wrong_answers BIGINT DEFAULT 0,
            buzzer_attempts BIGINT DEFAULT 0,
            buzzer_wins BIGINT DEFAULT 0,
            daily_double_correct BIGINT DEFAULT 0,
            final_correct BIGINT DEFAULT 0,
            current_streak BIGINT DEFAULT 0,
            best_streak BIGINT DEFAULT 0
        )`,
		// 创建索引以提高查询性能
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_games_game_id ON games(game_id)`,
		`CREATE INDEX IF NOT EXISTS idx_games_room_code ON games(room_code)`,
		`CREATE INDEX IF NOT EXISTS idx_game_players_game_ref_id ON game_players(game_ref_id)`,
		`CREATE INDEX IF NOT EXISTS idx_game_players_user_id ON game_players(user_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_user_stats_user_id ON user_stats(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_stats_games_won ON user_stats(games_won)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const statsColumns = `user_id, name, games_played, games_won, total_points, highest_score, lowest_score,
    correct_answers, wrong_answers, buzzer_attempts, buzzer_wins, daily_double_correct,
    final_correct, current_streak, best_streak, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStats(row rowScanner) (models.UserStats, error) {
	var s models.UserStats
	err := row.Scan(&s.UserID, &s.Name, &s.GamesPlayed, &s.GamesWon, &s.TotalPoints,
		&s.HighestScore, &s.LowestScore, &s.CorrectAnswers, &s.WrongAnswers,
		&s.BuzzerAttempts, &s.BuzzerWins, &s.DailyDoubleCorrect, &s.FinalCorrect,
		&s.CurrentStreak, &s.BestStreak, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	s.Derive()
	return s, nil
}

// RecordGameCompletion 保存一局结果并更新玩家统计
func (p *PostgreSQL) RecordGameCompletion(ctx context.Context, result models.GameResult) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	winnerID := ""
	if w, ok := result.Winner(); ok {
		winnerID = w.UserID
	}

	var gameRef int64
	err = tx.QueryRowContext(ctx, `
        INSERT INTO games (game_id, room_code, started_at, ended_at, winner_id)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (game_id) DO NOTHING
        RETURNING id`,
		result.GameID, result.RoomCode, result.StartedAt, result.EndedAt, winnerID,
	).Scan(&gameRef)
	if errors.Is(err, sql.ErrNoRows) {
		// 已记录过
		err = nil
		return tx.Rollback()
	}
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}

	for _, pr := range result.Players {
		if _, err = tx.ExecContext(ctx, `
            INSERT INTO game_players (game_ref_id, user_id, name, final_score, placement,
                correct_answers, wrong_answers, buzzer_attempts, buzzer_wins,
                daily_double_correct, final_correct, best_streak)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			gameRef, pr.UserID, pr.Name, pr.FinalScore, pr.Placement,
			pr.CorrectAnswers, pr.WrongAnswers, pr.BuzzerAttempts, pr.BuzzerWins,
			pr.DailyDoubleCorrect, pr.FinalCorrect, pr.BestStreak,
		); err != nil {
			return fmt.Errorf("insert player %s: %w", pr.UserID, err)
		}

		var stats models.UserStats
		stats, err = scanStats(tx.QueryRowContext(ctx,
			`SELECT `+statsColumns+` FROM user_stats WHERE user_id = $1 FOR UPDATE`, pr.UserID))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if errors.Is(err, sql.ErrNoRows) {
			stats = models.UserStats{}
		}
		stats.Apply(pr, result.EndedAt)

		if _, err = tx.ExecContext(ctx, `
            INSERT INTO user_stats (`+statsColumns+`)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
            ON CONFLICT (user_id) DO UPDATE SET
                name = EXCLUDED.name,
                games_played = EXCLUDED.games_played,
                games_won = EXCLUDED.games_won,
                total_points = EXCLUDED.total_points,
                highest_score = EXCLUDED.highest_score,
                lowest_score = EXCLUDED.lowest_score,
                correct_answers = EXCLUDED.correct_answers,
                wrong_answers = EXCLUDED.wrong_answers,
                buzzer_attempts = EXCLUDED.buzzer_attempts,
                buzzer_wins = EXCLUDED.buzzer_wins,
                daily_double_correct = EXCLUDED.daily_double_correct,
                final_correct = EXCLUDED.final_correct,
                current_streak = EXCLUDED.current_streak,
                best_streak = EXCLUDED.best_streak,
                updated_at = EXCLUDED.updated_at`,
			stats.UserID, stats.Name, stats.GamesPlayed, stats.GamesWon, stats.TotalPoints,
			stats.HighestScore, stats.LowestScore, stats.CorrectAnswers, stats.WrongAnswers,
			stats.BuzzerAttempts, stats.BuzzerWins, stats.DailyDoubleCorrect, stats.FinalCorrect,
			stats.CurrentStreak, stats.BestStreak, stats.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert stats for %s: %w", pr.UserID, err)
		}
	}

	return tx.Commit()
}

// GetUserStats 获取玩家统计
func (p *PostgreSQL) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	stats, err := scanStats(p.db.QueryRowContext(ctx,
		`SELECT `+statsColumns+` FROM user_stats WHERE user_id = $1 AND deleted_at IS NULL`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &stats, nil
}

// GetLeaderboard 排行榜
func (p *PostgreSQL) GetLeaderboard(ctx context.Context, limit int) ([]models.UserStats, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+statsColumns+` FROM user_stats WHERE deleted_at IS NULL
         ORDER BY games_won DESC, total_points DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var board []models.UserStats
	for rows.Next() {
		s, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		board = append(board, s)
	}
	return board, rows.Err()
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
