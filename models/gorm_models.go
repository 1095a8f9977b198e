// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormGame 已结束的一局游戏
type GormGame struct {
	gorm.Model
	GameID    string           `gorm:"uniqueIndex;not null"`
	RoomCode  string           `gorm:"index;not null"`
	StartedAt time.Time        `gorm:"not null"`
	EndedAt   time.Time        `gorm:"not null"`
	WinnerID  string           `gorm:"index"`
	Players   []GormGamePlayer `gorm:"foreignKey:GameRefID"`
}

// GormGamePlayer 单局中某个玩家的成绩
type GormGamePlayer struct {
	gorm.Model
	GameRefID          uint   `gorm:"index;not null"`
	UserID             string `gorm:"index;not null"`
	Name               string `gorm:"not null"`
	FinalScore         int    `gorm:"not null"`
	Placement          int    `gorm:"not null"`
	CorrectAnswers     int    `gorm:"default:0"`
	WrongAnswers       int    `gorm:"default:0"`
	BuzzerAttempts     int    `gorm:"default:0"`
	BuzzerWins         int    `gorm:"default:0"`
	DailyDoubleCorrect int    `gorm:"default:0"`
	FinalCorrect       bool   `gorm:"default:false"`
	BestStreak         int    `gorm:"default:0"`
}

func (GormGame) TableName() string       { return "games" }
func (GormGamePlayer) TableName() string { return "game_players" }

// GormUserStats 玩家累计统计
type GormUserStats struct {
	gorm.Model
	UserID             string `gorm:"uniqueIndex;not null"`
	Name               string `gorm:"not null"`
	GamesPlayed        int    `gorm:"default:0"`
	GamesWon           int    `gorm:"index;default:0"`
	TotalPoints        int    `gorm:"default:0"`
	HighestScore       int    `gorm:"default:0"`
	LowestScore        int    `gorm:"default:0"`
	CorrectAnswers     int    `gorm:"default:0"`
	WrongAnswers       int    `gorm:"default:0"`
	BuzzerAttempts     int    `gorm:"default:0"`
	BuzzerWins         int    `gorm:"default:0"`
	DailyDoubleCorrect int    `gorm:"default:0"`
	FinalCorrect       int    `gorm:"default:0"`
	CurrentStreak      int    `gorm:"default:0"`
	BestStreak         int    `gorm:"default:0"`
}

func (GormUserStats) TableName() string { return "user_stats" }

// NewGormGame flattens a result into rows.
func NewGormGame(r GameResult) GormGame {
	g := GormGame{
		GameID:    r.GameID,
		RoomCode:  r.RoomCode,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		Players:   make([]GormGamePlayer, 0, len(r.Players)),
	}
	if w, ok := r.Winner(); ok {
		g.WinnerID = w.UserID
	}
	for _, p := range r.Players {
		g.Players = append(g.Players, GormGamePlayer{
			UserID:             p.UserID,
			Name:               p.Name,
			FinalScore:         p.FinalScore,
			Placement:          p.Placement,
			CorrectAnswers:     p.CorrectAnswers,
			WrongAnswers:       p.WrongAnswers,
			BuzzerAttempts:     p.BuzzerAttempts,
			BuzzerWins:         p.BuzzerWins,
			DailyDoubleCorrect: p.DailyDoubleCorrect,
			FinalCorrect:       p.FinalCorrect,
			BestStreak:         p.BestStreak,
		})
	}
	return g
}

// ToUserStats converts the row to the domain aggregate with derived rates.
func (g *GormUserStats) ToUserStats() UserStats {
	s := UserStats{
		UserID:             g.UserID,
		Name:               g.Name,
		GamesPlayed:        g.GamesPlayed,
		GamesWon:           g.GamesWon,
		TotalPoints:        g.TotalPoints,
		HighestScore:       g.HighestScore,
		LowestScore:        g.LowestScore,
		CorrectAnswers:     g.CorrectAnswers,
		WrongAnswers:       g.WrongAnswers,
		BuzzerAttempts:     g.BuzzerAttempts,
		BuzzerWins:         g.BuzzerWins,
		DailyDoubleCorrect: g.DailyDoubleCorrect,
		FinalCorrect:       g.FinalCorrect,
		CurrentStreak:      g.CurrentStreak,
		BestStreak:         g.BestStreak,
		UpdatedAt:          g.UpdatedAt,
	}
	s.Derive()
	return s
}

// FromUserStats copies the aggregate counters onto the row.
func (g *GormUserStats) FromUserStats(s UserStats) {
	g.UserID = s.UserID
	g.Name = s.Name
	g.GamesPlayed = s.GamesPlayed
	g.GamesWon = s.GamesWon
	g.TotalPoints = s.TotalPoints
	g.HighestScore = s.HighestScore
	g.LowestScore = s.LowestScore
	g.CorrectAnswers = s.CorrectAnswers
	g.WrongAnswers = s.WrongAnswers
	g.BuzzerAttempts = s.BuzzerAttempts
	g.BuzzerWins = s.BuzzerWins
	g.DailyDoubleCorrect = s.DailyDoubleCorrect
	g.FinalCorrect = s.FinalCorrect
	g.CurrentStreak = s.CurrentStreak
	g.BestStreak = s.BestStreak
}
