// models/stats.go
package models

import (
	"sort"
	"time"
)

// PlayerResult is one player's line in a finished game.
type PlayerResult struct {
	PlayerID           string `json:"playerId"`
	UserID             string `json:"userId"`
	Name               string `json:"name"`
	FinalScore         int    `json:"finalScore"`
	Placement          int    `json:"placement"`
	CorrectAnswers     int    `json:"correctAnswers"`
	WrongAnswers       int    `json:"wrongAnswers"`
	BuzzerAttempts     int    `json:"buzzerAttempts"`
	BuzzerWins         int    `json:"buzzerWins"`
	DailyDoubleCorrect int    `json:"dailyDoubleCorrect"`
	FinalCorrect       bool   `json:"finalCorrect"`
	BestStreak         int    `json:"bestStreak"`
}

// GameResult is the record handed to the stats store when a game ends.
type GameResult struct {
	GameID    string         `json:"gameId"`
	RoomCode  string         `json:"roomCode"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   time.Time      `json:"endedAt"`
	Players   []PlayerResult `json:"players"`
}

// Winner returns the first-placed player.
func (r *GameResult) Winner() (PlayerResult, bool) {
	if len(r.Players) == 0 {
		return PlayerResult{}, false
	}
	return r.Players[0], true
}

// NewGameResult ranks players by score. Ties keep the given order.
func NewGameResult(gameID, code string, startedAt, endedAt time.Time, players []*Player, finalCorrect map[string]bool) GameResult {
	results := make([]PlayerResult, 0, len(players))
	for _, p := range players {
		results = append(results, PlayerResult{
			PlayerID:           p.ID,
			UserID:             p.UserID,
			Name:               p.Name,
			FinalScore:         p.Score,
			CorrectAnswers:     p.CorrectAnswers,
			WrongAnswers:       p.WrongAnswers,
			BuzzerAttempts:     p.BuzzerAttempts,
			BuzzerWins:         p.BuzzerWins,
			DailyDoubleCorrect: p.DailyDoubleCorrect,
			FinalCorrect:       finalCorrect[p.ID],
			BestStreak:         p.BestStreak,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	for i := range results {
		results[i].Placement = i + 1
	}
	return GameResult{
		GameID:    gameID,
		RoomCode:  code,
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Players:   results,
	}
}

// UserStats aggregates every finished game of one user.
type UserStats struct {
	UserID             string    `json:"userId"`
	Name               string    `json:"name"`
	GamesPlayed        int       `json:"gamesPlayed"`
	GamesWon           int       `json:"gamesWon"`
	TotalPoints        int       `json:"totalPoints"`
	HighestScore       int       `json:"highestScore"`
	LowestScore        int       `json:"lowestScore"`
	CorrectAnswers     int       `json:"correctAnswers"`
	WrongAnswers       int       `json:"wrongAnswers"`
	BuzzerAttempts     int       `json:"buzzerAttempts"`
	BuzzerWins         int       `json:"buzzerWins"`
	DailyDoubleCorrect int       `json:"dailyDoubleCorrect"`
	FinalCorrect       int       `json:"finalCorrect"`
	CurrentStreak      int       `json:"currentStreak"`
	BestStreak         int       `json:"bestStreak"`
	UpdatedAt          time.Time `json:"updatedAt"`

	WinRate       float64 `json:"winRate"`
	AverageScore  float64 `json:"averageScore"`
	AccuracyRate  float64 `json:"accuracyRate"`
	BuzzerWinRate float64 `json:"buzzerWinRate"`
}

// Apply folds one game line into the aggregate. Streaks count consecutive wins.
func (s *UserStats) Apply(r PlayerResult, at time.Time) {
	won := r.Placement == 1
	if s.GamesPlayed == 0 {
		s.HighestScore = r.FinalScore
		s.LowestScore = r.FinalScore
	} else {
		if r.FinalScore > s.HighestScore {
			s.HighestScore = r.FinalScore
		}
		if r.FinalScore < s.LowestScore {
			s.LowestScore = r.FinalScore
		}
	}
	s.UserID = r.UserID
	s.Name = r.Name
	s.GamesPlayed++
	s.TotalPoints += r.FinalScore
	s.CorrectAnswers += r.CorrectAnswers
	s.WrongAnswers += r.WrongAnswers
	s.BuzzerAttempts += r.BuzzerAttempts
	s.BuzzerWins += r.BuzzerWins
	s.DailyDoubleCorrect += r.DailyDoubleCorrect
	if r.FinalCorrect {
		s.FinalCorrect++
	}
	if won {
		s.GamesWon++
		s.CurrentStreak++
		if s.CurrentStreak > s.BestStreak {
			s.BestStreak = s.CurrentStreak
		}
	} else {
		s.CurrentStreak = 0
	}
	s.UpdatedAt = at
	s.Derive()
}

// Derive recomputes the rate fields from the counters. Rates are percentages.
func (s *UserStats) Derive() {
	s.WinRate = 100 * ratio(s.GamesWon, s.GamesPlayed)
	s.AverageScore = ratio(s.TotalPoints, s.GamesPlayed)
	s.AccuracyRate = 100 * ratio(s.CorrectAnswers, s.CorrectAnswers+s.WrongAnswers)
	s.BuzzerWinRate = 100 * ratio(s.BuzzerWins, s.BuzzerAttempts)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
