// models/snapshot.go
package models

import "time"

// SessionSnapshot is the authoritative client-visible view of a session.
type SessionSnapshot struct {
	Code      string        `json:"code"`
	HostID    *string       `json:"hostId"`
	Status    Status        `json:"status"`
	Config    SessionConfig `json:"config"`
	Players   []PlayerView  `json:"players"`
	Game      GameView      `json:"gameState"`
	CreatedAt time.Time     `json:"createdAt"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
}

type PlayerView struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	Name              string     `json:"name"`
	Score             int        `json:"score"`
	IsHost            bool       `json:"isHost"`
	Connected         bool       `json:"connected"`
	BuzzerLocked      bool       `json:"buzzerLocked"`
	BuzzerLockedUntil *time.Time `json:"buzzerLockedUntil,omitempty"`
	ReconnectDeadline *time.Time `json:"reconnectDeadline,omitempty"`
}

type GameView struct {
	Board               []CategoryView    `json:"board"`
	Phase               Phase             `json:"phase,omitempty"`
	CurrentTurnPlayerID *string           `json:"currentTurnPlayerId"`
	SelectedQuestion    *PublicQuestion   `json:"selectedQuestion"`
	PhaseEndsAt         *time.Time        `json:"phaseEndsAt"`
	AnsweredQuestionIDs []string          `json:"answeredQuestionIds"`
	BuzzedPlayerID      *string           `json:"buzzedPlayerId"`
	DailyDoubleWager    *int              `json:"dailyDoubleWager"`
	DailyDoublePlayerID *string           `json:"dailyDoublePlayerId"`
	QuestionAttempts    []QuestionAttempt `json:"questionAttempts"`
	Final               *FinalView        `json:"finalRound,omitempty"`
}

type CategoryView struct {
	Name  string     `json:"name"`
	Cells []CellView `json:"questions"`
}

// CellView hides the daily-double flag until the cell has been answered.
type CellView struct {
	ID          string `json:"id"`
	Value       int    `json:"value"`
	Answered    bool   `json:"answered"`
	DailyDouble bool   `json:"dailyDouble"`
}

// FinalView shows who has submitted, never the amounts or answers before reveal.
type FinalView struct {
	Category string        `json:"category"`
	Question *string       `json:"question"`
	Wagered  []string      `json:"wagered"`
	Answered []string      `json:"answered"`
	Reveals  []FinalReveal `json:"reveals,omitempty"`
	Answer   *string       `json:"correctAnswer,omitempty"`
}

// SessionSummary is one row of the session list.
type SessionSummary struct {
	Code           string        `json:"code"`
	HostName       string        `json:"hostName"`
	Status         Status        `json:"status"`
	PlayerCount    int           `json:"playerCount"`
	ConnectedCount int           `json:"connectedCount"`
	MaxPlayers     int           `json:"maxPlayers"`
	Config         SessionConfig `json:"config"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Optional maps the empty id to JSON null.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
