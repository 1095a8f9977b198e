// models/game.go
package models

import "time"

// Phase is the sub-state of a running game.
type Phase string

const (
	PhaseSelection    Phase = "selection"
	PhaseReading      Phase = "reading"
	PhaseBuzzerActive Phase = "buzzer_active"
	PhaseAnswering    Phase = "answering"
	PhaseDailyDouble  Phase = "daily_double"
	PhaseFinalWager   Phase = "final_wager"
	PhaseFinalAnswer  Phase = "final_answer"
	PhaseFinalReveal  Phase = "final_reveal"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusLobby      Status = "lobby"
	StatusPlaying    Status = "playing"
	StatusFinalRound Status = "final_round"
	StatusFinished   Status = "finished"
)

type CategoryMode string

const (
	CategoryModeRandom     CategoryMode = "random"
	CategoryModeTrueRandom CategoryMode = "true_random"
	CategoryModeManual     CategoryMode = "manual"
	CategoryModePack       CategoryMode = "pack"
)

type TimerSpeed string

const (
	TimerSpeedStandard TimerSpeed = "standard"
	TimerSpeedFast     TimerSpeed = "fast"
)

// SessionConfig is fixed at session creation.
type SessionConfig struct {
	CategoryMode       CategoryMode `json:"categoryMode" yaml:"category_mode"`
	SelectedCategories []string     `json:"selectedCategories,omitempty" yaml:"selected_categories"`
	PackName           string       `json:"packName,omitempty" yaml:"pack_name"`
	QuestionCount      int          `json:"questionCount" yaml:"question_count"`
	TimerSpeed         TimerSpeed   `json:"timerSpeed" yaml:"timer_speed"`
	DailyDoubleCount   int          `json:"dailyDoubleCount" yaml:"daily_double_count"`
	FinalRoundEnabled  bool         `json:"finalRoundEnabled" yaml:"final_round_enabled"`
}

// ConfigOverrides carries the fields a creator chose to set. Nil fields keep the default.
type ConfigOverrides struct {
	CategoryMode       *CategoryMode `json:"categoryMode,omitempty"`
	SelectedCategories []string      `json:"selectedCategories,omitempty"`
	PackName           *string       `json:"packName,omitempty"`
	QuestionCount      *int          `json:"questionCount,omitempty"`
	TimerSpeed         *TimerSpeed   `json:"timerSpeed,omitempty"`
	DailyDoubleCount   *int          `json:"dailyDoubleCount,omitempty"`
	FinalRoundEnabled  *bool         `json:"finalRoundEnabled,omitempty"`
}

// Apply returns base with every non-nil override written over it.
func (o *ConfigOverrides) Apply(base SessionConfig) SessionConfig {
	if o == nil {
		return base
	}
	if o.CategoryMode != nil {
		base.CategoryMode = *o.CategoryMode
	}
	if o.SelectedCategories != nil {
		base.SelectedCategories = append([]string(nil), o.SelectedCategories...)
	}
	if o.PackName != nil {
		base.PackName = *o.PackName
	}
	if o.QuestionCount != nil {
		base.QuestionCount = *o.QuestionCount
	}
	if o.TimerSpeed != nil {
		base.TimerSpeed = *o.TimerSpeed
	}
	if o.DailyDoubleCount != nil {
		base.DailyDoubleCount = *o.DailyDoubleCount
	}
	if o.FinalRoundEnabled != nil {
		base.FinalRoundEnabled = *o.FinalRoundEnabled
	}
	return base
}

// Question is a board cell. Answer never leaves the server before reveal.
type Question struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	Value       int      `json:"value"`
	Prompt      string   `json:"question"`
	Answer      string   `json:"answer"`
	Options     []string `json:"options,omitempty"`
	DailyDouble bool     `json:"dailyDouble"`
}

// PublicQuestion is the projection of a Question safe to send to clients.
type PublicQuestion struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	Value       int      `json:"value"`
	Prompt      string   `json:"question"`
	Options     []string `json:"options,omitempty"`
	DailyDouble bool     `json:"dailyDouble"`
}

func (q *Question) Public() *PublicQuestion {
	if q == nil {
		return nil
	}
	return &PublicQuestion{
		ID:          q.ID,
		Category:    q.Category,
		Value:       q.Value,
		Prompt:      q.Prompt,
		Options:     q.Options,
		DailyDouble: q.DailyDouble,
	}
}

// Board holds one column of questions per category, ordered by value.
type Board [][]*Question

// Find returns the question with the given id.
func (b Board) Find(id string) (*Question, bool) {
	for _, column := range b {
		for _, q := range column {
			if q.ID == id {
				return q, true
			}
		}
	}
	return nil, false
}

// Size is the number of cells on the board.
func (b Board) Size() int {
	n := 0
	for _, column := range b {
		n += len(column)
	}
	return n
}

// QuestionAttempt records one graded answer to the selected question.
type QuestionAttempt struct {
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	Answer     string    `json:"answer"`
	Correct    bool      `json:"correct"`
	ScoreDelta int       `json:"scoreDelta"`
	At         time.Time `json:"at"`
}

// FinalRound holds the simultaneous wager/answer round. Keys are player ids.
type FinalRound struct {
	Question *Question
	Wagers   map[string]int
	Answers  map[string]string
	Reveals  []FinalReveal
}

// FinalReveal is one player's graded final-round entry.
type FinalReveal struct {
	PlayerID   string `json:"playerId"`
	Name       string `json:"name"`
	Wager      int    `json:"wager"`
	Answer     string `json:"answer"`
	Correct    bool   `json:"correct"`
	ScoreAfter int    `json:"scoreAfter"`
}

// GameState is the in-game portion of a session. Empty player ids mean "none".
type GameState struct {
	Board               Board
	Phase               Phase
	CurrentTurnPlayerID string
	SelectedQuestion    *Question
	PhaseEndsAt         *time.Time
	BuzzedPlayerID      string
	DailyDoubleWager    *int
	DailyDoublePlayerID string
	QuestionAttempts    []QuestionAttempt
	Final               *FinalRound

	answered      map[string]struct{}
	answeredOrder []string
}

// MarkAnswered adds id to the answered set. The set only grows within a game.
func (g *GameState) MarkAnswered(id string) {
	if g.answered == nil {
		g.answered = make(map[string]struct{})
	}
	if _, ok := g.answered[id]; ok {
		return
	}
	g.answered[id] = struct{}{}
	g.answeredOrder = append(g.answeredOrder, id)
}

func (g *GameState) IsAnswered(id string) bool {
	_, ok := g.answered[id]
	return ok
}

// AnsweredIDs returns the answered question ids in the order they were completed.
func (g *GameState) AnsweredIDs() []string {
	return append([]string(nil), g.answeredOrder...)
}

func (g *GameState) AnsweredCount() int {
	return len(g.answeredOrder)
}

// Reset clears the state for a fresh game on board.
func (g *GameState) Reset(board Board) {
	*g = GameState{Board: board, Phase: PhaseSelection}
}

// ClearSelection drops everything tied to the selected question.
func (g *GameState) ClearSelection() {
	g.SelectedQuestion = nil
	g.PhaseEndsAt = nil
	g.BuzzedPlayerID = ""
	g.DailyDoubleWager = nil
	g.DailyDoublePlayerID = ""
	g.QuestionAttempts = nil
}
