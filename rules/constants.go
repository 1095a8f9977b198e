// Package rules holds the pure game rules: limits, timing, codes, names and answer matching.
package rules

import (
	"time"

	"github.com/wfunc/quizserver/models"
)

const (
	MinPlayers = 2
	MaxPlayers = 4

	MinDailyDoubles     = 1
	MaxDailyDoubles     = 3
	DefaultDailyDoubles = 2

	MinDailyDoubleWager   = 200
	MinFinalWager         = 0
	FinalWagerFloorForNeg = 1000

	CodeLength         = 4
	CodeAlphabet       = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	MaxCodeAttempts    = 20
	MaxDisplayNameLen  = 20
	QuestionsPerColumn = 5

	MaxBuzzAttemptsPerSecond = 10

	DefaultReconnectGrace = 30 * time.Second
	DefaultIdleTimeout    = time.Hour
)

// Values are the cell values of one category column, top to bottom.
var Values = []int{200, 400, 600, 800, 1000}

// Timing is the set of phase durations for one timer speed.
type Timing struct {
	Reading           time.Duration
	BuzzerWindow      time.Duration
	AnswerWindow      time.Duration
	Lockout           time.Duration
	DailyDoubleAnswer time.Duration
	FinalWager        time.Duration
	FinalAnswer       time.Duration
	FinalReveal       time.Duration
}

var standardTiming = Timing{
	Reading:           5 * time.Second,
	BuzzerWindow:      15 * time.Second,
	AnswerWindow:      10 * time.Second,
	Lockout:           2 * time.Second,
	DailyDoubleAnswer: 15 * time.Second,
	FinalWager:        30 * time.Second,
	FinalAnswer:       60 * time.Second,
	FinalReveal:       3 * time.Second,
}

// TimingFor returns the durations for speed. Fast halves every standard duration.
func TimingFor(speed models.TimerSpeed) Timing {
	if speed != models.TimerSpeedFast {
		return standardTiming
	}
	t := standardTiming
	return Timing{
		Reading:           t.Reading / 2,
		BuzzerWindow:      t.BuzzerWindow / 2,
		AnswerWindow:      t.AnswerWindow / 2,
		Lockout:           t.Lockout / 2,
		DailyDoubleAnswer: t.DailyDoubleAnswer / 2,
		FinalWager:        t.FinalWager / 2,
		FinalAnswer:       t.FinalAnswer / 2,
		FinalReveal:       t.FinalReveal / 2,
	}
}
