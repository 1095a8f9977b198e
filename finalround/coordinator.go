// Package finalround runs the closing round: every player wagers, then every player answers,
// then all entries are graded at once.
package finalround

import (
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/rules"
	"github.com/wfunc/quizserver/state"
)

// QuestionSource supplies the final question from the high-value pool.
type QuestionSource interface {
	FinalQuestion() (*models.Question, error)
}

// Limits is one player's inclusive wager range.
type Limits struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// StartResult describes the opened wager window.
type StartResult struct {
	Category string
	EndsAt   time.Time
	Limits   map[string]Limits
}

// Outcome is the graded final round.
type Outcome struct {
	CorrectAnswer string
	WinnerID      string
	Reveals       []models.FinalReveal
	Result        models.GameResult
}

type Coordinator struct {
	clock     clockwork.Clock
	source    QuestionSource
	machine   *state.PhaseMachine
	matchMode rules.MatchMode
}

func NewCoordinator(clock clockwork.Clock, source QuestionSource, mode rules.MatchMode) *Coordinator {
	return &Coordinator{
		clock:     clock,
		source:    source,
		machine:   state.NewPhaseMachine(),
		matchMode: mode,
	}
}

func (c *Coordinator) deadline(d time.Duration) *time.Time {
	t := c.clock.Now().Add(d)
	return &t
}

// Start draws the final question and opens the wager window.
func (c *Coordinator) Start(room *models.Room) (StartResult, error) {
	if room.Status != models.StatusPlaying || room.Game.Phase != models.PhaseSelection {
		return StartResult{}, models.Errorf(models.KindForbidden, "final round cannot start now")
	}
	q, err := c.source.FinalQuestion()
	if err != nil {
		return StartResult{}, models.Errorf(models.KindInvalidConfiguration, "no final question: %v", err)
	}
	if err := c.machine.ChangePhase(&room.Game, models.PhaseFinalWager); err != nil {
		return StartResult{}, err
	}
	room.Status = models.StatusFinalRound
	room.Game.ClearSelection()
	room.Game.Final = &models.FinalRound{
		Question: q,
		Wagers:   make(map[string]int),
		Answers:  make(map[string]string),
	}
	room.Game.PhaseEndsAt = c.deadline(rules.TimingFor(room.Config.TimerSpeed).FinalWager)

	return StartResult{
		Category: q.Category,
		EndsAt:   *room.Game.PhaseEndsAt,
		Limits:   c.WagerLimits(room),
	}, nil
}

// WagerLimits returns the wager range of every seated player.
func (c *Coordinator) WagerLimits(room *models.Room) map[string]Limits {
	limits := make(map[string]Limits, len(room.Players))
	for id, p := range room.Players {
		lo, hi := rules.FinalLimits(p.Score)
		limits[id] = Limits{Min: lo, Max: hi}
	}
	return limits
}

func (c *Coordinator) inPhase(room *models.Room, phase models.Phase) bool {
	return room.Status == models.StatusFinalRound && room.Game.Phase == phase && room.Game.Final != nil
}

// SubmitWager stores a wager, replacing an earlier one. It reports whether every connected
// player has now wagered.
func (c *Coordinator) SubmitWager(room *models.Room, playerID string, wager int) (bool, error) {
	if !c.inPhase(room, models.PhaseFinalWager) {
		return false, models.Errorf(models.KindForbidden, "final wagers are not being accepted")
	}
	p, ok := room.Player(playerID)
	if !ok {
		return false, models.Errorf(models.KindNotFound, "player %s not found", playerID)
	}
	if err := rules.ValidateFinalWager(wager, p.Score); err != nil {
		return false, err
	}
	room.Game.Final.Wagers[playerID] = wager
	return c.allConnectedIn(room, func(id string) bool {
		_, ok := room.Game.Final.Wagers[id]
		return ok
	}), nil
}

// StartAnswerPhase opens the answer window.
func (c *Coordinator) StartAnswerPhase(room *models.Room) (time.Time, error) {
	if !c.inPhase(room, models.PhaseFinalWager) {
		return time.Time{}, models.Errorf(models.KindForbidden, "final round is not collecting wagers")
	}
	if err := c.machine.ChangePhase(&room.Game, models.PhaseFinalAnswer); err != nil {
		return time.Time{}, err
	}
	room.Game.PhaseEndsAt = c.deadline(rules.TimingFor(room.Config.TimerSpeed).FinalAnswer)
	return *room.Game.PhaseEndsAt, nil
}

// SubmitAnswer stores raw answer text. It reports whether every connected player has answered.
func (c *Coordinator) SubmitAnswer(room *models.Room, playerID, text string) (bool, error) {
	if !c.inPhase(room, models.PhaseFinalAnswer) {
		return false, models.Errorf(models.KindForbidden, "final answers are not being accepted")
	}
	if _, ok := room.Player(playerID); !ok {
		return false, models.Errorf(models.KindNotFound, "player %s not found", playerID)
	}
	room.Game.Final.Answers[playerID] = strings.TrimSpace(text)
	return c.allConnectedIn(room, func(id string) bool {
		_, ok := room.Game.Final.Answers[id]
		return ok
	}), nil
}

func (c *Coordinator) allConnectedIn(room *models.Room, has func(id string) bool) bool {
	connected := room.ConnectedPlayers()
	if len(connected) == 0 {
		return false
	}
	for _, p := range connected {
		if !has(p.ID) {
			return false
		}
	}
	return true
}

// Finalize grades every stored answer, applies the wagers and finishes the game.
// Players without a wager or answer keep their score.
func (c *Coordinator) Finalize(room *models.Room, gameID string) (Outcome, error) {
	if !c.inPhase(room, models.PhaseFinalAnswer) {
		return Outcome{}, models.Errorf(models.KindForbidden, "final round is not collecting answers")
	}
	final := room.Game.Final
	if err := c.machine.ChangePhase(&room.Game, models.PhaseFinalReveal); err != nil {
		return Outcome{}, err
	}

	finalCorrect := make(map[string]bool, len(room.Players))
	reveals := make([]models.FinalReveal, 0, len(room.Players))
	for _, p := range room.OrderedPlayers() {
		wager := final.Wagers[p.ID]
		answer := final.Answers[p.ID]
		correct := answer != "" && rules.MatchAnswer(answer, final.Question.Answer, c.matchMode)
		if correct {
			p.Score += wager
		} else {
			p.Score -= wager
		}
		finalCorrect[p.ID] = correct
		reveals = append(reveals, models.FinalReveal{
			PlayerID:   p.ID,
			Name:       p.Name,
			Wager:      wager,
			Answer:     answer,
			Correct:    correct,
			ScoreAfter: p.Score,
		})
	}
	final.Reveals = reveals

	started := c.clock.Now()
	if room.StartedAt != nil {
		started = *room.StartedAt
	}
	result := models.NewGameResult(gameID, room.Code, started, c.clock.Now(), room.OrderedPlayers(), finalCorrect)
	room.Status = models.StatusFinished
	room.Game.PhaseEndsAt = nil

	out := Outcome{CorrectAnswer: final.Question.Answer, Reveals: reveals, Result: result}
	if w, ok := result.Winner(); ok {
		out.WinnerID = w.PlayerID
	}
	return out, nil
}

// Clear drops the final-round state.
func (c *Coordinator) Clear(room *models.Room) {
	room.Game.Final = nil
}
