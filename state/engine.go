// Package state runs the per-question phase machine of a game. Every operation validates
// before it mutates; the caller holds the room lock.
package state

import (
	"math/rand"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/rules"
)

// ContentProvider builds boards from question content.
type ContentProvider interface {
	GenerateBoard(cfg models.SessionConfig) (models.Board, error)
}

// SelectResult describes an opened cell.
type SelectResult struct {
	Question    *models.Question
	DailyDouble bool
	MinWager    int
	MaxWager    int
	EndsAt      time.Time
}

// AnswerResult is the outcome of a graded answer.
type AnswerResult struct {
	PlayerID         string
	Answer           string
	Correct          bool
	ScoreDelta       int
	NewScore         int
	DailyDouble      bool
	Completed        bool
	QuestionID       string
	CorrectAnswer    string // set only when Completed
	Attempts         []models.QuestionAttempt
	NextTurnPlayerID string
	BuzzerEndsAt     time.Time // set when the race reopens
}

// Completion describes a question closed without credit.
type Completion struct {
	QuestionID    string
	CorrectAnswer string
	Attempts      []models.QuestionAttempt
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandom replaces the source used to pick the first turn-holder.
func WithRandom(intn func(n int) int) Option {
	return func(e *Engine) { e.intn = intn }
}

// WithMatchMode selects answer grading.
func WithMatchMode(mode rules.MatchMode) Option {
	return func(e *Engine) { e.matchMode = mode }
}

type Engine struct {
	clock     clockwork.Clock
	content   ContentProvider
	machine   *PhaseMachine
	intn      func(n int) int
	matchMode rules.MatchMode
}

func NewEngine(clock clockwork.Clock, content ContentProvider, opts ...Option) *Engine {
	e := &Engine{
		clock:     clock,
		content:   content,
		machine:   NewPhaseMachine(),
		intn:      rand.Intn,
		matchMode: rules.MatchStrict,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MatchMode is the grading mode shared with the final round.
func (e *Engine) MatchMode() rules.MatchMode {
	return e.matchMode
}

func (e *Engine) deadline(d time.Duration) *time.Time {
	t := e.clock.Now().Add(d)
	return &t
}

// StartGame builds the board, resets every player and picks a random first turn-holder.
func (e *Engine) StartGame(room *models.Room) error {
	if room.Status != models.StatusLobby {
		return models.Errorf(models.KindAlreadyInProgress, "game already started")
	}
	connected := room.ConnectedPlayers()
	if len(connected) < rules.MinPlayers {
		return models.Errorf(models.KindInsufficientPlayers, "at least %d connected players are required", rules.MinPlayers)
	}
	if err := rules.ValidateConfig(room.Config); err != nil {
		return err
	}
	board, err := e.content.GenerateBoard(room.Config)
	if err != nil {
		if models.KindOf(err) == models.KindInvalidConfiguration {
			return err
		}
		return models.Errorf(models.KindInvalidConfiguration, "could not build board: %v", err)
	}

	for _, p := range room.OrderedPlayers() {
		p.ResetForGame()
	}
	room.Game.Reset(board)
	room.Game.CurrentTurnPlayerID = connected[e.intn(len(connected))].ID
	room.Status = models.StatusPlaying
	now := e.clock.Now()
	room.StartedAt = &now
	return nil
}

// SelectQuestion opens a cell for reading.
func (e *Engine) SelectQuestion(room *models.Room, playerID, questionID string) (SelectResult, error) {
	g := &room.Game
	if room.Status != models.StatusPlaying {
		return SelectResult{}, models.Errorf(models.KindForbidden, "game is not in progress")
	}
	if g.Phase != models.PhaseSelection {
		return SelectResult{}, models.Errorf(models.KindForbidden, "a question is already open")
	}
	if g.CurrentTurnPlayerID != playerID {
		return SelectResult{}, models.Errorf(models.KindForbidden, "it is not your turn")
	}
	q, ok := g.Board.Find(questionID)
	if !ok {
		return SelectResult{}, models.Errorf(models.KindNotFound, "question %s not found", questionID)
	}
	if g.IsAnswered(questionID) {
		return SelectResult{}, models.Errorf(models.KindForbidden, "question already answered")
	}

	for _, p := range room.Players {
		p.BuzzerLocked = false
		p.BuzzerLockedUntil = nil
	}
	g.ClearSelection()
	if err := e.machine.ChangePhase(g, models.PhaseReading); err != nil {
		return SelectResult{}, err
	}
	g.SelectedQuestion = q
	g.PhaseEndsAt = e.deadline(rules.TimingFor(room.Config.TimerSpeed).Reading)

	res := SelectResult{Question: q, DailyDouble: q.DailyDouble, EndsAt: *g.PhaseEndsAt}
	if q.DailyDouble {
		score := 0
		if p, ok := room.Player(playerID); ok {
			score = p.Score
		}
		res.MinWager, res.MaxWager = rules.DailyDoubleLimits(score, q.Value)
	}
	return res, nil
}

// ActivateBuzzer opens the buzz race once reading ends.
func (e *Engine) ActivateBuzzer(room *models.Room) (time.Time, error) {
	g := &room.Game
	if g.Phase != models.PhaseReading || g.SelectedQuestion == nil {
		return time.Time{}, models.Errorf(models.KindForbidden, "buzzer can only open after reading")
	}
	if err := e.machine.ChangePhase(g, models.PhaseBuzzerActive); err != nil {
		return time.Time{}, err
	}
	g.BuzzedPlayerID = ""
	g.PhaseEndsAt = e.deadline(rules.TimingFor(room.Config.TimerSpeed).BuzzerWindow)
	return *g.PhaseEndsAt, nil
}

// ActivateDailyDouble hands a daily-double cell to the turn-holder. The wager window is untimed.
func (e *Engine) ActivateDailyDouble(room *models.Room, playerID string) (SelectResult, error) {
	g := &room.Game
	if g.Phase != models.PhaseReading || g.SelectedQuestion == nil || !g.SelectedQuestion.DailyDouble {
		return SelectResult{}, models.Errorf(models.KindForbidden, "no daily double is being read")
	}
	p, ok := room.Player(playerID)
	if !ok || g.CurrentTurnPlayerID != playerID {
		return SelectResult{}, models.Errorf(models.KindForbidden, "only the turn-holder plays the daily double")
	}
	if err := e.machine.ChangePhase(g, models.PhaseDailyDouble); err != nil {
		return SelectResult{}, err
	}
	g.DailyDoublePlayerID = playerID
	g.DailyDoubleWager = nil
	g.PhaseEndsAt = nil

	lo, hi := rules.DailyDoubleLimits(p.Score, g.SelectedQuestion.Value)
	return SelectResult{Question: g.SelectedQuestion, DailyDouble: true, MinWager: lo, MaxWager: hi}, nil
}

// SetBuzzWinner gives the race winner the answer window.
func (e *Engine) SetBuzzWinner(room *models.Room, playerID string) (time.Time, error) {
	g := &room.Game
	if g.Phase != models.PhaseBuzzerActive {
		return time.Time{}, models.Errorf(models.KindForbidden, "buzzer is not active")
	}
	p, ok := room.Player(playerID)
	if !ok {
		return time.Time{}, models.Errorf(models.KindNotFound, "player %s not found", playerID)
	}
	if err := e.machine.ChangePhase(g, models.PhaseAnswering); err != nil {
		return time.Time{}, err
	}
	g.BuzzedPlayerID = playerID
	g.PhaseEndsAt = e.deadline(rules.TimingFor(room.Config.TimerSpeed).AnswerWindow)
	p.BuzzerWins++
	return *g.PhaseEndsAt, nil
}

// SubmitDailyDoubleWager records the holder's single wager.
func (e *Engine) SubmitDailyDoubleWager(room *models.Room, playerID string, wager int) error {
	g := &room.Game
	if g.Phase != models.PhaseDailyDouble || g.SelectedQuestion == nil {
		return models.Errorf(models.KindForbidden, "no daily double in progress")
	}
	if g.DailyDoublePlayerID != playerID {
		return models.Errorf(models.KindForbidden, "only the daily double holder may wager")
	}
	if g.DailyDoubleWager != nil {
		return models.Errorf(models.KindForbidden, "wager already submitted")
	}
	p, ok := room.Player(playerID)
	if !ok {
		return models.Errorf(models.KindNotFound, "player %s not found", playerID)
	}
	if err := rules.ValidateDailyDoubleWager(wager, p.Score, g.SelectedQuestion.Value); err != nil {
		return err
	}
	g.DailyDoubleWager = &wager
	return nil
}

// StartDailyDoubleAnswerWindow times the holder's answer once a wager exists.
func (e *Engine) StartDailyDoubleAnswerWindow(room *models.Room) (time.Time, error) {
	g := &room.Game
	if g.Phase != models.PhaseDailyDouble {
		return time.Time{}, models.Errorf(models.KindForbidden, "no daily double in progress")
	}
	if g.DailyDoubleWager == nil {
		return time.Time{}, models.Errorf(models.KindForbidden, "wager has not been submitted")
	}
	g.PhaseEndsAt = e.deadline(rules.TimingFor(room.Config.TimerSpeed).DailyDoubleAnswer)
	return *g.PhaseEndsAt, nil
}

// SubmitAnswer grades text from the authorized player and applies the score change.
func (e *Engine) SubmitAnswer(room *models.Room, playerID, text string) (AnswerResult, error) {
	g := &room.Game
	q := g.SelectedQuestion
	if q == nil {
		return AnswerResult{}, models.Errorf(models.KindForbidden, "no question is open")
	}
	dailyDouble := false
	switch g.Phase {
	case models.PhaseAnswering:
		if g.BuzzedPlayerID != playerID {
			return AnswerResult{}, models.Errorf(models.KindForbidden, "you did not win the buzzer")
		}
	case models.PhaseDailyDouble:
		if g.DailyDoublePlayerID != playerID {
			return AnswerResult{}, models.Errorf(models.KindForbidden, "only the daily double holder may answer")
		}
		dailyDouble = true
	default:
		return AnswerResult{}, models.Errorf(models.KindForbidden, "answers are not being accepted")
	}
	p, ok := room.Player(playerID)
	if !ok {
		return AnswerResult{}, models.Errorf(models.KindNotFound, "player %s not found", playerID)
	}

	value := q.Value
	if dailyDouble {
		if g.DailyDoubleWager == nil {
			lo, _ := rules.DailyDoubleLimits(p.Score, q.Value)
			g.DailyDoubleWager = &lo
		}
		value = *g.DailyDoubleWager
	}

	text = strings.TrimSpace(text)
	correct := rules.MatchAnswer(text, q.Answer, e.matchMode)
	delta := value
	if !correct {
		delta = -value
	}
	p.RecordAnswer(correct, delta)
	if dailyDouble {
		if correct {
			p.DailyDoubleCorrect++
		} else {
			p.DailyDoubleWrong++
		}
	}
	g.QuestionAttempts = append(g.QuestionAttempts, models.QuestionAttempt{
		PlayerID:   playerID,
		PlayerName: p.Name,
		Answer:     text,
		Correct:    correct,
		ScoreDelta: delta,
		At:         e.clock.Now(),
	})

	res := AnswerResult{
		PlayerID:    playerID,
		Answer:      text,
		Correct:     correct,
		ScoreDelta:  delta,
		NewScore:    p.Score,
		DailyDouble: dailyDouble,
		QuestionID:  q.ID,
	}

	if dailyDouble || correct {
		next := g.CurrentTurnPlayerID
		if correct {
			next = playerID
		}
		res.Completed = true
		res.CorrectAnswer = q.Answer
		res.Attempts = append([]models.QuestionAttempt(nil), g.QuestionAttempts...)
		res.NextTurnPlayerID = next
		if err := e.complete(room); err != nil {
			return AnswerResult{}, err
		}
		g.CurrentTurnPlayerID = next
		return res, nil
	}

	if err := e.machine.ChangePhase(g, models.PhaseBuzzerActive); err != nil {
		return AnswerResult{}, err
	}
	g.BuzzedPlayerID = ""
	g.PhaseEndsAt = e.deadline(rules.TimingFor(room.Config.TimerSpeed).BuzzerWindow)
	res.BuzzerEndsAt = *g.PhaseEndsAt
	res.NextTurnPlayerID = g.CurrentTurnPlayerID
	return res, nil
}

// CompleteQuestionNoAnswer closes the open question without any score change.
func (e *Engine) CompleteQuestionNoAnswer(room *models.Room) (Completion, error) {
	g := &room.Game
	q := g.SelectedQuestion
	if q == nil {
		return Completion{}, models.Errorf(models.KindForbidden, "no question is open")
	}
	c := Completion{
		QuestionID:    q.ID,
		CorrectAnswer: q.Answer,
		Attempts:      append([]models.QuestionAttempt(nil), g.QuestionAttempts...),
	}
	if err := e.complete(room); err != nil {
		return Completion{}, err
	}
	return c, nil
}

func (e *Engine) complete(room *models.Room) error {
	g := &room.Game
	id := g.SelectedQuestion.ID
	if err := e.machine.ChangePhase(g, models.PhaseSelection); err != nil {
		return err
	}
	g.MarkAnswered(id)
	g.ClearSelection()
	return nil
}

// IsGameComplete reports whether every cell has been answered.
func (e *Engine) IsGameComplete(room *models.Room) bool {
	size := room.Game.Board.Size()
	return size > 0 && room.Game.AnsweredCount() >= size
}

// BuildGameResult ranks the players. finalCorrect may be nil when no final round was played.
func (e *Engine) BuildGameResult(room *models.Room, gameID string, finalCorrect map[string]bool) models.GameResult {
	started := e.clock.Now()
	if room.StartedAt != nil {
		started = *room.StartedAt
	}
	return models.NewGameResult(gameID, room.Code, started, e.clock.Now(), room.OrderedPlayers(), finalCorrect)
}

// Finish closes the game without a final round.
func (e *Engine) Finish(room *models.Room) {
	room.Status = models.StatusFinished
	room.Game.PhaseEndsAt = nil
}
