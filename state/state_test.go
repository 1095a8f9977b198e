package state

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/rules"
)

// MockContent is a test double for the ContentProvider interface.
type MockContent struct {
	DailyDoubles map[string]bool
	Err          error
	Calls        int
}

func (m *MockContent) GenerateBoard(cfg models.SessionConfig) (models.Board, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	board := make(models.Board, 0, rules.CategoriesFor(cfg.QuestionCount))
	for c := 0; c < rules.CategoriesFor(cfg.QuestionCount); c++ {
		column := make([]*models.Question, 0, len(rules.Values))
		for _, v := range rules.Values {
			id := fmt.Sprintf("c%d_%d", c, v)
			column = append(column, &models.Question{
				ID:          id,
				Category:    fmt.Sprintf("Category %d", c),
				Value:       v,
				Prompt:      "prompt " + id,
				Answer:      "answer " + id,
				DailyDouble: m.DailyDoubles[id],
			})
		}
		board = append(board, column)
	}
	return board, nil
}

func newTestRoom(clock clockwork.Clock, ids ...string) *models.Room {
	room := models.NewRoom("room-1", "ABCD", rules.DefaultConfig(), clock.Now())
	for _, id := range ids {
		room.AddPlayer(&models.Player{ID: id, UserID: "user-" + id, Name: id, Connected: true})
	}
	room.HostID = ids[0]
	return room
}

func newTestEngine(clock clockwork.Clock, content ContentProvider) *Engine {
	return NewEngine(clock, content, WithRandom(func(int) int { return 0 }))
}

func startedRoom(t *testing.T, e *Engine, clock clockwork.Clock) *models.Room {
	t.Helper()
	room := newTestRoom(clock, "a", "b")
	if err := e.StartGame(room); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	return room
}

func TestPhaseMachine_Transitions(t *testing.T) {
	m := NewPhaseMachine()
	g := &models.GameState{Phase: models.PhaseSelection}

	if err := m.ChangePhase(g, models.PhaseAnswering); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Fatalf("expected ErrTransitionNotAllowed, got %v", err)
	}
	if !errors.Is(ErrTransitionNotAllowed, models.ErrForbidden) {
		t.Error("illegal transitions should be Forbidden errors")
	}
	if err := m.ChangePhase(g, models.PhaseReading); err != nil {
		t.Fatalf("selection -> reading should be allowed: %v", err)
	}
	if g.Phase != models.PhaseReading {
		t.Errorf("expected phase reading, got %s", g.Phase)
	}
}

func TestEngine_StartGame_InsufficientPlayers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, &MockContent{})
	room := newTestRoom(clock, "a", "b")
	room.Players["b"].Connected = false

	if err := e.StartGame(room); !errors.Is(err, models.ErrInsufficientPlayers) {
		t.Fatalf("expected InsufficientPlayers, got %v", err)
	}
	if room.Status != models.StatusLobby {
		t.Error("failed start must not change status")
	}
}

func TestEngine_StartGame_TwoPlayers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := NewEngine(clock, &MockContent{})
	room := newTestRoom(clock, "a", "b")
	room.Players["a"].Score = 900

	if err := e.StartGame(room); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	if room.Status != models.StatusPlaying || room.Game.Phase != models.PhaseSelection {
		t.Fatalf("unexpected status/phase %s/%s", room.Status, room.Game.Phase)
	}
	if room.Players["a"].Score != 0 {
		t.Error("scores should reset on start")
	}
	turn := room.Game.CurrentTurnPlayerID
	if turn != "a" && turn != "b" {
		t.Errorf("turn holder %q is not a connected player", turn)
	}
	if room.Game.Board.Size() != 25 {
		t.Errorf("expected 25 cells, got %d", room.Game.Board.Size())
	}
	if err := e.StartGame(room); !errors.Is(err, models.ErrAlreadyInProgress) {
		t.Errorf("expected AlreadyInProgress on second start, got %v", err)
	}
}

func TestEngine_StartGame_BoardFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, &MockContent{Err: errors.New("pack missing")})
	room := newTestRoom(clock, "a", "b")

	if err := e.StartGame(room); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Fatalf("expected InvalidConfiguration, got %v", err)
	}
}

func TestEngine_RegularQuestion_CorrectBuzz(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, &MockContent{})
	room := startedRoom(t, e, clock)

	sel, err := e.SelectQuestion(room, "a", "c0_400")
	if err != nil {
		t.Fatalf("SelectQuestion failed: %v", err)
	}
	if sel.DailyDouble {
		t.Fatal("c0_400 is not a daily double")
	}
	if !sel.EndsAt.Equal(clock.Now().Add(5 * time.Second)) {
		t.Errorf("reading should end after 5s, got %v", sel.EndsAt)
	}
	if _, err := e.ActivateBuzzer(room); err != nil {
		t.Fatalf("ActivateBuzzer failed: %v", err)
	}
	if _, err := e.SetBuzzWinner(room, "b"); err != nil {
		t.Fatalf("SetBuzzWinner failed: %v", err)
	}

	res, err := e.SubmitAnswer(room, "b", "  Answer C0_400! ")
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if !res.Correct || !res.Completed {
		t.Fatalf("expected a correct completed answer, got %+v", res)
	}
	if room.Players["b"].Score != 400 || room.Players["a"].Score != 0 {
		t.Errorf("unexpected scores a=%d b=%d", room.Players["a"].Score, room.Players["b"].Score)
	}
	if room.Game.CurrentTurnPlayerID != "b" {
		t.Errorf("turn should pass to b, got %s", room.Game.CurrentTurnPlayerID)
	}
	if !room.Game.IsAnswered("c0_400") {
		t.Error("cell should be answered")
	}
	if room.Game.Phase != models.PhaseSelection || room.Game.SelectedQuestion != nil {
		t.Error("game should be back in selection with no open question")
	}
	if room.Players["b"].BuzzerWins != 1 || room.Players["b"].CorrectAnswers != 1 {
		t.Error("winner counters were not updated")
	}
}

func TestEngine_SelectQuestion_Rejections(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, &MockContent{})
	room := startedRoom(t, e, clock)

	if _, err := e.SelectQuestion(room, "b", "c0_200"); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("out of turn select should be Forbidden, got %v", err)
	}
	if _, err := e.SelectQuestion(room, "a", "nope"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown question should be NotFound, got %v", err)
	}

	if _, err := e.SelectQuestion(room, "a", "c0_200"); err != nil {
		t.Fatalf("SelectQuestion failed: %v", err)
	}
	if _, err := e.CompleteQuestionNoAnswer(room); err != nil {
		t.Fatalf("CompleteQuestionNoAnswer failed: %v", err)
	}
	if _, err := e.SelectQuestion(room, "a", "c0_200"); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("answered question should be Forbidden, got %v", err)
	}
}

func TestEngine_WrongRegularAnswerReopensBuzzer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, &MockContent{})
	room := startedRoom(t, e, clock)

	e.SelectQuestion(room, "a", "c1_600")
	e.ActivateBuzzer(room)
	e.SetBuzzWinner(room, "b")

	if _, err := e.SubmitAnswer(room, "a", "whatever"); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("non-buzzed player should be Forbidden, got %v", err)
	}

	clock.Advance(time.Second)
	res, err := e.SubmitAnswer(room, "b", "wrong")
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if res.Correct || res.Completed {
		t.Fatalf("expected an incorrect open answer, got %+v", res)
	}
	if room.Players["b"].Score != -600 {
		t.Errorf("expected -600, got %d", room.Players["b"].Score)
	}
	if room.Game.Phase != models.PhaseBuzzerActive || room.Game.BuzzedPlayerID != "" {
		t.Errorf("buzzer should reopen, phase=%s buzzed=%q", room.Game.Phase, room.Game.BuzzedPlayerID)
	}
	if !res.BuzzerEndsAt.Equal(clock.Now().Add(15 * time.Second)) {
		t.Errorf("reopened buzzer should run a fresh window, got %v", res.BuzzerEndsAt)
	}
	if room.Game.IsAnswered("c1_600") {
		t.Error("question should still be open")
	}
	if len(room.Game.QuestionAttempts) != 1 {
		t.Errorf("expected one attempt, got %d", len(room.Game.QuestionAttempts))
	}
}

func TestEngine_DailyDoubleWrongAnswer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, &MockContent{DailyDoubles: map[string]bool{"c2_600": true}})
	room := startedRoom(t, e, clock)

	sel, err := e.SelectQuestion(room, "a", "c2_600")
	if err != nil {
		t.Fatalf("SelectQuestion failed: %v", err)
	}
	if !sel.DailyDouble || sel.MinWager != 200 || sel.MaxWager != 600 {
		t.Fatalf("unexpected daily double bounds %+v", sel)
	}
	dd, err := e.ActivateDailyDouble(room, "a")
	if err != nil {
		t.Fatalf("ActivateDailyDouble failed: %v", err)
	}
	if room.Game.PhaseEndsAt != nil {
		t.Error("daily double wager window should be untimed")
	}
	if dd.MaxWager != 600 {
		t.Errorf("expected max wager 600, got %d", dd.MaxWager)
	}

	for _, w := range []int{199, 601} {
		if err := e.SubmitDailyDoubleWager(room, "a", w); !errors.Is(err, models.ErrInvalidWager) {
			t.Errorf("wager %d should be rejected, got %v", w, err)
		}
	}
	if err := e.SubmitDailyDoubleWager(room, "b", 300); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("non-holder wager should be Forbidden, got %v", err)
	}
	if err := e.SubmitDailyDoubleWager(room, "a", 600); err != nil {
		t.Fatalf("wager 600 should be accepted: %v", err)
	}
	if err := e.SubmitDailyDoubleWager(room, "a", 300); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("second wager should be Forbidden, got %v", err)
	}
	if _, err := e.StartDailyDoubleAnswerWindow(room); err != nil {
		t.Fatalf("StartDailyDoubleAnswerWindow failed: %v", err)
	}

	res, err := e.SubmitAnswer(room, "a", "wrong")
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if !res.Completed || res.Correct {
		t.Fatalf("expected a completed wrong answer, got %+v", res)
	}
	if room.Players["a"].Score != -600 {
		t.Errorf("expected -600, got %d", room.Players["a"].Score)
	}
	if room.Game.CurrentTurnPlayerID != "a" {
		t.Errorf("turn should return to a, got %s", room.Game.CurrentTurnPlayerID)
	}
	if !room.Game.IsAnswered("c2_600") {
		t.Error("daily double cell should be answered")
	}
	if room.Players["a"].DailyDoubleWrong != 1 {
		t.Error("daily double wrong counter not updated")
	}
}

func TestEngine_DailyDoubleAnswerWithoutWagerUsesMinimum(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, &MockContent{DailyDoubles: map[string]bool{"c0_800": true}})
	room := startedRoom(t, e, clock)

	e.SelectQuestion(room, "a", "c0_800")
	e.ActivateDailyDouble(room, "a")
	if _, err := e.StartDailyDoubleAnswerWindow(room); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("answer window without a wager should be Forbidden, got %v", err)
	}

	res, err := e.SubmitAnswer(room, "a", "answer c0_800")
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if !res.Correct || res.ScoreDelta != 200 {
		t.Fatalf("expected +200 from the default wager, got %+v", res)
	}
}

func TestEngine_CompleteQuestionNoAnswerKeepsScores(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, &MockContent{})
	room := startedRoom(t, e, clock)

	e.SelectQuestion(room, "a", "c3_1000")
	e.ActivateBuzzer(room)
	c, err := e.CompleteQuestionNoAnswer(room)
	if err != nil {
		t.Fatalf("CompleteQuestionNoAnswer failed: %v", err)
	}
	if c.QuestionID != "c3_1000" || c.CorrectAnswer != "answer c3_1000" {
		t.Errorf("unexpected completion %+v", c)
	}
	if room.Players["a"].Score != 0 || room.Players["b"].Score != 0 {
		t.Error("no-answer completion must not change scores")
	}
	if room.Game.CurrentTurnPlayerID != "a" {
		t.Error("turn should stay with the selector")
	}
}

func TestEngine_IsGameCompleteAndResult(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, &MockContent{})
	room := newTestRoom(clock, "a", "b", "c")
	if err := e.StartGame(room); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}

	answered := 0
	for _, column := range room.Game.Board {
		for _, q := range column {
			if e.IsGameComplete(room) {
				t.Fatal("game completed too early")
			}
			if _, err := e.SelectQuestion(room, room.Game.CurrentTurnPlayerID, q.ID); err != nil {
				t.Fatalf("SelectQuestion(%s) failed: %v", q.ID, err)
			}
			if _, err := e.CompleteQuestionNoAnswer(room); err != nil {
				t.Fatalf("CompleteQuestionNoAnswer failed: %v", err)
			}
			answered++
			if room.Game.AnsweredCount() != answered {
				t.Fatalf("answered set should grow by one, got %d want %d", room.Game.AnsweredCount(), answered)
			}
		}
	}
	if !e.IsGameComplete(room) {
		t.Fatal("all cells answered, game should be complete")
	}

	room.Players["a"].Score = 400
	room.Players["b"].Score = 1200
	room.Players["c"].Score = 400
	result := e.BuildGameResult(room, "game-1", nil)
	if len(result.Players) != 3 {
		t.Fatalf("expected 3 result lines, got %d", len(result.Players))
	}
	if result.Players[0].PlayerID != "b" || result.Players[0].Placement != 1 {
		t.Errorf("b should place first, got %+v", result.Players[0])
	}
	if result.Players[1].PlayerID != "a" || result.Players[2].PlayerID != "c" {
		t.Error("ties should keep join order")
	}
}
