package orchestrator

import (
	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/network"
	"github.com/wfunc/quizserver/rules"
	"github.com/wfunc/quizserver/state"
)

// StartGame builds the board and begins play. Only the host may start.
func (o *Orchestrator) StartGame(connID string) error {
	return o.withRoom(connID, func(r *models.Room) error {
		if r.HostID != connID {
			return models.Errorf(models.KindForbidden, "only the host can start the game")
		}
		if err := o.engine.StartGame(r); err != nil {
			return err
		}
		o.arbiter.Reset(r.Code)
		o.bc.BroadcastToRoom(r.Code, network.MsgTypeGameStarted, network.GameStarted{
			Room:        o.dir.Snapshot(r),
			FirstPlayer: r.Game.CurrentTurnPlayerID,
		})
		o.emitState(r)
		logger.Log.Infof("session %s: game started with %d players", r.Code, r.ConnectedCount())
		return nil
	})
}

// SelectQuestion opens a cell and arms the reading timer.
func (o *Orchestrator) SelectQuestion(connID, questionID string) error {
	return o.withRoom(connID, func(r *models.Room) error {
		sel, err := o.engine.SelectQuestion(r, connID, questionID)
		if err != nil {
			return err
		}
		o.bc.BroadcastToRoom(r.Code, network.MsgTypeQuestionSelected, network.QuestionSelected{
			Question:        sel.Question.Public(),
			SelectingPlayer: connID,
		})
		o.bc.BroadcastToRoom(r.Code, network.MsgTypeReadingPhase, network.ReadingPhase{
			Question:    sel.Question.Prompt,
			Value:       sel.Question.Value,
			PhaseEndsAt: sel.EndsAt,
		})
		o.emitState(r)
		o.schedulePhase(r, sel.EndsAt, o.onReadingEnd)
		return nil
	})
}

func (o *Orchestrator) onReadingEnd(r *models.Room) {
	g := &r.Game
	if g.Phase != models.PhaseReading || g.SelectedQuestion == nil {
		return
	}
	if g.SelectedQuestion.DailyDouble {
		sel, err := o.engine.ActivateDailyDouble(r, g.CurrentTurnPlayerID)
		if err != nil {
			logger.Log.Warnf("session %s: daily double not activated: %v", r.Code, err)
			return
		}
		o.bc.BroadcastToRoom(r.Code, network.MsgTypeDailyDouble, network.DailyDouble{
			Question: sel.Question.Public(),
			PlayerID: g.DailyDoublePlayerID,
			MinWager: sel.MinWager,
			MaxWager: sel.MaxWager,
		})
		o.emitState(r)
		return
	}

	o.arbiter.PrepareForQuestion(r.Code)
	endsAt, err := o.engine.ActivateBuzzer(r)
	if err != nil {
		logger.Log.Warnf("session %s: buzzer not opened: %v", r.Code, err)
		return
	}
	o.bc.BroadcastToRoom(r.Code, network.MsgTypeBuzzerActive, network.BuzzerActive{PhaseEndsAt: endsAt})
	o.emitState(r)
	o.schedulePhase(r, endsAt, o.onBuzzerTimeout)
}

func (o *Orchestrator) onBuzzerTimeout(r *models.Room) {
	if r.Game.Phase != models.PhaseBuzzerActive {
		return
	}
	o.completeNoAnswer(r)
}

// BuzzIn enters connID into the open race. Losing a race is not an error; the caller just
// gets a fresh snapshot.
func (o *Orchestrator) BuzzIn(connID string) error {
	return o.withRoom(connID, func(r *models.Room) error {
		if r.Game.Phase != models.PhaseBuzzerActive {
			return models.Errorf(models.KindForbidden, "buzzer is not active")
		}
		p, ok := r.Player(connID)
		if !ok {
			return models.Errorf(models.KindNotFound, "player %s not found", connID)
		}
		if p.BuzzerLocked {
			o.emitState(r)
			return nil
		}
		p.BuzzerAttempts++
		winner, won := o.arbiter.HandleBuzz(r.Code, connID)
		o.metrics.ObserveBuzz(won)
		if !won {
			o.emitState(r)
			return nil
		}
		endsAt, err := o.engine.SetBuzzWinner(r, winner)
		if err != nil {
			return err
		}
		o.bc.BroadcastToRoom(r.Code, network.MsgTypePlayerBuzzed, network.PlayerBuzzed{
			PlayerID:    winner,
			PlayerName:  p.Name,
			PhaseEndsAt: endsAt,
		})
		o.emitState(r)
		o.schedulePhase(r, endsAt, o.onAnswerTimeout)
		return nil
	})
}

func (o *Orchestrator) onAnswerTimeout(r *models.Room) {
	if r.Game.Phase != models.PhaseAnswering {
		return
	}
	o.gradeTimeout(r, r.Game.BuzzedPlayerID)
}

func (o *Orchestrator) onDailyDoubleTimeout(r *models.Room) {
	if r.Game.Phase != models.PhaseDailyDouble {
		return
	}
	o.gradeTimeout(r, r.Game.DailyDoublePlayerID)
}

// gradeTimeout grades an empty answer for the player who ran out of time.
func (o *Orchestrator) gradeTimeout(r *models.Room, playerID string) {
	if playerID == "" {
		o.completeNoAnswer(r)
		return
	}
	res, err := o.engine.SubmitAnswer(r, playerID, "")
	if err != nil {
		logger.Log.Warnf("session %s: timeout for %s not graded: %v", r.Code, playerID, err)
		o.completeNoAnswer(r)
		return
	}
	o.afterAnswer(r, res)
}

// SubmitAnswer grades an answer from the buzz winner or the daily-double holder.
func (o *Orchestrator) SubmitAnswer(connID, answer string) error {
	return o.withRoom(connID, func(r *models.Room) error {
		res, err := o.engine.SubmitAnswer(r, connID, answer)
		if err != nil {
			return err
		}
		o.afterAnswer(r, res)
		return nil
	})
}

// afterAnswer announces a graded answer. A wrong regular answer is shown only to the
// answerer and reopens the race without them.
func (o *Orchestrator) afterAnswer(r *models.Room, res state.AnswerResult) {
	payload := network.AnswerResult{
		PlayerID: res.PlayerID,
		Result: network.AnswerOutcome{
			Answer:      res.Answer,
			Correct:     res.Correct,
			ScoreDelta:  res.ScoreDelta,
			NewScore:    res.NewScore,
			DailyDouble: res.DailyDouble,
		},
		NextTurnPlayerID: res.NextTurnPlayerID,
	}
	if !res.Correct && !res.DailyDouble && !res.Completed {
		o.bc.SendTo(res.PlayerID, network.MsgTypeAnswerResult, payload)
	} else {
		o.bc.BroadcastToRoom(r.Code, network.MsgTypeAnswerResult, payload)
	}

	if res.Completed {
		o.timers.Cancel(phaseKey(r.Code))
		o.bc.BroadcastToRoom(r.Code, network.MsgTypeQuestionComplete, network.QuestionComplete{
			QuestionID:    res.QuestionID,
			CorrectAnswer: res.CorrectAnswer,
			Attempts:      res.Attempts,
		})
		o.emitState(r)
		o.maybeCompleteGame(r)
		return
	}

	o.arbiter.UnlockBuzzer(r.Code)
	until := o.arbiter.LockPlayer(r.Code, res.PlayerID, res.BuzzerEndsAt.Sub(o.clock.Now()))
	if p, ok := r.Player(res.PlayerID); ok {
		p.BuzzerLocked = true
		p.BuzzerLockedUntil = &until
	}

	if !o.hasEligibleBuzzer(r) {
		if o.cfg.NoBuzzerRevealDelay <= 0 {
			o.completeNoAnswer(r)
			return
		}
		o.emitState(r)
		o.schedulePhase(r, o.clock.Now().Add(o.cfg.NoBuzzerRevealDelay), o.onBuzzerTimeout)
		return
	}
	o.bc.BroadcastToRoom(r.Code, network.MsgTypeBuzzerActive, network.BuzzerActive{PhaseEndsAt: res.BuzzerEndsAt})
	o.emitState(r)
	o.schedulePhase(r, res.BuzzerEndsAt, o.onBuzzerTimeout)
}

func (o *Orchestrator) hasEligibleBuzzer(r *models.Room) bool {
	for _, p := range r.ConnectedPlayers() {
		if !p.BuzzerLocked && !o.arbiter.IsPlayerLocked(r.Code, p.ID) {
			return true
		}
	}
	return false
}

// SubmitWager records the daily-double wager and opens the timed answer window.
func (o *Orchestrator) SubmitWager(connID string, amount float64) error {
	wager, err := rules.WagerFromFloat(amount)
	if err != nil {
		return err
	}
	return o.withRoom(connID, func(r *models.Room) error {
		if err := o.engine.SubmitDailyDoubleWager(r, connID, wager); err != nil {
			return err
		}
		endsAt, err := o.engine.StartDailyDoubleAnswerWindow(r)
		if err != nil {
			return err
		}
		score := 0
		if p, ok := r.Player(connID); ok {
			score = p.Score
		}
		q := r.Game.SelectedQuestion
		lo, hi := rules.DailyDoubleLimits(score, q.Value)
		o.bc.BroadcastToRoom(r.Code, network.MsgTypeDailyDouble, network.DailyDouble{
			Question:    q.Public(),
			PlayerID:    connID,
			MinWager:    lo,
			MaxWager:    hi,
			Wager:       &wager,
			PhaseEndsAt: &endsAt,
		})
		o.emitState(r)
		o.schedulePhase(r, endsAt, o.onDailyDoubleTimeout)
		return nil
	})
}

// completeNoAnswer closes the open question without credit.
func (o *Orchestrator) completeNoAnswer(r *models.Room) {
	c, err := o.engine.CompleteQuestionNoAnswer(r)
	if err != nil {
		logger.Log.Warnf("session %s: question not completed: %v", r.Code, err)
		return
	}
	o.timers.Cancel(phaseKey(r.Code))
	o.bc.BroadcastToRoom(r.Code, network.MsgTypeQuestionComplete, network.QuestionComplete{
		QuestionID:    c.QuestionID,
		CorrectAnswer: c.CorrectAnswer,
		Attempts:      c.Attempts,
	})
	o.emitState(r)
	o.maybeCompleteGame(r)
}

// maybeCompleteGame moves on once every cell is answered: into the final round when it is
// enabled, otherwise straight to game over.
func (o *Orchestrator) maybeCompleteGame(r *models.Room) bool {
	if !o.engine.IsGameComplete(r) {
		return false
	}
	if r.Config.FinalRoundEnabled {
		o.startFinalRound(r)
		return true
	}
	o.finishGame(r, "board")
	o.emitState(r)
	return true
}
