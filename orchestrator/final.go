package orchestrator

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/network"
	"github.com/wfunc/quizserver/rules"
)

func (o *Orchestrator) startFinalRound(r *models.Room) {
	start, err := o.final.Start(r)
	if err != nil {
		logger.Log.Errorf("session %s: final round not started, finishing: %v", r.Code, err)
		o.finishGame(r, "board")
		o.emitState(r)
		return
	}

	limits := make([]network.FinalWagerLimit, 0, len(start.Limits))
	for _, p := range r.OrderedPlayers() {
		l := start.Limits[p.ID]
		limits = append(limits, network.FinalWagerLimit{
			PlayerID:     p.ID,
			MinWager:     l.Min,
			MaxWager:     l.Max,
			CurrentScore: p.Score,
		})
	}
	o.bc.BroadcastToRoom(r.Code, network.MsgTypeFinalStart, network.FinalStart{Category: start.Category})
	o.bc.BroadcastToRoom(r.Code, network.MsgTypeFinalWagerPhase, network.FinalWagerPhase{
		Category:    start.Category,
		PhaseEndsAt: start.EndsAt,
		Limits:      limits,
	})
	o.emitState(r)
	o.schedulePhase(r, start.EndsAt, o.startFinalAnswer)
}

func (o *Orchestrator) startFinalAnswer(r *models.Room) {
	endsAt, err := o.final.StartAnswerPhase(r)
	if err != nil {
		return
	}
	q := r.Game.Final.Question
	o.bc.BroadcastToRoom(r.Code, network.MsgTypeFinalAnswerPhase, network.FinalAnswerPhase{
		Category:    q.Category,
		Question:    q.Prompt,
		PhaseEndsAt: endsAt,
	})
	o.emitState(r)
	o.schedulePhase(r, endsAt, o.finalizeFinal)
}

func (o *Orchestrator) finalizeFinal(r *models.Room) {
	out, err := o.final.Finalize(r, uuid.NewString())
	if err != nil {
		return
	}
	o.timers.Cancel(phaseKey(r.Code))
	o.bc.BroadcastToRoom(r.Code, network.MsgTypeFinalReveal, network.FinalReveal{
		CorrectAnswer: out.CorrectAnswer,
		Reveals:       out.Reveals,
		WinnerID:      out.WinnerID,
	})
	o.emitState(r)
	o.announceGameOver(r, out.Result, "final")
}

// SubmitFinalWager stores a final-round wager. The answer phase opens early once every
// connected player has wagered.
func (o *Orchestrator) SubmitFinalWager(connID string, amount float64) error {
	wager, err := rules.WagerFromFloat(amount)
	if err != nil {
		return err
	}
	return o.withRoom(connID, func(r *models.Room) error {
		all, err := o.final.SubmitWager(r, connID, wager)
		if err != nil {
			return err
		}
		o.emitState(r)
		if all {
			o.startFinalAnswer(r)
		}
		return nil
	})
}

// SubmitFinalAnswer stores a final-round answer. Grading happens early once every connected
// player has answered.
func (o *Orchestrator) SubmitFinalAnswer(connID, answer string) error {
	return o.withRoom(connID, func(r *models.Room) error {
		all, err := o.final.SubmitAnswer(r, connID, answer)
		if err != nil {
			return err
		}
		o.emitState(r)
		if all {
			o.finalizeFinal(r)
		}
		return nil
	})
}

// finishGame ends the game without grading a final round.
func (o *Orchestrator) finishGame(r *models.Room, ending string) {
	if r.Status == models.StatusFinished {
		return
	}
	if r.Status == models.StatusFinalRound {
		o.final.Clear(r)
	}
	result := o.engine.BuildGameResult(r, uuid.NewString(), nil)
	o.engine.Finish(r)
	o.timers.Cancel(phaseKey(r.Code))
	o.announceGameOver(r, result, ending)
}

// announceGameOver stores and publishes result off the session lock, then sends game over
// and pushes fresh stats to every participant.
func (o *Orchestrator) announceGameOver(r *models.Room, result models.GameResult, ending string) {
	o.metrics.IncGamesCompleted(ending)
	logger.Log.Infof("session %s: game %s over (%s)", r.Code, result.GameID, ending)

	code := r.Code
	players := r.OrderedPlayers()
	views := make([]models.PlayerView, 0, len(players))
	for _, p := range players {
		views = append(views, p.View())
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].Score > views[j].Score })
	var winner *models.PlayerView
	if w, ok := result.Winner(); ok {
		if p, ok := r.Player(w.PlayerID); ok {
			v := p.View()
			winner = &v
		}
	}
	userIDs := make([]string, 0, len(result.Players))
	for _, pr := range result.Players {
		userIDs = append(userIDs, pr.UserID)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.StatsTimeout)
		defer cancel()

		updated := true
		if err := o.stats.RecordGameCompletion(ctx, result); err != nil {
			updated = false
			o.metrics.IncStatsWriteFailures()
			logger.Log.Errorf("session %s: stats for game %s not stored: %v", code, result.GameID, err)
		}
		if o.publisher != nil {
			if err := o.publisher.PublishGameResult(ctx, result); err != nil {
				o.metrics.IncEventPublishErrors()
				logger.Log.Warnf("session %s: game %s not published: %v", code, result.GameID, err)
			}
		}

		o.bc.BroadcastToRoom(code, network.MsgTypeGameOver, network.GameOver{
			Winner:       winner,
			AllPlayers:   views,
			GameResult:   result,
			StatsUpdated: updated,
		})
		if !updated {
			return
		}
		for _, userID := range userIDs {
			stats, err := o.stats.GetUserStats(ctx, userID)
			if err != nil {
				continue
			}
			o.bc.BroadcastToUsers([]string{userID}, network.MsgTypeUserStats, network.UserStatsPayload{Stats: stats})
		}
	}()
}
