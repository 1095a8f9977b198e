package room

import (
	"sort"

	"github.com/wfunc/quizserver/models"
)

// Snapshot projects room into its client-visible form. Answers never appear; a cell's
// daily-double flag is shown only once the cell has been answered.
func (d *Directory) Snapshot(room *models.Room) models.SessionSnapshot {
	players := make([]models.PlayerView, 0, len(room.Players))
	for _, p := range room.OrderedPlayers() {
		players = append(players, p.View())
	}

	g := &room.Game
	view := models.GameView{
		Board:               boardView(g),
		Phase:               g.Phase,
		CurrentTurnPlayerID: models.Optional(g.CurrentTurnPlayerID),
		SelectedQuestion:    g.SelectedQuestion.Public(),
		PhaseEndsAt:         g.PhaseEndsAt,
		AnsweredQuestionIDs: g.AnsweredIDs(),
		BuzzedPlayerID:      models.Optional(g.BuzzedPlayerID),
		DailyDoubleWager:    g.DailyDoubleWager,
		DailyDoublePlayerID: models.Optional(g.DailyDoublePlayerID),
		QuestionAttempts:    append([]models.QuestionAttempt(nil), g.QuestionAttempts...),
		Final:               finalView(g),
	}
	if view.AnsweredQuestionIDs == nil {
		view.AnsweredQuestionIDs = []string{}
	}

	return models.SessionSnapshot{
		Code:      room.Code,
		HostID:    models.Optional(room.HostID),
		Status:    room.Status,
		Config:    room.Config,
		Players:   players,
		Game:      view,
		CreatedAt: room.CreatedAt,
		StartedAt: room.StartedAt,
	}
}

func boardView(g *models.GameState) []models.CategoryView {
	categories := make([]models.CategoryView, 0, len(g.Board))
	for _, column := range g.Board {
		cv := models.CategoryView{Cells: make([]models.CellView, 0, len(column))}
		if len(column) > 0 {
			cv.Name = column[0].Category
		}
		for _, q := range column {
			answered := g.IsAnswered(q.ID)
			cv.Cells = append(cv.Cells, models.CellView{
				ID:          q.ID,
				Value:       q.Value,
				Answered:    answered,
				DailyDouble: answered && q.DailyDouble,
			})
		}
		categories = append(categories, cv)
	}
	return categories
}

func finalView(g *models.GameState) *models.FinalView {
	f := g.Final
	if f == nil || f.Question == nil {
		return nil
	}
	view := &models.FinalView{
		Category: f.Question.Category,
		Wagered:  make([]string, 0, len(f.Wagers)),
		Answered: make([]string, 0, len(f.Answers)),
	}
	for id := range f.Wagers {
		view.Wagered = append(view.Wagered, id)
	}
	for id := range f.Answers {
		view.Answered = append(view.Answered, id)
	}
	sort.Strings(view.Wagered)
	sort.Strings(view.Answered)
	if g.Phase == models.PhaseFinalAnswer || g.Phase == models.PhaseFinalReveal {
		view.Question = &f.Question.Prompt
	}
	if g.Phase == models.PhaseFinalReveal {
		view.Reveals = f.Reveals
		view.Answer = &f.Question.Answer
	}
	return view
}
