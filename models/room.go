// models/room.go
package models

import (
	"sync"
	"time"
)

// Player is a seat in a session. ID is the current connection id and changes on reconnect;
// UserID is stable across connections.
type Player struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	Name              string     `json:"name"`
	Score             int        `json:"score"`
	IsHost            bool       `json:"isHost"`
	Connected         bool       `json:"connected"`
	BuzzerLocked      bool       `json:"buzzerLocked"`
	BuzzerLockedUntil *time.Time `json:"buzzerLockedUntil,omitempty"`
	ReconnectDeadline *time.Time `json:"reconnectDeadline,omitempty"`

	CorrectAnswers     int `json:"correctAnswers"`
	WrongAnswers       int `json:"wrongAnswers"`
	BuzzerAttempts     int `json:"buzzerAttempts"`
	BuzzerWins         int `json:"buzzerWins"`
	DailyDoubleCorrect int `json:"dailyDoubleCorrect"`
	DailyDoubleWrong   int `json:"dailyDoubleWrong"`
	Streak             int `json:"streak"`
	BestStreak         int `json:"bestStreak"`
}

// ResetForGame zeroes score, counters and locks.
func (p *Player) ResetForGame() {
	p.Score = 0
	p.BuzzerLocked = false
	p.BuzzerLockedUntil = nil
	p.CorrectAnswers = 0
	p.WrongAnswers = 0
	p.BuzzerAttempts = 0
	p.BuzzerWins = 0
	p.DailyDoubleCorrect = 0
	p.DailyDoubleWrong = 0
	p.Streak = 0
	p.BestStreak = 0
}

// RecordAnswer applies a graded answer to the player's score and counters.
func (p *Player) RecordAnswer(correct bool, delta int) {
	p.Score += delta
	if correct {
		p.CorrectAnswers++
		p.Streak++
		if p.Streak > p.BestStreak {
			p.BestStreak = p.Streak
		}
		return
	}
	p.WrongAnswers++
	p.Streak = 0
}

// View is the client-visible projection of the seat.
func (p *Player) View() PlayerView {
	return PlayerView{
		ID:                p.ID,
		UserID:            p.UserID,
		Name:              p.Name,
		Score:             p.Score,
		IsHost:            p.IsHost,
		Connected:         p.Connected,
		BuzzerLocked:      p.BuzzerLocked,
		BuzzerLockedUntil: p.BuzzerLockedUntil,
		ReconnectDeadline: p.ReconnectDeadline,
	}
}

// Room is one live session. Callers serialize access with Lock/Unlock; every mutation
// and every read that must be consistent happens while holding it.
type Room struct {
	mu sync.Mutex

	ID           string
	Code         string
	HostID       string
	Players      map[string]*Player
	Config       SessionConfig
	Status       Status
	Game         GameState
	CreatedAt    time.Time
	StartedAt    *time.Time
	LastActivity time.Time

	order []string
}

func NewRoom(id, code string, cfg SessionConfig, now time.Time) *Room {
	return &Room{
		ID:           id,
		Code:         code,
		Players:      make(map[string]*Player),
		Config:       cfg,
		Status:       StatusLobby,
		CreatedAt:    now,
		LastActivity: now,
	}
}

func (r *Room) Lock()   { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

// AddPlayer seats p at the end of the join order.
func (r *Room) AddPlayer(p *Player) {
	if _, exists := r.Players[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.Players[p.ID] = p
}

// RemovePlayer unseats the player with id and returns it.
func (r *Room) RemovePlayer(id string) (*Player, bool) {
	p, ok := r.Players[id]
	if !ok {
		return nil, false
	}
	delete(r.Players, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p, true
}

// ReplacePlayerID rekeys a seat from oldID to newID and rewrites every pointer to it.
func (r *Room) ReplacePlayerID(oldID, newID string) {
	p, ok := r.Players[oldID]
	if !ok || oldID == newID {
		return
	}
	delete(r.Players, oldID)
	p.ID = newID
	r.Players[newID] = p
	for i, pid := range r.order {
		if pid == oldID {
			r.order[i] = newID
		}
	}
	swap := func(ptr *string) {
		if *ptr == oldID {
			*ptr = newID
		}
	}
	swap(&r.HostID)
	swap(&r.Game.CurrentTurnPlayerID)
	swap(&r.Game.BuzzedPlayerID)
	swap(&r.Game.DailyDoublePlayerID)
	for i := range r.Game.QuestionAttempts {
		swap(&r.Game.QuestionAttempts[i].PlayerID)
	}
	if f := r.Game.Final; f != nil {
		if w, ok := f.Wagers[oldID]; ok {
			delete(f.Wagers, oldID)
			f.Wagers[newID] = w
		}
		if a, ok := f.Answers[oldID]; ok {
			delete(f.Answers, oldID)
			f.Answers[newID] = a
		}
	}
}

func (r *Room) Player(id string) (*Player, bool) {
	p, ok := r.Players[id]
	return p, ok
}

// PlayerByUserID finds the seat held by a stable user id.
func (r *Room) PlayerByUserID(userID string) (*Player, bool) {
	for _, id := range r.order {
		if p := r.Players[id]; p.UserID == userID {
			return p, true
		}
	}
	return nil, false
}

// OrderedPlayers returns seats in join order.
func (r *Room) OrderedPlayers() []*Player {
	players := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		players = append(players, r.Players[id])
	}
	return players
}

// ConnectedPlayers returns connected seats in join order.
func (r *Room) ConnectedPlayers() []*Player {
	players := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		if p := r.Players[id]; p.Connected {
			players = append(players, p)
		}
	}
	return players
}

func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// Touch records activity for idle cleanup.
func (r *Room) Touch(now time.Time) {
	r.LastActivity = now
}

// InGame reports whether a game is running.
func (r *Room) InGame() bool {
	return r.Status == StatusPlaying || r.Status == StatusFinalRound
}
