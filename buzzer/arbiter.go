// Package buzzer decides buzz races: the first valid call into the arbiter wins.
package buzzer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wfunc/quizserver/rules"
)

// race is the per-session buzz state for the current cell.
type race struct {
	locked   bool
	lockouts map[string]time.Time   // playerID -> lockout expiry
	attempts map[string][]time.Time // playerID -> attempts in the last second
}

func newRace() *race {
	return &race{
		lockouts: make(map[string]time.Time),
		attempts: make(map[string][]time.Time),
	}
}

// Arbiter holds one race per session code. It is safe for concurrent use.
type Arbiter struct {
	clock     clockwork.Clock
	maxPerSec int
	races     map[string]*race
	mutex     sync.Mutex
}

func NewArbiter(clock clockwork.Clock) *Arbiter {
	return &Arbiter{
		clock:     clock,
		maxPerSec: rules.MaxBuzzAttemptsPerSecond,
		races:     make(map[string]*race),
	}
}

func (a *Arbiter) raceFor(code string) *race {
	r, ok := a.races[code]
	if !ok {
		r = newRace()
		a.races[code] = r
	}
	return r
}

// PrepareForQuestion resets the lock, the lockouts and the rate counters for a fresh cell.
func (a *Arbiter) PrepareForQuestion(code string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.races[code] = newRace()
}

// HandleBuzz returns playerID and locks the race if the buzz wins. It returns false when the
// race is already locked, the player is locked out, or the player exceeded the rate limit.
func (a *Arbiter) HandleBuzz(code, playerID string) (string, bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	r := a.raceFor(code)
	now := a.clock.Now()

	window := r.attempts[playerID][:0]
	for _, at := range r.attempts[playerID] {
		if now.Sub(at) < time.Second {
			window = append(window, at)
		}
	}
	r.attempts[playerID] = window

	if r.locked {
		return "", false
	}
	if until, ok := r.lockouts[playerID]; ok {
		if now.Before(until) {
			return "", false
		}
		delete(r.lockouts, playerID)
	}
	if len(window) >= a.maxPerSec {
		return "", false
	}
	r.attempts[playerID] = append(window, now)
	r.locked = true
	return playerID, true
}

// LockPlayer excludes playerID from the race for d and returns the expiry.
func (a *Arbiter) LockPlayer(code, playerID string, d time.Duration) time.Time {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	until := a.clock.Now().Add(d)
	a.raceFor(code).lockouts[playerID] = until
	return until
}

// IsPlayerLocked reports whether playerID is inside an active lockout.
func (a *Arbiter) IsPlayerLocked(code, playerID string) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	r, ok := a.races[code]
	if !ok {
		return false
	}
	until, ok := r.lockouts[playerID]
	return ok && a.clock.Now().Before(until)
}

// UnlockBuzzer re-opens the race after a wrong answer.
func (a *Arbiter) UnlockBuzzer(code string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.raceFor(code).locked = false
}

// IsLocked reports whether the current race has a winner.
func (a *Arbiter) IsLocked(code string) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	r, ok := a.races[code]
	return ok && r.locked
}

// RenamePlayer moves lockout and rate state to a reconnected player's new id.
func (a *Arbiter) RenamePlayer(code, oldID, newID string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	r, ok := a.races[code]
	if !ok {
		return
	}
	if until, ok := r.lockouts[oldID]; ok {
		delete(r.lockouts, oldID)
		r.lockouts[newID] = until
	}
	if at, ok := r.attempts[oldID]; ok {
		delete(r.attempts, oldID)
		r.attempts[newID] = at
	}
}

// Reset drops all state for a session.
func (a *Arbiter) Reset(code string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	delete(a.races, code)
}
