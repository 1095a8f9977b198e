package state

import (
	"sync"

	"github.com/wfunc/quizserver/models"
)

// ErrTransitionNotAllowed is returned when a phase change is missing from the transition table.
var ErrTransitionNotAllowed = models.Errorf(models.KindForbidden, "phase transition not allowed")

// PhaseMachine guards phase changes with an explicit transition table.
type PhaseMachine struct {
	transitions map[models.Phase]map[models.Phase]bool // from -> to
	mutex       sync.RWMutex
}

// NewPhaseMachine returns a machine loaded with the game's phase graph.
func NewPhaseMachine() *PhaseMachine {
	m := &PhaseMachine{transitions: make(map[models.Phase]map[models.Phase]bool)}

	m.AddTransition(models.PhaseSelection, models.PhaseReading)
	m.AddTransition(models.PhaseReading, models.PhaseBuzzerActive)
	m.AddTransition(models.PhaseReading, models.PhaseDailyDouble)
	m.AddTransition(models.PhaseReading, models.PhaseSelection)
	m.AddTransition(models.PhaseBuzzerActive, models.PhaseAnswering)
	m.AddTransition(models.PhaseBuzzerActive, models.PhaseSelection)
	m.AddTransition(models.PhaseAnswering, models.PhaseBuzzerActive)
	m.AddTransition(models.PhaseAnswering, models.PhaseSelection)
	m.AddTransition(models.PhaseDailyDouble, models.PhaseSelection)

	m.AddTransition(models.PhaseSelection, models.PhaseFinalWager)
	m.AddTransition(models.PhaseFinalWager, models.PhaseFinalAnswer)
	m.AddTransition(models.PhaseFinalAnswer, models.PhaseFinalReveal)
	return m
}

func (m *PhaseMachine) AddTransition(from, to models.Phase) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.transitions[from]; !exists {
		m.transitions[from] = make(map[models.Phase]bool)
	}
	m.transitions[from][to] = true
}

func (m *PhaseMachine) Allowed(from, to models.Phase) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.transitions[from][to]
}

// ChangePhase moves g to the target phase if the table allows it.
func (m *PhaseMachine) ChangePhase(g *models.GameState, to models.Phase) error {
	if !m.Allowed(g.Phase, to) {
		return ErrTransitionNotAllowed
	}
	g.Phase = to
	return nil
}
