// timer/timer.go
package timer

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TimerTask is one pending one-shot timer. Token identifies this scheduling of Key.
type TimerTask struct {
	Key     string
	Token   uint64
	Execute time.Time

	timer clockwork.Timer
	done  chan struct{}
}

// TimerManager keeps at most one pending timer per key. Scheduling a key replaces any
// timer already pending for it.
//
// Callbacks run on their own goroutine and receive the token they were scheduled with.
// A callback that mutates shared state should take its lock and then Claim the token: a
// superseded or cancelled timer may already have fired and be waiting on that lock.
type TimerManager struct {
	clock  clockwork.Clock
	tasks  map[string]*TimerTask
	nextId uint64
	quit   chan struct{}
	closed bool
	mutex  sync.Mutex
}

func NewTimerManager(clock clockwork.Clock) *TimerManager {
	return &TimerManager{
		clock:  clock,
		tasks:  make(map[string]*TimerTask),
		nextId: 1,
		quit:   make(chan struct{}),
	}
}

// Schedule arms key to call callback after delay and returns the new token.
func (m *TimerManager) Schedule(key string, delay time.Duration, callback func(token uint64)) uint64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return 0
	}
	if existing, ok := m.tasks[key]; ok {
		stopTask(existing)
	}
	if delay < 0 {
		delay = 0
	}

	task := &TimerTask{
		Key:     key,
		Token:   m.nextId,
		Execute: m.clock.Now().Add(delay),
		timer:   m.clock.NewTimer(delay),
		done:    make(chan struct{}),
	}
	m.nextId++
	m.tasks[key] = task

	go func(t *TimerTask) {
		select {
		case <-t.timer.Chan():
			callback(t.Token)
		case <-t.done:
		case <-m.quit:
			t.timer.Stop()
		}
	}(task)
	return task.Token
}

// Claim consumes the pending entry for key if token is still current. It returns false for
// a timer that was cancelled or replaced after it fired.
func (m *TimerManager) Claim(key string, token uint64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, ok := m.tasks[key]
	if !ok || task.Token != token {
		return false
	}
	delete(m.tasks, key)
	return true
}

// Cancel drops the pending timer for key, if any.
func (m *TimerManager) Cancel(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if task, ok := m.tasks[key]; ok {
		stopTask(task)
		delete(m.tasks, key)
	}
}

// CancelPrefix drops every pending timer whose key starts with prefix.
func (m *TimerManager) CancelPrefix(prefix string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for key, task := range m.tasks {
		if strings.HasPrefix(key, prefix) {
			stopTask(task)
			delete(m.tasks, key)
		}
	}
}

// Pending returns the deadline of the timer armed for key.
func (m *TimerManager) Pending(key string) (time.Time, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, ok := m.tasks[key]
	if !ok {
		return time.Time{}, false
	}
	return task.Execute, true
}

func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.tasks)
}

// Stop cancels every timer. Later Schedule calls are ignored.
func (m *TimerManager) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for _, task := range m.tasks {
		stopTask(task)
	}
	close(m.quit)
	m.tasks = make(map[string]*TimerTask)
}

func stopTask(task *TimerTask) {
	if !task.timer.Stop() {
		select {
		case <-task.timer.Chan():
		default:
		}
	}
	close(task.done)
}
