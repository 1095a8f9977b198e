package buzzer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestArbiter_FirstBuzzWins(t *testing.T) {
	a := NewArbiter(clockwork.NewFakeClock())
	a.PrepareForQuestion("ABCD")

	winner, ok := a.HandleBuzz("ABCD", "p1")
	if !ok || winner != "p1" {
		t.Fatalf("expected p1 to win, got %q ok=%v", winner, ok)
	}
	if _, ok := a.HandleBuzz("ABCD", "p2"); ok {
		t.Fatal("second buzz should not win a locked race")
	}
	if !a.IsLocked("ABCD") {
		t.Error("race should be locked after a win")
	}
}

func TestArbiter_ConcurrentBuzzesHaveExactlyOneWinner(t *testing.T) {
	a := NewArbiter(clockwork.NewFakeClock())
	a.PrepareForQuestion("ABCD")

	const n = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if _, ok := a.HandleBuzz("ABCD", fmt.Sprintf("p%d", id)); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestArbiter_LockoutExcludesPlayerUntilExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := NewArbiter(clock)
	a.PrepareForQuestion("ABCD")

	until := a.LockPlayer("ABCD", "p1", 2*time.Second)
	if !until.Equal(clock.Now().Add(2 * time.Second)) {
		t.Errorf("unexpected lockout expiry %v", until)
	}
	if !a.IsPlayerLocked("ABCD", "p1") {
		t.Fatal("p1 should be locked out")
	}
	if _, ok := a.HandleBuzz("ABCD", "p1"); ok {
		t.Fatal("locked out player should not win")
	}

	clock.Advance(2 * time.Second)
	if a.IsPlayerLocked("ABCD", "p1") {
		t.Fatal("lockout should have expired")
	}
	if _, ok := a.HandleBuzz("ABCD", "p1"); !ok {
		t.Fatal("player should win once the lockout expired")
	}
}

func TestArbiter_UnlockReopensRace(t *testing.T) {
	a := NewArbiter(clockwork.NewFakeClock())
	a.PrepareForQuestion("ABCD")
	a.HandleBuzz("ABCD", "p1")
	a.UnlockBuzzer("ABCD")

	if winner, ok := a.HandleBuzz("ABCD", "p2"); !ok || winner != "p2" {
		t.Fatalf("expected p2 to win the reopened race, got %q ok=%v", winner, ok)
	}
}

func TestArbiter_RateLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := NewArbiter(clock)
	a.PrepareForQuestion("ABCD")

	for i := 0; i < 10; i++ {
		if _, ok := a.HandleBuzz("ABCD", "p1"); !ok {
			t.Fatalf("attempt %d should have been accepted", i+1)
		}
		a.UnlockBuzzer("ABCD")
	}
	if _, ok := a.HandleBuzz("ABCD", "p1"); ok {
		t.Fatal("eleventh attempt within a second should be rejected")
	}

	clock.Advance(time.Second)
	if _, ok := a.HandleBuzz("ABCD", "p1"); !ok {
		t.Fatal("attempts should be accepted again in the next second")
	}
}

func TestArbiter_PrepareForQuestionClearsState(t *testing.T) {
	a := NewArbiter(clockwork.NewFakeClock())
	a.PrepareForQuestion("ABCD")
	a.HandleBuzz("ABCD", "p1")
	a.LockPlayer("ABCD", "p2", time.Minute)

	a.PrepareForQuestion("ABCD")
	if a.IsLocked("ABCD") || a.IsPlayerLocked("ABCD", "p2") {
		t.Fatal("PrepareForQuestion should clear the lock and lockouts")
	}
}

func TestArbiter_RenamePlayerKeepsLockout(t *testing.T) {
	a := NewArbiter(clockwork.NewFakeClock())
	a.PrepareForQuestion("ABCD")
	a.LockPlayer("ABCD", "old", time.Minute)

	a.RenamePlayer("ABCD", "old", "new")
	if !a.IsPlayerLocked("ABCD", "new") {
		t.Fatal("lockout should follow the player to the new id")
	}
	if a.IsPlayerLocked("ABCD", "old") {
		t.Fatal("old id should no longer be locked")
	}
}
