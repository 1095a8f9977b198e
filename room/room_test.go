package room

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/rules"
)

func ident(conn, user string) Identity {
	return Identity{ConnID: conn, UserID: user, Name: "Player " + user}
}

// newLobby creates a session hosted by conn "a" (user "ua") and seats the given extra users.
func newLobby(t *testing.T, d *Directory, extra ...string) *models.Room {
	t.Helper()
	room, _, err := d.CreateSession(ident("a", "ua"), nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	for _, u := range extra {
		room.Lock()
		_, err := d.JoinSession(room, ident(u, "u"+u))
		room.Unlock()
		if err != nil {
			t.Fatalf("JoinSession(%s) failed: %v", u, err)
		}
	}
	return room
}

func TestDirectory_CreateAndGet(t *testing.T) {
	d := NewDirectory(clockwork.NewFakeClock())
	room, host, err := d.CreateSession(ident("a", "ua"), nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if !rules.ValidateCode(room.Code) {
		t.Errorf("invalid session code %q", room.Code)
	}
	if room.HostID != "a" || !host.IsHost {
		t.Error("creator should be host")
	}
	if def := rules.DefaultConfig(); room.Config.QuestionCount != def.QuestionCount || room.Config.DailyDoubleCount != def.DailyDoubleCount {
		t.Errorf("unexpected default config %+v", room.Config)
	}

	retrieved, err := d.Get(strings.ToLower(room.Code))
	if err != nil {
		t.Fatalf("Get should find the created session: %v", err)
	}
	if retrieved != room {
		t.Error("Get should return the same session instance")
	}
	if byConn, ok := d.ForConn("a"); !ok || byConn != room {
		t.Error("ForConn should resolve the creator's connection")
	}
}

func TestDirectory_CreateRejectsBadInput(t *testing.T) {
	d := NewDirectory(clockwork.NewFakeClock())
	if _, _, err := d.CreateSession(Identity{ConnID: "a", UserID: "ua", Name: "bad!"}, nil); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	count := 7
	if _, _, err := d.CreateSession(ident("a", "ua"), &models.ConfigOverrides{QuestionCount: &count}); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("expected invalid configuration, got %v", err)
	}
	if d.Count() != 0 {
		t.Error("rejected creates must not register sessions")
	}
}

func TestDirectory_CodeCollisionFallsBack(t *testing.T) {
	d := NewDirectory(clockwork.NewFakeClock(), WithCodeSource(func(int) int { return 0 }))
	first, _, err := d.CreateSession(ident("a", "ua"), nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	second, _, err := d.CreateSession(ident("b", "ub"), nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if first.Code != "AAAA" {
		t.Errorf("expected first code AAAA, got %s", first.Code)
	}
	if second.Code == first.Code || !rules.ValidateCode(second.Code) {
		t.Errorf("fallback code %q should be valid and unique", second.Code)
	}
}

func TestDirectory_JoinRules(t *testing.T) {
	d := NewDirectory(clockwork.NewFakeClock())
	room := newLobby(t, d, "b", "c", "d")

	room.Lock()
	defer room.Unlock()

	if _, err := d.JoinSession(room, ident("e", "ue")); !errors.Is(err, models.ErrFull) {
		t.Errorf("fifth player should get Full, got %v", err)
	}
	if _, err := d.JoinSession(room, ident("b2", "ub")); !errors.Is(err, models.ErrAlreadyConnected) {
		t.Errorf("same connected user should get AlreadyConnected, got %v", err)
	}

	room.Status = models.StatusPlaying
	d.RemovePlayer(room, "d")
	if _, err := d.JoinSession(room, ident("e", "ue")); !errors.Is(err, models.ErrClosed) {
		t.Errorf("join into a running game should get Closed, got %v", err)
	}
}

func TestDirectory_JoinDeletedSession(t *testing.T) {
	d := NewDirectory(clockwork.NewFakeClock())
	room := newLobby(t, d)

	room.Lock()
	res, err := d.RemovePlayer(room, "a")
	if err != nil || !res.RoomDeleted {
		t.Fatalf("removing the last player should delete the session: %+v %v", res, err)
	}
	if _, err := d.JoinSession(room, ident("b", "ub")); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("join into a deleted session should get NotFound, got %v", err)
	}
	room.Unlock()

	if _, err := d.Get(room.Code); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Get after deletion should get NotFound, got %v", err)
	}
}

func TestDirectory_ReconnectRestoresPointers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDirectory(clock)
	room := newLobby(t, d, "b")

	room.Lock()
	defer room.Unlock()

	room.Status = models.StatusPlaying
	room.Game.CurrentTurnPlayerID = "a"
	room.Game.BuzzedPlayerID = "a"
	room.Game.DailyDoublePlayerID = "a"
	room.Players["a"].Score = 800

	dc, err := d.DisconnectPlayer(room, "a")
	if err != nil {
		t.Fatalf("DisconnectPlayer failed: %v", err)
	}
	if !dc.ReconnectDeadline.Equal(clock.Now().Add(30 * time.Second)) {
		t.Errorf("unexpected reconnect deadline %v", dc.ReconnectDeadline)
	}
	if room.Players["a"].Connected {
		t.Fatal("player should be marked disconnected")
	}

	res, err := d.JoinSession(room, Identity{ConnID: "a2", UserID: "ua", Name: "Renamed"})
	if err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if !res.Reconnected || res.PreviousPlayerID != "a" {
		t.Fatalf("expected reconnect from a, got %+v", res)
	}
	if room.HostID != "a2" || room.Game.CurrentTurnPlayerID != "a2" ||
		room.Game.BuzzedPlayerID != "a2" || room.Game.DailyDoublePlayerID != "a2" {
		t.Errorf("pointers not moved to new connection: host=%s turn=%s buzzed=%s dd=%s",
			room.HostID, room.Game.CurrentTurnPlayerID, room.Game.BuzzedPlayerID, room.Game.DailyDoublePlayerID)
	}
	p, ok := room.Player("a2")
	if !ok || p.Score != 800 || !p.Connected || p.Name != "Renamed" {
		t.Errorf("reclaimed seat lost its state: %+v", p)
	}
	if _, ok := room.Player("a"); ok {
		t.Error("stale connection id should be gone")
	}
	if _, ok := d.ForConn("a"); ok {
		t.Error("stale connection should no longer be indexed")
	}
	if byConn, ok := d.ForConn("a2"); !ok || byConn != room {
		t.Error("new connection should be indexed")
	}
}

func TestDirectory_RemoveReassignsPointers(t *testing.T) {
	d := NewDirectory(clockwork.NewFakeClock())
	room := newLobby(t, d, "b", "c")

	room.Lock()
	defer room.Unlock()

	room.Players["b"].Connected = false
	room.Game.CurrentTurnPlayerID = "a"
	room.Game.BuzzedPlayerID = "a"
	room.Game.DailyDoublePlayerID = "a"

	res, err := d.RemovePlayer(room, "a")
	if err != nil {
		t.Fatalf("RemovePlayer failed: %v", err)
	}
	if res.RoomDeleted {
		t.Fatal("session still has players")
	}
	if res.NewHostID != "c" || room.HostID != "c" || !room.Players["c"].IsHost {
		t.Errorf("host should move to the connected player c, got %q", room.HostID)
	}
	if room.Game.CurrentTurnPlayerID != "c" {
		t.Errorf("turn should move to a remaining player, got %q", room.Game.CurrentTurnPlayerID)
	}
	if room.Game.BuzzedPlayerID != "" || room.Game.DailyDoublePlayerID != "" {
		t.Error("buzzed and daily double pointers should clear")
	}
	if _, err := d.RemovePlayer(room, "a"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second removal should get NotFound, got %v", err)
	}
}

func TestDirectory_RemoveFallsBackToDisconnectedHost(t *testing.T) {
	d := NewDirectory(clockwork.NewFakeClock())
	room := newLobby(t, d, "b")

	room.Lock()
	defer room.Unlock()

	room.Players["b"].Connected = false
	res, err := d.RemovePlayer(room, "a")
	if err != nil {
		t.Fatalf("RemovePlayer failed: %v", err)
	}
	if res.NewHostID != "b" {
		t.Errorf("host should fall back to any remaining player, got %q", res.NewHostID)
	}
}

func TestDirectory_SnapshotHidesSecrets(t *testing.T) {
	d := NewDirectory(clockwork.NewFakeClock())
	room := newLobby(t, d, "b")

	room.Lock()
	defer room.Unlock()

	room.Game.Reset(models.Board{{
		{ID: "q1", Category: "Space", Value: 200, Answer: "SECRET-ONE"},
		{ID: "q2", Category: "Space", Value: 400, Answer: "SECRET-TWO", DailyDouble: true},
		{ID: "q3", Category: "Space", Value: 600, Answer: "SECRET-THREE", DailyDouble: true},
	}})
	room.Game.MarkAnswered("q3")
	room.Game.Phase = models.PhaseReading
	room.Game.SelectedQuestion = room.Game.Board[0][0]

	snap := d.Snapshot(room)
	cells := snap.Game.Board[0].Cells
	if cells[1].DailyDouble {
		t.Error("unanswered daily double must stay hidden")
	}
	if !cells[2].DailyDouble || !cells[2].Answered {
		t.Error("answered daily double should be revealed")
	}
	if snap.Game.SelectedQuestion == nil || snap.Game.SelectedQuestion.ID != "q1" {
		t.Error("selected question should be projected")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	if strings.Contains(string(data), "SECRET") {
		t.Error("snapshot leaked an answer")
	}
	if *snap.HostID != "a" || len(snap.Players) != 2 || snap.Players[0].ID != "a" {
		t.Error("players should be listed in join order with the host set")
	}
}

func TestDirectory_ListNewestFirst(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDirectory(clock)
	older, _, _ := d.CreateSession(ident("a", "ua"), nil)
	clock.Advance(time.Minute)
	newer, _, _ := d.CreateSession(ident("b", "ub"), nil)

	list := d.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	if list[0].Code != newer.Code || list[1].Code != older.Code {
		t.Error("sessions should be listed newest first")
	}
	if list[0].PlayerCount != 1 || list[0].ConnectedCount != 1 || list[0].HostName != "Player ub" {
		t.Errorf("unexpected summary %+v", list[0])
	}
}

func TestDirectory_IdleAndDelete(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDirectory(clock)
	stale := newLobby(t, d)
	clock.Advance(2 * time.Hour)
	fresh, _, _ := d.CreateSession(ident("z", "uz"), nil)

	idle := d.Idle(clock.Now().Add(-time.Hour))
	if len(idle) != 1 || idle[0] != stale {
		t.Fatalf("expected only the stale session to be idle, got %d", len(idle))
	}
	d.Delete(stale)
	if _, ok := d.ForConn("a"); ok {
		t.Error("Delete should drop index entries")
	}
	if d.Count() != 1 || !d.Live(fresh) {
		t.Error("fresh session should remain")
	}
}
