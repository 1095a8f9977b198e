package rpc

import (
	"context"
	"net/rpc"
	"strings"
	"testing"

	"github.com/wfunc/quizserver/models"
)

type MockStats struct {
	stats map[string]models.UserStats
}

func (m *MockStats) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	s, ok := m.stats[userID]
	if !ok {
		return nil, models.Errorf(models.KindInvalidInput, "unknown user %s", userID)
	}
	return &s, nil
}

type MockSessions []models.SessionSummary

func (m MockSessions) Sessions() []models.SessionSummary { return m }

func startServer(t *testing.T) *rpc.Client {
	t.Helper()
	stats := &MockStats{stats: map[string]models.UserStats{
		"u1": {UserID: "u1", Name: "Ann", GamesPlayed: 3, GamesWon: 2},
	}}
	sessions := MockSessions{
		{Code: "ABCD", Status: models.StatusLobby, PlayerCount: 1},
		{Code: "WXYZ", Status: models.StatusPlaying, PlayerCount: 3},
	}
	srv, err := NewServer("127.0.0.1:0", NewGameService(stats, sessions))
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	go srv.Start()
	t.Cleanup(srv.Stop)

	client, err := rpc.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestGameService_GetUserStats(t *testing.T) {
	client := startServer(t)

	var reply GetUserStatsReply
	if err := client.Call("GameService.GetUserStats", &GetUserStatsArgs{UserID: "u1"}, &reply); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if reply.Stats.GamesPlayed != 3 || reply.Stats.GamesWon != 2 {
		t.Errorf("unexpected stats %+v", reply.Stats)
	}

	err := client.Call("GameService.GetUserStats", &GetUserStatsArgs{UserID: "nobody"}, &GetUserStatsReply{})
	if err == nil || !strings.Contains(err.Error(), "unknown user") {
		t.Errorf("expected lookup error, got %v", err)
	}
}

func TestGameService_ListSessions(t *testing.T) {
	client := startServer(t)

	var all ListSessionsReply
	if err := client.Call("GameService.ListSessions", &ListSessionsArgs{}, &all); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if len(all.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all.Sessions))
	}

	var lobby ListSessionsReply
	if err := client.Call("GameService.ListSessions", &ListSessionsArgs{Status: models.StatusLobby}, &lobby); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if len(lobby.Sessions) != 1 || lobby.Sessions[0].Code != "ABCD" {
		t.Errorf("unexpected filtered sessions %+v", lobby.Sessions)
	}
}
