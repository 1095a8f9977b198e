package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/persistence"
)

// MockStore is a test double for persistence.StatsStore.
type MockStore struct {
	recordErr   error
	recorded    []models.GameResult
	stats       map[string]*models.UserStats
	sawDeadline bool
}

func (m *MockStore) RecordGameCompletion(ctx context.Context, result models.GameResult) error {
	_, m.sawDeadline = ctx.Deadline()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.recorded = append(m.recorded, result)
	return nil
}

func (m *MockStore) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	s, ok := m.stats[userID]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	return s, nil
}

func (m *MockStore) GetLeaderboard(ctx context.Context, limit int) ([]models.UserStats, error) {
	return nil, nil
}

func (m *MockStore) Close() error { return nil }

func TestPlayerService_RecordGameCompletion(t *testing.T) {
	store := &MockStore{}
	svc := NewPlayerService(store, time.Second)

	if err := svc.RecordGameCompletion(context.Background(), models.GameResult{GameID: "g1"}); err != nil {
		t.Fatalf("RecordGameCompletion failed: %v", err)
	}
	if len(store.recorded) != 1 || !store.sawDeadline {
		t.Error("store should receive the result under a deadline")
	}

	store.recordErr = errors.New("connection refused")
	err := svc.RecordGameCompletion(context.Background(), models.GameResult{GameID: "g2"})
	if !errors.Is(err, store.recordErr) {
		t.Errorf("store error should be wrapped, got %v", err)
	}
}

func TestPlayerService_GetUserStats(t *testing.T) {
	store := &MockStore{stats: map[string]*models.UserStats{"ann": {UserID: "ann", GamesPlayed: 3}}}
	svc := NewPlayerService(store, 0)

	got, err := svc.GetUserStats(context.Background(), " ann ")
	if err != nil || got.GamesPlayed != 3 {
		t.Fatalf("unexpected stats %+v %v", got, err)
	}

	empty, err := svc.GetUserStats(context.Background(), "newcomer")
	if err != nil {
		t.Fatalf("unknown user should not fail: %v", err)
	}
	if empty.UserID != "newcomer" || empty.GamesPlayed != 0 {
		t.Errorf("unknown user should get zeroed stats, got %+v", empty)
	}

	if _, err := svc.GetUserStats(context.Background(), "  "); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("blank user id should be invalid input, got %v", err)
	}
}

func TestPlayerService_LeaderboardNeverNil(t *testing.T) {
	svc := NewPlayerService(&MockStore{}, 0)
	board, err := svc.GetLeaderboard(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetLeaderboard failed: %v", err)
	}
	if board == nil {
		t.Error("leaderboard should be an empty slice, not nil")
	}
}
