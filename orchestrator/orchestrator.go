// Package orchestrator is the only component that calls across the game managers. Every
// inbound action and every timer callback for a session runs while holding that session's
// lock, so a session behaves as a single actor.
package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/wfunc/quizserver/broadcast"
	"github.com/wfunc/quizserver/buzzer"
	"github.com/wfunc/quizserver/finalround"
	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/monitor"
	"github.com/wfunc/quizserver/network"
	"github.com/wfunc/quizserver/room"
	"github.com/wfunc/quizserver/rules"
	"github.com/wfunc/quizserver/state"
	"github.com/wfunc/quizserver/timer"
)

// StatsRecorder is the persistence contract of the orchestrator.
type StatsRecorder interface {
	RecordGameCompletion(ctx context.Context, result models.GameResult) error
	GetUserStats(ctx context.Context, userID string) (*models.UserStats, error)
}

// ResultPublisher announces finished games to other services.
type ResultPublisher interface {
	PublishGameResult(ctx context.Context, result models.GameResult) error
}

// ConfigValidator checks a session config against the loaded content.
type ConfigValidator interface {
	ValidateConfig(cfg models.SessionConfig) error
}

type Config struct {
	// NoBuzzerRevealDelay is how long a question stays open after a wrong answer leaves
	// nobody able to buzz. Zero completes it at once.
	NoBuzzerRevealDelay time.Duration
	IdleTimeout         time.Duration
	SweepInterval       time.Duration
	StatsTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		IdleTimeout:   rules.DefaultIdleTimeout,
		SweepInterval: time.Minute,
		StatsTimeout:  5 * time.Second,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

func WithPublisher(p ResultPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithMetrics(m *monitor.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithConfigValidator(v ConfigValidator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// Orchestrator 会话协调器
type Orchestrator struct {
	clock     clockwork.Clock
	dir       *room.Directory
	engine    *state.Engine
	arbiter   *buzzer.Arbiter
	final     *finalround.Coordinator
	timers    *timer.TimerManager
	bc        broadcast.Broadcaster
	stats     StatsRecorder
	publisher ResultPublisher
	validator ConfigValidator
	metrics   *monitor.Metrics
	cfg       Config

	spectators map[string]string // connID -> code
	mutex      sync.Mutex
	wg         sync.WaitGroup
}

func New(
	clock clockwork.Clock,
	dir *room.Directory,
	engine *state.Engine,
	arbiter *buzzer.Arbiter,
	final *finalround.Coordinator,
	bc broadcast.Broadcaster,
	stats StatsRecorder,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		clock:      clock,
		dir:        dir,
		engine:     engine,
		arbiter:    arbiter,
		final:      final,
		timers:     timer.NewTimerManager(clock),
		bc:         bc,
		stats:      stats,
		cfg:        DefaultConfig(),
		spectators: make(map[string]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func phaseKey(code string) string {
	return code + ":phase"
}

func graceKey(code, playerID string) string {
	return code + ":grace:" + playerID
}

// withRoom runs fn on the session connID is seated in, holding its lock.
func (o *Orchestrator) withRoom(connID string, fn func(r *models.Room) error) error {
	r, ok := o.dir.ForConn(connID)
	if !ok {
		return models.Errorf(models.KindNotFound, "you are not in a session")
	}
	r.Lock()
	defer r.Unlock()
	if !o.dir.Live(r) {
		return models.Errorf(models.KindNotFound, "session %s not found", r.Code)
	}
	r.Touch(o.clock.Now())
	return fn(r)
}

// schedulePhase arms the single phase timer of r. fn runs under the room lock and only
// while the timer is still the live one.
func (o *Orchestrator) schedulePhase(r *models.Room, at time.Time, fn func(r *models.Room)) {
	key := phaseKey(r.Code)
	o.timers.Schedule(key, at.Sub(o.clock.Now()), func(token uint64) {
		r.Lock()
		defer r.Unlock()
		if !o.dir.Live(r) || !o.timers.Claim(key, token) {
			return
		}
		fn(r)
	})
}

func (o *Orchestrator) emitState(r *models.Room) {
	o.bc.BroadcastToRoom(r.Code, network.MsgTypeRoomState, network.RoomState{
		Room:       o.dir.Snapshot(r),
		ServerTime: o.clock.Now(),
	})
}

func (o *Orchestrator) spectating(connID string) (string, bool) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	code, ok := o.spectators[connID]
	return code, ok
}

func (o *Orchestrator) setSpectator(connID, code string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if code == "" {
		delete(o.spectators, connID)
		return
	}
	o.spectators[connID] = code
}

// dropSpectator unsubscribes connID if it is watching a session.
func (o *Orchestrator) dropSpectator(connID string) (string, bool) {
	code, ok := o.spectating(connID)
	if !ok {
		return "", false
	}
	o.setSpectator(connID, "")
	o.bc.Unsubscribe(code, connID)
	return code, true
}

// CreateUser validates a display name and hands back the stable user id, minting one when
// the client has none.
func (o *Orchestrator) CreateUser(connID string, req network.CreateUserRequest) (string, error) {
	name := strings.TrimSpace(req.Name)
	if !rules.ValidateDisplayName(name) {
		return "", models.Errorf(models.KindInvalidInput, "name must be 1-%d letters, digits or spaces", rules.MaxDisplayNameLen)
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = uuid.NewString()
	}
	o.bc.SendTo(connID, network.MsgTypeUserCreated, network.UserCreated{UserID: userID, Name: name})
	return userID, nil
}

// GetUserStats sends the stats of userID to connID.
func (o *Orchestrator) GetUserStats(ctx context.Context, connID, userID string) error {
	stats, err := o.stats.GetUserStats(ctx, userID)
	if err != nil {
		return err
	}
	return o.bc.SendTo(connID, network.MsgTypeUserStats, network.UserStatsPayload{Stats: stats})
}

// CreateSession opens a session with connID as host and returns its code.
func (o *Orchestrator) CreateSession(connID string, req network.CreateRoomRequest) (string, error) {
	if o.validator != nil {
		if err := o.validator.ValidateConfig(req.Config.Apply(rules.DefaultConfig())); err != nil {
			return "", err
		}
	}
	o.dropSpectator(connID)
	r, player, err := o.dir.CreateSession(room.Identity{ConnID: connID, UserID: req.UserID, Name: req.UserName}, req.Config)
	if err != nil {
		return "", err
	}

	r.Lock()
	defer r.Unlock()
	o.bc.Subscribe(r.Code, connID)
	o.bc.SendTo(connID, network.MsgTypeRoomCreated, network.RoomCreated{
		RoomCode: r.Code,
		PlayerID: player.ID,
		Room:     o.dir.Snapshot(r),
	})
	o.emitState(r)
	o.metrics.SetActiveSessions(o.dir.Count())
	logger.Log.Infof("session %s created by %s (%s)", r.Code, player.Name, connID)
	return r.Code, nil
}

// JoinSession seats connID, reclaiming a disconnected seat of the same user. A session that
// is closed or full, or a caller asking to watch, gets a spectator subscription instead. The
// returned player id is empty for spectators.
func (o *Orchestrator) JoinSession(connID string, req network.JoinRoomRequest) (string, string, error) {
	r, err := o.dir.Get(req.RoomCode)
	if err != nil {
		return "", "", err
	}
	r.Lock()
	defer r.Unlock()
	if !o.dir.Live(r) {
		return "", "", models.Errorf(models.KindNotFound, "session %s not found", r.Code)
	}

	if req.AsSpectator {
		o.spectate(r, connID)
		return r.Code, "", nil
	}
	res, err := o.dir.JoinSession(r, room.Identity{ConnID: connID, UserID: req.UserID, Name: req.UserName})
	switch models.KindOf(err) {
	case models.KindClosed, models.KindFull:
		o.spectate(r, connID)
		return r.Code, "", nil
	}
	if err != nil {
		return "", "", err
	}
	r.Touch(o.clock.Now())
	o.dropSpectator(connID)

	if res.Reconnected {
		o.timers.Cancel(graceKey(r.Code, res.PreviousPlayerID))
		o.arbiter.RenamePlayer(r.Code, res.PreviousPlayerID, connID)
		o.bc.Unsubscribe(r.Code, res.PreviousPlayerID)
		o.bc.Subscribe(r.Code, connID)
		o.sendJoined(r, connID, res.Player.ID)
		o.bc.BroadcastToRoom(r.Code, network.MsgTypePlayerReconnected, network.PlayerReconnected{
			PreviousPlayerID: res.PreviousPlayerID,
			Player:           res.Player.View(),
		})
		logger.Log.Infof("session %s: %s reconnected as %s", r.Code, res.PreviousPlayerID, connID)
	} else {
		o.bc.BroadcastToRoom(r.Code, network.MsgTypePlayerJoined, network.PlayerJoined{Player: res.Player.View()})
		o.bc.Subscribe(r.Code, connID)
		o.sendJoined(r, connID, res.Player.ID)
		logger.Log.Infof("session %s: %s joined as %s", r.Code, res.Player.Name, connID)
	}
	o.emitState(r)
	return r.Code, res.Player.ID, nil
}

func (o *Orchestrator) sendJoined(r *models.Room, connID, playerID string) {
	o.bc.SendTo(connID, network.MsgTypeRoomJoined, network.RoomJoined{
		RoomCode: r.Code,
		PlayerID: models.Optional(playerID),
		Room:     o.dir.Snapshot(r),
	})
}

func (o *Orchestrator) spectate(r *models.Room, connID string) {
	if previous, ok := o.dropSpectator(connID); ok && previous != r.Code {
		logger.Log.Infof("spectator %s moved from %s to %s", connID, previous, r.Code)
	}
	o.setSpectator(connID, r.Code)
	o.bc.Subscribe(r.Code, connID)
	o.sendJoined(r, connID, "")
	o.emitState(r)
}

// ListSessions sends the session list to connID.
func (o *Orchestrator) ListSessions(connID string) error {
	return o.bc.SendTo(connID, network.MsgTypeRoomList, network.RoomList{Rooms: o.dir.List()})
}

// Sessions returns the live session summaries.
func (o *Orchestrator) Sessions() []models.SessionSummary {
	return o.dir.List()
}

// LeaveSession removes connID from its session, or stops it watching one.
func (o *Orchestrator) LeaveSession(connID string) error {
	if code, ok := o.dropSpectator(connID); ok {
		o.bc.SendTo(connID, network.MsgTypeRoomLeft, network.RoomLeft{RoomCode: code})
		return nil
	}
	return o.withRoom(connID, func(r *models.Room) error {
		o.timers.Cancel(graceKey(r.Code, connID))
		res, err := o.dir.RemovePlayer(r, connID)
		if err != nil {
			return err
		}
		o.bc.Unsubscribe(r.Code, connID)
		o.bc.SendTo(connID, network.MsgTypeRoomLeft, network.RoomLeft{RoomCode: r.Code})
		logger.Log.Infof("session %s: %s left", r.Code, connID)
		o.handleRemoved(r, res)
		return nil
	})
}

// Disconnect marks the seat of connID disconnected and arms its grace timer.
func (o *Orchestrator) Disconnect(connID string) {
	if _, ok := o.dropSpectator(connID); ok {
		return
	}
	r, ok := o.dir.ForConn(connID)
	if !ok {
		return
	}
	r.Lock()
	defer r.Unlock()
	if !o.dir.Live(r) {
		return
	}
	res, err := o.dir.DisconnectPlayer(r, connID)
	if err != nil {
		return
	}
	o.bc.Unsubscribe(r.Code, connID)
	o.bc.BroadcastToRoom(r.Code, network.MsgTypePlayerDisconnected, network.PlayerDisconnected{
		PlayerID:          res.PlayerID,
		ReconnectDeadline: res.ReconnectDeadline,
	})
	o.emitState(r)
	logger.Log.Infof("session %s: %s disconnected, seat held until %s", r.Code, connID, res.ReconnectDeadline.Format(time.RFC3339))

	key := graceKey(r.Code, res.PlayerID)
	o.timers.Schedule(key, res.ReconnectDeadline.Sub(o.clock.Now()), func(token uint64) {
		r.Lock()
		defer r.Unlock()
		if !o.dir.Live(r) || !o.timers.Claim(key, token) {
			return
		}
		p, ok := r.Player(res.PlayerID)
		if !ok || p.Connected {
			return
		}
		removed, err := o.dir.RemovePlayer(r, res.PlayerID)
		if err != nil {
			return
		}
		logger.Log.Infof("session %s: %s removed after grace period", r.Code, res.PlayerID)
		o.handleRemoved(r, removed)
	})
}

// handleRemoved announces a hard removal and repairs whatever the removed seat was holding.
func (o *Orchestrator) handleRemoved(r *models.Room, res room.RemoveResult) {
	if res.RoomDeleted {
		o.teardown(r)
		return
	}
	o.bc.BroadcastToRoom(r.Code, network.MsgTypePlayerLeft, network.PlayerLeft{PlayerID: res.PlayerID})

	if r.InGame() && r.ConnectedCount() < rules.MinPlayers {
		o.finishGame(r, "abandoned")
		o.emitState(r)
		return
	}
	// 每日双倍下注阶段没有计时器, 持有者离开后直接结束本题
	if r.Game.Phase == models.PhaseDailyDouble && r.Game.DailyDoublePlayerID == "" {
		o.completeNoAnswer(r)
		return
	}
	o.emitState(r)
}

// teardown releases everything held for a deleted session. Spectators are told it is gone.
func (o *Orchestrator) teardown(r *models.Room) {
	o.timers.CancelPrefix(r.Code + ":")
	o.arbiter.Reset(r.Code)
	o.final.Clear(r)
	o.dir.Delete(r)

	o.mutex.Lock()
	var watchers []string
	for connID, code := range o.spectators {
		if code == r.Code {
			watchers = append(watchers, connID)
			delete(o.spectators, connID)
		}
	}
	o.mutex.Unlock()
	for _, connID := range watchers {
		o.bc.SendTo(connID, network.MsgTypeRoomLeft, network.RoomLeft{RoomCode: r.Code})
	}
	o.bc.Drop(r.Code)
	o.metrics.SetActiveSessions(o.dir.Count())
	logger.Log.Infof("session %s closed", r.Code)
}

// SweepIdle closes sessions without activity for the idle timeout and returns how many.
func (o *Orchestrator) SweepIdle() int {
	cutoff := o.clock.Now().Add(-o.cfg.IdleTimeout)
	closed := 0
	for _, r := range o.dir.Idle(cutoff) {
		r.Lock()
		if o.dir.Live(r) && r.LastActivity.Before(cutoff) {
			o.bc.BroadcastToRoom(r.Code, network.MsgTypeRoomLeft, network.RoomLeft{RoomCode: r.Code})
			o.teardown(r)
			closed++
		}
		r.Unlock()
	}
	if closed > 0 {
		logger.Log.Infof("closed %d idle sessions", closed)
	}
	return closed
}

// Run sweeps idle sessions until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := o.clock.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			o.SweepIdle()
		}
	}
}

// Close stops every timer and waits for pending stats writes.
func (o *Orchestrator) Close() {
	o.timers.Stop()
	o.wg.Wait()
}
