// room/room.go
package room

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/rules"
)

// Identity is who is asking to sit down: the live connection plus the stable user.
type Identity struct {
	ConnID string
	UserID string
	Name   string
}

// JoinResult 加入或重连的结果
type JoinResult struct {
	Room             *models.Room
	Player           *models.Player
	Reconnected      bool
	PreviousPlayerID string
}

// DisconnectResult 断线结果
type DisconnectResult struct {
	PlayerID          string
	ReconnectDeadline time.Time
}

// RemoveResult 移除玩家结果
type RemoveResult struct {
	PlayerID    string
	RoomDeleted bool
	NewHostID   string
}

// Option configures a Directory.
type Option func(*Directory)

func WithGracePeriod(d time.Duration) Option {
	return func(dir *Directory) { dir.grace = d }
}

func WithMaxPlayers(n int) Option {
	return func(dir *Directory) { dir.maxPlayers = n }
}

// WithCodeSource replaces the random source used for session codes.
func WithCodeSource(intn func(n int) int) Option {
	return func(dir *Directory) { dir.intn = intn }
}

// Directory 管理所有房间: one table code -> room and one index connection -> code.
//
// Methods that take a *models.Room expect the caller to hold that room's lock.
// Lock order is room first, then directory.
type Directory struct {
	rooms      map[string]*models.Room
	connIndex  map[string]string
	clock      clockwork.Clock
	grace      time.Duration
	maxPlayers int
	intn       func(n int) int
	mutex      sync.RWMutex
}

// NewDirectory 创建房间目录
func NewDirectory(clock clockwork.Clock, opts ...Option) *Directory {
	d := &Directory{
		rooms:      make(map[string]*models.Room),
		connIndex:  make(map[string]string),
		clock:      clock,
		grace:      rules.DefaultReconnectGrace,
		maxPlayers: rules.MaxPlayers,
		intn:       rand.Intn,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// GracePeriod is how long a disconnected seat is held.
func (d *Directory) GracePeriod() time.Duration {
	return d.grace
}

func (d *Directory) MaxPlayers() int {
	return d.maxPlayers
}

func validateIdentity(id Identity) error {
	if id.ConnID == "" || strings.TrimSpace(id.UserID) == "" {
		return models.Errorf(models.KindInvalidInput, "a user id is required")
	}
	if !rules.ValidateDisplayName(id.Name) {
		return models.Errorf(models.KindInvalidInput, "name must be 1-%d letters, digits or spaces", rules.MaxDisplayNameLen)
	}
	return nil
}

// CreateSession registers a new session with the creator as sole player and host.
func (d *Directory) CreateSession(creator Identity, overrides *models.ConfigOverrides) (*models.Room, *models.Player, error) {
	if err := validateIdentity(creator); err != nil {
		return nil, nil, err
	}
	cfg := overrides.Apply(rules.DefaultConfig())
	if err := rules.ValidateConfig(cfg); err != nil {
		return nil, nil, err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, busy := d.connIndex[creator.ConnID]; busy {
		return nil, nil, models.Errorf(models.KindAlreadyInProgress, "connection is already in a session")
	}
	code := d.uniqueCodeLocked()
	room := models.NewRoom(uuid.New().String(), code, cfg, d.clock.Now())
	player := &models.Player{
		ID:        creator.ConnID,
		UserID:    creator.UserID,
		Name:      strings.TrimSpace(creator.Name),
		IsHost:    true,
		Connected: true,
	}
	room.AddPlayer(player)
	room.HostID = player.ID

	d.rooms[code] = room
	d.connIndex[creator.ConnID] = code
	return room, player, nil
}

func (d *Directory) uniqueCodeLocked() string {
	for i := 0; i < rules.MaxCodeAttempts; i++ {
		code := rules.GenerateCode(d.intn)
		if _, taken := d.rooms[code]; !taken {
			return code
		}
	}
	for {
		code := rules.FallbackCode()
		if _, taken := d.rooms[code]; !taken {
			return code
		}
	}
}

// Get 根据房间码获取房间
func (d *Directory) Get(code string) (*models.Room, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	room, exists := d.rooms[rules.NormalizeCode(code)]
	if !exists {
		return nil, models.Errorf(models.KindNotFound, "session %s not found", code)
	}
	return room, nil
}

// ForConn returns the session a connection is seated in.
func (d *Directory) ForConn(connID string) (*models.Room, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	code, ok := d.connIndex[connID]
	if !ok {
		return nil, false
	}
	room, ok := d.rooms[code]
	return room, ok
}

// Live reports whether room is still registered. A room can be deleted between lookup and lock.
func (d *Directory) Live(room *models.Room) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.rooms[room.Code] == room
}

// JoinSession seats identity in room, reclaiming a disconnected seat of the same user.
func (d *Directory) JoinSession(room *models.Room, id Identity) (JoinResult, error) {
	if !d.Live(room) {
		return JoinResult{}, models.Errorf(models.KindNotFound, "session %s not found", room.Code)
	}
	if err := validateIdentity(id); err != nil {
		return JoinResult{}, err
	}

	if existing, ok := room.PlayerByUserID(id.UserID); ok {
		if existing.Connected {
			return JoinResult{}, models.Errorf(models.KindAlreadyConnected, "user is already connected to this session")
		}
		if err := d.checkConnFree(id.ConnID, room.Code); err != nil {
			return JoinResult{}, err
		}
		previous := existing.ID
		room.ReplacePlayerID(previous, id.ConnID)
		existing.Connected = true
		existing.ReconnectDeadline = nil
		existing.Name = strings.TrimSpace(id.Name)
		existing.IsHost = room.HostID == existing.ID

		d.mutex.Lock()
		delete(d.connIndex, previous)
		d.connIndex[id.ConnID] = room.Code
		d.mutex.Unlock()

		return JoinResult{Room: room, Player: existing, Reconnected: true, PreviousPlayerID: previous}, nil
	}

	if room.Status != models.StatusLobby {
		return JoinResult{}, models.Errorf(models.KindClosed, "game already started")
	}
	if len(room.Players) >= d.maxPlayers {
		return JoinResult{}, models.Errorf(models.KindFull, "session is full")
	}
	if err := d.checkConnFree(id.ConnID, room.Code); err != nil {
		return JoinResult{}, err
	}

	player := &models.Player{
		ID:        id.ConnID,
		UserID:    id.UserID,
		Name:      strings.TrimSpace(id.Name),
		Connected: true,
	}
	room.AddPlayer(player)

	d.mutex.Lock()
	d.connIndex[id.ConnID] = room.Code
	d.mutex.Unlock()

	return JoinResult{Room: room, Player: player}, nil
}

func (d *Directory) checkConnFree(connID, code string) error {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	current, busy := d.connIndex[connID]
	switch {
	case !busy:
		return nil
	case current == code:
		return models.Errorf(models.KindAlreadyConnected, "connection is already seated in this session")
	default:
		return models.Errorf(models.KindAlreadyInProgress, "connection is already in session %s", current)
	}
}

// DisconnectPlayer keeps the seat, host role included, but marks it disconnected until the
// returned deadline.
func (d *Directory) DisconnectPlayer(room *models.Room, connID string) (DisconnectResult, error) {
	p, ok := room.Player(connID)
	if !ok {
		return DisconnectResult{}, models.Errorf(models.KindNotFound, "player %s not in session", connID)
	}
	p.Connected = false
	deadline := d.clock.Now().Add(d.grace)
	p.ReconnectDeadline = &deadline
	return DisconnectResult{PlayerID: connID, ReconnectDeadline: deadline}, nil
}

// RemovePlayer hard-removes a seat and reassigns every pointer to it. The session is deleted
// when its last player leaves.
func (d *Directory) RemovePlayer(room *models.Room, playerID string) (RemoveResult, error) {
	if _, ok := room.RemovePlayer(playerID); !ok {
		return RemoveResult{}, models.Errorf(models.KindNotFound, "player %s not in session", playerID)
	}
	res := RemoveResult{PlayerID: playerID}

	d.mutex.Lock()
	delete(d.connIndex, playerID)
	if len(room.Players) == 0 {
		if d.rooms[room.Code] == room {
			delete(d.rooms, room.Code)
		}
		d.mutex.Unlock()
		res.RoomDeleted = true
		return res, nil
	}
	d.mutex.Unlock()

	remaining := room.ConnectedPlayers()
	if len(remaining) == 0 {
		remaining = room.OrderedPlayers()
	}
	g := &room.Game
	if g.CurrentTurnPlayerID == playerID {
		g.CurrentTurnPlayerID = remaining[0].ID
	}
	if g.BuzzedPlayerID == playerID {
		g.BuzzedPlayerID = ""
	}
	if g.DailyDoublePlayerID == playerID {
		g.DailyDoublePlayerID = ""
	}
	if room.HostID == playerID {
		setHost(room, remaining[0].ID)
		res.NewHostID = room.HostID
	}
	return res, nil
}

func setHost(room *models.Room, id string) {
	room.HostID = id
	for _, p := range room.Players {
		p.IsHost = p.ID == id
	}
}

// Delete drops a session and every index entry pointing at it.
func (d *Directory) Delete(room *models.Room) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.rooms[room.Code] != room {
		return
	}
	delete(d.rooms, room.Code)
	for connID, code := range d.connIndex {
		if code == room.Code {
			delete(d.connIndex, connID)
		}
	}
}

func (d *Directory) all() []*models.Room {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rooms := make([]*models.Room, 0, len(d.rooms))
	for _, room := range d.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Count 当前房间数
func (d *Directory) Count() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return len(d.rooms)
}

// List returns one summary per live session, newest first.
func (d *Directory) List() []models.SessionSummary {
	rooms := d.all()
	summaries := make([]models.SessionSummary, 0, len(rooms))
	for _, room := range rooms {
		room.Lock()
		summaries = append(summaries, d.summarize(room))
		room.Unlock()
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries
}

func (d *Directory) summarize(room *models.Room) models.SessionSummary {
	hostName := ""
	if host, ok := room.Player(room.HostID); ok {
		hostName = host.Name
	}
	return models.SessionSummary{
		Code:           room.Code,
		HostName:       hostName,
		Status:         room.Status,
		PlayerCount:    len(room.Players),
		ConnectedCount: room.ConnectedCount(),
		MaxPlayers:     d.maxPlayers,
		Config:         room.Config,
		CreatedAt:      room.CreatedAt,
	}
}

// Idle returns sessions whose last activity is before cutoff.
func (d *Directory) Idle(cutoff time.Time) []*models.Room {
	var idle []*models.Room
	for _, room := range d.all() {
		room.Lock()
		if room.LastActivity.Before(cutoff) {
			idle = append(idle, room)
		}
		room.Unlock()
	}
	return idle
}
