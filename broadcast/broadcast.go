// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// 广播接口
type Broadcaster interface {
	SendTo(connID string, msgID uint16, payload any) error
	BroadcastToRoom(code string, msgID uint16, payload any) error
	BroadcastToUsers(userIDs []string, msgID uint16, payload any) error
	Subscribe(code, connID string)
	Unsubscribe(code, connID string)
	Drop(code string)
}

// RoomBroadcaster fans payloads out to the audience of a session: its seated players
// and any spectators.
type RoomBroadcaster struct {
	sessionManager *session.Manager
	audience       map[string]map[string]struct{} // code -> conn ids
	mutex          sync.RWMutex
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
		audience:       make(map[string]map[string]struct{}),
	}
}

// Subscribe adds connID to the audience of code.
func (b *RoomBroadcaster) Subscribe(code, connID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	members, ok := b.audience[code]
	if !ok {
		members = make(map[string]struct{})
		b.audience[code] = members
	}
	members[connID] = struct{}{}
}

// Unsubscribe removes connID from code, dropping the audience once empty.
func (b *RoomBroadcaster) Unsubscribe(code, connID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	members, ok := b.audience[code]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(b.audience, code)
	}
}

// Drop forgets the whole audience of code.
func (b *RoomBroadcaster) Drop(code string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delete(b.audience, code)
}

func (b *RoomBroadcaster) members(code string) []string {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	members := b.audience[code]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

func (b *RoomBroadcaster) SendTo(connID string, msgID uint16, payload any) error {
	s, ok := b.sessionManager.Get(connID)
	if !ok {
		return ErrSessionNotFound
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.Send(msgID, data)
}

func (b *RoomBroadcaster) BroadcastToRoom(code string, msgID uint16, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	for _, id := range b.members(code) {
		s, ok := b.sessionManager.Get(id)
		if !ok {
			continue
		}
		if err := s.Send(msgID, data); err != nil {
			// 发送失败的连接由读循环负责断开
			logger.Log.Warnf("broadcast to %s in %s failed: %v", id, code, err)
		}
	}
	return nil
}

func (b *RoomBroadcaster) BroadcastToUsers(userIDs []string, msgID uint16, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	for _, userID := range userIDs {
		for _, s := range b.sessionManager.GetByUserID(userID) {
			if err := s.Send(msgID, data); err != nil {
				logger.Log.Warnf("send to user %s failed: %v", userID, err)
			}
		}
	}
	return nil
}
