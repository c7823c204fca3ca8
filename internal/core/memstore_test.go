package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/talkwire/talkwire-server/internal/store"
)

// memStore is an in-memory store.Store for hub tests.
type memStore struct {
	mu sync.Mutex

	users    map[int64]*store.User
	convs    map[int64]*store.Conversation
	messages map[int64]*store.Message
	calls    map[string]*store.Call

	nextConvID int64
	nextMsgID  int64

	failSave bool // when set, SaveMessage fails
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[int64]*store.User),
		convs:    make(map[int64]*store.Conversation),
		messages: make(map[int64]*store.Message),
		calls:    make(map[string]*store.Call),
	}
}

func (m *memStore) addUser(id int64, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &store.User{ID: id, Username: username, Status: store.StatusOffline}
}

func (m *memStore) addConversation(participants ...int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextConvID++
	id := m.nextConvID
	m.convs[id] = &store.Conversation{
		ID:           id,
		Type:         store.ConversationPrivate,
		Participants: participants,
	}
	return id
}

func (m *memStore) message(id int64) *store.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.messages[id]
	if msg == nil {
		return nil
	}
	cp := *msg
	cp.ReadBy = append([]store.ReadReceipt(nil), msg.ReadBy...)
	return &cp
}

func (m *memStore) callByRoom(roomID string) *store.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.calls {
		if call.RoomID == roomID {
			cp := *call
			return &cp
		}
	}
	return nil
}

// ==== store.Store ====

func (m *memStore) CreateUser(context.Context, string, string, string) (*store.User, error) {
	return nil, errors.New("not supported")
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetUserByUsername(context.Context, string) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (m *memStore) UpdateUserStatus(_ context.Context, userID int64, status store.UserStatus, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.Status = status
		u.LastSeen = lastSeen
	}
	return nil
}

func (m *memStore) CreateConversation(_ context.Context, conv *store.Conversation) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextConvID++
	conv.ID = m.nextConvID
	m.convs[conv.ID] = conv
	return conv, nil
}

func (m *memStore) GetConversation(_ context.Context, id int64) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

func (m *memStore) ListConversationsForUser(_ context.Context, userID int64) ([]*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Conversation
	for _, conv := range m.convs {
		for _, pid := range conv.Participants {
			if pid == userID {
				out = append(out, conv)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) IsParticipant(_ context.Context, conversationID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[conversationID]
	if !ok {
		return false, nil
	}
	for _, pid := range conv.Participants {
		if pid == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) SetLastMessage(_ context.Context, conversationID, messageID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.convs[conversationID]; ok {
		conv.LastMessageID = &messageID
		conv.LastMessageAt = at
	}
	return nil
}

func (m *memStore) SaveMessage(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("store unavailable")
	}
	m.nextMsgID++
	msg.ID = m.nextMsgID
	cp := *msg
	cp.ReadBy = append([]store.ReadReceipt(nil), msg.ReadBy...)
	m.messages[msg.ID] = &cp
	return nil
}

func (m *memStore) GetMessage(_ context.Context, id int64) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *msg
	cp.ReadBy = append([]store.ReadReceipt(nil), msg.ReadBy...)
	return &cp, nil
}

func (m *memStore) UpdateMessage(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[msg.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *msg
	cp.ReadBy = append([]store.ReadReceipt(nil), msg.ReadBy...)
	m.messages[msg.ID] = &cp
	return nil
}

func (m *memStore) MarkRead(_ context.Context, conversationID int64, messageIDs []int64, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range messageIDs {
		msg, ok := m.messages[id]
		if !ok || msg.ConversationID != conversationID {
			continue
		}
		already := false
		for _, r := range msg.ReadBy {
			if r.UserID == userID {
				already = true
				break
			}
		}
		if !already {
			msg.ReadBy = append(msg.ReadBy, store.ReadReceipt{UserID: userID, ReadAt: at})
		}
	}
	return nil
}

func (m *memStore) ListMessages(context.Context, int64, int, *int64) ([]*store.Message, error) {
	return nil, nil
}

func (m *memStore) CreateCall(_ context.Context, call *store.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *call
	m.calls[call.ID] = &cp
	return nil
}

func (m *memStore) UpdateCall(_ context.Context, call *store.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[call.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *call
	m.calls[call.ID] = &cp
	return nil
}

func (m *memStore) GetCall(_ context.Context, id string) (*store.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *call
	return &cp, nil
}

func (m *memStore) GetCallByRoomID(_ context.Context, roomID string) (*store.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.calls {
		if call.RoomID == roomID {
			cp := *call
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) Close() error { return nil }
