package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/talkwire/talkwire-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUsers(t *testing.T, s *SQLiteStore, names ...string) []int64 {
	t.Helper()

	ctx := context.Background()
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		u, err := s.CreateUser(ctx, name, name+"@example.com", "hash")
		if err != nil {
			t.Fatalf("failed to create user %s: %v", name, err)
		}
		ids = append(ids, u.ID)
	}
	return ids
}

func TestUserStatusRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice")

	u, err := s.GetUserByID(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if u.Status != store.StatusOffline {
		t.Fatalf("expected new user offline, got %s", u.Status)
	}

	lastSeen := time.Now().Truncate(time.Second)
	if err := s.UpdateUserStatus(ctx, u.ID, store.StatusOnline, lastSeen); err != nil {
		t.Fatalf("UpdateUserStatus failed: %v", err)
	}

	u, err = s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if u.Status != store.StatusOnline {
		t.Fatalf("expected online, got %s", u.Status)
	}

	if _, err := s.GetUserByUsername(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConversationMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob", "carol")

	conv, err := s.CreateConversation(ctx, &store.Conversation{
		Type:         store.ConversationPrivate,
		Participants: []int64{ids[0], ids[1]},
	})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if len(conv.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(conv.Participants))
	}

	ok, err := s.IsParticipant(ctx, conv.ID, ids[0])
	if err != nil || !ok {
		t.Fatalf("expected alice to be a participant, got ok=%v err=%v", ok, err)
	}
	ok, err = s.IsParticipant(ctx, conv.ID, ids[2])
	if err != nil || ok {
		t.Fatalf("expected carol not to be a participant, got ok=%v err=%v", ok, err)
	}

	convs, err := s.ListConversationsForUser(ctx, ids[0])
	if err != nil {
		t.Fatalf("ListConversationsForUser failed: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != conv.ID {
		t.Fatalf("unexpected conversation list: %+v", convs)
	}
}

func TestMessageLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob")
	conv, err := s.CreateConversation(ctx, &store.Conversation{
		Type:         store.ConversationPrivate,
		Participants: ids,
	})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	now := time.Now().Truncate(time.Second)
	msg := &store.Message{
		ConversationID: conv.ID,
		SenderID:       ids[0],
		Content:        "hello",
		Type:           store.MessageText,
		ReadBy:         []store.ReadReceipt{{UserID: ids[0], ReadAt: now}},
		CreatedAt:      now,
	}
	if err := s.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	if msg.ID == 0 {
		t.Fatalf("expected message ID to be set")
	}

	if err := s.SetLastMessage(ctx, conv.ID, msg.ID, now); err != nil {
		t.Fatalf("SetLastMessage failed: %v", err)
	}
	conv, err = s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if conv.LastMessageID == nil || *conv.LastMessageID != msg.ID {
		t.Fatalf("expected last message pointer %d, got %v", msg.ID, conv.LastMessageID)
	}

	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if got.SenderName != "alice" || got.Content != "hello" || len(got.ReadBy) != 1 {
		t.Fatalf("unexpected message: %+v", got)
	}

	editedAt := time.Now().Truncate(time.Second)
	got.Content = "hello, edited"
	got.Edited = true
	got.EditedAt = &editedAt
	if err := s.UpdateMessage(ctx, got); err != nil {
		t.Fatalf("UpdateMessage failed: %v", err)
	}

	got, err = s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage after edit failed: %v", err)
	}
	if !got.Edited || got.EditedAt == nil || got.Content != "hello, edited" {
		t.Fatalf("edit not persisted: %+v", got)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob")
	conv, err := s.CreateConversation(ctx, &store.Conversation{
		Type:         store.ConversationPrivate,
		Participants: ids,
	})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	now := time.Now().Truncate(time.Second)
	msg := &store.Message{
		ConversationID: conv.ID,
		SenderID:       ids[0],
		Content:        "hi",
		Type:           store.MessageText,
		ReadBy:         []store.ReadReceipt{{UserID: ids[0], ReadAt: now}},
		CreatedAt:      now,
	}
	if err := s.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.MarkRead(ctx, conv.ID, []int64{msg.ID}, ids[1], time.Now()); err != nil {
			t.Fatalf("MarkRead #%d failed: %v", i+1, err)
		}
	}

	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if len(got.ReadBy) != 2 {
		t.Fatalf("expected 2 read receipts, got %d", len(got.ReadBy))
	}

	// A message from another conversation must not be marked.
	other, err := s.CreateConversation(ctx, &store.Conversation{
		Type:         store.ConversationPrivate,
		Participants: ids,
	})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if err := s.MarkRead(ctx, other.ID, []int64{msg.ID}, ids[1], time.Now()); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	got, _ = s.GetMessage(ctx, msg.ID)
	if len(got.ReadBy) != 2 {
		t.Fatalf("cross-conversation mark leaked: %d receipts", len(got.ReadBy))
	}
}

func TestListMessagesPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob")
	conv, err := s.CreateConversation(ctx, &store.Conversation{
		Type:         store.ConversationPrivate,
		Participants: ids,
	})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		msg := &store.Message{
			ConversationID: conv.ID,
			SenderID:       ids[0],
			Content:        "m",
			Type:           store.MessageText,
			CreatedAt:      time.Now(),
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	page, err := s.ListMessages(ctx, conv.ID, 2, nil)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(page) != 2 || page[0].ID <= page[1].ID {
		t.Fatalf("expected 2 newest-first messages, got %+v", page)
	}

	before := page[1].ID
	older, err := s.ListMessages(ctx, conv.ID, 10, &before)
	if err != nil {
		t.Fatalf("ListMessages with beforeID failed: %v", err)
	}
	if len(older) != 2 {
		t.Fatalf("expected 2 older messages, got %d", len(older))
	}
	for _, m := range older {
		if m.ID >= before {
			t.Fatalf("message %d not older than %d", m.ID, before)
		}
	}
}

func TestCallRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob")
	conv, err := s.CreateConversation(ctx, &store.Conversation{
		Type:         store.ConversationPrivate,
		Participants: ids,
	})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	now := time.Now().Truncate(time.Second)
	call := &store.Call{
		ID:             "call-1",
		ConversationID: conv.ID,
		CallerID:       ids[0],
		ReceiverID:     &ids[1],
		Participants:   ids,
		Type:           store.CallAudio,
		Status:         store.CallInitiated,
		RoomID:         "room-1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.CreateCall(ctx, call); err != nil {
		t.Fatalf("CreateCall failed: %v", err)
	}

	got, err := s.GetCallByRoomID(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetCallByRoomID failed: %v", err)
	}
	if got.ID != "call-1" || got.Status != store.CallInitiated || len(got.Participants) != 2 {
		t.Fatalf("unexpected call: %+v", got)
	}

	started := now.Add(time.Second)
	ended := started.Add(42 * time.Second)
	got.Status = store.CallEnded
	got.StartedAt = &started
	got.EndedAt = &ended
	got.Duration = 42
	if err := s.UpdateCall(ctx, got); err != nil {
		t.Fatalf("UpdateCall failed: %v", err)
	}

	got, err = s.GetCall(ctx, "call-1")
	if err != nil {
		t.Fatalf("GetCall failed: %v", err)
	}
	if got.Status != store.CallEnded || got.Duration != 42 || got.StartedAt == nil || got.EndedAt == nil {
		t.Fatalf("terminal state not persisted: %+v", got)
	}

	if _, err := s.GetCallByRoomID(ctx, "no-such-room"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
