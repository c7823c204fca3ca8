package core

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/talkwire/talkwire-server/internal/log"
	"github.com/talkwire/talkwire-server/internal/store"
)

// Hub coordinates presence, message fan-out and call signaling. A single
// goroutine (Run) owns all of its maps; clients talk to it through
// channels, so handlers run to completion without locks and commands from
// one connection are processed in emission order.
type Hub struct {
	store store.Store
	log   *zerolog.Logger

	registerCh   chan *Client
	unregisterCh chan *Client
	commands     chan clientCommand

	sessions *SessionRegistry
	calls    *CallRegistry
	rooms    map[string]*Room
	conns    map[string]*Client // connection ID -> client
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// NewHub constructs a hub. The store may be nil for tests that exercise
// only room plumbing; any operation that needs persistence then fails
// with a persistence error event.
func NewHub(st store.Store, logger *zerolog.Logger) *Hub {
	if logger == nil {
		logger = log.Nop()
	}
	return &Hub{
		store:        st,
		log:          logger,
		registerCh:   make(chan *Client),
		unregisterCh: make(chan *Client),
		commands:     make(chan clientCommand, 64),
		sessions:     NewSessionRegistry(),
		calls:        NewCallRegistry(),
		rooms:        make(map[string]*Room),
		conns:        make(map[string]*Client),
	}
}

// RegisterClient hands an authenticated connection to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.registerCh <- c
}

// UnregisterClient removes a connection from the hub.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregisterCh <- c
}

// Run processes registrations and commands until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.registerCh:
			h.handleRegister(ctx, c)
		case c := <-h.unregisterCh:
			h.handleUnregister(ctx, c)
		case cc := <-h.commands:
			h.handleCommand(ctx, cc.client, cc.cmd)
		case <-ctx.Done():
			return
		}
	}
}

func conversationRoom(conversationID int64) string {
	return "conv:" + strconv.FormatInt(conversationID, 10)
}

// ==== connection lifecycle ====

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	h.conns[c.ID] = c
	first := h.sessions.Register(c)

	// Pump the client's command channel into the hub loop. Per-connection
	// FIFO holds because each client has exactly one pump.
	go func() {
		for {
			select {
			case cmd, ok := <-c.Commands:
				if !ok {
					return
				}
				select {
				case h.commands <- clientCommand{client: c, cmd: cmd}:
				case <-c.done:
					return
				case <-ctx.Done():
					return
				}
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	// Join all conversations the user participates in.
	if h.store != nil {
		conversations, err := h.store.ListConversationsForUser(ctx, c.UserID)
		if err != nil {
			h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("failed to load conversations")
		} else {
			for _, conv := range conversations {
				h.joinRoom(c, conversationRoom(conv.ID))
			}
		}
	}

	if first {
		now := time.Now()
		if h.store != nil {
			// Presence writes are best-effort; the broadcast goes out regardless.
			if err := h.store.UpdateUserStatus(ctx, c.UserID, store.StatusOnline, now); err != nil {
				h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("failed to persist online status")
			}
		}
		h.broadcastAll(&Event{
			Kind:   EventUserOnline,
			UserID: c.UserID,
			Status: store.StatusOnline,
		}, c)
	}

	h.log.Debug().Str("conn_id", c.ID).Int64("user_id", c.UserID).Str("username", c.Username).Msg("client registered")
}

func (h *Hub) handleUnregister(ctx context.Context, c *Client) {
	if _, known := h.conns[c.ID]; !known {
		return
	}
	close(c.done)
	delete(h.conns, c.ID)

	for key := range c.Rooms {
		if room, ok := h.rooms[key]; ok {
			room.RemoveClient(c)
			if room.Empty() {
				delete(h.rooms, key)
			}
		}
	}
	c.Rooms = make(map[string]struct{})

	last := h.sessions.Unregister(c)
	if last {
		now := time.Now()
		if h.store != nil {
			if err := h.store.UpdateUserStatus(ctx, c.UserID, store.StatusOffline, now); err != nil {
				h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("failed to persist offline status")
			}
		}
		h.broadcastAll(&Event{
			Kind:     EventUserOffline,
			UserID:   c.UserID,
			Status:   store.StatusOffline,
			LastSeen: now,
		}, c)
	}

	// No further sends can target this client; safe to release the writer.
	close(c.Events)

	h.log.Debug().Str("conn_id", c.ID).Int64("user_id", c.UserID).Msg("client unregistered")
}

// IsOnline reports whether the user currently has a live connection. Only
// meaningful when called from the hub goroutine (tests drive it through
// commands or after Run has quiesced).
func (h *Hub) IsOnline(userID int64) bool {
	return h.sessions.IsOnline(userID)
}

// ==== command dispatch ====

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	// A frame can sit queued behind its connection's disconnect. The
	// sender is gone and its Events channel is closed, so drop it.
	if _, ok := h.conns[c.ID]; !ok {
		return
	}

	switch cmd.Kind {
	case CommandTypingStart:
		h.relayTyping(c, cmd.ConversationID, EventTypingStart)
	case CommandTypingStop:
		h.relayTyping(c, cmd.ConversationID, EventTypingStop)
	case CommandSendMessage:
		h.handleSendMessage(ctx, c, cmd)
	case CommandEditMessage:
		h.handleEditMessage(ctx, c, cmd)
	case CommandDeleteMessage:
		h.handleDeleteMessage(ctx, c, cmd)
	case CommandMarkRead:
		h.handleMarkRead(ctx, c, cmd)
	case CommandJoinConversation:
		h.joinRoom(c, conversationRoom(cmd.ConversationID))
	case CommandLeaveConversation:
		h.leaveRoom(c, conversationRoom(cmd.ConversationID))
	case CommandInitiateCall:
		h.handleInitiateCall(ctx, c, cmd)
	case CommandAcceptCall:
		h.handleAcceptCall(ctx, c, cmd)
	case CommandRejectCall:
		h.handleRejectCall(ctx, c, cmd)
	case CommandEndCall:
		h.handleEndCall(ctx, c, cmd)
	case CommandJoinCallRoom:
		h.handleJoinCallRoom(c, cmd)
	case CommandLeaveCallRoom:
		h.handleLeaveCallRoom(c, cmd)
	case CommandRelaySignal:
		h.handleRelaySignal(c, cmd)
	default:
		h.sendError(c, ErrCodeInvalidMessage, "unknown command")
	}
}

// ==== presence & typing ====

func (h *Hub) relayTyping(c *Client, conversationID int64, kind EventKind) {
	room, ok := h.rooms[conversationRoom(conversationID)]
	if !ok {
		return
	}
	room.BroadcastExcept(&Event{
		Kind:           kind,
		ConversationID: conversationID,
		UserID:         c.UserID,
		Username:       c.Username,
	}, c)
}

// ==== message fan-out ====

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, cmd *Command) {
	if cmd.Content == "" && cmd.File == nil {
		h.sendError(c, ErrCodeBadRequest, "content is required")
		return
	}
	if h.store == nil {
		h.sendError(c, ErrCodePersistence, "no message store")
		return
	}

	// Membership is checked against the store at send time, never the cache.
	conv, err := h.store.GetConversation(ctx, cmd.ConversationID)
	if err != nil || !containsUser(conv.Participants, c.UserID) {
		h.sendError(c, ErrCodeNotParticipant, "conversation not found")
		return
	}

	msgType := cmd.MsgType
	if msgType == "" {
		msgType = store.MessageText
	}

	now := time.Now()
	msg := &store.Message{
		ConversationID: conv.ID,
		SenderID:       c.UserID,
		SenderName:     c.Username,
		Content:        cmd.Content,
		Type:           msgType,
		ReadBy:         []store.ReadReceipt{{UserID: c.UserID, ReadAt: now}},
		CreatedAt:      now,
	}
	if cmd.File != nil {
		msg.FileURL = cmd.File.URL
		msg.FileName = cmd.File.Name
		msg.FileSize = cmd.File.Size
		msg.MimeType = cmd.File.MimeType
		msg.Thumbnail = cmd.File.Thumbnail
	}

	// Unpersisted mutations are never broadcast.
	if err := h.store.SaveMessage(ctx, msg); err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conv.ID).Msg("failed to save message")
		h.sendError(c, ErrCodePersistence, "failed to send message")
		return
	}
	if err := h.store.SetLastMessage(ctx, conv.ID, msg.ID, now); err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conv.ID).Msg("failed to update conversation")
		h.sendError(c, ErrCodePersistence, "failed to send message")
		return
	}

	h.broadcastRoom(conversationRoom(conv.ID), &Event{
		Kind:           EventMessageNew,
		ConversationID: conv.ID,
		Message:        msg,
	})

	// Advisory only: who missed the fan-out. Push notification hooks would
	// consume this; the core just records it.
	var offline []int64
	for _, pid := range conv.Participants {
		if pid != c.UserID && !h.sessions.IsOnline(pid) {
			offline = append(offline, pid)
		}
	}
	if len(offline) > 0 {
		h.log.Info().Ints64("user_ids", offline).Int64("conversation_id", conv.ID).Msg("participants offline during fan-out")
	}
}

func (h *Hub) handleEditMessage(ctx context.Context, c *Client, cmd *Command) {
	if cmd.Content == "" {
		h.sendError(c, ErrCodeBadRequest, "content is required")
		return
	}
	if h.store == nil {
		h.sendError(c, ErrCodePersistence, "no message store")
		return
	}

	msg, err := h.store.GetMessage(ctx, cmd.MessageID)
	if err != nil || msg.SenderID != c.UserID || msg.Deleted {
		h.sendError(c, ErrCodeNotFound, "message not found")
		return
	}

	now := time.Now()
	msg.Content = cmd.Content
	msg.Edited = true
	msg.EditedAt = &now

	if err := h.store.UpdateMessage(ctx, msg); err != nil {
		h.log.Error().Err(err).Int64("message_id", msg.ID).Msg("failed to edit message")
		h.sendError(c, ErrCodePersistence, "failed to edit message")
		return
	}

	h.broadcastRoom(conversationRoom(msg.ConversationID), &Event{
		Kind:           EventMessageEdited,
		ConversationID: msg.ConversationID,
		Message:        msg,
	})
}

func (h *Hub) handleDeleteMessage(ctx context.Context, c *Client, cmd *Command) {
	if h.store == nil {
		h.sendError(c, ErrCodePersistence, "no message store")
		return
	}

	msg, err := h.store.GetMessage(ctx, cmd.MessageID)
	if err != nil || msg.SenderID != c.UserID {
		h.sendError(c, ErrCodeNotFound, "message not found")
		return
	}
	if msg.Deleted {
		// Already tombstoned; nothing to persist or fan out.
		return
	}

	msg.Deleted = true
	msg.Content = Tombstone

	if err := h.store.UpdateMessage(ctx, msg); err != nil {
		h.log.Error().Err(err).Int64("message_id", msg.ID).Msg("failed to delete message")
		h.sendError(c, ErrCodePersistence, "failed to delete message")
		return
	}

	// The tombstone text is not re-sent; receivers render the deletion.
	h.broadcastRoom(conversationRoom(msg.ConversationID), &Event{
		Kind:           EventMessageDeleted,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
	})
}

func (h *Hub) handleMarkRead(ctx context.Context, c *Client, cmd *Command) {
	ids := filterMessageIDs(cmd.MessageIDs)
	if len(ids) == 0 || h.store == nil {
		return
	}

	if err := h.store.MarkRead(ctx, cmd.ConversationID, ids, c.UserID, time.Now()); err != nil {
		h.log.Error().Err(err).Int64("conversation_id", cmd.ConversationID).Msg("failed to mark messages read")
		return
	}

	if room, ok := h.rooms[conversationRoom(cmd.ConversationID)]; ok {
		room.BroadcastExcept(&Event{
			Kind:           EventMessagesRead,
			ConversationID: cmd.ConversationID,
			UserID:         c.UserID,
			MessageIDs:     ids,
		}, c)
	}
}

// ==== call signaling ====

func (h *Hub) handleInitiateCall(ctx context.Context, c *Client, cmd *Command) {
	if cmd.Media != store.CallAudio && cmd.Media != store.CallVideo {
		h.sendError(c, ErrCodeBadRequest, "call type must be audio or video")
		return
	}
	if h.store == nil {
		h.sendCallFailed(c, "failed to initiate call")
		return
	}

	// Membership gates call initiation the same way it gates messages.
	conv, err := h.store.GetConversation(ctx, cmd.ConversationID)
	if err != nil || !containsUser(conv.Participants, c.UserID) {
		h.sendError(c, ErrCodeNotParticipant, "conversation not found")
		return
	}

	// An explicit receiver rings one user; without one, every other
	// participant of the conversation is rung (group call).
	var targets []int64
	if cmd.ReceiverID != 0 {
		targets = []int64{cmd.ReceiverID}
	} else {
		for _, pid := range conv.Participants {
			if pid != c.UserID {
				targets = append(targets, pid)
			}
		}
	}

	// Room identifiers are generated fresh per attempt and never reused.
	roomID := uuid.New().String()
	callID := uuid.New().String()
	now := time.Now()

	call := &store.Call{
		ID:             callID,
		ConversationID: cmd.ConversationID,
		CallerID:       c.UserID,
		Participants:   append([]int64{c.UserID}, targets...),
		Type:           cmd.Media,
		Status:         store.CallInitiated,
		RoomID:         roomID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if cmd.ReceiverID != 0 {
		receiverID := cmd.ReceiverID
		call.ReceiverID = &receiverID
	}

	if err := h.store.CreateCall(ctx, call); err != nil {
		h.log.Error().Err(err).Str("call_id", callID).Msg("failed to create call")
		h.sendCallFailed(c, "failed to initiate call")
		return
	}

	h.calls.Add(callID, roomID, c.UserID)
	h.joinRoom(c, roomID)

	var receivers []*Client
	for _, uid := range targets {
		receivers = append(receivers, h.sessions.ClientsFor(uid)...)
	}
	if len(receivers) == 0 {
		// No ring is attempted; the attempt is recorded as missed.
		call.Status = store.CallMissed
		if err := h.store.UpdateCall(ctx, call); err != nil {
			h.log.Error().Err(err).Str("call_id", callID).Msg("failed to mark call missed")
		}
		h.calls.Remove(callID)
		h.leaveRoom(c, roomID)
		h.sendCallFailed(c, "User is offline")
		return
	}

	for _, rc := range receivers {
		h.sendEvent(rc, &Event{
			Kind: EventCallIncoming,
			Call: &CallEvent{
				Call:       call,
				RoomID:     roomID,
				CallerID:   c.UserID,
				CallerName: c.Username,
			},
		})
	}

	call.Status = store.CallRinging
	if err := h.store.UpdateCall(ctx, call); err != nil {
		h.log.Error().Err(err).Str("call_id", callID).Msg("failed to mark call ringing")
		h.cleanupCallRoom(roomID)
		h.sendCallFailed(c, "failed to initiate call")
		return
	}

	h.sendEvent(c, &Event{
		Kind: EventCallInitiated,
		Call: &CallEvent{Call: call, RoomID: roomID},
	})
}

func (h *Hub) handleAcceptCall(ctx context.Context, c *Client, cmd *Command) {
	call := h.lookupCall(ctx, c, cmd.RoomID)
	if call == nil {
		return
	}
	if call.Status != store.CallRinging {
		h.sendCallFailed(c, "Call not found")
		return
	}

	now := time.Now()
	call.Status = store.CallOngoing
	call.StartedAt = &now

	if err := h.store.UpdateCall(ctx, call); err != nil {
		h.log.Error().Err(err).Str("call_id", call.ID).Msg("failed to mark call ongoing")
		h.cleanupCallRoom(cmd.RoomID)
		h.sendCallFailed(c, "failed to accept call")
		return
	}

	h.joinRoom(c, cmd.RoomID)
	h.calls.Join(cmd.RoomID, c.UserID)

	h.broadcastRoom(cmd.RoomID, &Event{
		Kind: EventCallAccepted,
		Call: &CallEvent{Call: call, RoomID: cmd.RoomID, UserID: c.UserID},
	})
}

func (h *Hub) handleRejectCall(ctx context.Context, c *Client, cmd *Command) {
	call := h.lookupCall(ctx, c, cmd.RoomID)
	if call == nil {
		return
	}
	if call.Status != store.CallRinging {
		return
	}

	call.Status = store.CallRejected
	if err := h.store.UpdateCall(ctx, call); err != nil {
		h.log.Error().Err(err).Str("call_id", call.ID).Msg("failed to mark call rejected")
	}

	h.broadcastRoom(cmd.RoomID, &Event{
		Kind: EventCallRejected,
		Call: &CallEvent{Call: call, RoomID: cmd.RoomID, UserID: c.UserID},
	})
	h.cleanupCallRoom(cmd.RoomID)
}

func (h *Hub) handleEndCall(ctx context.Context, c *Client, cmd *Command) {
	call := h.lookupCall(ctx, c, cmd.RoomID)
	if call == nil {
		return
	}

	if !call.Status.Terminal() {
		now := time.Now()
		call.Status = store.CallEnded
		call.EndedAt = &now
		if call.StartedAt != nil {
			call.Duration = int64(now.Sub(*call.StartedAt) / time.Second)
		}
		if err := h.store.UpdateCall(ctx, call); err != nil {
			h.log.Error().Err(err).Str("call_id", call.ID).Msg("failed to mark call ended")
		}
	}

	h.broadcastRoom(cmd.RoomID, &Event{
		Kind: EventCallEnded,
		Call: &CallEvent{Call: call, RoomID: cmd.RoomID, UserID: c.UserID},
	})
	h.cleanupCallRoom(cmd.RoomID)
}

func (h *Hub) handleJoinCallRoom(c *Client, cmd *Command) {
	h.joinRoom(c, cmd.RoomID)

	if h.calls.Join(cmd.RoomID, c.UserID) {
		if room, ok := h.rooms[cmd.RoomID]; ok {
			room.BroadcastExcept(&Event{
				Kind: EventCallParticipantJoined,
				Call: &CallEvent{RoomID: cmd.RoomID, UserID: c.UserID, ConnID: c.ID},
			}, c)
		}
	}
}

func (h *Hub) handleLeaveCallRoom(c *Client, cmd *Command) {
	h.leaveRoom(c, cmd.RoomID)

	if room, ok := h.rooms[cmd.RoomID]; ok {
		room.BroadcastExcept(&Event{
			Kind: EventCallParticipantLeft,
			Call: &CallEvent{RoomID: cmd.RoomID, UserID: c.UserID},
		}, c)
	}
	h.calls.Leave(cmd.RoomID, c.UserID)
}

func (h *Hub) handleRelaySignal(c *Client, cmd *Command) {
	if cmd.Signal == nil {
		h.sendError(c, ErrCodeBadRequest, "signal payload is required")
		return
	}

	ev := &Event{
		Kind:   EventSignal,
		Signal: &SignalEvent{Kind: cmd.Signal.Kind, From: c.ID, Payload: cmd.Signal.Payload},
	}

	// Unicast when a target connection is named, room broadcast otherwise.
	// The call status is deliberately not checked: signaling may arrive
	// before the state machine catches up.
	if cmd.Signal.TargetConn != "" {
		if target, ok := h.conns[cmd.Signal.TargetConn]; ok {
			h.sendEvent(target, ev)
		}
		return
	}
	if room, ok := h.rooms[cmd.RoomID]; ok {
		room.BroadcastExcept(ev, c)
	}
}

// lookupCall fetches a call by room, reporting CallNotFound to the caller
// on miss. Also fails when no store is configured.
func (h *Hub) lookupCall(ctx context.Context, c *Client, roomID string) *store.Call {
	if h.store == nil {
		h.sendCallFailed(c, "Call not found")
		return nil
	}
	call, err := h.store.GetCallByRoomID(ctx, roomID)
	if err != nil {
		h.sendCallFailed(c, "Call not found")
		return nil
	}
	return call
}

// cleanupCallRoom tears down the signaling room and the active-call entry.
func (h *Hub) cleanupCallRoom(roomID string) {
	h.calls.RemoveByRoom(roomID)
	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for client := range room.clients {
		delete(client.Rooms, roomID)
	}
	delete(h.rooms, roomID)
}

// ==== plumbing ====

func (h *Hub) joinRoom(c *Client, key string) {
	room, ok := h.rooms[key]
	if !ok {
		room = NewRoom(key)
		h.rooms[key] = room
	}
	room.AddClient(c)
	c.Rooms[key] = struct{}{}
}

func (h *Hub) leaveRoom(c *Client, key string) {
	room, ok := h.rooms[key]
	if !ok {
		return
	}
	room.RemoveClient(c)
	delete(c.Rooms, key)
	if room.Empty() {
		delete(h.rooms, key)
	}
}

func (h *Hub) broadcastRoom(key string, ev *Event) {
	if room, ok := h.rooms[key]; ok {
		room.Broadcast(ev)
	}
}

func (h *Hub) broadcastAll(ev *Event, except *Client) {
	for _, client := range h.conns {
		if client == except {
			continue
		}
		h.sendEvent(client, ev)
	}
}

func (h *Hub) sendEvent(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		h.log.Debug().Str("conn_id", c.ID).Msg("dropping event for slow consumer")
	}
}

func (h *Hub) sendError(c *Client, code, msg string) {
	h.sendEvent(c, &Event{Kind: EventError, Error: coreError(code, msg)})
}

func (h *Hub) sendCallFailed(c *Client, reason string) {
	h.sendEvent(c, &Event{Kind: EventCallFailed, Call: &CallEvent{Reason: reason}})
}

func containsUser(ids []int64, userID int64) bool {
	for _, id := range ids {
		if id == userID {
			return true
		}
	}
	return false
}
