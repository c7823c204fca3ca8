package core

import (
	"encoding/json"
	"time"

	"github.com/talkwire/talkwire-server/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventUserOnline notifies that a user came online.
	EventUserOnline EventKind = iota
	// EventUserOffline notifies that a user's last connection dropped.
	EventUserOffline
	// EventTypingStart relays a typing indicator.
	EventTypingStart
	// EventTypingStop relays the end of a typing indicator.
	EventTypingStop
	// EventMessageNew delivers a freshly persisted message.
	EventMessageNew
	// EventMessageEdited delivers an edited message.
	EventMessageEdited
	// EventMessageDeleted announces a tombstoned message by identifier.
	EventMessageDeleted
	// EventMessagesRead carries read receipts for a set of messages.
	EventMessagesRead
	// EventError notifies the originating client about a domain error.
	EventError

	// Call events
	// EventCallIncoming notifies the receiver's connections of an incoming call.
	EventCallIncoming
	// EventCallInitiated confirms to the caller that the call is ringing.
	EventCallInitiated
	// EventCallAccepted notifies the call room that the call was answered.
	EventCallAccepted
	// EventCallRejected notifies the call room that the call was declined.
	EventCallRejected
	// EventCallEnded notifies the call room that the call has terminated.
	EventCallEnded
	// EventCallFailed reports a call setup error to the originating client.
	EventCallFailed
	// EventCallParticipantJoined announces a late joiner to the call room.
	EventCallParticipantJoined
	// EventCallParticipantLeft announces a departure from the call room.
	EventCallParticipantLeft
	// EventSignal relays a WebRTC offer/answer/ICE payload.
	EventSignal
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind           EventKind
	ConversationID int64
	UserID         int64
	Username       string
	Status         store.UserStatus
	LastSeen       time.Time
	Message        *store.Message
	MessageID      int64
	MessageIDs     []int64
	Error          *CoreError
	Call           *CallEvent   // non-nil for call events
	Signal         *SignalEvent // non-nil for EventSignal
}

// CallEvent holds data specific to call events.
type CallEvent struct {
	Call       *store.Call
	RoomID     string
	UserID     int64
	ConnID     string
	CallerID   int64
	CallerName string
	Reason     string // for EventCallFailed
}

// SignalEvent holds a relayed WebRTC payload.
type SignalEvent struct {
	Kind    SignalKind
	From    string // originating connection identifier
	Payload json.RawMessage
}
