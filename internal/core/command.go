package core

import (
	"encoding/json"

	"github.com/talkwire/talkwire-server/internal/store"
)

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandTypingStart relays a typing indicator to the conversation.
	CommandTypingStart CommandKind = iota
	// CommandTypingStop relays the end of a typing indicator.
	CommandTypingStop
	// CommandSendMessage persists and fans out a new chat message.
	CommandSendMessage
	// CommandEditMessage mutates a message the caller sent.
	CommandEditMessage
	// CommandDeleteMessage tombstones a message the caller sent.
	CommandDeleteMessage
	// CommandMarkRead records read receipts for the caller.
	CommandMarkRead
	// CommandJoinConversation subscribes the connection to a conversation room.
	CommandJoinConversation
	// CommandLeaveConversation unsubscribes the connection from a conversation room.
	CommandLeaveConversation
	// CommandInitiateCall starts the call state machine.
	CommandInitiateCall
	// CommandAcceptCall answers a ringing call.
	CommandAcceptCall
	// CommandRejectCall declines a ringing call.
	CommandRejectCall
	// CommandEndCall terminates a call.
	CommandEndCall
	// CommandJoinCallRoom adds the connection to a call signaling room.
	CommandJoinCallRoom
	// CommandLeaveCallRoom removes the connection from a call signaling room.
	CommandLeaveCallRoom
	// CommandRelaySignal passes a WebRTC payload through untouched.
	CommandRelaySignal
)

// SignalKind names the WebRTC payloads the server relays.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

// FileMeta carries optional file attachment metadata on a message.
type FileMeta struct {
	URL       string
	Name      string
	Size      int64
	MimeType  string
	Thumbnail string
}

// SignalPayload is an opaque WebRTC negotiation blob to relay.
type SignalPayload struct {
	Kind       SignalKind
	Payload    json.RawMessage
	TargetConn string // unicast target connection; empty means room broadcast
}

// Command represents an action requested by a client.
type Command struct {
	Kind           CommandKind
	ConversationID int64

	// Message fields
	MessageID  int64
	Content    string
	MsgType    store.MessageType
	File       *FileMeta
	MessageIDs []string // raw wire identifiers for mark-read, filtered by the hub

	// Call fields
	RoomID     string
	ReceiverID int64
	Media      store.CallMediaType

	// Signaling
	Signal *SignalPayload
}
