package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypingStart       = "typing:start"
	InboundTypingStop        = "typing:stop"
	InboundMessageSend       = "message:send"
	InboundMessageEdit       = "message:edit"
	InboundMessageDelete     = "message:delete"
	InboundMessageRead       = "message:read"
	InboundConversationJoin  = "conversation:join"
	InboundConversationLeave = "conversation:leave"
	InboundCallInitiate      = "call:initiate"
	InboundCallAccept        = "call:accept"
	InboundCallReject        = "call:reject"
	InboundCallEnd           = "call:end"
	InboundCallJoin          = "call:join"
	InboundCallLeave         = "call:leave"
	InboundWebRTCOffer       = "webrtc:offer"
	InboundWebRTCAnswer      = "webrtc:answer"
	InboundWebRTCICE         = "webrtc:ice-candidate"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventUserOnline            = "user:online"
	EventUserOffline           = "user:offline"
	EventTypingStart           = "typing:start"
	EventTypingStop            = "typing:stop"
	EventMessageNew            = "message:new"
	EventMessageEdited         = "message:edited"
	EventMessageDeleted        = "message:deleted"
	EventMessagesRead          = "messages:read"
	EventCallIncoming          = "call:incoming"
	EventCallInitiated         = "call:initiated"
	EventCallAccepted          = "call:accepted"
	EventCallRejected          = "call:rejected"
	EventCallEnded             = "call:ended"
	EventCallFailed            = "call:failed"
	EventCallParticipantJoined = "call:participant-joined"
	EventCallParticipantLeft   = "call:participant-left"
	EventWebRTCOffer           = "webrtc:offer"
	EventWebRTCAnswer          = "webrtc:answer"
	EventWebRTCICE             = "webrtc:ice-candidate"
)

// TypingData scopes a typing indicator to a conversation.
type TypingData struct {
	ConversationID int64 `json:"conversationId"`
}

// MessageSendData is a new chat message from the client.
type MessageSendData struct {
	ConversationID int64  `json:"conversationId"`
	Content        string `json:"content"`
	Type           string `json:"type,omitempty"`
	FileURL        string `json:"fileUrl,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	FileSize       int64  `json:"fileSize,omitempty"`
	MimeType       string `json:"mimeType,omitempty"`
	Thumbnail      string `json:"thumbnail,omitempty"`
}

// MessageEditData rewrites the content of an existing message.
type MessageEditData struct {
	MessageID int64  `json:"messageId"`
	Content   string `json:"content"`
}

// MessageDeleteData soft-deletes a message.
type MessageDeleteData struct {
	MessageID int64 `json:"messageId"`
}

// MessageReadData acknowledges a batch of messages. IDs travel as strings
// because clients may hold optimistic temp- identifiers for unsent messages.
type MessageReadData struct {
	ConversationID int64    `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

// ConversationData names a conversation room to join or leave.
type ConversationData struct {
	ConversationID int64 `json:"conversationId"`
}

// CallInitiateData starts a call towards a conversation peer.
type CallInitiateData struct {
	ConversationID int64  `json:"conversationId"`
	ReceiverID     int64  `json:"receiverId,omitempty"`
	Type           string `json:"type"`
}

// CallRoomData names a signaling room for accept/reject/end/join/leave.
type CallRoomData struct {
	RoomID string `json:"roomId"`
}

// SignalData carries an opaque WebRTC payload through a signaling room.
// Exactly one of Offer, Answer or Candidate is set, matching the inbound
// type. To optionally pins the delivery to a single connection.
type SignalData struct {
	RoomID    string          `json:"roomId"`
	To        string          `json:"to,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// UserStatusData announces a presence change.
type UserStatusData struct {
	UserID   int64      `json:"userId"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// TypingEventData relays a typing indicator to conversation peers.
type TypingEventData struct {
	ConversationID int64  `json:"conversationId"`
	UserID         int64  `json:"userId"`
	Username       string `json:"username"`
}

// MessageNewData delivers a freshly persisted message.
type MessageNewData struct {
	Message        any   `json:"message"`
	ConversationID int64 `json:"conversationId"`
}

// MessageEditedData delivers the updated message body.
type MessageEditedData struct {
	Message any `json:"message"`
}

// MessageDeletedData names a deleted message; content is never re-sent.
type MessageDeletedData struct {
	MessageID      int64 `json:"messageId"`
	ConversationID int64 `json:"conversationId"`
}

// MessagesReadData carries a read receipt batch.
type MessagesReadData struct {
	ConversationID int64   `json:"conversationId"`
	UserID         int64   `json:"userId"`
	MessageIDs     []int64 `json:"messageIds"`
}

// CallerInfo identifies the initiator of an incoming call.
type CallerInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// CallIncomingData rings a receiver.
type CallIncomingData struct {
	Call   any         `json:"call"`
	RoomID string      `json:"roomId"`
	Caller *CallerInfo `json:"caller"`
}

// CallStateData reports a call lifecycle transition to room members.
type CallStateData struct {
	Call   any    `json:"call,omitempty"`
	RoomID string `json:"roomId"`
	UserID int64  `json:"userId,omitempty"`
}

// CallFailedData reports a setup or transition failure to the caller only.
type CallFailedData struct {
	Error string `json:"error"`
}

// CallParticipantData announces a peer entering or leaving a call room.
type CallParticipantData struct {
	UserID   int64  `json:"userId"`
	SocketID string `json:"socketId"`
}

// SignalEventData is a relayed WebRTC payload with its origin connection.
type SignalEventData struct {
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
