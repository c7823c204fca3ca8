package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// UserStatus is the presence state persisted for a user.
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
	StatusAway    UserStatus = "away"
)

// User represents a user in the system.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Avatar       string     `json:"avatar,omitempty"`
	Status       UserStatus `json:"status"`
	LastSeen     time.Time  `json:"lastSeen"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// ConversationType defines private (two-party) vs group conversations.
type ConversationType string

const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
)

// Conversation is a chat between two or more participants.
type Conversation struct {
	ID            int64            `json:"id"`
	Type          ConversationType `json:"type"`
	Name          string           `json:"name,omitempty"`
	Avatar        string           `json:"avatar,omitempty"`
	Participants  []int64          `json:"participants"`
	LastMessageID *int64           `json:"lastMessageId,omitempty"`
	LastMessageAt time.Time        `json:"lastMessageAt"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// MessageType classifies message content.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageVideo  MessageType = "video"
	MessageAudio  MessageType = "audio"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// ReadReceipt records that a user has read a message.
type ReadReceipt struct {
	UserID int64     `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Message is a persisted chat message.
type Message struct {
	ID             int64         `json:"id"`
	ConversationID int64         `json:"conversationId"`
	SenderID       int64         `json:"senderId"`
	SenderName     string        `json:"senderName,omitempty"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"type"`
	FileURL        string        `json:"fileUrl,omitempty"`
	FileName       string        `json:"fileName,omitempty"`
	FileSize       int64         `json:"fileSize,omitempty"`
	MimeType       string        `json:"mimeType,omitempty"`
	Thumbnail      string        `json:"thumbnail,omitempty"`
	ReadBy         []ReadReceipt `json:"readBy"`
	Edited         bool          `json:"edited"`
	EditedAt       *time.Time    `json:"editedAt,omitempty"`
	Deleted        bool          `json:"deleted"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// CallMediaType defines the media of a call.
type CallMediaType string

const (
	CallAudio CallMediaType = "audio"
	CallVideo CallMediaType = "video"
)

// CallStatus defines the call state machine states.
type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallRinging   CallStatus = "ringing"
	CallOngoing   CallStatus = "ongoing"
	CallEnded     CallStatus = "ended"
	CallMissed    CallStatus = "missed"
	CallRejected  CallStatus = "rejected"
	CallFailed    CallStatus = "failed"
)

// Terminal reports whether a call status admits no further transitions.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallEnded, CallMissed, CallRejected, CallFailed:
		return true
	}
	return false
}

// Call is a voice/video call record. Terminal calls are kept as history.
type Call struct {
	ID             string        `json:"id"` // UUID
	ConversationID int64         `json:"conversationId"`
	CallerID       int64         `json:"callerId"`
	ReceiverID     *int64        `json:"receiverId,omitempty"`
	Participants   []int64       `json:"participants"`
	Type           CallMediaType `json:"type"`
	Status         CallStatus    `json:"status"`
	RoomID         string        `json:"roomId"`
	StartedAt      *time.Time    `json:"startedAt,omitempty"`
	EndedAt        *time.Time    `json:"endedAt,omitempty"`
	Duration       int64         `json:"duration"` // whole seconds
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// UpdateUserStatus persists a presence change with a last-seen stamp.
	UpdateUserStatus(ctx context.Context, userID int64, status UserStatus, lastSeen time.Time) error
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateConversation creates a conversation with its participant set.
	CreateConversation(ctx context.Context, conv *Conversation) (*Conversation, error)

	// GetConversation retrieves a conversation with participants loaded.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// ListConversationsForUser lists all conversations the user participates in.
	ListConversationsForUser(ctx context.Context, userID int64) ([]*Conversation, error)

	// IsParticipant checks conversation membership.
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)

	// SetLastMessage updates the conversation's last-message pointer and activity stamp.
	SetLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and its initial read receipts; sets msg.ID.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message with read receipts loaded.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// UpdateMessage persists content/edited/deleted mutations.
	UpdateMessage(ctx context.Context, msg *Message) error

	// MarkRead appends a read receipt for each listed message the user has
	// not already read. Safe to call repeatedly with the same set.
	MarkRead(ctx context.Context, conversationID int64, messageIDs []int64, userID int64, at time.Time) error

	// ListMessages retrieves messages from a conversation, newest-first,
	// optionally older than beforeID.
	ListMessages(ctx context.Context, conversationID int64, limit int, beforeID *int64) ([]*Message, error)
}

// CallStore handles call persistence.
type CallStore interface {
	// CreateCall creates a new call record.
	CreateCall(ctx context.Context, call *Call) error

	// UpdateCall updates an existing call record.
	UpdateCall(ctx context.Context, call *Call) error

	// GetCall retrieves a call by ID.
	GetCall(ctx context.Context, id string) (*Call, error)

	// GetCallByRoomID retrieves a call by its signaling room ID.
	GetCallByRoomID(ctx context.Context, roomID string) (*Call, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore
	CallStore

	// Close closes the underlying database connection.
	Close() error
}
