package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/talkwire/talkwire-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	avatar        TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'offline',
	last_seen     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversations (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	type            TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	avatar          TEXT NOT NULL DEFAULT '',
	last_message_id INTEGER,
	last_message_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversation_participants (
	conversation_id INTEGER NOT NULL,
	user_id         INTEGER NOT NULL,
	joined_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (conversation_id, user_id),
	FOREIGN KEY (conversation_id) REFERENCES conversations(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL,
	sender_id       INTEGER NOT NULL,
	content         TEXT NOT NULL,
	type            TEXT NOT NULL DEFAULT 'text',
	file_url        TEXT NOT NULL DEFAULT '',
	file_name       TEXT NOT NULL DEFAULT '',
	file_size       INTEGER NOT NULL DEFAULT 0,
	mime_type       TEXT NOT NULL DEFAULT '',
	thumbnail       TEXT NOT NULL DEFAULT '',
	edited          BOOLEAN NOT NULL DEFAULT 0,
	edited_at       DATETIME,
	deleted         BOOLEAN NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id),
	FOREIGN KEY (sender_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS message_reads (
	message_id INTEGER NOT NULL,
	user_id    INTEGER NOT NULL,
	read_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (message_id, user_id),
	FOREIGN KEY (message_id) REFERENCES messages(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS calls (
	id              TEXT PRIMARY KEY,
	conversation_id INTEGER NOT NULL,
	caller_id       INTEGER NOT NULL,
	receiver_id     INTEGER,
	type            TEXT NOT NULL,
	status          TEXT NOT NULL,
	room_id         TEXT NOT NULL UNIQUE,
	started_at      DATETIME,
	ended_at        DATETIME,
	duration        INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE TABLE IF NOT EXISTS call_participants (
	call_id TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	PRIMARY KEY (call_id, user_id),
	FOREIGN KEY (call_id) REFERENCES calls(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id);
`

// New creates a new SQLite store and bootstraps the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store with the default schema and runs
// an extra setup function. Useful for tests to seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash, status)
		VALUES (?, ?, ?, 'offline')
	`
	result, err := s.db.ExecContext(ctx, query, username, email, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `
		SELECT id, username, email, password_hash, avatar, status, last_seen, created_at
		FROM users
		WHERE ` + where
	var user store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Avatar,
		&user.Status,
		&user.LastSeen,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// UpdateUserStatus persists a presence change with a last-seen stamp.
func (s *SQLiteStore) UpdateUserStatus(ctx context.Context, userID int64, status store.UserStatus, lastSeen time.Time) error {
	query := `UPDATE users SET status = ?, last_seen = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, status, lastSeen, userID); err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	return nil
}

// ==== ConversationStore implementation ====

// CreateConversation creates a conversation with its participant set.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *store.Conversation) (*store.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (type, name, avatar) VALUES (?, ?, ?)`,
		conv.Type, conv.Name, conv.Avatar,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for _, userID := range conv.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)`,
			id, userID,
		); err != nil {
			return nil, fmt.Errorf("insert participant %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetConversation(ctx, id)
}

// GetConversation retrieves a conversation with participants loaded.
func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*store.Conversation, error) {
	query := `
		SELECT id, type, name, avatar, last_message_id, last_message_at, created_at
		FROM conversations
		WHERE id = ?
	`
	var conv store.Conversation
	var lastMessageID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID,
		&conv.Type,
		&conv.Name,
		&conv.Avatar,
		&lastMessageID,
		&conv.LastMessageAt,
		&conv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	if lastMessageID.Valid {
		conv.LastMessageID = &lastMessageID.Int64
	}

	participants, err := s.listParticipants(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Participants = participants

	return &conv, nil
}

func (s *SQLiteStore) listParticipants(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, userID)
	}
	return participants, rows.Err()
}

// ListConversationsForUser lists all conversations the user participates in.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID int64) ([]*store.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = ?
		ORDER BY c.last_message_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	conversations := make([]*store.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

// IsParticipant checks conversation membership.
func (s *SQLiteStore) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM conversation_participants WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}

// SetLastMessage updates the conversation's last-message pointer and activity stamp.
func (s *SQLiteStore) SetLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error {
	query := `UPDATE conversations SET last_message_id = ?, last_message_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, messageID, at, conversationID); err != nil {
		return fmt.Errorf("update last message: %w", err)
	}
	return nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message and its initial read receipts; sets msg.ID.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages
			(conversation_id, sender_id, content, type, file_url, file_name, file_size, mime_type, thumbnail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ConversationID, msg.SenderID, msg.Content, msg.Type,
		msg.FileURL, msg.FileName, msg.FileSize, msg.MimeType, msg.Thumbnail,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id

	for _, receipt := range msg.ReadBy {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)`,
			id, receipt.UserID, receipt.ReadAt,
		); err != nil {
			return fmt.Errorf("insert read receipt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetMessage retrieves a message with read receipts loaded.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, u.username, m.content, m.type,
		       m.file_url, m.file_name, m.file_size, m.mime_type, m.thumbnail,
		       m.edited, m.edited_at, m.deleted, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?
	`
	var msg store.Message
	var editedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.SenderName,
		&msg.Content,
		&msg.Type,
		&msg.FileURL,
		&msg.FileName,
		&msg.FileSize,
		&msg.MimeType,
		&msg.Thumbnail,
		&msg.Edited,
		&editedAt,
		&msg.Deleted,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	if editedAt.Valid {
		msg.EditedAt = &editedAt.Time
	}

	receipts, err := s.listReadReceipts(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	msg.ReadBy = receipts

	return &msg, nil
}

func (s *SQLiteStore) listReadReceipts(ctx context.Context, messageID int64) ([]store.ReadReceipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, read_at FROM message_reads WHERE message_id = ? ORDER BY read_at`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("query read receipts: %w", err)
	}
	defer rows.Close()

	var receipts []store.ReadReceipt
	for rows.Next() {
		var r store.ReadReceipt
		if err := rows.Scan(&r.UserID, &r.ReadAt); err != nil {
			return nil, fmt.Errorf("scan read receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// UpdateMessage persists content/edited/deleted mutations.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, msg *store.Message) error {
	query := `
		UPDATE messages
		SET content = ?, edited = ?, edited_at = ?, deleted = ?
		WHERE id = ?
	`
	var editedAt any
	if msg.EditedAt != nil {
		editedAt = *msg.EditedAt
	}
	if _, err := s.db.ExecContext(ctx, query, msg.Content, msg.Edited, editedAt, msg.Deleted, msg.ID); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// MarkRead appends a read receipt for each listed message the user has not
// already read. INSERT OR IGNORE keeps repeated calls idempotent.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID int64, messageIDs []int64, userID int64, at time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt := `
		INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, ?, ? FROM messages m WHERE m.id = ? AND m.conversation_id = ?
	`
	for _, id := range messageIDs {
		if _, err := tx.ExecContext(ctx, stmt, userID, at, id, conversationID); err != nil {
			return fmt.Errorf("mark read %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListMessages retrieves messages from a conversation, newest-first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if beforeID != nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id FROM messages WHERE conversation_id = ? AND id < ? ORDER BY id DESC LIMIT ?`,
			conversationID, *beforeID, limit,
		)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`,
			conversationID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	messages := make([]*store.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.GetMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// ==== CallStore implementation ====

// CreateCall creates a new call record with its participants.
func (s *SQLiteStore) CreateCall(ctx context.Context, call *store.Call) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var receiverID any
	if call.ReceiverID != nil {
		receiverID = *call.ReceiverID
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO calls (id, conversation_id, caller_id, receiver_id, type, status, room_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		call.ID, call.ConversationID, call.CallerID, receiverID,
		call.Type, call.Status, call.RoomID, call.CreatedAt, call.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert call: %w", err)
	}

	for _, userID := range call.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO call_participants (call_id, user_id) VALUES (?, ?)`,
			call.ID, userID,
		); err != nil {
			return fmt.Errorf("insert call participant %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateCall updates an existing call record.
func (s *SQLiteStore) UpdateCall(ctx context.Context, call *store.Call) error {
	var startedAt, endedAt any
	if call.StartedAt != nil {
		startedAt = *call.StartedAt
	}
	if call.EndedAt != nil {
		endedAt = *call.EndedAt
	}

	query := `
		UPDATE calls
		SET status = ?, started_at = ?, ended_at = ?, duration = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		call.Status, startedAt, endedAt, call.Duration, time.Now(), call.ID,
	)
	if err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("call: %w", store.ErrNotFound)
	}
	return nil
}

// GetCall retrieves a call by ID.
func (s *SQLiteStore) GetCall(ctx context.Context, id string) (*store.Call, error) {
	return s.getCall(ctx, "id = ?", id)
}

// GetCallByRoomID retrieves a call by its signaling room ID.
func (s *SQLiteStore) GetCallByRoomID(ctx context.Context, roomID string) (*store.Call, error) {
	return s.getCall(ctx, "room_id = ?", roomID)
}

func (s *SQLiteStore) getCall(ctx context.Context, where string, arg any) (*store.Call, error) {
	query := `
		SELECT id, conversation_id, caller_id, receiver_id, type, status, room_id,
		       started_at, ended_at, duration, created_at, updated_at
		FROM calls
		WHERE ` + where
	var call store.Call
	var receiverID sql.NullInt64
	var startedAt, endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&call.ID,
		&call.ConversationID,
		&call.CallerID,
		&receiverID,
		&call.Type,
		&call.Status,
		&call.RoomID,
		&startedAt,
		&endedAt,
		&call.Duration,
		&call.CreatedAt,
		&call.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("call: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query call: %w", err)
	}
	if receiverID.Valid {
		call.ReceiverID = &receiverID.Int64
	}
	if startedAt.Valid {
		call.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		call.EndedAt = &endedAt.Time
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM call_participants WHERE call_id = ? ORDER BY user_id`,
		call.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("query call participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan call participant: %w", err)
		}
		call.Participants = append(call.Participants, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &call, nil
}
