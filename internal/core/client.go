package core

// Client is one live authenticated connection as seen by the hub.
// A user may hold several clients at once (multi-device).
type Client struct {
	ID       string // connection identifier
	UserID   int64
	Username string
	Commands chan *Command
	Events   chan *Event
	Rooms    map[string]struct{}

	done chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(connID string, userID int64, username string) *Client {
	return &Client{
		ID:       connID,
		UserID:   userID,
		Username: username,
		Commands: make(chan *Command, 16),
		Events:   make(chan *Event, 32),
		Rooms:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}
