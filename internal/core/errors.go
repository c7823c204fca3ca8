package core

// Error codes for domain errors surfaced to clients as error events.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeNotParticipant  = "not_participant"
	ErrCodeNotFound        = "not_found"
	ErrCodePersistence     = "persistence_failed"
	ErrCodePeerUnavailable = "peer_unavailable"
	ErrCodeCallNotFound    = "call_not_found"
	ErrCodeInvalidMessage  = "invalid_message"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
