package chat

import "errors"

// Error codes for domain errors. None of them is fatal to the host
// application: every failure degrades to a visible, recoverable state.
const (
	// ErrCodeNotConnected means a send was attempted outside the Open state.
	// Recoverable by re-selecting the room.
	ErrCodeNotConnected = "not_connected"
	// ErrCodeMalformedMessage means an incoming payload was rejected.
	ErrCodeMalformedMessage = "malformed_message"
	// ErrCodeHistoryLoadFailed means the history fetch failed and the room
	// opened with cached or empty history.
	ErrCodeHistoryLoadFailed = "history_load_failed"
	// ErrCodeChannelError means the live channel broke and the session is
	// Closed. The caller reconnects by re-selecting the room.
	ErrCodeChannelError = "channel_error"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrMalformedMessage = errors.New("malformed message")
	ErrNoActiveRoom     = errors.New("no active room")
)

// Error wraps a code and human-readable message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap maps coded errors onto their sentinel values so callers can use
// errors.Is without inspecting codes.
func (e *Error) Unwrap() error {
	switch e.Code {
	case ErrCodeNotConnected:
		return ErrNotConnected
	case ErrCodeMalformedMessage:
		return ErrMalformedMessage
	}
	return nil
}

func chatError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}
