package core

// Error codes reported to clients when error reporting is enabled.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeUnknownType = "unknown_type"
	ErrCodeRateLimited = "rate_limited"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ErrorEvent wraps err in an event addressed to a single client.
func ErrorEvent(err *CoreError) *Event {
	return &Event{Kind: EventError, Error: err}
}
