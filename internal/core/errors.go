package core

// Error codes for live-layer errors.
const (
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeForbidden          = "forbidden"
	ErrCodeUnsupportedVersion = "unsupported_version"
	ErrCodeRateLimited        = "rate_limited"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// ErrorEvent wraps a CoreError into an event for a single client.
func ErrorEvent(code, msg string) *Event {
	return &Event{Kind: EventError, Error: &CoreError{Code: code, Message: msg}}
}
