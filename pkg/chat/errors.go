package chat

import "fmt"

// ErrorKind classifies manager-level failures for the rendering layer.
type ErrorKind string

const (
	// ErrAuthenticationUnavailable means no credential could be obtained;
	// recoverable by re-authenticating.
	ErrAuthenticationUnavailable ErrorKind = "authentication-unavailable"
	// ErrRemoteRequestFailed covers network or service failures on the
	// answer and history-fetch paths; recoverable by retrying the send.
	ErrRemoteRequestFailed ErrorKind = "remote-request-failed"
	// ErrHistoryPersistFailed is the write-behind failure. It is logged but
	// never stored in the manager's error slot, so the user cannot mistake a
	// durability problem for a failed answer.
	ErrHistoryPersistFailed ErrorKind = "history-persist-failed"
)

// ChatError is the single most-recent user-facing error held by the
// manager. Status carries the HTTP status when one applies, 0 otherwise.
type ChatError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *ChatError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewAuthenticationUnavailableError() *ChatError {
	return &ChatError{
		Kind:    ErrAuthenticationUnavailable,
		Message: "authentication token not available",
	}
}

func NewRemoteRequestFailedError(status int, message string) *ChatError {
	return &ChatError{
		Kind:    ErrRemoteRequestFailed,
		Status:  status,
		Message: message,
	}
}
