package engine

import (
	"errors"
	"fmt"
	"strings"
)

// EngineError is the normalized failure shape surfaced to callers.
// Recoverable is true only for network/connection/timeout-class failures,
// telling the caller whether a retry affordance makes sense.
type EngineError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes used by the engine.
const (
	CodeInitFailed       = "init_failed"
	CodeJoinFailed       = "join_failed"
	CodeLeaveFailed      = "leave_failed"
	CodeInvalidState     = "invalid_state"
	CodeNetwork          = "network_error"
	CodeConnection       = "connection_error"
	CodeTimeout          = "timeout"
	CodeMediaFailed      = "media_failed"
	CodeModerationFailed = "moderation_failed"
	CodeScreenShare      = "screen_share_failed"
	CodeUnknown          = "unknown"
)

// Screen-share rejection sentinels a CallClient implementation returns so the
// engine can map them to remediation-specific messages.
var (
	ErrScreenShareCancelled    = errors.New("screen share cancelled")
	ErrScreenSharePermission   = errors.New("screen share permission denied")
	ErrScreenShareNotSupported = errors.New("screen share not supported")
	ErrScreenShareNoSource     = errors.New("screen share no source")
)

// normalize maps an arbitrary client error to an EngineError.
// Already-normalized errors pass through unchanged.
func normalize(code string, err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") || strings.Contains(lower, "deadline"):
		return &EngineError{Code: CodeTimeout, Message: msg, Recoverable: true}
	case strings.Contains(lower, "network"):
		return &EngineError{Code: CodeNetwork, Message: msg, Recoverable: true}
	case strings.Contains(lower, "connection") || strings.Contains(lower, "disconnect"):
		return &EngineError{Code: CodeConnection, Message: msg, Recoverable: true}
	}
	return &EngineError{Code: code, Message: msg, Recoverable: false}
}

// screenShareError maps known provider rejection reasons to distinct
// user-facing messages; remediation differs per case.
func screenShareError(err error) *EngineError {
	switch {
	case errors.Is(err, ErrScreenShareCancelled):
		return &EngineError{Code: CodeScreenShare, Message: "Screen sharing was cancelled."}
	case errors.Is(err, ErrScreenSharePermission):
		return &EngineError{Code: CodeScreenShare, Message: "Screen sharing permission was denied. Allow screen capture in your browser settings and try again."}
	case errors.Is(err, ErrScreenShareNotSupported):
		return &EngineError{Code: CodeScreenShare, Message: "Screen sharing is not supported in this browser."}
	case errors.Is(err, ErrScreenShareNoSource):
		return &EngineError{Code: CodeScreenShare, Message: "No screen or window was available to share."}
	}
	return normalize(CodeScreenShare, err)
}

func invalidState(op string, state State) *EngineError {
	return &EngineError{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("cannot %s while %s", op, state),
	}
}
