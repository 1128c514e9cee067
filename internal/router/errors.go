package router

import "errors"

// Errors returned by Dispatch. Only ErrUnknownMessageType and a malformed
// frame produce a reply to the sender; the rest are dropped silently.
var (
	ErrUnknownMessageType  = errors.New("unknown message type")
	ErrSenderNotConnected  = errors.New("sender not connected")
	ErrSessionTypeMismatch = errors.New("session type does not match message type")
	ErrNotInSession        = errors.New("sender is not in a session")
	ErrMissingSessionID    = errors.New("join_session requires a string sessionId")
	ErrDuplicateRoute      = errors.New("message type already has a handler")
)
