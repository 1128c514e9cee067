package registry

import "errors"

var (
	ErrDuplicateConnectionID = errors.New("connection id already registered")
	ErrEmptyConnectionID     = errors.New("connection id cannot be empty")
	ErrNilTransport          = errors.New("transport cannot be nil")
	ErrEmptySessionID        = errors.New("session id cannot be empty")
	ErrConnectionNotFound    = errors.New("connection not found")
)
