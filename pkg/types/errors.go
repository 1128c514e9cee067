package types

import "errors"

var (
	ErrMalformedMessage   = errors.New("invalid message format")
	ErrInvalidSessionType = errors.New("invalid session type")
)
