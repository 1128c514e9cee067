package interfaces

import "errors"

// Common errors shared by transport and store implementations.
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrStoreClosed     = errors.New("activity store closed")
)
