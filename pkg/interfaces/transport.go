package interfaces

// Transport is the write side of one client connection as seen by the hub.
// Implementations must be safe to call from the hub goroutine and must not
// block: a transport that cannot accept a frame returns an error instead.
type Transport interface {
	// WriteJSON serializes v and queues it as one text frame.
	WriteJSON(v interface{}) error

	// Close releases the underlying connection. Calling Close more than once
	// is allowed.
	Close() error
}
