package registry

import (
	"iter"
	"time"

	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Connection is the hub's record of one live client connection.
type Connection struct {
	ID           string
	Transport    interfaces.Transport
	StudentID    string
	SessionType  types.SessionType
	SessionID    string
	ConnectedAt  time.Time
	LastActivity time.Time
}

// Touch moves LastActivity forward to now. Earlier times are ignored so the
// value never regresses.
func (c *Connection) Touch(now time.Time) {
	if now.After(c.LastActivity) {
		c.LastActivity = now
	}
}

// InSession reports whether the connection currently belongs to a session.
func (c *Connection) InSession() bool {
	return c.SessionID != ""
}

// Registry owns every live connection and the session membership index.
// ARCHITECTURAL DISCOVERY: Registry is not safe for concurrent use. All calls
// happen on the hub goroutine, which serializes every mutation.
type Registry struct {
	connections map[string]*Connection         // connectionID -> Connection
	sessions    map[string]map[string]struct{} // sessionID -> set of connectionIDs
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]struct{}),
	}
}

// Register adds a new connection. Ids are never reused while registered.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil || conn.Transport == nil {
		return ErrNilTransport
	}
	if conn.ID == "" {
		return ErrEmptyConnectionID
	}
	if _, exists := r.connections[conn.ID]; exists {
		return ErrDuplicateConnectionID
	}

	// A freshly registered connection is always open-no-session.
	conn.SessionID = ""
	conn.SessionType = types.SessionTypeNone
	if conn.LastActivity.Before(conn.ConnectedAt) {
		conn.LastActivity = conn.ConnectedAt
	}

	r.connections[conn.ID] = conn
	return nil
}

// Unregister removes a connection, leaving its session first. It returns the
// removed record, or false if the id was not registered.
func (r *Registry) Unregister(id string) (*Connection, bool) {
	conn, exists := r.connections[id]
	if !exists {
		return nil, false
	}

	if conn.InSession() {
		r.Leave(conn.SessionID, id)
	}

	delete(r.connections, id)
	return conn, true
}

// Get returns the connection registered under id.
func (r *Registry) Get(id string) (*Connection, bool) {
	conn, exists := r.connections[id]
	return conn, exists
}

// All returns a sequence over the connections registered at call time. The
// sequence can be ranged over more than once and is unaffected by later
// registrations or removals.
func (r *Registry) All() iter.Seq[*Connection] {
	snapshot := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		snapshot = append(snapshot, conn)
	}

	return func(yield func(*Connection) bool) {
		for _, conn := range snapshot {
			if !yield(conn) {
				return
			}
		}
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return len(r.connections)
}
