package registry

import (
	"slices"

	"classhub/pkg/types"
)

// Join moves a connection into sessionID. A connection belongs to at most one
// session, so any different prior session is left first. It returns the id
// of the session that was left, if any.
func (r *Registry) Join(sessionID, connID string, sessionType types.SessionType) (string, error) {
	if sessionID == "" {
		return "", ErrEmptySessionID
	}
	conn, exists := r.connections[connID]
	if !exists {
		return "", ErrConnectionNotFound
	}

	previous := ""
	if conn.InSession() && conn.SessionID != sessionID {
		previous = conn.SessionID
		r.Leave(previous, connID)
	}

	members, ok := r.sessions[sessionID]
	if !ok {
		members = make(map[string]struct{})
		r.sessions[sessionID] = members
	}
	members[connID] = struct{}{}

	conn.SessionID = sessionID
	conn.SessionType = sessionType
	return previous, nil
}

// Leave removes a connection from a session and deletes the session once it
// is empty. Leaving a session the connection is not part of is a no-op. It
// reports whether the connection was a member.
func (r *Registry) Leave(sessionID, connID string) bool {
	members, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	if _, member := members[connID]; !member {
		return false
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(r.sessions, sessionID)
	}

	if conn, exists := r.connections[connID]; exists && conn.SessionID == sessionID {
		conn.SessionID = ""
		conn.SessionType = types.SessionTypeNone
	}
	return true
}

// MembersExcluding returns the members of sessionID minus the given ids.
// Unknown sessions yield an empty slice.
func (r *Registry) MembersExcluding(sessionID string, exclude ...string) []string {
	members, ok := r.sessions[sessionID]
	if !ok {
		return []string{}
	}

	ids := make([]string, 0, len(members))
	for id := range members {
		if slices.Contains(exclude, id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Members returns every member of sessionID.
func (r *Registry) Members(sessionID string) []string {
	return r.MembersExcluding(sessionID)
}

// HasSession reports whether sessionID currently has members.
func (r *Registry) HasSession(sessionID string) bool {
	_, ok := r.sessions[sessionID]
	return ok
}

// SessionCount returns the number of sessions with at least one member.
func (r *Registry) SessionCount() int {
	return len(r.sessions)
}
