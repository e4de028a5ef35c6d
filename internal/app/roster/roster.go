/*
Package roster maintains the authoritative list of known users: presence, per-peer
private history, and read/unread tracking.

The Store is a set of pure reducers over inbound presence and private-message
events. It does no locking of its own; the session controller serializes access.
Every mutation follows a copy-on-write discipline: a record that may be shared with
a previously published snapshot is cloned before it changes.
*/
package roster

import "sort"

// PrivateMessage is one line of a per-peer private conversation.
type PrivateMessage struct {
	// Message is the text payload.
	Message string `json:"message"`

	// FromSelf is true when the local session authored the line.
	FromSelf bool `json:"fromSelf"`
}

// User is one roster record. Records are created by the snapshot or a
// "user connected" event and are never deleted for the life of the session, so
// private history survives a peer's disconnect.
type User struct {
	// ID is the opaque stable identifier assigned by the server.
	ID string `json:"userID"`

	// Username is the display name at the time the record was created.
	Username string `json:"username"`

	// Self is true iff this record is the local session's own identity.
	Self bool `json:"self"`

	// Connected is the presence flag.
	Connected bool `json:"connected"`

	// Messages is the private conversation with this peer, in receipt order.
	// Always empty for the self record.
	Messages []PrivateMessage `json:"messages"`

	// HasNewMessages is true when this peer has sent private messages not yet
	// viewed while selected.
	HasNewMessages bool `json:"hasNewMessages"`
}

// clone returns a copy of the user whose Messages slice is safe to append to
// without disturbing previously published snapshots.
func (u *User) clone() *User {
	c := *u
	c.Messages = make([]PrivateMessage, len(u.Messages))
	copy(c.Messages, u.Messages)
	return &c
}

// Entry is the identity pair delivered by the snapshot and join events.
type Entry struct {
	UserID   string
	Username string
}

// Store holds the roster. The zero value is not usable; use NewStore.
type Store struct {
	users []*User
}

// NewStore returns an empty roster.
func NewStore() *Store {
	return &Store{}
}

// ApplySnapshot replaces the entire roster with the given entries. Each record is
// tagged Self by comparing its ID against selfID, starts connected with an empty
// feed, and the result is ordered self first, then by username ascending
// (case-sensitive). Duplicated IDs in the snapshot collapse to the first entry.
func (s *Store) ApplySnapshot(entries []Entry, selfID string) {
	users := make([]*User, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))

	for _, e := range entries {
		if _, dup := seen[e.UserID]; dup {
			continue
		}
		seen[e.UserID] = struct{}{}

		users = append(users, &User{
			ID:        e.UserID,
			Username:  e.Username,
			Self:      e.UserID == selfID,
			Connected: true,
			Messages:  []PrivateMessage{},
		})
	}

	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Self {
			return true
		}
		if users[j].Self {
			return false
		}
		return users[i].Username < users[j].Username
	})

	s.users = users
}

// ApplyConnected records a newly joined peer at the end of the roster (ordering is
// only recomputed on the next full snapshot) and reports whether the record is new.
// A duplicate ID refreshes the existing record's presence instead of duplicating it.
// The returned copy is what the caller should announce.
func (s *Store) ApplyConnected(e Entry) (User, bool) {
	if i := s.indexOf(e.UserID); i >= 0 {
		u := s.users[i].clone()
		u.Connected = true
		s.users[i] = u
		return *u, false
	}

	u := &User{
		ID:        e.UserID,
		Username:  e.Username,
		Connected: true,
		Messages:  []PrivateMessage{},
	}
	s.users = append(s.users, u)

	return *u, true
}

// ApplyDisconnected flips the record's presence off, keeping the record and its
// private history intact. An unknown ID is a no-op and returns ok=false; late
// disconnects racing the snapshot are benign.
func (s *Store) ApplyDisconnected(id string) (User, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return User{}, false
	}

	u := s.users[i].clone()
	u.Connected = false
	s.users[i] = u

	return *u, true
}

// AppendPrivate appends one private message to the peer's feed. markUnread is false
// when the peer is currently selected ("already being viewed"). An unknown ID drops
// the message and returns false.
func (s *Store) AppendPrivate(id string, msg PrivateMessage, markUnread bool) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}

	u := s.users[i].clone()
	u.Messages = append(u.Messages, msg)
	if markUnread {
		u.HasNewMessages = true
	}
	s.users[i] = u

	return true
}

// ClearUnread resets the peer's unread flag, typically on selection.
func (s *Store) ClearUnread(id string) {
	i := s.indexOf(id)
	if i < 0 {
		return
	}

	u := s.users[i].clone()
	u.HasNewMessages = false
	s.users[i] = u
}

// Get returns a copy of the record with the given ID.
func (s *Store) Get(id string) (User, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return User{}, false
	}
	return *s.users[i].clone(), true
}

// Users returns a deep copy of the roster in display order.
func (s *Store) Users() []User {
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u.clone())
	}
	return out
}

// Len returns the number of roster records.
func (s *Store) Len() int {
	return len(s.users)
}

func (s *Store) indexOf(id string) int {
	for i, u := range s.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
