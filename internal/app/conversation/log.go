/*
Package conversation maintains the public broadcast feed.

The log is an append-only projection of inbound "message" events, in receipt order.
Message IDs are treated as idempotency keys: a duplicate ID, whether from a network
replay or a misbehaving sender, is ignored on insert instead of rendering twice.
*/
package conversation

// Message is one public chat line. Name is the sender's username frozen at send
// time; a later rename does not rewrite history.
type Message struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Log is the public feed. Not safe for concurrent use; the session controller
// serializes access.
type Log struct {
	messages []Message
	seen     map[string]struct{}
}

// NewLog returns an empty public feed.
func NewLog() *Log {
	return &Log{
		seen: make(map[string]struct{}),
	}
}

// Append adds the message to the feed and reports whether it was new.
// Messages are never mutated or removed afterwards.
func (l *Log) Append(m Message) bool {
	if _, dup := l.seen[m.ID]; dup {
		return false
	}

	l.seen[m.ID] = struct{}{}
	l.messages = append(l.messages, m)

	return true
}

// Messages returns a copy of the feed in receipt order.
func (l *Log) Messages() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages in the feed.
func (l *Log) Len() int {
	return len(l.messages)
}
