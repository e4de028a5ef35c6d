/*
Package session gates the client between its unauthenticated and connected states
and exposes the single action surface of the chat core.

The Controller owns the roster, the public feed and the typing signal behind one
mutex: every inbound reducer and every user action runs to completion under it,
which is the Go rendition of the protocol's single-threaded event turn. Reducers
are attached to the injected event channel on Start and detached on Stop, exactly
once each, so nothing acts on state after teardown.
*/
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"relaychat/internal/app/conversation"
	"relaychat/internal/app/roster"
	"relaychat/internal/app/typing"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/transport"
)

// NotifyKind classifies a user-visible notification.
type NotifyKind string

const (
	NotifySuccess NotifyKind = "success"
	NotifyError   NotifyKind = "error"
)

// Notifier receives user-visible notifications (toasts). It is called outside the
// controller's lock and must not call back into the controller synchronously.
type Notifier func(kind NotifyKind, text string)

const (
	// defaultTypingRate bounds outbound typing emissions. The UI may report every
	// keystroke; the wire only sees this much.
	defaultTypingRate = rate.Limit(2)

	defaultTypingBurst = 1
)

// Options tunes a Controller. The zero value is usable.
type Options struct {
	// Notify receives toast-style notifications. Nil disables them.
	Notify Notifier

	// TypingTTL overrides how long an inbound typing indicator stays visible.
	TypingTTL time.Duration

	// TypingRate and TypingBurst override the outbound typing throttle.
	TypingRate  rate.Limit
	TypingBurst int
}

// Controller folds inbound events into the local chat state and translates user
// actions into protocol events.
type Controller struct {
	channel transport.Channel
	notify  Notifier
	logger  zerolog.Logger

	// typingLimiter throttles outbound typing events.
	typingLimiter *rate.Limiter

	// mu owns every field below.
	mu sync.Mutex

	connected bool
	selfID    string
	username  string

	// selected is the ID of the peer targeted for private messages, "" for none.
	selected string

	users  *roster.Store
	feed   *conversation.Log
	typing *typing.Signal

	// joinResult delivers the outcome of the pending Join handshake.
	joinResult chan error

	started bool
	stopped bool

	// changes carries coalesced change signals for renderers.
	changes chan struct{}
}

// NewController creates a Controller bound to the given event channel. The channel
// is injected, never ambient, so independent sessions share no process state.
func NewController(channel transport.Channel, opts Options) *Controller {
	typingRate := opts.TypingRate
	if typingRate <= 0 {
		typingRate = defaultTypingRate
	}
	typingBurst := opts.TypingBurst
	if typingBurst <= 0 {
		typingBurst = defaultTypingBurst
	}

	c := &Controller{
		channel:       channel,
		notify:        opts.Notify,
		logger:        logx.Logger().With().Str("component", "SessionController").Logger(),
		typingLimiter: rate.NewLimiter(typingRate, typingBurst),
		users:         roster.NewStore(),
		feed:          conversation.NewLog(),
		changes:       make(chan struct{}, 1),
	}
	c.typing = typing.NewSignal(opts.TypingTTL, c.signalChange)

	return c
}

// inboundEvents lists every event the controller reduces, in one place so Start
// and Stop cannot drift apart.
func (c *Controller) inboundEvents() map[string]transport.Handler {
	return map[string]transport.Handler{
		transport.EventSession:          c.onSession,
		transport.EventUsernameTaken:    c.onUsernameTaken,
		transport.EventUsers:            c.onUsers,
		transport.EventUserConnected:    c.onUserConnected,
		transport.EventUserDisconnected: c.onUserDisconnected,
		transport.EventMessage:          c.onMessage,
		transport.EventPrivateMessage:   c.onPrivateMessage,
		transport.EventTyping:           c.onTyping,
	}
}

// Start attaches all inbound reducers to the channel. Attaching happens exactly
// once; a second Start is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.stopped {
		return
	}
	c.started = true

	for event, handler := range c.inboundEvents() {
		c.channel.On(event, handler)
	}

	c.logger.Debug().Msg("Reducers attached to event channel.")
}

// Stop detaches every reducer, cancels pending timers and closes the channel.
// Exactly once; later calls are no-ops. A Join still in flight is failed.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.connected = false

	for event := range c.inboundEvents() {
		c.channel.Off(event)
	}

	pending := c.joinResult
	c.joinResult = nil
	c.mu.Unlock()

	if pending != nil {
		pending <- errs.NewError(errs.ErrChannelClosed)
	}

	c.typing.Stop()

	if err := c.channel.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("Error closing event channel during stop")
	}

	c.logger.Info().Msg("Session stopped.")
}

// Join attaches username as connection credentials, dials the channel and waits
// for the server's explicit answer: a session event (accepted) or username taken
// (rejected, session stays unauthenticated and the user may retry). ctx bounds
// the whole handshake.
func (c *Controller) Join(ctx context.Context, username string) error {
	if username == "" {
		return errs.NewError(errs.ErrUsernameEmpty)
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return errs.NewError(errs.ErrChannelClosed)
	}
	if c.connected {
		c.mu.Unlock()
		return errs.NewError(errs.ErrAlreadyConnected)
	}
	if c.joinResult != nil {
		c.mu.Unlock()
		return errs.NewError(errs.ErrAlreadyConnected)
	}

	result := make(chan error, 1)
	c.joinResult = result
	c.mu.Unlock()

	if err := c.channel.Connect(ctx, username); err != nil {
		c.mu.Lock()
		c.joinResult = nil
		c.mu.Unlock()
		return err
	}

	select {
	case err := <-result:
		return err

	case <-ctx.Done():
		c.mu.Lock()
		c.joinResult = nil
		connected := c.connected
		c.mu.Unlock()

		// The session event and the deadline can land in the same instant, and
		// the select picks arbitrarily. If the handshake already completed, the
		// join succeeded; tearing the connection down now would strand a state
		// that says connected.
		if connected {
			return nil
		}

		// Half-open handshakes are not worth keeping; drop the connection so a
		// retry starts clean.
		if err := c.channel.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Error closing channel after join timeout")
		}

		return errs.NewError(errs.ErrJoinTimeout)
	}
}

// SendPublicMessage broadcasts one public chat line. There is no local echo: the
// server delivers the line back to every client including the sender, and the
// feed's ID dedup absorbs the day that contract ever double-delivers.
func (c *Controller) SendPublicMessage(text string) error {
	if text == "" {
		return errs.NewError(errs.ErrEmptyMessage)
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return errs.NewError(errs.ErrNotConnected)
	}
	name := c.username
	c.mu.Unlock()

	return c.channel.Emit(transport.EventMessage, transport.PublicMessagePayload{
		ID:      newMessageID(),
		Name:    name,
		Message: text,
	})
}

// SendPrivateMessage sends text to the selected peer and appends an optimistic
// local echo. The server never loops private sends back, so no dedup is needed.
func (c *Controller) SendPrivateMessage(text string) error {
	if text == "" {
		return errs.NewError(errs.ErrEmptyMessage)
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return errs.NewError(errs.ErrNotConnected)
	}
	if c.selected == "" {
		c.mu.Unlock()
		return errs.NewError(errs.ErrNoPeerSelected)
	}
	to := c.selected
	c.mu.Unlock()

	err := c.channel.Emit(transport.EventPrivateMessage, transport.PrivateMessagePayload{
		Message: text,
		To:      to,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.users.AppendPrivate(to, roster.PrivateMessage{Message: text, FromSelf: true}, false)
	c.mu.Unlock()

	c.signalChange()
	return nil
}

// SelectPeer targets a user for private conversation and clears their unread
// flag. The target must exist, must not be self and must be connected.
func (c *Controller) SelectPeer(userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, ok := c.users.Get(userID)
	if !ok {
		return errs.NewError(errs.ErrUnknownPeer)
	}
	if u.Self {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if !u.Connected {
		return errs.NewError(errs.ErrPeerOffline)
	}

	c.selected = userID
	c.users.ClearUnread(userID)

	c.signalChangeLocked()
	return nil
}

// NotifyTyping tells the server the local user is composing. Callers may invoke it
// on every draft change; emissions are throttled so the wire is not.
func (c *Controller) NotifyTyping() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return errs.NewError(errs.ErrNotConnected)
	}
	name := c.username
	c.mu.Unlock()

	if !c.typingLimiter.Allow() {
		return nil
	}

	return c.channel.Emit(transport.EventTyping, name)
}

// Changes returns a coalesced change signal: at least one receive fires after any
// state mutation. Renderers use it to know when to take a fresh Snapshot.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

// signalChange publishes a change without blocking; a pending signal already
// covers the new change.
func (c *Controller) signalChange() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// signalChangeLocked is signalChange for call sites that hold c.mu. The channel
// send never blocks, so holding the lock is safe.
func (c *Controller) signalChangeLocked() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// deliverJoinResult resolves the pending Join, if any.
func (c *Controller) deliverJoinResult(err error) {
	c.mu.Lock()
	pending := c.joinResult
	c.joinResult = nil
	c.mu.Unlock()

	if pending != nil {
		pending <- err
	}
}

// onSession is the explicit join acknowledgment: the server assigned us an
// identity, so the session is connected. No readiness polling is involved.
func (c *Controller) onSession(data json.RawMessage) {
	var p transport.SessionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid session payload")
		return
	}

	c.mu.Lock()
	c.connected = true
	c.selfID = p.UserID
	c.username = p.Username
	c.mu.Unlock()

	c.logger.Info().Str("user_id", p.UserID).Str("username", p.Username).Msg("Session established.")

	c.deliverJoinResult(nil)
	c.signalChange()
}

// onUsernameTaken rejects the pending join; the session stays unauthenticated.
// The connection is dropped right away so a retry with a different name starts
// from a clean dial.
func (c *Controller) onUsernameTaken(json.RawMessage) {
	err := errs.NewError(errs.ErrUsernameTaken)

	if c.notify != nil {
		c.notify(NotifyError, err.Message)
	}

	if closeErr := c.channel.Close(); closeErr != nil {
		c.logger.Warn().Err(closeErr).Msg("Error closing channel after rejected join")
	}

	c.deliverJoinResult(err)
}

// onUsers replaces the whole roster from the snapshot.
func (c *Controller) onUsers(data json.RawMessage) {
	var entries []transport.UserEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid users snapshot payload")
		return
	}

	converted := make([]roster.Entry, 0, len(entries))
	for _, e := range entries {
		converted = append(converted, roster.Entry{UserID: e.UserID, Username: e.Username})
	}

	c.mu.Lock()
	c.users.ApplySnapshot(converted, c.selfID)
	c.mu.Unlock()

	c.signalChange()
}

// onUserConnected appends the new peer to the roster and announces them.
func (c *Controller) onUserConnected(data json.RawMessage) {
	var e transport.UserEntry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid user connected payload")
		return
	}

	c.mu.Lock()
	u, isNew := c.users.ApplyConnected(roster.Entry{UserID: e.UserID, Username: e.Username})
	c.mu.Unlock()

	if isNew && c.notify != nil {
		c.notify(NotifySuccess, u.Username+" Joined")
	}

	c.signalChange()
}

// onUserDisconnected flips the peer's presence off. An unknown ID is a benign
// race with the snapshot and is silently dropped.
func (c *Controller) onUserDisconnected(data json.RawMessage) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid user disconnected payload")
		return
	}

	c.mu.Lock()
	u, ok := c.users.ApplyDisconnected(id)
	c.mu.Unlock()

	if !ok {
		return
	}

	if c.notify != nil {
		c.notify(NotifyError, u.Username+" left the chat")
	}

	c.signalChange()
}

// onMessage appends one public line; a duplicate ID changes nothing.
func (c *Controller) onMessage(data json.RawMessage) {
	var p transport.PublicMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid public message payload")
		return
	}

	c.mu.Lock()
	appended := c.feed.Append(conversation.Message{ID: p.ID, Name: p.Name, Message: p.Message})
	c.mu.Unlock()

	if appended {
		c.signalChange()
	}
}

// onPrivateMessage appends the line to the sender's feed. The unread flag is only
// raised when the sender is not the peer currently being viewed. An unknown
// sender means the event raced the roster snapshot; it is dropped.
func (c *Controller) onPrivateMessage(data json.RawMessage) {
	var p transport.PrivateMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid private message payload")
		return
	}

	c.mu.Lock()
	markUnread := p.From != c.selected
	ok := c.users.AppendPrivate(p.From, roster.PrivateMessage{Message: p.Message, FromSelf: false}, markUnread)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Str("from", p.From).Msg("Dropped private message from unknown sender")
		return
	}

	c.signalChange()
}

// onTyping records the newest typer; the signal clears itself after its TTL.
func (c *Controller) onTyping(data json.RawMessage) {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid typing payload")
		return
	}

	c.typing.Set(name)
	c.signalChange()
}
