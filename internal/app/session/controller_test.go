package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relaychat/internal/pkg/errs"
	"relaychat/internal/transport"
)

// fakeChannel is an in-memory transport.Channel. Events fired through it run the
// registered handler synchronously, mirroring the real channel's in-order,
// run-to-completion delivery.
type fakeChannel struct {
	mu        sync.Mutex
	handlers  map[string]transport.Handler
	emitted   []emittedEvent
	connected bool
	closes    int

	// onConnect runs synchronously inside Connect, standing in for the server's
	// immediate answer to a join.
	onConnect func()
}

type emittedEvent struct {
	event   string
	payload any
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string]transport.Handler)}
}

func (f *fakeChannel) Connect(ctx context.Context, username string) error {
	f.mu.Lock()
	f.connected = true
	hook := f.onConnect
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeChannel) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return errs.NewError(errs.ErrChannelClosed)
	}
	f.emitted = append(f.emitted, emittedEvent{event: event, payload: payload})
	return nil
}

func (f *fakeChannel) On(event string, h transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = h
}

func (f *fakeChannel) Off(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.closes++
	return nil
}

// fire delivers one inbound event exactly as the read pump would.
func (f *fakeChannel) fire(t *testing.T, event string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	f.mu.Lock()
	h, ok := f.handlers[event]
	f.mu.Unlock()

	if ok {
		h(data)
	}
}

func (f *fakeChannel) emittedOf(event string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []any
	for _, e := range f.emitted {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

// toastLog collects notifications for assertions.
type toastLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *toastLog) add(kind NotifyKind, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, string(kind)+": "+text)
}

func (l *toastLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

func acceptJoin(t *testing.T, ch *fakeChannel) {
	ch.onConnect = func() {
		ch.fire(t, transport.EventSession, transport.SessionPayload{UserID: "self-1", Username: "bob"})
		ch.fire(t, transport.EventUsers, []transport.UserEntry{
			{UserID: "a", Username: "alice"},
			{UserID: "self-1", Username: "bob"},
			{UserID: "b", Username: "carol"},
		})
	}
}

// joinedController returns a controller that already completed the handshake.
func joinedController(t *testing.T) (*Controller, *fakeChannel, *toastLog) {
	t.Helper()

	ch := newFakeChannel()
	toasts := &toastLog{}

	c := NewController(ch, Options{Notify: toasts.add, TypingTTL: 50 * time.Millisecond})
	c.Start()
	t.Cleanup(c.Stop)

	acceptJoin(t, ch)
	require.NoError(t, c.Join(context.Background(), "bob"))

	return c, ch, toasts
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()

	var cerr *errs.CustomError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, code, cerr.Code)
}

func TestJoin_ResolvesOnSessionEvent(t *testing.T) {
	req := require.New(t)

	c, _, _ := joinedController(t)

	snap := c.Snapshot()
	req.True(snap.Connected)
	req.Equal("self-1", snap.SelfID)
	req.Equal("bob", snap.Username)

	// Roster ordering: self first, then username ascending.
	req.Len(snap.Users, 3)
	req.Equal("bob", snap.Users[0].Username)
	req.True(snap.Users[0].Self)
	req.Equal("alice", snap.Users[1].Username)
	req.Equal("carol", snap.Users[2].Username)
}

func TestJoin_EmptyUsernameRejectedLocally(t *testing.T) {
	ch := newFakeChannel()
	c := NewController(ch, Options{})
	c.Start()
	t.Cleanup(c.Stop)

	requireCode(t, c.Join(context.Background(), ""), errs.ErrUsernameEmpty)
}

func TestJoin_UsernameTakenLeavesSessionUnauthenticated(t *testing.T) {
	req := require.New(t)

	ch := newFakeChannel()
	toasts := &toastLog{}
	c := NewController(ch, Options{Notify: toasts.add})
	c.Start()
	t.Cleanup(c.Stop)

	ch.onConnect = func() {
		ch.fire(t, transport.EventUsernameTaken, nil)
	}

	requireCode(t, c.Join(context.Background(), "bob"), errs.ErrUsernameTaken)
	req.False(c.Snapshot().Connected)
	req.Contains(toasts.all(), "error: Username taken")
	req.GreaterOrEqual(ch.closes, 1)

	// The user is free to retry with another name on the same controller.
	acceptJoin(t, ch)
	req.NoError(c.Join(context.Background(), "bob"))
	req.True(c.Snapshot().Connected)
}

func TestJoin_AcceptanceRacingDeadlineStillSucceeds(t *testing.T) {
	req := require.New(t)

	// The session event is delivered synchronously inside Connect while the
	// context is already done, so both select arms are ready and the pick is
	// arbitrary. Either way the join must report success and keep the
	// connection. Repeat to exercise both arms.
	for i := 0; i < 25; i++ {
		ch := newFakeChannel()
		c := NewController(ch, Options{})
		c.Start()

		acceptJoin(t, ch)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		req.NoError(c.Join(ctx, "bob"))
		req.True(c.Snapshot().Connected)
		req.Zero(ch.closes)

		c.Stop()
	}
}

func TestActions_RequireEstablishedSession(t *testing.T) {
	ch := newFakeChannel()
	c := NewController(ch, Options{})
	c.Start()
	t.Cleanup(c.Stop)

	requireCode(t, c.SendPublicMessage("hi"), errs.ErrNotConnected)
	requireCode(t, c.SendPrivateMessage("hi"), errs.ErrNotConnected)
	requireCode(t, c.NotifyTyping(), errs.ErrNotConnected)
	requireCode(t, c.SendPublicMessage(""), errs.ErrEmptyMessage)

	// Nothing must reach the wire when a guard trips.
	require.Empty(t, ch.emitted)
}

func TestSendPublicMessage_EmitsWithFreshIDAndNoLocalEcho(t *testing.T) {
	req := require.New(t)

	c, ch, _ := joinedController(t)

	req.NoError(c.SendPublicMessage("hello world"))

	sent := ch.emittedOf(transport.EventMessage)
	req.Len(sent, 1)

	p := sent[0].(transport.PublicMessagePayload)
	req.NotEmpty(p.ID)
	req.Equal("bob", p.Name)
	req.Equal("hello world", p.Message)

	// The line only appears once the server echoes it back.
	req.Empty(c.Snapshot().PublicFeed)

	ch.fire(t, transport.EventMessage, p)
	req.Len(c.Snapshot().PublicFeed, 1)

	// A duplicated delivery of the same ID changes nothing.
	ch.fire(t, transport.EventMessage, p)
	req.Len(c.Snapshot().PublicFeed, 1)
}

func TestSendPublicMessage_RapidSendsGetDistinctIDs(t *testing.T) {
	req := require.New(t)

	c, ch, _ := joinedController(t)

	req.NoError(c.SendPublicMessage("one"))
	req.NoError(c.SendPublicMessage("two"))

	sent := ch.emittedOf(transport.EventMessage)
	req.Len(sent, 2)
	req.NotEqual(
		sent[0].(transport.PublicMessagePayload).ID,
		sent[1].(transport.PublicMessagePayload).ID,
	)
}

func TestPrivateMessage_FromUnselectedPeerMarksUnread(t *testing.T) {
	req := require.New(t)

	c, ch, _ := joinedController(t)

	ch.fire(t, transport.EventPrivateMessage, transport.PrivateMessagePayload{Message: "hi", From: "a"})

	snap := c.Snapshot()
	alice := snap.Users[1]
	req.Equal("alice", alice.Username)
	req.True(alice.HasNewMessages)
	req.Len(alice.Messages, 1)
	req.Equal("hi", alice.Messages[0].Message)
	req.False(alice.Messages[0].FromSelf)
}

func TestPrivateMessage_FromSelectedPeerStaysRead(t *testing.T) {
	req := require.New(t)

	c, ch, _ := joinedController(t)

	req.NoError(c.SelectPeer("a"))

	ch.fire(t, transport.EventPrivateMessage, transport.PrivateMessagePayload{Message: "hi", From: "a"})
	ch.fire(t, transport.EventPrivateMessage, transport.PrivateMessagePayload{Message: "psst", From: "b"})

	snap := c.Snapshot()
	req.False(snap.Users[1].HasNewMessages) // alice, currently viewed
	req.True(snap.Users[2].HasNewMessages)  // carol, in the background
}

func TestPrivateMessage_UnknownSenderIsDropped(t *testing.T) {
	req := require.New(t)

	c, ch, _ := joinedController(t)

	ch.fire(t, transport.EventPrivateMessage, transport.PrivateMessagePayload{Message: "boo", From: "ghost"})

	for _, u := range c.Snapshot().Users {
		req.Empty(u.Messages)
	}
}

func TestSendPrivateMessage_EmitsAndEchoesLocally(t *testing.T) {
	req := require.New(t)

	c, ch, _ := joinedController(t)

	req.NoError(c.SelectPeer("a"))
	req.NoError(c.SendPrivateMessage("yo"))

	sent := ch.emittedOf(transport.EventPrivateMessage)
	req.Len(sent, 1)

	p := sent[0].(transport.PrivateMessagePayload)
	req.Equal("yo", p.Message)
	req.Equal("a", p.To)

	alice := c.Snapshot().Users[1]
	req.Len(alice.Messages, 1)
	req.True(alice.Messages[0].FromSelf)
	req.Equal("yo", alice.Messages[0].Message)
}

func TestSendPrivateMessage_RequiresSelectedPeer(t *testing.T) {
	c, _, _ := joinedController(t)

	requireCode(t, c.SendPrivateMessage("yo"), errs.ErrNoPeerSelected)
}

func TestSelectPeer_ClearsUnreadAndGuards(t *testing.T) {
	req := require.New(t)

	c, ch, _ := joinedController(t)

	ch.fire(t, transport.EventPrivateMessage, transport.PrivateMessagePayload{Message: "hi", From: "a"})
	req.True(c.Snapshot().Users[1].HasNewMessages)

	req.NoError(c.SelectPeer("a"))
	snap := c.Snapshot()
	req.Equal("a", snap.SelectedPeer)
	req.False(snap.Users[1].HasNewMessages)

	requireCode(t, c.SelectPeer("ghost"), errs.ErrUnknownPeer)
	requireCode(t, c.SelectPeer("self-1"), errs.ErrInvalidParams)

	ch.fire(t, transport.EventUserDisconnected, "b")
	requireCode(t, c.SelectPeer("b"), errs.ErrPeerOffline)
}

func TestUserConnected_AppendsAndNotifies(t *testing.T) {
	req := require.New(t)

	c, ch, toasts := joinedController(t)

	ch.fire(t, transport.EventUserConnected, transport.UserEntry{UserID: "d", Username: "dave"})

	snap := c.Snapshot()
	req.Len(snap.Users, 4)
	req.Equal("dave", snap.Users[3].Username) // appended, not re-sorted
	req.Contains(toasts.all(), "success: dave Joined")
}

func TestUserDisconnected_KeepsHistoryAndNotifies(t *testing.T) {
	req := require.New(t)

	c, ch, toasts := joinedController(t)

	ch.fire(t, transport.EventPrivateMessage, transport.PrivateMessagePayload{Message: "hi", From: "a"})
	ch.fire(t, transport.EventUserDisconnected, "a")

	alice := c.Snapshot().Users[1]
	req.False(alice.Connected)
	req.Len(alice.Messages, 1)
	req.Contains(toasts.all(), "error: alice left the chat")
}

func TestUserDisconnected_UnknownIDIsNoOp(t *testing.T) {
	req := require.New(t)

	c, ch, toasts := joinedController(t)
	before := len(toasts.all())

	ch.fire(t, transport.EventUserDisconnected, "ghost")

	req.Len(c.Snapshot().Users, 3)
	req.Len(toasts.all(), before)
}

func TestTyping_SignalSetsAndExpires(t *testing.T) {
	req := require.New(t)

	c, ch, _ := joinedController(t)

	ch.fire(t, transport.EventTyping, "alice")
	req.Equal("alice", c.Snapshot().Typing)

	require.Eventually(t, func() bool {
		return c.Snapshot().Typing == ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotifyTyping_IsThrottled(t *testing.T) {
	req := require.New(t)

	c, ch, _ := joinedController(t)

	req.NoError(c.NotifyTyping())
	req.NoError(c.NotifyTyping())

	// Burst of one: the second call inside the same window is swallowed.
	req.Len(ch.emittedOf(transport.EventTyping), 1)
}

func TestChanges_SignalsAfterMutation(t *testing.T) {
	c, ch, _ := joinedController(t)

	// Drain whatever the join already signaled.
	select {
	case <-c.Changes():
	default:
	}

	ch.fire(t, transport.EventMessage, transport.PublicMessagePayload{ID: "m1", Name: "alice", Message: "hi"})

	select {
	case <-c.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change signal after a feed append")
	}
}

func TestStop_DetachesReducersExactlyOnce(t *testing.T) {
	req := require.New(t)

	c, ch, _ := joinedController(t)

	c.Stop()
	req.Equal(1, ch.closes)

	// Handlers are gone: a late event mutates nothing.
	ch.fire(t, transport.EventUserConnected, transport.UserEntry{UserID: "x", Username: "xeno"})
	req.Len(c.Snapshot().Users, 3)

	// Stop is idempotent.
	c.Stop()
	req.Equal(1, ch.closes)

	requireCode(t, c.Join(context.Background(), "bob"), errs.ErrChannelClosed)
}
