/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the
process and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1002
)

// 2xxx: Session and Action Guard Errors
const (
	// ErrUsernameEmpty indicates a join attempt without a display name.
	ErrUsernameEmpty = 2001

	// ErrUsernameTaken indicates the server rejected the join because the name is active.
	ErrUsernameTaken = 2002

	// ErrAlreadyConnected indicates a join attempt on a session that is already connected.
	ErrAlreadyConnected = 2003

	// ErrNotConnected indicates an action that requires an established session.
	ErrNotConnected = 2004

	// ErrEmptyMessage indicates a send attempt with no text.
	ErrEmptyMessage = 2005

	// ErrNoPeerSelected indicates a private send without a selected peer.
	ErrNoPeerSelected = 2006

	// ErrUnknownPeer indicates the target user is not in the roster.
	ErrUnknownPeer = 2007

	// ErrPeerOffline indicates the target user is known but disconnected.
	ErrPeerOffline = 2008
)

// 3xxx: Transport Errors
const (
	// ErrChannelClosed indicates an emit on a channel that is not open.
	ErrChannelClosed = 3001

	// ErrJoinTimeout indicates the join handshake was abandoned before the server answered.
	ErrJoinTimeout = 3002
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000
)
