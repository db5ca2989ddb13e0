package gateway

import "errors"

var (
	// ErrAuthentication wraps every reason a connection attempt was refused.
	ErrAuthentication = errors.New("authentication failed")
	// ErrPresence is returned when the presence entry could not be written.
	ErrPresence = errors.New("presence registration failed")
	// ErrNotAuthenticated is returned for events on a connection that has not
	// completed authentication or is already closed.
	ErrNotAuthenticated = errors.New("connection is not authenticated")
	// ErrUnresolvedSender is returned when a message arrives for a connection
	// without a presence entry.
	ErrUnresolvedSender = errors.New("sender could not be resolved")
	// ErrResolveRoom is returned when the default room is unavailable.
	ErrResolveRoom = errors.New("default room could not be resolved")
	// ErrPersistMessage is returned when the message store rejected a message.
	ErrPersistMessage = errors.New("message could not be persisted")
	// ErrEmptyMessage is returned for a message event without content.
	ErrEmptyMessage = errors.New("message has no content")
	// ErrBroadcasterClosed is wrapped by a Broadcaster that has shut down.
	ErrBroadcasterClosed = errors.New("broadcaster closed")
)
