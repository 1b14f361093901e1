package core

import "errors"

var (
	// ErrAuthFailed is fatal to the connection attempt; never retried.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotAMember means a message was published to a room the sender
	// is not in. Dropped server-side with a log line; usually a benign
	// race with a leave in flight.
	ErrNotAMember = errors.New("sender is not a member of the room")

	// ErrDuplicateMessage is raised by the deduplicator and silently
	// suppressed.
	ErrDuplicateMessage = errors.New("duplicate message suppressed")

	// ErrRecipientNotInRoom means a signaling target left between send
	// and relay. The sender treats this as "peer gone", not a failure.
	ErrRecipientNotInRoom = errors.New("recipient not in room")

	// ErrRecipientOffline means a private message target has no live
	// session.
	ErrRecipientOffline = errors.New("recipient offline")

	// ErrNotBroadcastRoom guards speaker operations on plain rooms.
	ErrNotBroadcastRoom = errors.New("room is not a broadcast room")

	// ErrNotAuthorized covers mic approvals by non-hosts and similar.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrBackpressure means a session's send buffer is full.
	ErrBackpressure = errors.New("backpressure")

	// ErrConnectionClosed is returned on send after the transport closed.
	ErrConnectionClosed = errors.New("connection closed")
)

// CloseReasonSuperseded is delivered to a connection replaced by a newer
// authenticated connection for the same user.
const CloseReasonSuperseded = "superseded"
