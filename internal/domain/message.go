package domain

import "time"

// MessageID is monotonically increasing per deployment, assigned by the
// message store on append.
type MessageID int64

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageSystem MessageType = "system"
)

// Message is immutable once created.
type Message struct {
	ID          MessageID   `json:"id"`
	SenderID    UserID      `json:"sender_id"`
	ReceiverID  UserID      `json:"receiver_id,omitempty"`
	RoomID      RoomID      `json:"room_id,omitempty"`
	Content     string      `json:"content"`
	Type        MessageType `json:"type"`
	CreatedAt   time.Time   `json:"created_at"`
	ClientNonce string      `json:"client_nonce,omitempty"`
}

type PresenceKind string

const (
	PresenceJoined PresenceKind = "joined"
	PresenceLeft   PresenceKind = "left"
)

// PresenceDelta is a transient event, never persisted.
type PresenceDelta struct {
	RoomID           RoomID       `json:"room_id"`
	UserID           UserID       `json:"user_id"`
	Kind             PresenceKind `json:"kind"`
	MemberCountAfter int          `json:"member_count_after"`
}
