package core

import (
	"context"

	"github.com/parleyhq/parley/internal/domain"
)

// Frame is a raw outbound payload, already encoded.
type Frame []byte

type SessionID string

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	// CloseWithReason sends a close reason before tearing the transport
	// down; used for supersession.
	CloseWithReason(reason string)
	Close()
}

// Identity is what the user directory resolves a user id to.
type Identity struct {
	DisplayName string
	Role        domain.Role
}

// UserDirectory resolves user ids to display identity and role.
// External collaborator; the live layer never writes to it.
type UserDirectory interface {
	Resolve(ctx context.Context, id domain.UserID) (Identity, error)
}

// MessageStore is the durable persistence collaborator. Append assigns
// the per-deployment monotonic id; RecentSince is the delta-sync source.
type MessageStore interface {
	Append(ctx context.Context, msg *domain.Message) (domain.MessageID, error)
	RecentSince(ctx context.Context, roomID domain.RoomID, sinceID domain.MessageID, limit int) ([]domain.Message, error)
}

// PublishResult reports delivery stats and backpressure to the orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []domain.UserID
}

// MemberDTO is a read-only roster view for APIs (no transport fields).
type MemberDTO struct {
	ID          domain.UserID `json:"id"`
	DisplayName string        `json:"display_name"`
	Role        string        `json:"role"`
}
