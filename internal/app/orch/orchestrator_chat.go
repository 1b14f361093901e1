package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/app"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

// PublishPublic validates, dedups, persists and fans out a room message.
// Delivery goes to exactly the membership set at the instant of publish:
// the set is snapshotted after the durable id is assigned, so a member
// mid-leave still receives it and a microseconds-later joiner does not.
// The per-room publish lock gives single-writer ordering per room.
func (o *Orchestrator) PublishPublic(ctx context.Context, uid domain.UserID, content string, msgType domain.MessageType, nonce string) (*domain.Message, error) {
	roomID, ok := o.Presence.RoomOf(uid)
	if !ok {
		return nil, core.ErrNotAMember
	}
	lock := o.Rooms.PublishLock(roomID)
	if lock == nil {
		return nil, core.ErrNotAMember
	}
	lock.Lock()
	defer lock.Unlock()

	if !o.Dedup.ShouldAccept(uid, roomID, app.Fingerprint(nonce, content)) {
		return nil, core.ErrDuplicateMessage
	}

	if msgType == "" {
		msgType = domain.MessageText
	}
	msg := &domain.Message{
		SenderID:    uid,
		RoomID:      roomID,
		Content:     content,
		Type:        msgType,
		CreatedAt:   time.Now(),
		ClientNonce: nonce,
	}
	id, err := o.Store.Append(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = id

	// The sender receives its own echo; the client-side deduplicator
	// suppresses the optimistic render.
	o.broadcastToRoom(roomID, core.NewMessageEvent{Type: core.EventNewMessage, Message: *msg}, "")
	return msg, nil
}

// SendPrivate delivers directly to the receiver's live session,
// bypassing room membership. The message is persisted either way.
func (o *Orchestrator) SendPrivate(ctx context.Context, uid, receiverID domain.UserID, content string, msgType domain.MessageType) (*domain.Message, error) {
	if msgType == "" {
		msgType = domain.MessageText
	}
	msg := &domain.Message{
		SenderID:   uid,
		ReceiverID: receiverID,
		Content:    content,
		Type:       msgType,
		CreatedAt:  time.Now(),
	}
	id, err := o.Store.Append(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = id

	ev := core.NewMessageEvent{Type: core.EventNewMessage, Message: *msg}
	o.sendTo(uid, ev)
	if !o.sendTo(receiverID, ev) {
		return msg, core.ErrRecipientOffline
	}
	return msg, nil
}

// Typing relays an ephemeral typing indicator to the sender's room.
// Never persisted, never deduplicated.
func (o *Orchestrator) Typing(uid domain.UserID, isTyping bool) {
	roomID, ok := o.Presence.RoomOf(uid)
	if !ok {
		return
	}
	o.broadcastToRoom(roomID, core.TypingEvent{
		Type:     core.EventUserTyping,
		RoomID:   string(roomID),
		UserID:   string(uid),
		IsTyping: isTyping,
	}, uid)
	log.Debug().Str("module", "app.orch").Str("user", string(uid)).Bool("typing", isTyping).Msg("typing relayed")
}
