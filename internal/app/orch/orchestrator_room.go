package orch

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

var ErrRoomNotFound = errors.New("room not found")

// historyLimit caps how many messages a delta sync replays in one go.
const historyLimit = 100

// JoinRoom moves uid into roomID, implicitly leaving any previous room.
// The leave delta is always fanned out strictly before the join delta.
// lastID is the client's resume cursor; only newer messages come back.
func (o *Orchestrator) JoinRoom(ctx context.Context, uid domain.UserID, roomID domain.RoomID, lastID domain.MessageID) error {
	if _, ok := o.Rooms.Get(roomID); !ok {
		return ErrRoomNotFound
	}

	// Leaving a broadcast room, even implicitly, ends any speaker role
	// there; listeners get speaker-left so they drop their links, and a
	// later rejoin starts from scratch in the mic queue.
	if oldRoom, ok := o.Presence.RoomOf(uid); ok && oldRoom != roomID {
		o.teardownSpeaker(uid, oldRoom)
	}

	deltas := o.Presence.Join(uid, roomID)
	o.Registry.SetRoom(uid, roomID)
	for _, d := range deltas {
		o.fanOutDelta(d)
	}

	o.sendTo(uid, core.OnlineUsersEvent{
		Type:    core.EventOnlineUsers,
		RoomID:  string(roomID),
		Members: o.rosterOf(roomID),
		Count:   o.Presence.MemberCount(roomID),
	})

	msgs, err := o.Store.RecentSince(ctx, roomID, lastID, historyLimit)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("room", string(roomID)).Msg("delta sync failed")
	} else if len(msgs) > 0 || lastID > 0 {
		o.sendTo(uid, core.MessageHistoryEvent{
			Type:     core.EventMessageHistory,
			RoomID:   string(roomID),
			Messages: msgs,
		})
	}
	return nil
}

// LeaveRoom is an explicit exit (the connection stays up), so the
// disconnect grace window does not apply.
func (o *Orchestrator) LeaveRoom(uid domain.UserID) {
	roomID, ok := o.Presence.RoomOf(uid)
	if !ok {
		return
	}
	o.teardownSpeaker(uid, roomID)
	if delta, ok := o.Presence.Leave(uid, roomID); ok {
		o.Registry.SetRoom(uid, "")
		o.fanOutDelta(delta)
	}
}

// OnDisconnect handles a transport close. The presence leave is
// debounced by the grace window; speaker state is torn down immediately
// because the media path is already gone.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	sess, ok := o.Registry.Unregister(sid)
	if !ok {
		// A superseded socket closing late; the replacement owns the user now.
		return
	}
	uid := sess.User.ID
	if roomID, ok := o.Presence.RoomOf(uid); ok {
		o.teardownSpeaker(uid, roomID)
	}
	o.Presence.Disconnect(uid)
}
