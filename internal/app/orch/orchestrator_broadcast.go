package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

// StartBroadcasting transitions uid to speaker in roomID. The host may
// always start; anyone else must already have been promoted through the
// mic queue.
func (o *Orchestrator) StartBroadcasting(uid domain.UserID, roomID domain.RoomID) error {
	room, err := o.broadcastRoomFor(uid, roomID)
	if err != nil {
		return err
	}
	if uid != room.HostID && !room.IsSpeaker(uid) {
		return core.ErrNotAuthorized
	}
	room.AddSpeaker(uid)
	o.broadcastToRoom(roomID, core.SpeakerEvent{
		Type:   core.EventSpeakerStarted,
		RoomID: string(roomID),
		UserID: string(uid),
	}, "")
	log.Info().Str("module", "app.orch").Str("user", string(uid)).Str("room", string(roomID)).Msg("started broadcasting")
	return nil
}

func (o *Orchestrator) StopBroadcasting(uid domain.UserID, roomID domain.RoomID) error {
	room, err := o.broadcastRoomFor(uid, roomID)
	if err != nil {
		return err
	}
	if room.RemoveSpeaker(uid) {
		o.broadcastToRoom(roomID, core.SpeakerEvent{
			Type:   core.EventSpeakerLeft,
			RoomID: string(roomID),
			UserID: string(uid),
		}, "")
		log.Info().Str("module", "app.orch").Str("user", string(uid)).Str("room", string(roomID)).Msg("stopped broadcasting")
	}
	return nil
}

// RequestMic puts uid on the room's mic queue and tells the room, so the
// host UI can surface the request.
func (o *Orchestrator) RequestMic(uid domain.UserID, roomID domain.RoomID) error {
	room, err := o.broadcastRoomFor(uid, roomID)
	if err != nil {
		return err
	}
	if !room.EnqueueMic(uid) {
		// Already queued or already a speaker; idempotent.
		return nil
	}
	o.broadcastToRoom(roomID, core.MicEvent{
		Type:          core.EventMicRequested,
		RoomID:        string(roomID),
		UserID:        string(uid),
		QueuePosition: len(room.MicQueue()),
	}, "")
	return nil
}

// ApproveMic promotes target from the mic queue to the speaker set. Only
// the host or a moderator may approve. The speaker-started event reaches
// every member, including the promoted speaker, who uses it as the cue
// to begin the offer/answer handshake with every listener.
func (o *Orchestrator) ApproveMic(approver domain.UserID, roomID domain.RoomID, target domain.UserID) error {
	room, err := o.broadcastRoomFor(approver, roomID)
	if err != nil {
		return err
	}
	if err := o.requireHostOrModerator(approver, room); err != nil {
		return err
	}
	if !o.Presence.IsMember(target, roomID) {
		// Requester left while queued; drop the stale entry.
		room.DequeueMic(target)
		return core.ErrRecipientNotInRoom
	}
	if !room.PromoteFromQueue(target) {
		return nil
	}
	o.broadcastToRoom(roomID, core.SpeakerEvent{
		Type:   core.EventSpeakerStarted,
		RoomID: string(roomID),
		UserID: string(target),
	}, "")
	log.Info().Str("module", "app.orch").Str("user", string(target)).Str("room", string(roomID)).Str("approved_by", string(approver)).Msg("mic approved")
	return nil
}

func (o *Orchestrator) DenyMic(approver domain.UserID, roomID domain.RoomID, target domain.UserID) error {
	room, err := o.broadcastRoomFor(approver, roomID)
	if err != nil {
		return err
	}
	if err := o.requireHostOrModerator(approver, room); err != nil {
		return err
	}
	if room.DequeueMic(target) {
		o.sendTo(target, core.MicEvent{
			Type:   core.EventMicDenied,
			RoomID: string(roomID),
			UserID: string(target),
		})
	}
	return nil
}

// teardownSpeaker removes uid's speaker and queue state on leave or
// disconnect, announcing speaker-left so listeners drop their links.
func (o *Orchestrator) teardownSpeaker(uid domain.UserID, roomID domain.RoomID) {
	room, ok := o.Rooms.Get(roomID)
	if !ok || !room.IsBroadcast {
		return
	}
	room.DequeueMic(uid)
	if room.RemoveSpeaker(uid) {
		o.broadcastToRoom(roomID, core.SpeakerEvent{
			Type:   core.EventSpeakerLeft,
			RoomID: string(roomID),
			UserID: string(uid),
		}, uid)
	}
}

func (o *Orchestrator) broadcastRoomFor(uid domain.UserID, roomID domain.RoomID) (*domain.Room, error) {
	if !o.Presence.IsMember(uid, roomID) {
		return nil, core.ErrNotAMember
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if !room.IsBroadcast {
		return nil, core.ErrNotBroadcastRoom
	}
	return room, nil
}

func (o *Orchestrator) requireHostOrModerator(uid domain.UserID, room *domain.Room) error {
	if uid == room.HostID {
		return nil
	}
	if sess, ok := o.Registry.Get(uid); ok && sess.User.Role >= domain.RoleModerator {
		return nil
	}
	return core.ErrNotAuthorized
}
