package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

// Relay forwards a WebRTC offer/answer/candidate to its target. The
// server holds no media state; it only validates that sender and target
// currently share the same broadcast room, against the presence tracker.
func (o *Orchestrator) Relay(from domain.UserID, eventType string, p core.SignalPayload) error {
	roomID, ok := o.Presence.RoomOf(from)
	if !ok {
		return core.ErrNotAMember
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok || !room.IsBroadcast {
		return core.ErrNotBroadcastRoom
	}

	to := domain.UserID(p.To)
	if !o.Presence.IsMember(to, roomID) {
		// Target left between send and relay; the sender treats this as
		// "peer gone", not a hard failure.
		return core.ErrRecipientNotInRoom
	}

	ev := core.RelayedSignalEvent{
		Type:          eventType,
		From:          string(from),
		SDP:           p.SDP,
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}
	if !o.sendTo(to, ev) {
		return core.ErrRecipientNotInRoom
	}
	log.Debug().Str("module", "app.orch").Str("from", string(from)).Str("to", p.To).Str("signal", eventType).Msg("relayed")
	return nil
}
