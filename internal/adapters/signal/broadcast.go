package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

func (ctl *Controller) handleBroadcasting(cc *clientConn, uid domain.UserID, eventType string, data []byte) {
	var p core.BroadcastPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, "invalid broadcast payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, err.Error()))
		return
	}

	roomID := domain.RoomID(p.RoomID)
	var err error
	if eventType == core.EventStartBroadcasting {
		err = ctl.Orch.StartBroadcasting(uid, roomID)
	} else {
		err = ctl.Orch.StopBroadcasting(uid, roomID)
	}
	ctl.replyBroadcastErr(cc, uid, eventType, err)
}

func (ctl *Controller) handleMic(cc *clientConn, uid domain.UserID, eventType string, data []byte) {
	var p core.MicPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, "invalid mic payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, err.Error()))
		return
	}

	roomID := domain.RoomID(p.RoomID)
	var err error
	switch eventType {
	case core.EventMicRequest:
		err = ctl.Orch.RequestMic(uid, roomID)
	case core.EventMicApprove:
		err = ctl.Orch.ApproveMic(uid, roomID, domain.UserID(p.UserID))
	case core.EventMicDeny:
		err = ctl.Orch.DenyMic(uid, roomID, domain.UserID(p.UserID))
	}
	ctl.replyBroadcastErr(cc, uid, eventType, err)
}

func (ctl *Controller) replyBroadcastErr(cc *clientConn, uid domain.UserID, eventType string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, core.ErrNotAuthorized):
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeNotAuthorized, "not allowed"))
	case errors.Is(err, core.ErrNotBroadcastRoom):
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeNotBroadcast, "not a broadcast room"))
	case errors.Is(err, core.ErrRecipientNotInRoom):
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodePeerGone, "requester already left"))
	case errors.Is(err, core.ErrNotAMember):
		log.Warn().Str("module", "signal").Str("user", string(uid)).Str("event", eventType).Msg("broadcast op from non-member dropped")
	default:
		log.Error().Err(err).Str("module", "signal").Str("user", string(uid)).Str("event", eventType).Msg("broadcast op failed")
	}
}
