package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/app/orch"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

func (ctl *Controller) handleJoinRoom(cc *clientConn, uid domain.UserID, data []byte) {
	var p core.JoinRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, "invalid joinRoom payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, err.Error()))
		return
	}

	log.Info().Str("module", "signal").Str("user", string(uid)).Str("room", p.RoomID).Int64("last_id", p.LastID).Msg("join")
	err := ctl.Orch.JoinRoom(context.Background(), uid, domain.RoomID(p.RoomID), domain.MessageID(p.LastID))
	if errors.Is(err, orch.ErrRoomNotFound) {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, "room does not exist"))
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", p.RoomID).Msg("join failed")
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeInternal, "join failed"))
	}
}

// handleLeaveRoom is an explicit exit; the connection stays up.
func (ctl *Controller) handleLeaveRoom(uid domain.UserID) {
	log.Info().Str("module", "signal").Str("user", string(uid)).Msg("leave")
	ctl.Orch.LeaveRoom(uid)
}
