package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

// handleSignalRelay forwards webrtc-offer/answer/ice-candidate frames.
// The relay is stateless; validation happens against the presence
// tracker inside the orchestrator.
func (ctl *Controller) handleSignalRelay(cc *clientConn, uid domain.UserID, eventType string, data []byte) {
	var p core.SignalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, "invalid signal payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, err.Error()))
		return
	}

	err := ctl.Orch.Relay(uid, eventType, p)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrRecipientNotInRoom):
		// Sender-side cleanup signal, not a hard failure.
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodePeerGone, p.To))
	case errors.Is(err, core.ErrNotBroadcastRoom):
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeNotBroadcast, "signaling requires a broadcast room"))
	case errors.Is(err, core.ErrNotAMember):
		log.Warn().Str("module", "signal").Str("user", string(uid)).Msg("signal from non-member dropped")
	default:
		log.Error().Err(err).Str("module", "signal").Str("user", string(uid)).Str("signal", eventType).Msg("relay failed")
	}
}
