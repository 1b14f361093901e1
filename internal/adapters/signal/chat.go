package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

func (ctl *Controller) handlePublicMessage(cc *clientConn, uid domain.UserID, data []byte) {
	if !ctl.limiter.Allow(uid) {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeRateLimited, "slow down"))
		return
	}

	var p core.PublicMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, "invalid publicMessage payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, err.Error()))
		return
	}

	_, err := ctl.Orch.PublishPublic(context.Background(), uid, p.Content, domain.MessageType(p.MessageType), p.ClientNonce)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrDuplicateMessage):
		// Client retry or double submit; suppressed, never user-visible.
		log.Debug().Str("module", "signal").Str("user", string(uid)).Msg("duplicate message suppressed")
	case errors.Is(err, core.ErrNotAMember):
		// Usually a benign race with a leave in flight. Dropped, logged,
		// not echoed back.
		log.Warn().Str("module", "signal").Str("user", string(uid)).Msg("publish from non-member dropped")
	default:
		log.Error().Err(err).Str("module", "signal").Str("user", string(uid)).Msg("publish failed")
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeInternal, "message not delivered"))
	}
}

func (ctl *Controller) handlePrivateMessage(cc *clientConn, uid domain.UserID, data []byte) {
	if !ctl.limiter.Allow(uid) {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeRateLimited, "slow down"))
		return
	}

	var p core.PrivateMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, "invalid privateMessage payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, err.Error()))
		return
	}

	_, err := ctl.Orch.SendPrivate(context.Background(), uid, domain.UserID(p.ReceiverID), p.Content, domain.MessageType(p.MessageType))
	switch {
	case err == nil:
	case errors.Is(err, core.ErrRecipientOffline):
		log.Debug().Str("module", "signal").Str("to", p.ReceiverID).Msg("private message persisted, recipient offline")
	default:
		log.Error().Err(err).Str("module", "signal").Str("user", string(uid)).Msg("private message failed")
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeInternal, "message not delivered"))
	}
}

func (ctl *Controller) handleTyping(uid domain.UserID, data []byte) {
	var p core.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	ctl.Orch.Typing(uid, p.IsTyping)
}
