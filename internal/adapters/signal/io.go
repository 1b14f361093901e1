package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
)

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.WS.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.WS.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(ctl.WS.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cc *clientConn) {
	defer func() {
		if sid, uid, ok := cc.identity(); ok {
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
			ctl.Orch.OnDisconnect(sid)
			ctl.limiter.Forget(uid)
		}
		cc.conn.Close()
		cc.cancel()
	}()

	cc.conn.conn.SetReadLimit(ctl.WS.ReadLimit)
	_ = cc.conn.conn.SetReadDeadline(time.Now().Add(ctl.WS.PongWait))
	cc.conn.conn.SetPongHandler(func(string) error {
		return cc.conn.conn.SetReadDeadline(time.Now().Add(ctl.WS.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := cc.conn.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
				}
				return
			}
			ctl.dispatch(cc, data)
		}
	}
}

func (ctl *Controller) dispatch(cc *clientConn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, "invalid message format"))
		return
	}

	switch env.Type {
	case core.EventAuth:
		ctl.handleAuth(cc, data)
		return
	case core.EventPing:
		ctl.handlePing(cc.conn)
		return
	}

	sid, uid, ok := cc.identity()
	if !ok {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeUnauthorized, "authenticate first"))
		return
	}
	ctl.Orch.Registry.Touch(sid)

	switch env.Type {
	case core.EventJoinRoom:
		ctl.handleJoinRoom(cc, uid, data)
	case core.EventLeaveRoom:
		ctl.handleLeaveRoom(uid)
	case core.EventPublicMessage:
		ctl.handlePublicMessage(cc, uid, data)
	case core.EventPrivateMessage:
		ctl.handlePrivateMessage(cc, uid, data)
	case core.EventTyping:
		ctl.handleTyping(uid, data)
	case core.EventWebRTCOffer, core.EventWebRTCAnswer, core.EventWebRTCCandidate:
		ctl.handleSignalRelay(cc, uid, env.Type, data)
	case core.EventStartBroadcasting, core.EventStopBroadcasting:
		ctl.handleBroadcasting(cc, uid, env.Type, data)
	case core.EventMicRequest, core.EventMicApprove, core.EventMicDeny:
		ctl.handleMic(cc, uid, env.Type, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *Controller) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
