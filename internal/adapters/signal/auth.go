package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

// handleAuth runs the handshake: verify credentials, resolve identity,
// register the session. A prior session for the same user is superseded:
// it gets notified, closed, and its pumps cancelled, strictly after the
// registry mapping has been swapped to the new connection.
func (ctl *Controller) handleAuth(cc *clientConn, data []byte) {
	// One handshake per connection. Rebinding an authed connection to a
	// new identity would orphan the first user's session in the registry.
	if _, uid, ok := cc.identity(); ok {
		log.Warn().Str("module", "signal").Str("user", string(uid)).Msg("repeat auth rejected")
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, "already authenticated"))
		return
	}

	var p core.AuthPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, "invalid auth payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendJSON(cc.conn, core.NewErrorEvent(core.CodeBadPayload, err.Error()))
		return
	}

	uid := domain.UserID(p.UserID)
	ident, err := ctl.resolveIdentity(uid, p)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", p.UserID).Msg("auth rejected")
		ctl.sendJSON(cc.conn, core.AuthResultEvent{
			Type:    core.EventAuthResult,
			Success: false,
			Message: "authentication failed",
		})
		return
	}

	user := &domain.User{ID: uid, DisplayName: ident.DisplayName, Role: ident.Role}
	sess, prev := ctl.Orch.Registry.Register(user, cc.conn, cc.cancel)
	if prev != nil {
		ctl.sendJSON(prev.Conn, core.SupersededEvent{
			Type:   core.EventSuperseded,
			Reason: core.CloseReasonSuperseded,
		})
		prev.Conn.CloseWithReason(core.CloseReasonSuperseded)
		if prev.Cancel != nil {
			prev.Cancel()
		}
	}
	cc.bind(sess.ID, uid)

	ctl.sendJSON(cc.conn, core.AuthResultEvent{
		Type:        core.EventAuthResult,
		Success:     true,
		SessionID:   string(sess.ID),
		UserID:      string(uid),
		DisplayName: user.DisplayName,
		Role:        user.Role.String(),
	})
	log.Info().Str("module", "signal").Str("sid", string(sess.ID)).Str("user", string(uid)).Msg("authenticated")
}

// resolveIdentity verifies the JWT when supplied; otherwise the user is
// looked up in the directory and downgraded to guest if unknown. The
// username in the payload only wins for guests without a directory entry.
func (ctl *Controller) resolveIdentity(uid domain.UserID, p core.AuthPayload) (core.Identity, error) {
	if p.Token != "" {
		claims, err := ctl.verifyToken(p.Token)
		if err != nil {
			return core.Identity{}, fmt.Errorf("%w: %v", core.ErrAuthFailed, err)
		}
		if sub, _ := claims["sub"].(string); sub != string(uid) {
			return core.Identity{}, fmt.Errorf("%w: token subject mismatch", core.ErrAuthFailed)
		}
		name, _ := claims["name"].(string)
		if name == "" {
			name = p.Username
		}
		roleClaim, _ := claims["role"].(string)
		return core.Identity{DisplayName: name, Role: domain.ParseRole(roleClaim)}, nil
	}

	ident, err := ctl.Orch.Directory.Resolve(context.Background(), uid)
	if err != nil {
		return core.Identity{}, fmt.Errorf("%w: %v", core.ErrAuthFailed, err)
	}
	if ident.Role == domain.RoleGuest && p.Username != "" {
		ident.DisplayName = p.Username
	}
	return ident, nil
}

func (ctl *Controller) verifyToken(raw string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(ctl.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
