package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/app"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

// Orchestrator wires the live-state services together. The presence
// tracker is the single source of truth for room membership; message
// fan-out and signaling relay both consult it and keep no copy.
type Orchestrator struct {
	Registry  *app.SessionRegistry
	Presence  *app.PresenceTracker
	Rooms     *app.RoomCatalog
	Dedup     *app.Deduplicator
	Store     core.MessageStore
	Directory core.UserDirectory
	Policy    app.Policy
}

func New(
	registry *app.SessionRegistry,
	presence *app.PresenceTracker,
	rooms *app.RoomCatalog,
	dedup *app.Deduplicator,
	store core.MessageStore,
	directory core.UserDirectory,
	policy app.Policy,
) *Orchestrator {
	o := &Orchestrator{
		Registry:  registry,
		Presence:  presence,
		Rooms:     rooms,
		Dedup:     dedup,
		Store:     store,
		Directory: directory,
		Policy:    policy,
	}
	presence.OnDelta(o.fanOutDelta)
	return o
}

// broadcastToRoom snapshots the membership set under the presence lock,
// then writes outside it. Slow I/O never holds room state.
func (o *Orchestrator) broadcastToRoom(roomID domain.RoomID, v any, except domain.UserID) core.PublishResult {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("broadcast marshal")
		return core.PublishResult{}
	}

	members := o.Presence.MembersOf(roomID)
	conns := o.Registry.ConnsOf(members)

	res := core.PublishResult{}
	for uid, conn := range conns {
		if except != "" && uid == except {
			continue
		}
		if err := conn.TrySend(core.Frame(data)); err != nil {
			res.Dropped = append(res.Dropped, uid)
			continue
		}
		res.SentTo++
	}

	for _, slow := range res.Dropped {
		o.onBackpressure(roomID, slow)
	}
	log.Debug().Str("module", "app.orch").Str("room", string(roomID)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (o *Orchestrator) onBackpressure(roomID domain.RoomID, uid domain.UserID) {
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackpressure(roomID, uid) {
	case app.KickMember:
		if sess, ok := o.Registry.Get(uid); ok && sess.Cancel != nil {
			log.Warn().Str("module", "app.orch").Str("user", string(uid)).Msg("kicking slow consumer")
			sess.Cancel()
		}
	case app.MarkSlow, app.DropFrame, app.NoAction:
	}
}

// sendTo writes a single event to one user's live connection, if any.
func (o *Orchestrator) sendTo(uid domain.UserID, v any) bool {
	sess, ok := o.Registry.Get(uid)
	if !ok {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("sendTo marshal")
		return false
	}
	if err := sess.Conn.TrySend(core.Frame(data)); err != nil {
		o.onBackpressure(sess.CurrentRoomID, uid)
		return false
	}
	return true
}

func (o *Orchestrator) fanOutDelta(delta domain.PresenceDelta) {
	evType := core.EventUserJoined
	if delta.Kind == domain.PresenceLeft {
		evType = core.EventUserLeft
	}
	o.broadcastToRoom(delta.RoomID, core.PresenceEvent{Type: evType, Delta: delta}, delta.UserID)
}

// rosterOf builds the read-only roster for a room from live sessions.
func (o *Orchestrator) rosterOf(roomID domain.RoomID) []core.MemberDTO {
	members := o.Presence.MembersOf(roomID)
	out := make([]core.MemberDTO, 0, len(members))
	for _, uid := range members {
		sess, ok := o.Registry.Get(uid)
		if !ok {
			continue
		}
		out = append(out, core.MemberDTO{
			ID:          sess.User.ID,
			DisplayName: sess.User.DisplayName,
			Role:        sess.User.Role.String(),
		})
	}
	return out
}
