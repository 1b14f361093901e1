package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/domain"
)

// PresenceTracker owns the per-room membership sets. It is the single
// source of truth consulted by both message fan-out and signaling relay.
//
// A user is a member of at most one room at a time: joining a new room
// implicitly leaves the previous one, and the two deltas are emitted in
// leave-then-join order so observers never see a user counted twice.
type PresenceTracker struct {
	mu       sync.RWMutex
	userRoom map[domain.UserID]domain.RoomID
	rooms    map[domain.RoomID]*roomPresence
	pending  map[domain.UserID]*graceLeave

	grace time.Duration

	// onDelta receives deltas produced outside a Join/Leave call, i.e.
	// deferred disconnect leaves fired after the grace window.
	onDelta func(domain.PresenceDelta)
}

type roomPresence struct {
	mu      sync.RWMutex
	members map[domain.UserID]time.Time
}

type graceLeave struct {
	roomID domain.RoomID
	timer  *time.Timer
}

func NewPresenceTracker(grace time.Duration) *PresenceTracker {
	return &PresenceTracker{
		userRoom: make(map[domain.UserID]domain.RoomID),
		rooms:    make(map[domain.RoomID]*roomPresence),
		pending:  make(map[domain.UserID]*graceLeave),
		grace:    grace,
	}
}

// OnDelta sets the sink for deltas emitted by deferred disconnect leaves.
// Must be set before the first Disconnect call.
func (p *PresenceTracker) OnDelta(fn func(domain.PresenceDelta)) {
	p.onDelta = fn
}

// Join makes uid a member of roomID, leaving any previous room first.
// Deltas are returned in the order they must be observed: leave-old,
// then join-new. Rejoining the current room within the grace window
// yields no deltas at all, so transient reconnects do not flash
// "left"/"joined" to the rest of the room.
func (p *PresenceTracker) Join(uid domain.UserID, roomID domain.RoomID) []domain.PresenceDelta {
	p.mu.Lock()

	p.cancelPendingLocked(uid)

	var deltas []domain.PresenceDelta
	old, wasMember := p.userRoom[uid]
	if wasMember && old == roomID {
		p.mu.Unlock()
		return nil
	}
	if wasMember {
		deltas = append(deltas, p.removeLocked(uid, old))
	}

	rp := p.rooms[roomID]
	if rp == nil {
		rp = &roomPresence{members: make(map[domain.UserID]time.Time)}
		p.rooms[roomID] = rp
	}
	p.userRoom[uid] = roomID
	rp.mu.Lock()
	rp.members[uid] = time.Now()
	count := len(rp.members)
	rp.mu.Unlock()
	p.mu.Unlock()

	deltas = append(deltas, domain.PresenceDelta{
		RoomID:           roomID,
		UserID:           uid,
		Kind:             domain.PresenceJoined,
		MemberCountAfter: count,
	})
	log.Info().Str("module", "app.presence").Str("user", string(uid)).Str("room", string(roomID)).Msg("joined room")
	return deltas
}

// Leave removes uid from roomID explicitly (room switch or logout),
// bypassing the disconnect grace window.
func (p *PresenceTracker) Leave(uid domain.UserID, roomID domain.RoomID) (domain.PresenceDelta, bool) {
	p.mu.Lock()
	p.cancelPendingLocked(uid)
	cur, ok := p.userRoom[uid]
	if !ok || cur != roomID {
		p.mu.Unlock()
		return domain.PresenceDelta{}, false
	}
	delta := p.removeLocked(uid, roomID)
	p.mu.Unlock()
	log.Info().Str("module", "app.presence").Str("user", string(uid)).Str("room", string(roomID)).Msg("left room")
	return delta, true
}

// Disconnect schedules a leave after the grace window, tolerating rapid
// reconnects without flashing presence to the room. A Join within the
// window cancels it.
func (p *PresenceTracker) Disconnect(uid domain.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	roomID, ok := p.userRoom[uid]
	if !ok {
		return
	}
	p.cancelPendingLocked(uid)

	if p.grace <= 0 {
		delta := p.removeLocked(uid, roomID)
		if p.onDelta != nil {
			go p.onDelta(delta)
		}
		return
	}

	gl := &graceLeave{roomID: roomID}
	gl.timer = time.AfterFunc(p.grace, func() { p.fireGraceLeave(uid, gl) })
	p.pending[uid] = gl
	log.Debug().Str("module", "app.presence").Str("user", string(uid)).Dur("grace", p.grace).Msg("leave deferred")
}

func (p *PresenceTracker) fireGraceLeave(uid domain.UserID, gl *graceLeave) {
	p.mu.Lock()
	if p.pending[uid] != gl {
		// Cancelled by a rejoin that raced the timer.
		p.mu.Unlock()
		return
	}
	delete(p.pending, uid)
	cur, ok := p.userRoom[uid]
	if !ok || cur != gl.roomID {
		p.mu.Unlock()
		return
	}
	delta := p.removeLocked(uid, gl.roomID)
	fn := p.onDelta
	p.mu.Unlock()

	log.Info().Str("module", "app.presence").Str("user", string(uid)).Str("room", string(gl.roomID)).Msg("grace expired, left room")
	if fn != nil {
		fn(delta)
	}
}

func (p *PresenceTracker) cancelPendingLocked(uid domain.UserID) {
	if gl, ok := p.pending[uid]; ok {
		gl.timer.Stop()
		delete(p.pending, uid)
	}
}

// removeLocked requires p.mu held for writing.
func (p *PresenceTracker) removeLocked(uid domain.UserID, roomID domain.RoomID) domain.PresenceDelta {
	delete(p.userRoom, uid)
	count := 0
	if rp := p.rooms[roomID]; rp != nil {
		rp.mu.Lock()
		delete(rp.members, uid)
		count = len(rp.members)
		rp.mu.Unlock()
	}
	return domain.PresenceDelta{
		RoomID:           roomID,
		UserID:           uid,
		Kind:             domain.PresenceLeft,
		MemberCountAfter: count,
	}
}

// MembersOf snapshots the current membership of roomID.
func (p *PresenceTracker) MembersOf(roomID domain.RoomID) []domain.UserID {
	p.mu.RLock()
	rp := p.rooms[roomID]
	p.mu.RUnlock()
	if rp == nil {
		return nil
	}
	rp.mu.RLock()
	defer rp.mu.RUnlock()
	out := make([]domain.UserID, 0, len(rp.members))
	for uid := range rp.members {
		out = append(out, uid)
	}
	return out
}

func (p *PresenceTracker) MemberCount(roomID domain.RoomID) int {
	p.mu.RLock()
	rp := p.rooms[roomID]
	p.mu.RUnlock()
	if rp == nil {
		return 0
	}
	rp.mu.RLock()
	defer rp.mu.RUnlock()
	return len(rp.members)
}

func (p *PresenceTracker) IsMember(uid domain.UserID, roomID domain.RoomID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cur, ok := p.userRoom[uid]
	return ok && cur == roomID
}

// RoomOf returns the room uid is currently a member of, if any.
func (p *PresenceTracker) RoomOf(uid domain.UserID) (domain.RoomID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	roomID, ok := p.userRoom[uid]
	return roomID, ok
}
