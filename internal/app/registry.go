package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

// Session is one live transport connection for an authenticated user.
// Owned exclusively by the SessionRegistry.
type Session struct {
	ID             core.SessionID
	User           *domain.User
	ConnectedAt    time.Time
	LastActivityAt time.Time
	CurrentRoomID  domain.RoomID
	Conn           core.SignalConnection
	Cancel         context.CancelFunc
}

// SessionRegistry maps an authenticated user to zero-or-one live
// connection. A new handshake for the same user supersedes the prior
// session; the swap is a single critical section so two sessions are
// never simultaneously "the" session for a user.
type SessionRegistry struct {
	mu        sync.RWMutex
	byUser    map[domain.UserID]*Session
	bySession map[core.SessionID]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byUser:    make(map[domain.UserID]*Session),
		bySession: make(map[core.SessionID]*Session),
	}
}

// Register binds user to conn, replacing any prior session (last-writer-
// wins). The superseded session, if any, is returned already unmapped;
// the caller notifies and closes it outside the lock.
func (r *SessionRegistry) Register(user *domain.User, conn core.SignalConnection, cancel context.CancelFunc) (*Session, *Session) {
	now := time.Now()
	sess := &Session{
		ID:             core.SessionID(uuid.NewString()),
		User:           user,
		ConnectedAt:    now,
		LastActivityAt: now,
		Conn:           conn,
		Cancel:         cancel,
	}

	r.mu.Lock()
	prev := r.byUser[user.ID]
	if prev != nil {
		delete(r.bySession, prev.ID)
	}
	r.byUser[user.ID] = sess
	r.bySession[sess.ID] = sess
	r.mu.Unlock()

	ev := log.Info().Str("module", "app.registry").Str("sid", string(sess.ID)).Str("user", string(user.ID))
	if prev != nil {
		ev = ev.Str("superseded_sid", string(prev.ID))
	}
	ev.Msg("session registered")
	return sess, prev
}

// Unregister removes the session only if it is still the current one for
// its user. A superseded socket disconnecting late must not evict the
// replacement.
func (r *SessionRegistry) Unregister(sid core.SessionID) (*Session, bool) {
	r.mu.Lock()
	sess, ok := r.bySession[sid]
	if ok {
		delete(r.bySession, sid)
		if cur := r.byUser[sess.User.ID]; cur != nil && cur.ID == sid {
			delete(r.byUser, sess.User.ID)
		}
	}
	r.mu.Unlock()
	if ok {
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("session unregistered")
	}
	return sess, ok
}

func (r *SessionRegistry) Get(uid domain.UserID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[uid]
	return s, ok
}

func (r *SessionRegistry) GetBySession(sid core.SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.bySession[sid]
	return s, ok
}

func (r *SessionRegistry) Touch(sid core.SessionID) {
	r.mu.Lock()
	if s, ok := r.bySession[sid]; ok {
		s.LastActivityAt = time.Now()
	}
	r.mu.Unlock()
}

// SetRoom records the session's active room; kept in lockstep with the
// presence tracker by the orchestrator.
func (r *SessionRegistry) SetRoom(uid domain.UserID, roomID domain.RoomID) {
	r.mu.Lock()
	if s, ok := r.byUser[uid]; ok {
		s.CurrentRoomID = roomID
	}
	r.mu.Unlock()
}

func (r *SessionRegistry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// ConnsOf returns the live connections for the given users, skipping
// users without one. Used for fan-out after a membership snapshot.
func (r *SessionRegistry) ConnsOf(uids []domain.UserID) map[domain.UserID]core.SignalConnection {
	out := make(map[domain.UserID]core.SignalConnection, len(uids))
	r.mu.RLock()
	for _, uid := range uids {
		if s, ok := r.byUser[uid]; ok {
			out[uid] = s.Conn
		}
	}
	r.mu.RUnlock()
	return out
}
