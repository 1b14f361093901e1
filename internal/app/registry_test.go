package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	reason string
}

func (f *fakeConn) TrySend(frame core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeConn) CloseWithReason(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.reason = reason
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func testUser(id string) *domain.User {
	return &domain.User{ID: domain.UserID(id), DisplayName: id, Role: domain.RoleMember}
}

func TestSessionRegistry_RegisterAndGet(t *testing.T) {
	r := NewSessionRegistry()
	conn := &fakeConn{}

	sess, prev := r.Register(testUser("alice"), conn, nil)
	require.NotNil(t, sess)
	assert.Nil(t, prev, "first registration has nothing to supersede")

	got, ok := r.Get("alice")
	require.True(t, ok)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, 1, r.OnlineCount())
}

func TestSessionRegistry_SupersedesPriorSession(t *testing.T) {
	r := NewSessionRegistry()
	first := &fakeConn{}
	second := &fakeConn{}

	old, prev := r.Register(testUser("alice"), first, nil)
	require.Nil(t, prev)

	replacement, prev := r.Register(testUser("alice"), second, nil)
	require.NotNil(t, prev, "second handshake must surface the superseded session")
	assert.Equal(t, old.ID, prev.ID)

	// The replacement is now the only session for the user.
	cur, ok := r.Get("alice")
	require.True(t, ok)
	assert.Equal(t, replacement.ID, cur.ID)
	assert.Equal(t, 1, r.OnlineCount())

	_, ok = r.GetBySession(old.ID)
	assert.False(t, ok, "superseded session must be unmapped")
}

func TestSessionRegistry_LateCloseOfSupersededSocket(t *testing.T) {
	r := NewSessionRegistry()

	old, _ := r.Register(testUser("alice"), &fakeConn{}, nil)
	replacement, _ := r.Register(testUser("alice"), &fakeConn{}, nil)

	// The old socket's read loop exits after the swap already happened.
	_, ok := r.Unregister(old.ID)
	assert.False(t, ok, "superseded session was already unmapped")

	cur, ok := r.Get("alice")
	require.True(t, ok, "late close of the old socket must not evict the replacement")
	assert.Equal(t, replacement.ID, cur.ID)
}

func TestSessionRegistry_Unregister(t *testing.T) {
	r := NewSessionRegistry()
	sess, _ := r.Register(testUser("alice"), &fakeConn{}, nil)

	got, ok := r.Unregister(sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess.ID, got.ID)

	_, ok = r.Get("alice")
	assert.False(t, ok)
	assert.Equal(t, 0, r.OnlineCount())
}

func TestSessionRegistry_ConnsOfSkipsOffline(t *testing.T) {
	r := NewSessionRegistry()
	aliceConn := &fakeConn{}
	r.Register(testUser("alice"), aliceConn, nil)

	conns := r.ConnsOf([]domain.UserID{"alice", "bob"})
	require.Len(t, conns, 1)
	assert.Equal(t, core.SignalConnection(aliceConn), conns["alice"])
}
