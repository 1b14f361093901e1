package signal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/app"
	"github.com/parleyhq/parley/internal/app/orch"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/store"
)

// newTestController wires a controller without a real websocket; frames
// land in the connection's send channel.
func newTestController(t *testing.T) (*Controller, *clientConn) {
	t.Helper()
	o := orch.New(
		app.NewSessionRegistry(),
		app.NewPresenceTracker(0),
		app.NewRoomCatalog(),
		app.NewDeduplicator(time.Minute, 100),
		nil,
		store.NewStaticUserDirectory(),
		app.DropFramePolicy{},
	)
	cfg := &config.Config{
		WS:                 config.WebSocketConfig{SendBuffer: 16},
		SignalRateLimit:    100,
		SignalRateInterval: time.Minute,
	}
	ctl := NewController(o, cfg)
	cc := &clientConn{conn: &wsConn{send: make(chan core.Frame, 16)}}
	return ctl, cc
}

func nextFrame(t *testing.T, cc *clientConn, v any) {
	t.Helper()
	select {
	case frame := <-cc.conn.send:
		require.NoError(t, json.Unmarshal(frame, v))
	case <-time.After(time.Second):
		t.Fatal("no frame written")
	}
}

func authFrame(t *testing.T, userID, username string) []byte {
	t.Helper()
	data, err := json.Marshal(core.AuthPayload{Type: core.EventAuth, UserID: userID, Username: username})
	require.NoError(t, err)
	return data
}

func TestHandleAuth_RegistersSession(t *testing.T) {
	ctl, cc := newTestController(t)

	ctl.handleAuth(cc, authFrame(t, "alice", "Alice"))

	var res core.AuthResultEvent
	nextFrame(t, cc, &res)
	require.True(t, res.Success)
	assert.Equal(t, "alice", res.UserID)
	assert.Equal(t, 1, ctl.Orch.Registry.OnlineCount())

	sid, uid, ok := cc.identity()
	require.True(t, ok)
	assert.Equal(t, domain.UserID("alice"), uid)
	_, found := ctl.Orch.Registry.GetBySession(sid)
	assert.True(t, found)
}

func TestHandleAuth_RepeatAuthRejected(t *testing.T) {
	ctl, cc := newTestController(t)

	ctl.handleAuth(cc, authFrame(t, "alice", "Alice"))
	var res core.AuthResultEvent
	nextFrame(t, cc, &res)
	require.True(t, res.Success)
	firstSID, _, _ := cc.identity()

	// A second handshake on the same connection, for a different user,
	// must not rebind it.
	ctl.handleAuth(cc, authFrame(t, "bob", "Bob"))

	var ev core.ErrorEvent
	nextFrame(t, cc, &ev)
	assert.Equal(t, core.EventError, ev.Type)
	assert.Equal(t, core.CodeBadPayload, ev.Code)

	sid, uid, ok := cc.identity()
	require.True(t, ok)
	assert.Equal(t, firstSID, sid, "the original binding survives")
	assert.Equal(t, domain.UserID("alice"), uid)

	assert.Equal(t, 1, ctl.Orch.Registry.OnlineCount(), "no ghost session for the second identity")
	_, found := ctl.Orch.Registry.GetBySession(sid)
	assert.True(t, found, "the first session is still registered")
}
