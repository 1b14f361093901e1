package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/domain"
)

func TestPresenceTracker_JoinEmitsSingleDelta(t *testing.T) {
	p := NewPresenceTracker(0)

	deltas := p.Join("alice", "general")
	require.Len(t, deltas, 1)
	assert.Equal(t, domain.PresenceJoined, deltas[0].Kind)
	assert.Equal(t, domain.RoomID("general"), deltas[0].RoomID)
	assert.Equal(t, 1, deltas[0].MemberCountAfter)

	assert.True(t, p.IsMember("alice", "general"))
	assert.Equal(t, 1, p.MemberCount("general"))
}

func TestPresenceTracker_SwitchLeavesOldRoomFirst(t *testing.T) {
	p := NewPresenceTracker(0)
	p.Join("alice", "general")

	deltas := p.Join("alice", "random")
	require.Len(t, deltas, 2, "a room switch is a leave followed by a join")
	assert.Equal(t, domain.PresenceLeft, deltas[0].Kind)
	assert.Equal(t, domain.RoomID("general"), deltas[0].RoomID)
	assert.Equal(t, domain.PresenceJoined, deltas[1].Kind)
	assert.Equal(t, domain.RoomID("random"), deltas[1].RoomID)

	// Membership in at most one room at any time.
	assert.False(t, p.IsMember("alice", "general"))
	assert.True(t, p.IsMember("alice", "random"))
	room, ok := p.RoomOf("alice")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("random"), room)
}

func TestPresenceTracker_RejoinSameRoomIsSilent(t *testing.T) {
	p := NewPresenceTracker(0)
	p.Join("alice", "general")

	deltas := p.Join("alice", "general")
	assert.Nil(t, deltas, "rejoining the current room must not flash leave/join")
	assert.Equal(t, 1, p.MemberCount("general"))
}

func TestPresenceTracker_ExplicitLeaveBypassesGrace(t *testing.T) {
	p := NewPresenceTracker(time.Hour)
	p.Join("alice", "general")

	delta, ok := p.Leave("alice", "general")
	require.True(t, ok)
	assert.Equal(t, domain.PresenceLeft, delta.Kind)
	assert.Equal(t, 0, delta.MemberCountAfter)
	assert.False(t, p.IsMember("alice", "general"))
}

func TestPresenceTracker_LeaveWrongRoomIsNoop(t *testing.T) {
	p := NewPresenceTracker(0)
	p.Join("alice", "general")

	_, ok := p.Leave("alice", "random")
	assert.False(t, ok)
	assert.True(t, p.IsMember("alice", "general"))
}

func TestPresenceTracker_DisconnectLeavesAfterGrace(t *testing.T) {
	p := NewPresenceTracker(30 * time.Millisecond)
	deltaCh := make(chan domain.PresenceDelta, 1)
	p.OnDelta(func(d domain.PresenceDelta) { deltaCh <- d })

	p.Join("alice", "general")
	p.Disconnect("alice")

	// Still a member while the grace window is open.
	assert.True(t, p.IsMember("alice", "general"))

	select {
	case d := <-deltaCh:
		assert.Equal(t, domain.PresenceLeft, d.Kind)
		assert.Equal(t, domain.UserID("alice"), d.UserID)
	case <-time.After(time.Second):
		t.Fatal("grace leave never fired")
	}
	assert.False(t, p.IsMember("alice", "general"))
}

func TestPresenceTracker_RejoinWithinGraceCancelsLeave(t *testing.T) {
	p := NewPresenceTracker(30 * time.Millisecond)
	deltaCh := make(chan domain.PresenceDelta, 1)
	p.OnDelta(func(d domain.PresenceDelta) { deltaCh <- d })

	p.Join("alice", "general")
	p.Disconnect("alice")

	deltas := p.Join("alice", "general")
	assert.Nil(t, deltas, "reconnect within grace must be invisible to the room")

	select {
	case d := <-deltaCh:
		t.Fatalf("leave fired despite rejoin: %+v", d)
	case <-time.After(100 * time.Millisecond):
	}
	assert.True(t, p.IsMember("alice", "general"))
}

func TestPresenceTracker_DisconnectUnknownUserIsNoop(t *testing.T) {
	p := NewPresenceTracker(0)
	p.Disconnect("ghost")
	assert.Equal(t, 0, p.MemberCount("general"))
}

func TestPresenceTracker_MembersOfSnapshot(t *testing.T) {
	p := NewPresenceTracker(0)
	p.Join("alice", "general")
	p.Join("bob", "general")

	members := p.MembersOf("general")
	assert.ElementsMatch(t, []domain.UserID{"alice", "bob"}, members)
	assert.Empty(t, p.MembersOf("random"))
}
