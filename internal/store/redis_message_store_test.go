package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/domain"
)

func newTestStore(t *testing.T) *RedisMessageStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisMessageStoreFromClient(client, "parley")
}

func roomMsg(sender domain.UserID, room domain.RoomID, content string) *domain.Message {
	return &domain.Message{
		SenderID:  sender,
		RoomID:    room,
		Content:   content,
		Type:      domain.MessageText,
		CreatedAt: time.Now(),
	}
}

func TestAppend_AssignsMonotonicIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var last domain.MessageID
	for i := 0; i < 5; i++ {
		room := domain.RoomID("general")
		if i%2 == 1 {
			room = "random"
		}
		id, err := s.Append(ctx, roomMsg("alice", room, fmt.Sprintf("msg %d", i)))
		require.NoError(t, err)
		assert.Greater(t, id, last, "ids must increase across all rooms")
		last = id
	}
}

func TestRecentSince_StrictlyGreaterThanCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		_, err := s.Append(ctx, roomMsg("alice", "general", fmt.Sprintf("msg %d", i)))
		require.NoError(t, err)
	}

	msgs, err := s.RecentSince(ctx, "general", 7, 100)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.MessageID(8), msgs[0].ID, "the cursor id itself is excluded")
	assert.Equal(t, domain.MessageID(10), msgs[2].ID)
	assert.Equal(t, "msg 8", msgs[0].Content)
}

func TestRecentSince_ZeroCursorReturnsAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := s.Append(ctx, roomMsg("alice", "general", fmt.Sprintf("msg %d", i)))
		require.NoError(t, err)
	}

	msgs, err := s.RecentSince(ctx, "general", 0, 100)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestRecentSince_RespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		_, err := s.Append(ctx, roomMsg("alice", "general", fmt.Sprintf("msg %d", i)))
		require.NoError(t, err)
	}

	msgs, err := s.RecentSince(ctx, "general", 0, 4)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, domain.MessageID(1), msgs[0].ID, "oldest messages come first")
}

func TestRecentSince_RoomsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, roomMsg("alice", "general", "in general"))
	require.NoError(t, err)
	_, err = s.Append(ctx, roomMsg("alice", "random", "in random"))
	require.NoError(t, err)

	msgs, err := s.RecentSince(ctx, "general", 0, 100)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "in general", msgs[0].Content)
}

func TestAppend_DirectMessageKeyIsSymmetric(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, s.dmKey("alice", "bob"), s.dmKey("bob", "alice"),
		"both directions of a DM pair must land in the same set")
}

func TestAppend_PersistsDirectMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &domain.Message{
		SenderID:   "alice",
		ReceiverID: "bob",
		Content:    "psst",
		Type:       domain.MessageText,
		CreatedAt:  time.Now(),
	}
	id, err := s.Append(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageID(1), id)
}
