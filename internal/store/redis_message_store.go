package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/domain"
)

// RedisMessageStore persists messages durably and assigns the
// per-deployment monotonic id through a single INCR counter. Room
// messages live in one sorted set per room scored by id, which makes
// the delta-sync read a single ZRANGEBYSCORE.
type RedisMessageStore struct {
	client *redis.Client
	prefix string
}

func NewRedisMessageStore(addr, password string, db int, prefix string) (*RedisMessageStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     50,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Str("module", "store").Str("addr", addr).Msg("Redis connection established")
	return &RedisMessageStore{client: rdb, prefix: prefix}, nil
}

// NewRedisMessageStoreFromClient wraps an existing client; used by tests.
func NewRedisMessageStoreFromClient(client *redis.Client, prefix string) *RedisMessageStore {
	return &RedisMessageStore{client: client, prefix: prefix}
}

func (s *RedisMessageStore) seqKey() string {
	return s.prefix + ":seq"
}

func (s *RedisMessageStore) roomKey(roomID domain.RoomID) string {
	return fmt.Sprintf("%s:room:%s", s.prefix, roomID)
}

// dmKey orders the pair so both directions land in the same set.
func (s *RedisMessageStore) dmKey(a, b domain.UserID) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%s:dm:%s:%s", s.prefix, a, b)
}

// Append assigns the next id and persists the message. The id is
// monotonically increasing across all rooms.
func (s *RedisMessageStore) Append(ctx context.Context, msg *domain.Message) (domain.MessageID, error) {
	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to assign message id: %w", err)
	}
	msg.ID = domain.MessageID(id)

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	key := s.roomKey(msg.RoomID)
	if msg.RoomID == "" {
		key = s.dmKey(msg.SenderID, msg.ReceiverID)
	}
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: float64(id), Member: data}).Err(); err != nil {
		return 0, fmt.Errorf("failed to persist message: %w", err)
	}
	return msg.ID, nil
}

// RecentSince returns the room's messages with id strictly greater than
// sinceID, ascending, at most limit.
func (s *RedisMessageStore) RecentSince(ctx context.Context, roomID domain.RoomID, sinceID domain.MessageID, limit int) ([]domain.Message, error) {
	raw, err := s.client.ZRangeByScore(ctx, s.roomKey(roomID), &redis.ZRangeBy{
		Min:   fmt.Sprintf("(%d", sinceID),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read messages since %d: %w", sinceID, err)
	}

	out := make([]domain.Message, 0, len(raw))
	for _, r := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			log.Error().Err(err).Str("module", "store").Str("room", string(roomID)).Msg("skipping undecodable message")
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *RedisMessageStore) Close() error {
	return s.client.Close()
}
