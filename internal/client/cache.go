package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/parleyhq/parley/internal/domain"
)

// DefaultRoomCap bounds the per-room message ring regardless of room
// chattiness.
const DefaultRoomCap = 300

// CachedMessage is the trimmed projection of a Message the client keeps
// locally for instant resume.
type CachedMessage struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

func CachedFromMessage(m domain.Message) CachedMessage {
	return CachedMessage{
		ID:        int64(m.ID),
		RoomID:    string(m.RoomID),
		SenderID:  string(m.SenderID),
		Content:   m.Content,
		Type:      string(m.Type),
		CreatedAt: m.CreatedAt,
	}
}

// RoomMeta is the resume cursor used for delta sync on reconnect.
type RoomMeta struct {
	RoomID string `json:"room_id"`
	LastID int64  `json:"last_id"`
	LastTS int64  `json:"last_ts"`
}

type roomFile struct {
	Meta     RoomMeta        `json:"meta"`
	Messages []CachedMessage `json:"messages"`
}

// OfflineCache is the client-local durable store: per-room capped
// message ring, per-room resume cursor, and a current-room pointer. It
// is purely a resume mechanism; the server stays authoritative. All
// storage errors are confined to this boundary.
type OfflineCache struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex
}

func NewOfflineCache(fs afero.Fs, dir string) (*OfflineCache, error) {
	if err := fs.MkdirAll(path.Join(dir, "rooms"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &OfflineCache{fs: fs, dir: dir}, nil
}

func (c *OfflineCache) roomPath(roomID string) string {
	return path.Join(c.dir, "rooms", url.PathEscape(roomID)+".json")
}

func (c *OfflineCache) currentPath() string {
	return path.Join(c.dir, "current_room")
}

// SaveMessages merges msgs into the room's ring, deduplicates by id,
// sorts ascending, trims oldest-first to cap, and advances the cursor.
func (c *OfflineCache) SaveMessages(roomID string, msgs []CachedMessage, cap int) error {
	if len(msgs) == 0 {
		return nil
	}
	if cap <= 0 {
		cap = DefaultRoomCap
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rf, err := c.loadRoomLocked(roomID)
	if err != nil {
		return err
	}

	seen := make(map[int64]bool, len(rf.Messages)+len(msgs))
	merged := make([]CachedMessage, 0, len(rf.Messages)+len(msgs))
	for _, m := range append(rf.Messages, msgs...) {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		merged = append(merged, m)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	if len(merged) > cap {
		merged = merged[len(merged)-cap:]
	}

	rf.Messages = merged
	rf.Meta.RoomID = roomID
	if last := merged[len(merged)-1]; last.ID > rf.Meta.LastID {
		rf.Meta.LastID = last.ID
		rf.Meta.LastTS = last.CreatedAt.UnixMilli()
	}
	return c.storeRoomLocked(roomID, rf)
}

// Messages returns up to limit newest messages for the room, ascending
// by id. limit <= 0 means all cached.
func (c *OfflineCache) Messages(roomID string, limit int) ([]CachedMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rf, err := c.loadRoomLocked(roomID)
	if err != nil {
		return nil, err
	}
	msgs := rf.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]CachedMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Meta returns the room's resume cursor; a zero cursor if never saved.
func (c *OfflineCache) Meta(roomID string) RoomMeta {
	c.mu.Lock()
	defer c.mu.Unlock()
	rf, err := c.loadRoomLocked(roomID)
	if err != nil {
		return RoomMeta{RoomID: roomID}
	}
	if rf.Meta.RoomID == "" {
		rf.Meta.RoomID = roomID
	}
	return rf.Meta
}

func (c *OfflineCache) SetCurrentRoom(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return afero.WriteFile(c.fs, c.currentPath(), []byte(roomID), 0o644)
}

func (c *OfflineCache) CurrentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := afero.ReadFile(c.fs, c.currentPath())
	if err != nil {
		return ""
	}
	return string(data)
}

func (c *OfflineCache) ClearRoom(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.fs.Remove(c.roomPath(roomID))
	if err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

// Clear wipes everything, including the current-room pointer. Called
// when the reconnect budget is exhausted.
func (c *OfflineCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fs.RemoveAll(path.Join(c.dir, "rooms")); err != nil {
		return err
	}
	if err := c.fs.Remove(c.currentPath()); err != nil && !isNotExist(err) {
		return err
	}
	return c.fs.MkdirAll(path.Join(c.dir, "rooms"), 0o755)
}

func (c *OfflineCache) loadRoomLocked(roomID string) (*roomFile, error) {
	data, err := afero.ReadFile(c.fs, c.roomPath(roomID))
	if err != nil {
		if isNotExist(err) {
			return &roomFile{Meta: RoomMeta{RoomID: roomID}}, nil
		}
		return nil, fmt.Errorf("failed to read room cache: %w", err)
	}
	var rf roomFile
	if err := json.Unmarshal(data, &rf); err != nil {
		// A corrupt cache file is not fatal; resume falls back to full
		// history.
		return &roomFile{Meta: RoomMeta{RoomID: roomID}}, nil
	}
	return &rf, nil
}

func (c *OfflineCache) storeRoomLocked(roomID string, rf *roomFile) error {
	data, err := json.Marshal(rf)
	if err != nil {
		return fmt.Errorf("failed to marshal room cache: %w", err)
	}
	return afero.WriteFile(c.fs, c.roomPath(roomID), data, 0o644)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
