package app

import (
	"sync"

	"github.com/parleyhq/parley/internal/domain"
)

// RoomCatalog holds the long-lived rooms, loaded by id. Rooms are
// created out-of-band (seeded at startup); the live layer only reads
// them and mutates broadcast state. Each room carries a publish mutex
// giving single-writer message ordering per room.
type RoomCatalog struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*catalogEntry
}

type catalogEntry struct {
	room      *domain.Room
	publishMu sync.Mutex
}

type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	IsBroadcast bool            `json:"is_broadcast"`
}

func NewRoomCatalog() *RoomCatalog {
	return &RoomCatalog{rooms: make(map[domain.RoomID]*catalogEntry)}
}

func (c *RoomCatalog) Add(room *domain.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room.ID] = &catalogEntry{room: room}
}

func (c *RoomCatalog) Get(id domain.RoomID) (*domain.Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.rooms[id]
	if !ok {
		return nil, false
	}
	return e.room, true
}

// Default returns the room marked as default, if any.
func (c *RoomCatalog) Default() (*domain.Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.rooms {
		if e.room.IsDefault {
			return e.room, true
		}
	}
	return nil, false
}

func (c *RoomCatalog) List() []RoomInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]RoomInfo, 0, len(c.rooms))
	for _, e := range c.rooms {
		out = append(out, RoomInfo{ID: e.room.ID, Name: e.room.Name, IsBroadcast: e.room.IsBroadcast})
	}
	return out
}

// PublishLock returns the per-room publish mutex. Nil if the room does
// not exist.
func (c *RoomCatalog) PublishLock(id domain.RoomID) *sync.Mutex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.rooms[id]
	if !ok {
		return nil
	}
	return &e.publishMu
}
