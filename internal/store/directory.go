package store

import (
	"context"
	"sync"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

// StaticUserDirectory is an in-process UserDirectory seeded at startup.
// Unknown users resolve to guests carrying their id as display name, so
// an out-of-band profile service can be swapped in without changing the
// live layer.
type StaticUserDirectory struct {
	mu    sync.RWMutex
	users map[domain.UserID]core.Identity
}

func NewStaticUserDirectory() *StaticUserDirectory {
	return &StaticUserDirectory{users: make(map[domain.UserID]core.Identity)}
}

func (d *StaticUserDirectory) Seed(id domain.UserID, displayName string, role domain.Role) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[id] = core.Identity{DisplayName: displayName, Role: role}
}

func (d *StaticUserDirectory) Resolve(_ context.Context, id domain.UserID) (core.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if ident, ok := d.users[id]; ok {
		return ident, nil
	}
	return core.Identity{DisplayName: string(id), Role: domain.RoleGuest}, nil
}
