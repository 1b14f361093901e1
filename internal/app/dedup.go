package app

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/domain"
)

// Deduplicator suppresses duplicate sends within a short time window.
// Keyed by (sender, room, fingerprint), where the fingerprint is the
// client nonce when present and a content hash otherwise. Entries are
// evicted lazily on insert, and the map is hard-capped to bound memory.
type Deduplicator struct {
	mu      sync.Mutex
	entries map[string]time.Time
	window  time.Duration
	maxSize int

	now func() time.Time // test seam
}

func NewDeduplicator(window time.Duration, maxSize int) *Deduplicator {
	return &Deduplicator{
		entries: make(map[string]time.Time),
		window:  window,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Fingerprint returns the dedup token for a message: the client nonce
// when supplied (the stronger guarantee), a content hash as fallback.
func Fingerprint(nonce, content string) string {
	if nonce != "" {
		return nonce
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:8])
}

// ShouldAccept reports whether this (sender, room, fingerprint) has not
// been seen within the window, recording it if so.
func (d *Deduplicator) ShouldAccept(sender domain.UserID, roomID domain.RoomID, fingerprint string) bool {
	key := string(sender) + "|" + string(roomID) + "|" + fingerprint
	now := d.now()
	cutoff := now.Add(-d.window)

	d.mu.Lock()
	defer d.mu.Unlock()

	if seen, ok := d.entries[key]; ok && seen.After(cutoff) {
		return false
	}

	if len(d.entries) >= d.maxSize {
		d.evictLocked(cutoff)
	}
	d.entries[key] = now
	return true
}

// evictLocked drops expired entries; if still at capacity, drops the
// oldest to make room.
func (d *Deduplicator) evictLocked(cutoff time.Time) {
	for k, seen := range d.entries {
		if !seen.After(cutoff) {
			delete(d.entries, k)
		}
	}
	if len(d.entries) < d.maxSize {
		return
	}
	var oldestKey string
	var oldest time.Time
	for k, seen := range d.entries {
		if oldestKey == "" || seen.Before(oldest) {
			oldestKey, oldest = k, seen
		}
	}
	delete(d.entries, oldestKey)
}

func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
