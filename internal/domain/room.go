package domain

import "sync"

type (
	RoomName string
	RoomID   string
)

// Room is a long-lived channel created out-of-band and loaded by id.
// The live layer only mutates the broadcast state (speakers, mic queue);
// everything else is read-only here.
type Room struct {
	ID          RoomID
	Name        RoomName
	IsDefault   bool
	IsBroadcast bool
	HostID      UserID

	mu       sync.RWMutex
	speakers []UserID
	micQueue []UserID
}

func NewRoom(id RoomID, name RoomName) *Room {
	return &Room{ID: id, Name: name}
}

// Speakers returns the promoted speaker set in promotion order.
func (r *Room) Speakers() []UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]UserID, len(r.speakers))
	copy(out, r.speakers)
	return out
}

func (r *Room) IsSpeaker(uid UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.speakers {
		if s == uid {
			return true
		}
	}
	return false
}

// AddSpeaker appends uid to the speaker set. Returns false if already present.
func (r *Room) AddSpeaker(uid UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.speakers {
		if s == uid {
			return false
		}
	}
	r.speakers = append(r.speakers, uid)
	return true
}

func (r *Room) RemoveSpeaker(uid UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.speakers {
		if s == uid {
			r.speakers = append(r.speakers[:i], r.speakers[i+1:]...)
			return true
		}
	}
	return false
}

// MicQueue returns the FIFO of users awaiting promotion.
func (r *Room) MicQueue() []UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]UserID, len(r.micQueue))
	copy(out, r.micQueue)
	return out
}

// EnqueueMic adds uid to the mic queue. Returns false if already queued
// or already a speaker.
func (r *Room) EnqueueMic(uid UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.speakers {
		if s == uid {
			return false
		}
	}
	for _, q := range r.micQueue {
		if q == uid {
			return false
		}
	}
	r.micQueue = append(r.micQueue, uid)
	return true
}

func (r *Room) DequeueMic(uid UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeFromQueueLocked(uid)
}

// PromoteFromQueue moves uid from the mic queue to the speaker set as a
// single step, so no observer sees the user in both or in neither.
func (r *Room) PromoteFromQueue(uid UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.removeFromQueueLocked(uid) {
		return false
	}
	r.speakers = append(r.speakers, uid)
	return true
}

func (r *Room) removeFromQueueLocked(uid UserID) bool {
	for i, q := range r.micQueue {
		if q == uid {
			r.micQueue = append(r.micQueue[:i], r.micQueue[i+1:]...)
			return true
		}
	}
	return false
}
