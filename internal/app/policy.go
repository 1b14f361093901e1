package app

import "github.com/parleyhq/parley/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what to do with a session whose send buffer is full.
type Policy interface {
	OnBackpressure(roomID domain.RoomID, uid domain.UserID) BackpressureAction
}

type DropFramePolicy struct{}

func (DropFramePolicy) OnBackpressure(domain.RoomID, domain.UserID) BackpressureAction {
	return DropFrame
}

type KickSlowPolicy struct{}

func (KickSlowPolicy) OnBackpressure(domain.RoomID, domain.UserID) BackpressureAction {
	return KickMember
}
