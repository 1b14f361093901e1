package client

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

type AudioState int

const (
	AudioIdle AudioState = iota
	AudioBroadcasting
	AudioListening
)

func (s AudioState) String() string {
	switch s {
	case AudioBroadcasting:
		return "broadcasting"
	case AudioListening:
		return "listening"
	default:
		return "idle"
	}
}

// Signaler carries SDP and ICE frames to the server for relay.
// ConnectionManager satisfies it.
type Signaler interface {
	Send(v any) error
}

type peerLink struct {
	remote domain.UserID
	peer   Peer
	epoch  uint64
}

// AudioManager tracks one audio peer link per remote user and keeps the
// broadcast/listen state machine. Every signaling callback is stamped
// with the epoch it was created in; callbacks from a torn-down epoch
// are discarded so a late answer or candidate cannot resurrect a dead
// link.
type AudioManager struct {
	signaler Signaler
	factory  PeerFactory

	mu    sync.Mutex
	state AudioState
	epoch uint64
	links map[domain.UserID]*peerLink
}

func NewAudioManager(signaler Signaler, factory PeerFactory) *AudioManager {
	return &AudioManager{
		signaler: signaler,
		factory:  factory,
		links:    make(map[domain.UserID]*peerLink),
	}
}

func (a *AudioManager) State() AudioState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *AudioManager) LinkCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.links)
}

// StartBroadcasting opens one peer link per listener and sends each an
// offer. A failure on one listener's link tears down only that link.
func (a *AudioManager) StartBroadcasting(listeners []domain.UserID) error {
	a.mu.Lock()
	if a.state == AudioBroadcasting {
		a.mu.Unlock()
		return nil
	}
	a.closeAllLocked()
	a.state = AudioBroadcasting
	a.epoch++
	epoch := a.epoch
	a.mu.Unlock()

	for _, uid := range listeners {
		if err := a.offerTo(uid, epoch); err != nil {
			log.Warn().Err(err).Str("module", "audio").Str("remote", string(uid)).Msg("offer failed")
		}
	}
	return nil
}

// AddListener offers to one more peer after broadcasting already
// started, for listeners joining mid-broadcast.
func (a *AudioManager) AddListener(uid domain.UserID) error {
	a.mu.Lock()
	if a.state != AudioBroadcasting {
		a.mu.Unlock()
		return fmt.Errorf("not broadcasting")
	}
	epoch := a.epoch
	a.mu.Unlock()
	return a.offerTo(uid, epoch)
}

func (a *AudioManager) offerTo(uid domain.UserID, epoch uint64) error {
	peer, err := a.factory(uid)
	if err != nil {
		return err
	}
	link := &peerLink{remote: uid, peer: peer, epoch: epoch}
	a.installCallbacks(link)

	a.mu.Lock()
	if a.epoch != epoch {
		a.mu.Unlock()
		peer.Close()
		return nil
	}
	if old, ok := a.links[uid]; ok {
		old.peer.Close()
	}
	a.links[uid] = link
	a.mu.Unlock()

	sdp, err := peer.CreateOffer()
	if err != nil {
		a.dropLink(link)
		return err
	}
	return a.signaler.Send(core.SignalPayload{
		Type: core.EventWebRTCOffer,
		To:   string(uid),
		SDP:  sdp,
	})
}

// HandleOffer is the listener side: a speaker wants to stream to us.
func (a *AudioManager) HandleOffer(from domain.UserID, sdp string) error {
	a.mu.Lock()
	if a.state == AudioBroadcasting {
		a.mu.Unlock()
		return fmt.Errorf("already broadcasting, offer from %s ignored", from)
	}
	epoch := a.epoch
	a.mu.Unlock()

	peer, err := a.factory(from)
	if err != nil {
		return err
	}
	link := &peerLink{remote: from, peer: peer, epoch: epoch}
	a.installCallbacks(link)

	// The listening state is entered only together with the link; a
	// factory failure above leaves the manager idle.
	a.mu.Lock()
	if a.epoch != epoch || a.state == AudioBroadcasting {
		a.mu.Unlock()
		peer.Close()
		return nil
	}
	a.state = AudioListening
	if old, ok := a.links[from]; ok {
		old.peer.Close()
	}
	a.links[from] = link
	a.mu.Unlock()

	answer, err := peer.AcceptOffer(sdp)
	if err != nil {
		a.dropLink(link)
		return err
	}
	return a.signaler.Send(core.SignalPayload{
		Type: core.EventWebRTCAnswer,
		To:   string(from),
		SDP:  answer,
	})
}

func (a *AudioManager) HandleAnswer(from domain.UserID, sdp string) error {
	link := a.currentLink(from)
	if link == nil {
		log.Debug().Str("module", "audio").Str("remote", string(from)).Msg("answer for unknown link")
		return nil
	}
	if err := link.peer.AcceptAnswer(sdp); err != nil {
		a.dropLink(link)
		return err
	}
	return nil
}

func (a *AudioManager) HandleCandidate(from domain.UserID, c Candidate) error {
	link := a.currentLink(from)
	if link == nil {
		return nil
	}
	return link.peer.AddICECandidate(c)
}

// HandlePeerGone tears down the link after the server reported the
// remote user left or disconnected.
func (a *AudioManager) HandlePeerGone(uid domain.UserID) {
	a.mu.Lock()
	link, ok := a.links[uid]
	if ok {
		delete(a.links, uid)
	}
	if a.state == AudioListening && len(a.links) == 0 {
		a.state = AudioIdle
	}
	a.mu.Unlock()
	if ok {
		link.peer.Close()
	}
}

// StopBroadcasting closes every link and returns to idle. The epoch
// bump invalidates any in-flight callbacks.
func (a *AudioManager) StopBroadcasting() {
	a.mu.Lock()
	a.closeAllLocked()
	a.state = AudioIdle
	a.epoch++
	a.mu.Unlock()
}

func (a *AudioManager) closeAllLocked() {
	for uid, link := range a.links {
		link.peer.Close()
		delete(a.links, uid)
	}
}

func (a *AudioManager) currentLink(uid domain.UserID) *peerLink {
	a.mu.Lock()
	defer a.mu.Unlock()
	link, ok := a.links[uid]
	if !ok || link.epoch != a.epoch {
		return nil
	}
	return link
}

func (a *AudioManager) installCallbacks(link *peerLink) {
	link.peer.OnICECandidate(func(c Candidate) {
		if a.currentLink(link.remote) != link {
			return
		}
		err := a.signaler.Send(core.SignalPayload{
			Type:          core.EventWebRTCCandidate,
			To:            string(link.remote),
			Candidate:     c.Candidate,
			SDPMid:        c.SDPMid,
			SDPMLineIndex: c.SDPMLineIndex,
		})
		if err != nil {
			log.Debug().Err(err).Str("module", "audio").Str("remote", string(link.remote)).Msg("candidate send failed")
		}
	})
	link.peer.OnFailure(func() {
		log.Warn().Str("module", "audio").Str("remote", string(link.remote)).Msg("peer link failed")
		a.dropLink(link)
	})
}

// dropLink removes one link if it is still the current one for its
// remote; other links are untouched.
func (a *AudioManager) dropLink(link *peerLink) {
	a.mu.Lock()
	cur, ok := a.links[link.remote]
	if !ok || cur != link {
		a.mu.Unlock()
		return
	}
	delete(a.links, link.remote)
	if a.state == AudioListening && len(a.links) == 0 {
		a.state = AudioIdle
	}
	a.mu.Unlock()
	link.peer.Close()
}
