package client

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/domain"
)

// ErrGatherTimeout is returned when ICE gathering does not complete
// within the configured bound.
var ErrGatherTimeout = errors.New("ice gathering timed out")

// Candidate is the transport-neutral ICE candidate form exchanged over
// the signaling channel.
type Candidate struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex uint16
}

// Peer is one audio peer connection. The concrete implementation wraps
// pion; tests substitute fakes through the factory on AudioManager.
type Peer interface {
	// CreateOffer produces a local offer SDP with gathering complete.
	CreateOffer() (string, error)
	// AcceptOffer applies a remote offer and returns the answer SDP.
	AcceptOffer(sdp string) (string, error)
	// AcceptAnswer applies the remote answer to a previously created offer.
	AcceptAnswer(sdp string) error
	AddICECandidate(c Candidate) error
	// OnICECandidate registers the trickle callback.
	OnICECandidate(fn func(Candidate))
	// OnFailure fires once when the connection fails or closes underneath us.
	OnFailure(fn func())
	Close()
}

// PeerFactory builds a Peer for the named remote user.
type PeerFactory func(remote domain.UserID) (Peer, error)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// NewPionPeerFactory returns a PeerFactory backed by pion.
func NewPionPeerFactory(cfg webrtc.Configuration, gatherTimeout time.Duration) PeerFactory {
	if gatherTimeout == 0 {
		gatherTimeout = 15 * time.Second
	}
	return func(remote domain.UserID) (Peer, error) {
		return newPionPeer(cfg, remote, gatherTimeout)
	}
}

type pionPeer struct {
	pc            *webrtc.PeerConnection
	remote        domain.UserID
	gatherTimeout time.Duration

	// mu guards the callbacks and the failure latch; pion invokes the
	// state-change handlers from its own goroutines.
	mu        sync.Mutex
	onICE     func(Candidate)
	onFailure func()
	failed    bool
}

func newPionPeer(cfg webrtc.Configuration, remote domain.UserID, gatherTimeout time.Duration) (*pionPeer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	p := &pionPeer{pc: pc, remote: remote, gatherTimeout: gatherTimeout}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote", string(remote)).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed {
			p.fail()
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote", string(remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			p.fail()
		}
	})
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		p.mu.Lock()
		fn := p.onICE
		p.mu.Unlock()
		if fn == nil {
			return
		}
		ci := cand.ToJSON()
		out := Candidate{Candidate: ci.Candidate}
		if ci.SDPMid != nil {
			out.SDPMid = *ci.SDPMid
		}
		if ci.SDPMLineIndex != nil {
			out.SDPMLineIndex = *ci.SDPMLineIndex
		}
		fn(out)
	})

	return p, nil
}

func (p *pionPeer) fail() {
	p.mu.Lock()
	if p.failed {
		p.mu.Unlock()
		return
	}
	p.failed = true
	fn := p.onFailure
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *pionPeer) CreateOffer() (string, error) {
	if _, err := p.pc.CreateDataChannel("keepalive", nil); err != nil {
		return "", err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	select {
	case <-gatherComplete:
	case <-time.After(p.gatherTimeout):
		return "", ErrGatherTimeout
	}
	return p.pc.LocalDescription().SDP, nil
}

func (p *pionPeer) AcceptOffer(sdp string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	select {
	case <-gatherComplete:
	case <-time.After(p.gatherTimeout):
		return "", ErrGatherTimeout
	}
	return p.pc.LocalDescription().SDP, nil
}

func (p *pionPeer) AcceptAnswer(sdp string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	return p.pc.SetRemoteDescription(answer)
}

func (p *pionPeer) AddICECandidate(c Candidate) error {
	mid := c.SDPMid
	idx := c.SDPMLineIndex
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})
}

func (p *pionPeer) OnICECandidate(fn func(Candidate)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

func (p *pionPeer) OnFailure(fn func()) {
	p.mu.Lock()
	p.onFailure = fn
	p.mu.Unlock()
}

func (p *pionPeer) Close() {
	if err := p.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("remote", string(p.remote)).Msg("close error")
	}
}
