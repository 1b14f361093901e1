package client

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

type fakeSignaler struct {
	mu    sync.Mutex
	sends []core.SignalPayload
}

func (f *fakeSignaler) Send(v any) error {
	p, ok := v.(core.SignalPayload)
	if !ok {
		return errors.New("unexpected frame")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, p)
	return nil
}

func (f *fakeSignaler) sentTo(to string, eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.sends {
		if p.To == to && p.Type == eventType {
			n++
		}
	}
	return n
}

type fakePeer struct {
	mu        sync.Mutex
	remote    domain.UserID
	closed    bool
	answers   []string
	cands     []Candidate
	offerErr  error
	onICE     func(Candidate)
	onFailure func()
}

func (p *fakePeer) CreateOffer() (string, error) {
	if p.offerErr != nil {
		return "", p.offerErr
	}
	return "offer-" + string(p.remote), nil
}

func (p *fakePeer) AcceptOffer(string) (string, error) {
	return "answer-" + string(p.remote), nil
}

func (p *fakePeer) AcceptAnswer(sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers = append(p.answers, sdp)
	return nil
}

func (p *fakePeer) AddICECandidate(c Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cands = append(p.cands, c)
	return nil
}

func (p *fakePeer) OnICECandidate(fn func(Candidate)) { p.onICE = fn }
func (p *fakePeer) OnFailure(fn func())               { p.onFailure = fn }

func (p *fakePeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type peerTracker struct {
	mu    sync.Mutex
	peers map[domain.UserID]*fakePeer
}

func newPeerTracker() *peerTracker {
	return &peerTracker{peers: make(map[domain.UserID]*fakePeer)}
}

func (pt *peerTracker) factory(remote domain.UserID) (Peer, error) {
	p := &fakePeer{remote: remote}
	pt.mu.Lock()
	pt.peers[remote] = p
	pt.mu.Unlock()
	return p, nil
}

func (pt *peerTracker) get(remote domain.UserID) *fakePeer {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.peers[remote]
}

func TestAudioManager_BroadcastOffersEachListener(t *testing.T) {
	sig := &fakeSignaler{}
	pt := newPeerTracker()
	a := NewAudioManager(sig, pt.factory)

	require.NoError(t, a.StartBroadcasting([]domain.UserID{"bob", "carol"}))

	assert.Equal(t, AudioBroadcasting, a.State())
	assert.Equal(t, 2, a.LinkCount())
	assert.Equal(t, 1, sig.sentTo("bob", core.EventWebRTCOffer))
	assert.Equal(t, 1, sig.sentTo("carol", core.EventWebRTCOffer))
}

func TestAudioManager_OneFailedOfferDoesNotAffectOthers(t *testing.T) {
	sig := &fakeSignaler{}
	pt := newPeerTracker()
	a := NewAudioManager(sig, func(remote domain.UserID) (Peer, error) {
		p := &fakePeer{remote: remote}
		if remote == "bob" {
			p.offerErr = errors.New("gather timeout")
		}
		pt.mu.Lock()
		pt.peers[remote] = p
		pt.mu.Unlock()
		return p, nil
	})

	require.NoError(t, a.StartBroadcasting([]domain.UserID{"bob", "carol"}))

	assert.Equal(t, 1, a.LinkCount(), "only the failed link is dropped")
	assert.True(t, pt.get("bob").isClosed())
	assert.False(t, pt.get("carol").isClosed())
	assert.Equal(t, 1, sig.sentTo("carol", core.EventWebRTCOffer))
}

func TestAudioManager_ListenerAnswersOffer(t *testing.T) {
	sig := &fakeSignaler{}
	pt := newPeerTracker()
	a := NewAudioManager(sig, pt.factory)

	require.NoError(t, a.HandleOffer("speaker", "offer-sdp"))

	assert.Equal(t, AudioListening, a.State())
	assert.Equal(t, 1, sig.sentTo("speaker", core.EventWebRTCAnswer))
}

func TestAudioManager_OfferPeerSetupFailureStaysIdle(t *testing.T) {
	sig := &fakeSignaler{}
	a := NewAudioManager(sig, func(domain.UserID) (Peer, error) {
		return nil, errors.New("no media devices")
	})

	require.Error(t, a.HandleOffer("speaker", "offer-sdp"))

	assert.Equal(t, AudioIdle, a.State(), "a failed peer setup must not leave the manager listening")
	assert.Equal(t, 0, a.LinkCount())
	assert.Equal(t, 0, sig.sentTo("speaker", core.EventWebRTCAnswer))
}

func TestAudioManager_RejectsOfferWhileBroadcasting(t *testing.T) {
	sig := &fakeSignaler{}
	pt := newPeerTracker()
	a := NewAudioManager(sig, pt.factory)

	require.NoError(t, a.StartBroadcasting([]domain.UserID{"bob"}))
	assert.Error(t, a.HandleOffer("carol", "offer-sdp"))
	assert.Equal(t, AudioBroadcasting, a.State())
}

func TestAudioManager_AnswerRoutedToLink(t *testing.T) {
	sig := &fakeSignaler{}
	pt := newPeerTracker()
	a := NewAudioManager(sig, pt.factory)

	require.NoError(t, a.StartBroadcasting([]domain.UserID{"bob"}))
	require.NoError(t, a.HandleAnswer("bob", "answer-sdp"))

	bob := pt.get("bob")
	require.Len(t, bob.answers, 1)
	assert.Equal(t, "answer-sdp", bob.answers[0])
}

func TestAudioManager_StaleAnswerAfterStopIsIgnored(t *testing.T) {
	sig := &fakeSignaler{}
	pt := newPeerTracker()
	a := NewAudioManager(sig, pt.factory)

	require.NoError(t, a.StartBroadcasting([]domain.UserID{"bob"}))
	old := pt.get("bob")
	a.StopBroadcasting()

	require.NoError(t, a.HandleAnswer("bob", "late-answer"))
	assert.Empty(t, old.answers, "a late answer must not reach a torn-down link")
	assert.Equal(t, AudioIdle, a.State())
}

func TestAudioManager_CandidateForUnknownPeerIgnored(t *testing.T) {
	sig := &fakeSignaler{}
	pt := newPeerTracker()
	a := NewAudioManager(sig, pt.factory)

	assert.NoError(t, a.HandleCandidate("ghost", Candidate{Candidate: "c"}))
}

func TestAudioManager_CandidateRoutedToLink(t *testing.T) {
	sig := &fakeSignaler{}
	pt := newPeerTracker()
	a := NewAudioManager(sig, pt.factory)

	require.NoError(t, a.StartBroadcasting([]domain.UserID{"bob"}))
	require.NoError(t, a.HandleCandidate("bob", Candidate{Candidate: "cand-1"}))

	require.Len(t, pt.get("bob").cands, 1)
}

func TestAudioManager_LocalCandidatesAreForwarded(t *testing.T) {
	sig := &fakeSignaler{}
	pt := newPeerTracker()
	a := NewAudioManager(sig, pt.factory)

	require.NoError(t, a.StartBroadcasting([]domain.UserID{"bob"}))
	pt.get("bob").onICE(Candidate{Candidate: "local-cand", SDPMid: "0"})

	assert.Equal(t, 1, sig.sentTo("bob", core.EventWebRTCCandidate))
}

func TestAudioManager_PeerFailureIsIsolated(t *testing.T) {
	sig := &fakeSignaler{}
	pt := newPeerTracker()
	a := NewAudioManager(sig, pt.factory)

	require.NoError(t, a.StartBroadcasting([]domain.UserID{"bob", "carol"}))
	pt.get("bob").onFailure()

	assert.Equal(t, 1, a.LinkCount(), "one broken peer drops only its own link")
	assert.True(t, pt.get("bob").isClosed())
	assert.False(t, pt.get("carol").isClosed())
	assert.Equal(t, AudioBroadcasting, a.State(), "the broadcast itself continues")
}

func TestAudioManager_PeerGoneTearsDownLink(t *testing.T) {
	sig := &fakeSignaler{}
	pt := newPeerTracker()
	a := NewAudioManager(sig, pt.factory)

	require.NoError(t, a.HandleOffer("speaker", "offer-sdp"))
	a.HandlePeerGone("speaker")

	assert.True(t, pt.get("speaker").isClosed())
	assert.Equal(t, AudioIdle, a.State(), "a listener with no links left returns to idle")
}

func TestAudioManager_StopClosesEveryLink(t *testing.T) {
	sig := &fakeSignaler{}
	pt := newPeerTracker()
	a := NewAudioManager(sig, pt.factory)

	require.NoError(t, a.StartBroadcasting([]domain.UserID{"bob", "carol"}))
	a.StopBroadcasting()

	assert.Equal(t, AudioIdle, a.State())
	assert.Equal(t, 0, a.LinkCount())
	assert.True(t, pt.get("bob").isClosed())
	assert.True(t, pt.get("carol").isClosed())
}

func TestAudioManager_AddListenerMidBroadcast(t *testing.T) {
	sig := &fakeSignaler{}
	pt := newPeerTracker()
	a := NewAudioManager(sig, pt.factory)

	require.NoError(t, a.StartBroadcasting([]domain.UserID{"bob"}))
	require.NoError(t, a.AddListener("dave"))

	assert.Equal(t, 2, a.LinkCount())
	assert.Equal(t, 1, sig.sentTo("dave", core.EventWebRTCOffer))

	assert.Error(t, NewAudioManager(sig, pt.factory).AddListener("x"), "cannot add a listener while idle")
}
