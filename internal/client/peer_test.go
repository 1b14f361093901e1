package client

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPionPeer_FailureFiresOnce(t *testing.T) {
	p := &pionPeer{remote: "bob"}
	var fired atomic.Int32
	p.OnFailure(func() { fired.Add(1) })

	// pion reports ICE and connection state changes on separate
	// goroutines; both paths can race into the latch.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.fail()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fired.Load(), "the failure callback fires exactly once")
}

func TestPionPeer_FailureWithoutCallbackIsSafe(t *testing.T) {
	p := &pionPeer{remote: "bob"}
	p.fail()
	p.fail()
}

func TestNewPionPeerFactory_CreatesAndCloses(t *testing.T) {
	factory := NewPionPeerFactory(DefaultWebRTCConfig(), time.Second)
	peer, err := factory("bob")
	require.NoError(t, err)
	peer.Close()
}
