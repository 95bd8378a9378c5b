package peermanager

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ascii-chat-rtc/rtc/internal/ids"
	"github.com/ascii-chat-rtc/rtc/internal/rtcengine"
	"github.com/ascii-chat-rtc/rtc/internal/rtcerr"
	"github.com/ascii-chat-rtc/rtc/internal/transport"
)

func mustInitEngine(t *testing.T) {
	t.Helper()
	if err := rtcengine.Init(nil); err != nil {
		t.Fatalf("rtcengine.Init() error: %v", err)
	}
	t.Cleanup(func() { rtcengine.Release() })
}

// wiredPair builds a Creator manager and a Joiner manager that relay SDP
// and ICE directly to each other in-process, the way acdsclient would
// relay them over the wire.
func wiredPair(t *testing.T) (creator, joiner *Manager) {
	t.Helper()
	mustInitEngine(t)

	session := ids.New()

	var creatorReady, joinerReady sync.WaitGroup
	creatorReady.Add(1)
	joinerReady.Add(1)

	var once1, once2 sync.Once

	creator, err := New(Config{
		Role: Creator,
		SendSDP: func(sessionID, peerID ids.ID, sdpType, sdp string) error {
			return joiner.HandleSDP(SDPPacket{SessionID: sessionID, SenderID: peerID, Type: sdpType, SDP: sdp})
		},
		SendICE: func(sessionID, peerID ids.ID, candidate, mid string) error {
			return joiner.HandleICE(ICEPacket{SessionID: sessionID, SenderID: peerID, Candidate: candidate, Mid: mid})
		},
		OnTransportReady: func(tr *transport.Transport, peerID ids.ID) {
			once1.Do(creatorReady.Done)
		},
	})
	if err != nil {
		t.Fatalf("New(creator) error: %v", err)
	}
	t.Cleanup(func() { creator.Destroy() })

	joiner, err = New(Config{
		Role: Joiner,
		SendSDP: func(sessionID, peerID ids.ID, sdpType, sdp string) error {
			return creator.HandleSDP(SDPPacket{SessionID: sessionID, SenderID: peerID, Type: sdpType, SDP: sdp})
		},
		SendICE: func(sessionID, peerID ids.ID, candidate, mid string) error {
			return creator.HandleICE(ICEPacket{SessionID: sessionID, SenderID: peerID, Candidate: candidate, Mid: mid})
		},
		OnTransportReady: func(tr *transport.Transport, peerID ids.ID) {
			once2.Do(joinerReady.Done)
		},
	})
	if err != nil {
		t.Fatalf("New(joiner) error: %v", err)
	}
	t.Cleanup(func() { joiner.Destroy() })

	if err := joiner.Connect(session, ids.Zero); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		creatorReady.Wait()
		joinerReady.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for both transports to become ready")
	}

	return creator, joiner
}

// peerKeys returns the set of table keys currently held, for assertions
// about re-keying (spec.md §8 scenario 5).
func peerKeys(m *Manager) map[ids.ID]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make(map[ids.ID]bool, len(m.peers))
	for k := range m.peers {
		keys[k] = true
	}
	return keys
}

func TestConnectAndHandshake_ReKeysProvisionalJoinerEntry(t *testing.T) {
	t.Parallel()

	_, joiner := wiredPair(t)

	keys := peerKeys(joiner)
	if keys[ids.Zero] {
		t.Errorf("joiner peer table still has an all-zero entry after handshake: %v", keys)
	}
	if len(keys) != 1 {
		t.Fatalf("joiner peer table has %d entries, want 1: %v", len(keys), keys)
	}
	for k := range keys {
		if k == ids.Zero {
			t.Errorf("joiner re-keyed entry is still ids.Zero")
		}
	}
}

// TestHandleSDP_MultipleOffersFromProvisionalSenderGetDistinctEntries covers
// spec.md §1's "one or more joiners connecting to [the creator]": every
// joiner's first offer carries the same all-zero provisional sender_id
// (spec.md §3, "Special provisional key"), so the creator must mint a
// distinct real id per offer rather than colliding all joiners onto one
// table entry.
func TestHandleSDP_MultipleOffersFromProvisionalSenderGetDistinctEntries(t *testing.T) {
	t.Parallel()
	mustInitEngine(t)

	session := ids.New()

	creator, err := New(Config{
		Role:    Creator,
		SendSDP: func(ids.ID, ids.ID, string, string) error { return nil },
		SendICE: func(ids.ID, ids.ID, string, string) error { return nil },
	})
	if err != nil {
		t.Fatalf("New(creator) error: %v", err)
	}
	t.Cleanup(func() { creator.Destroy() })

	makeOffer := func() string {
		joinerPC, err := rtcengine.Create(rtcengine.PeerConfig{LocalID: session.String()})
		if err != nil {
			t.Fatalf("rtcengine.Create() error: %v", err)
		}
		t.Cleanup(func() { joinerPC.Close() })

		sdp, err := joinerPC.CreateOffer()
		if err != nil {
			t.Fatalf("CreateOffer() error: %v", err)
		}
		return sdp
	}

	for i := 0; i < 2; i++ {
		sdp := makeOffer()
		if err := creator.HandleSDP(SDPPacket{SessionID: session, SenderID: ids.Zero, Type: "offer", SDP: sdp}); err != nil {
			t.Fatalf("HandleSDP(offer #%d) error: %v", i, err)
		}
	}

	keys := peerKeys(creator)
	if keys[ids.Zero] {
		t.Errorf("creator peer table has an all-zero entry after accepting offers: %v", keys)
	}
	if len(keys) != 2 {
		t.Fatalf("creator peer table has %d entries after 2 offers, want 2 distinct entries: %v", len(keys), keys)
	}
}

func TestConnect_CreatorRoleRejected(t *testing.T) {
	t.Parallel()
	mustInitEngine(t)

	creator, err := New(Config{
		Role:    Creator,
		SendSDP: func(ids.ID, ids.ID, string, string) error { return nil },
		SendICE: func(ids.ID, ids.ID, string, string) error { return nil },
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { creator.Destroy() })

	err = creator.Connect(ids.New(), ids.New())
	if !errors.Is(err, rtcerr.ErrInvalidParam) {
		t.Errorf("Connect() on a Creator error = %v, want rtcerr.ErrInvalidParam", err)
	}
}

func TestNew_RequiresSignalingCallbacks(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Role: Joiner, SendICE: func(ids.ID, ids.ID, string, string) error { return nil }})
	if !errors.Is(err, rtcerr.ErrInvalidParam) {
		t.Errorf("New() without SendSDP error = %v, want rtcerr.ErrInvalidParam", err)
	}

	_, err = New(Config{Role: Joiner, SendSDP: func(ids.ID, ids.ID, string, string) error { return nil }})
	if !errors.Is(err, rtcerr.ErrInvalidParam) {
		t.Errorf("New() without SendICE error = %v, want rtcerr.ErrInvalidParam", err)
	}
}

func TestHandleICE_UnknownPeerIsBenign(t *testing.T) {
	t.Parallel()
	mustInitEngine(t)

	m, err := New(Config{
		Role:    Creator,
		SendSDP: func(ids.ID, ids.ID, string, string) error { return nil },
		SendICE: func(ids.ID, ids.ID, string, string) error { return nil },
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { m.Destroy() })

	err = m.HandleICE(ICEPacket{SessionID: ids.New(), SenderID: ids.New(), Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 9 typ host"})
	if err != nil {
		t.Errorf("HandleICE() for unknown peer error = %v, want nil", err)
	}
}

func TestConnectAndHandshake_OpensTransportsBothSides(t *testing.T) {
	t.Parallel()

	creator, joiner := wiredPair(t)

	if creator.Len() != 1 {
		t.Errorf("creator.Len() = %d, want 1", creator.Len())
	}
	if joiner.Len() != 1 {
		t.Errorf("joiner.Len() = %d, want 1", joiner.Len())
	}
}

func TestDestroy_EmptiesTable(t *testing.T) {
	t.Parallel()

	creator, joiner := wiredPair(t)

	if err := creator.Destroy(); err != nil {
		t.Fatalf("creator.Destroy() error: %v", err)
	}
	if creator.Len() != 0 {
		t.Errorf("creator.Len() after Destroy() = %d, want 0", creator.Len())
	}

	if err := joiner.Destroy(); err != nil {
		t.Fatalf("joiner.Destroy() error: %v", err)
	}
	if joiner.Len() != 0 {
		t.Errorf("joiner.Len() after Destroy() = %d, want 0", joiner.Len())
	}
}

func TestCheckGatheringTimeouts_TearsDownStalledPeer(t *testing.T) {
	t.Parallel()
	mustInitEngine(t)

	var timedOut ids.ID
	timedOutCh := make(chan ids.ID, 1)

	m, err := New(Config{
		Role:    Joiner,
		SendSDP: func(ids.ID, ids.ID, string, string) error { return nil },
		SendICE: func(ids.ID, ids.ID, string, string) error { return nil },
		OnGatheringTimeout: func(peerID ids.ID) {
			timedOutCh <- peerID
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { m.Destroy() })

	participant := ids.New()
	if err := m.Connect(ids.New(), participant); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	n := m.CheckGatheringTimeouts(0)
	if n != 1 {
		t.Fatalf("CheckGatheringTimeouts() = %d, want 1", n)
	}

	select {
	case timedOut = <-timedOutCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnGatheringTimeout callback")
	}
	if timedOut != participant {
		t.Errorf("OnGatheringTimeout peer = %s, want %s", timedOut, participant)
	}
	if m.Len() != 0 {
		t.Errorf("Len() after timeout = %d, want 0", m.Len())
	}
}
