package rtcengine

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

// localICEConfig returns an ICE config with no external STUN/TURN servers.
// pion can still establish a connection between two local peers using host
// candidates alone.
func localICEConfig() ICEConfig {
	return ICEConfig{}
}

func mustInit(t *testing.T) {
	t.Helper()
	if err := Init(nil); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	t.Cleanup(func() {
		if err := Release(); err != nil {
			t.Errorf("Release() error: %v", err)
		}
	})
}

func newRelayedPair(t *testing.T) (a, b *PeerConnection, dcOpenA, dcOpenB chan *webrtc.DataChannel) {
	t.Helper()
	mustInit(t)

	candA := make(chan string, 32)
	candB := make(chan string, 32)
	dcOpenA = make(chan *webrtc.DataChannel, 1)
	dcOpenB = make(chan *webrtc.DataChannel, 1)

	a, err := Create(PeerConfig{
		ICE:      localICEConfig(),
		LocalID:  "peer-a",
		RemoteID: "peer-b",
		OnLocalCandidate: func(c *string) {
			if c != nil {
				candB <- *c
			}
		},
		OnDataChannel: func(dc *webrtc.DataChannel) { dcOpenA <- dc },
	})
	if err != nil {
		t.Fatalf("Create(A) error: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	b, err = Create(PeerConfig{
		ICE:      localICEConfig(),
		LocalID:  "peer-b",
		RemoteID: "peer-a",
		OnLocalCandidate: func(c *string) {
			if c != nil {
				candA <- *c
			}
		},
		OnDataChannel: func(dc *webrtc.DataChannel) { dcOpenB <- dc },
	})
	if err != nil {
		t.Fatalf("Create(B) error: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	offerSDP, err := a.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer() error: %v", err)
	}
	if offerSDP == "" {
		t.Fatal("CreateOffer() produced no local description")
	}

	answerSDP, err := b.SetRemoteDescription("offer", offerSDP)
	if err != nil {
		t.Fatalf("SetRemoteDescription(offer) error: %v", err)
	}
	if answerSDP == "" {
		t.Fatal("SetRemoteDescription(offer) produced no answer")
	}

	if _, err := a.SetRemoteDescription("answer", answerSDP); err != nil {
		t.Fatalf("SetRemoteDescription(answer) error: %v", err)
	}

	t.Cleanup(func() {
		close(candA)
		close(candB)
	})

	go func() {
		for c := range candB {
			_ = b.AddRemoteCandidate(c, "")
		}
	}()
	go func() {
		for c := range candA {
			_ = a.AddRemoteCandidate(c, "")
		}
	}()

	return a, b, dcOpenA, dcOpenB
}

func TestCreate_OfferAnswerOpensDataChannel(t *testing.T) {
	t.Parallel()

	_, _, dcOpenA, dcOpenB := newRelayedPair(t)

	timeout := time.After(10 * time.Second)

	var dcA, dcB *webrtc.DataChannel
	select {
	case dcA = <-dcOpenA:
	case <-timeout:
		t.Fatal("timed out waiting for data channel on peer A")
	}
	select {
	case dcB = <-dcOpenB:
	case <-timeout:
		t.Fatal("timed out waiting for data channel on peer B")
	}

	if dcA.Label() != DataChannelLabel {
		t.Errorf("peer A data channel label = %q, want %q", dcA.Label(), DataChannelLabel)
	}
	if dcB.Label() != DataChannelLabel {
		t.Errorf("peer B data channel label = %q, want %q", dcB.Label(), DataChannelLabel)
	}
}

func TestCreate_DataChannelReliableOrdered(t *testing.T) {
	t.Parallel()

	a, _, dcOpenA, _ := newRelayedPair(t)

	timeout := time.After(10 * time.Second)
	select {
	case <-dcOpenA:
	case <-timeout:
		t.Fatal("timed out waiting for data channel on peer A")
	}

	dc := a.DataChannel()
	if dc == nil {
		t.Fatal("peer A data channel is nil")
	}
	if !dc.Ordered() {
		t.Error("data channel ordered = false, want true")
	}
	if mr := dc.MaxRetransmits(); mr != nil {
		t.Errorf("data channel maxRetransmits = %v, want nil (unlimited)", *mr)
	}
}

func TestCreate_BidirectionalData(t *testing.T) {
	t.Parallel()

	_, _, dcOpenA, dcOpenB := newRelayedPair(t)

	timeout := time.After(10 * time.Second)

	var dcA, dcB *webrtc.DataChannel
	select {
	case dcA = <-dcOpenA:
	case <-timeout:
		t.Fatal("timed out waiting for data channel on peer A")
	}
	select {
	case dcB = <-dcOpenB:
	case <-timeout:
		t.Fatal("timed out waiting for data channel on peer B")
	}

	received := make(chan []byte, 1)
	dcB.OnMessage(func(msg webrtc.DataChannelMessage) { received <- msg.Data })

	want := []byte("hello from A")
	if err := dcA.Send(want); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(want) {
			t.Errorf("B received %q, want %q", got, want)
		}
	case <-timeout:
		t.Fatal("timed out waiting for message on peer B")
	}
}

func TestCreate_StateCallback(t *testing.T) {
	t.Parallel()

	mustInit(t)

	candB := make(chan string, 32)
	candA := make(chan string, 32)
	states := make(chan State, 8)

	a, err := Create(PeerConfig{
		ICE:      localICEConfig(),
		LocalID:  "peer-a",
		RemoteID: "peer-b",
		OnLocalCandidate: func(c *string) {
			if c != nil {
				candB <- *c
			}
		},
		OnStateChange: func(s State) { states <- s },
	})
	if err != nil {
		t.Fatalf("Create(A) error: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	b, err := Create(PeerConfig{
		ICE:      localICEConfig(),
		LocalID:  "peer-b",
		RemoteID: "peer-a",
		OnLocalCandidate: func(c *string) {
			if c != nil {
				candA <- *c
			}
		},
	})
	if err != nil {
		t.Fatalf("Create(B) error: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	offerSDP, err := a.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer() error: %v", err)
	}

	answerSDP, err := b.SetRemoteDescription("offer", offerSDP)
	if err != nil {
		t.Fatalf("SetRemoteDescription(offer) error: %v", err)
	}
	if _, err := a.SetRemoteDescription("answer", answerSDP); err != nil {
		t.Fatalf("SetRemoteDescription(answer) error: %v", err)
	}

	go func() {
		for c := range candB {
			_ = b.AddRemoteCandidate(c, "")
		}
	}()
	go func() {
		for c := range candA {
			_ = a.AddRemoteCandidate(c, "")
		}
	}()
	t.Cleanup(func() {
		close(candA)
		close(candB)
	})

	timeout := time.After(10 * time.Second)
	for {
		select {
		case s := <-states:
			if s == StateConnected {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for StateConnected on peer A")
		}
	}
}

func TestInitRelease_Refcount(t *testing.T) {
	base := Refs()

	if err := Init(nil); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if Refs() != base+1 {
		t.Errorf("Refs() = %d, want %d", Refs(), base+1)
	}

	if err := Init(nil); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if Refs() != base+2 {
		t.Errorf("Refs() = %d, want %d", Refs(), base+2)
	}

	if err := Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if Refs() != base+1 {
		t.Errorf("Refs() = %d, want %d", Refs(), base+1)
	}

	if err := Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if Refs() != base {
		t.Errorf("Refs() = %d, want %d", Refs(), base)
	}
}
