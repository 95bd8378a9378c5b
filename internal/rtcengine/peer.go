package rtcengine

import (
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/ascii-chat-rtc/rtc/internal/rtcerr"
)

// PeerConfig configures a new Peer Connection (spec.md §3, "configuration
// snapshot").
type PeerConfig struct {
	ICE ICEConfig

	LocalID  string
	RemoteID string

	Logger *slog.Logger

	// OnLocalDescription fires when the engine has produced a local SDP
	// (offer or answer); the manager relays it via send_sdp.
	OnLocalDescription func(sdpType, sdp string)

	// OnLocalCandidate fires once per gathered local ICE candidate. A nil
	// candidate signals that gathering is complete.
	OnLocalCandidate func(candidate *string)

	// OnDataChannel fires when the session DataChannel is ready: for the
	// offerer when the channel it created opens, for the answerer when the
	// remote channel arrives and opens.
	OnDataChannel func(dc *webrtc.DataChannel)

	// OnStateChange fires on every Peer Connection state transition.
	OnStateChange func(State)
}

// PeerConnection wraps a pion RTCPeerConnection, implementing the WebRTC
// Adapter's peer-connection operations (spec.md §4.1).
type PeerConnection struct {
	cfg  PeerConfig
	log  *slog.Logger
	pc   *webrtc.PeerConnection
	done chan struct{}

	mu    sync.Mutex
	dc    *webrtc.DataChannel
	state State
}

// Create allocates a PeerConnection, registering the state/local-description
// /local-candidate/datachannel adapters before returning. Fails with Init if
// the library has not been initialized, Network if the engine rejects the
// configuration.
func Create(cfg PeerConfig) (*PeerConnection, error) {
	eng, err := api()
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "rtcengine", "local_id", cfg.LocalID, "remote_id", cfg.RemoteID)

	rtcConfig := webrtc.Configuration{
		ICEServers: cfg.ICE.pionICEServers(),
	}
	if cfg.ICE.ForceRelay {
		rtcConfig.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}

	pc, err := eng.NewPeerConnection(rtcConfig)
	if err != nil {
		return nil, rtcerr.New(rtcerr.Network, "rtcengine.Create", err)
	}

	p := &PeerConnection{
		cfg:   cfg,
		log:   log,
		pc:    pc,
		done:  make(chan struct{}),
		state: StateNew,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			p.log.Debug("ICE gathering complete")
			if p.cfg.OnLocalCandidate != nil {
				p.cfg.OnLocalCandidate(nil)
			}
			return
		}
		line := c.ToJSON().Candidate
		p.log.Debug("local ICE candidate gathered", "candidate", line)
		if p.cfg.OnLocalCandidate != nil {
			p.cfg.OnLocalCandidate(&line)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		state := fromPion(s)
		p.mu.Lock()
		p.state = state
		p.mu.Unlock()

		p.log.Info("peer connection state changed", "state", state.String())
		if p.cfg.OnStateChange != nil {
			p.cfg.OnStateChange(state)
		}
		if state == StateFailed || state == StateClosed {
			p.mu.Lock()
			select {
			case <-p.done:
			default:
				close(p.done)
			}
			p.mu.Unlock()
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.log.Info("remote data channel received", "label", dc.Label())
		p.setupDataChannel(dc)
	})

	return p, nil
}

// CreateOffer creates the session DataChannel, then creates and applies the
// local offer. The offer is delivered synchronously via OnLocalDescription
// before CreateOffer returns, and is also returned as the result. pion does
// not generate an offer on its own when a DataChannel is created, so the
// explicit request here is the only one made.
func (p *PeerConnection) CreateOffer() (string, error) {
	dc, err := p.pc.CreateDataChannel(DataChannelLabel, dataChannelConfig())
	if err != nil {
		return "", rtcerr.New(rtcerr.Network, "rtcengine.CreateOffer", err)
	}
	p.setupDataChannel(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", rtcerr.New(rtcerr.Network, "rtcengine.CreateOffer", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", rtcerr.New(rtcerr.Network, "rtcengine.CreateOffer", err)
	}

	if p.cfg.OnLocalDescription != nil {
		p.cfg.OnLocalDescription("offer", offer.SDP)
	}
	return offer.SDP, nil
}

// SetRemoteDescription applies a remote SDP offer or answer
// (spec.md §4.1: `set_remote_description(sdp, type)`). For an offer, it
// also produces and applies the local answer, delivered via
// OnLocalDescription and returned as localSDP; for an answer, localSDP is
// empty.
func (p *PeerConnection) SetRemoteDescription(sdpType, sdp string) (localSDP string, err error) {
	var desc webrtc.SessionDescription
	switch sdpType {
	case "offer":
		desc = webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	case "answer":
		desc = webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	default:
		return "", rtcerr.Newf(rtcerr.InvalidParam, "rtcengine.SetRemoteDescription", "sdpType must be \"offer\" or \"answer\", got %q", sdpType)
	}

	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return "", rtcerr.New(rtcerr.Network, "rtcengine.SetRemoteDescription", err)
	}

	if sdpType != "offer" {
		p.log.Debug("remote answer set")
		return "", nil
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", rtcerr.New(rtcerr.Network, "rtcengine.SetRemoteDescription", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", rtcerr.New(rtcerr.Network, "rtcengine.SetRemoteDescription", err)
	}
	if p.cfg.OnLocalDescription != nil {
		p.cfg.OnLocalDescription("answer", answer.SDP)
	}
	return answer.SDP, nil
}

// AddRemoteCandidate adds a remote ICE candidate received via signaling
// (spec.md §4.1: `add_remote_candidate`).
func (p *PeerConnection) AddRemoteCandidate(candidateLine, mid string) error {
	init := webrtc.ICECandidateInit{Candidate: candidateLine}
	if mid != "" {
		init.SDPMid = &mid
	}
	if err := p.pc.AddICECandidate(init); err != nil {
		return rtcerr.New(rtcerr.Network, "rtcengine.AddRemoteCandidate", err)
	}
	p.log.Debug("remote ICE candidate added", "candidate", candidateLine)
	return nil
}

// DataChannel returns the current data channel, or nil if none has been
// created or received yet. The channel is returned as soon as it exists,
// whether or not it has opened.
func (p *PeerConnection) DataChannel() *webrtc.DataChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dc
}

// State returns the last observed Peer Connection state.
func (p *PeerConnection) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ICETransport exposes the underlying ICE transport, e.g. for
// icecodec.SelectedPair.
func (p *PeerConnection) ICETransport() *webrtc.ICETransport {
	return p.pc.SCTP().Transport().ICETransport()
}

// Done returns a channel closed when the peer connection reaches Failed or
// Closed.
func (p *PeerConnection) Done() <-chan struct{} {
	return p.done
}

// Close destroys the owned DataChannel first, then the engine handle.
// Callbacks are not suppressed after Close: events the engine delivers
// while or after closing (such as the final Closed state change) still
// reach the PeerConfig callbacks.
func (p *PeerConnection) Close() error {
	p.mu.Lock()
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	dc := p.dc
	p.state = StateClosed
	p.mu.Unlock()

	if dc != nil {
		if err := dc.Close(); err != nil {
			p.log.Warn("closing data channel", "error", err)
		}
	}

	if err := p.pc.Close(); err != nil {
		return rtcerr.New(rtcerr.Network, "rtcengine.Close", err)
	}
	p.log.Info("peer connection closed")
	return nil
}

func (p *PeerConnection) setupDataChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.log.Info("data channel open", "label", dc.Label())
		if p.cfg.OnDataChannel != nil {
			p.cfg.OnDataChannel(dc)
		}
	})
	dc.OnClose(func() {
		p.log.Info("data channel closed", "label", dc.Label())
	})
	dc.OnError(func(err error) {
		p.log.Error("data channel error", "label", dc.Label(), "error", err)
	})

	// If the channel somehow opened before we attached our trampolines
	// (replacing callbacks on an already-open channel), synthesize the open
	// callback so the application still observes it (spec.md §4.1,
	// "DataChannel callbacks").
	if dc.ReadyState() == webrtc.DataChannelStateOpen && p.cfg.OnDataChannel != nil {
		p.cfg.OnDataChannel(dc)
	}
}
