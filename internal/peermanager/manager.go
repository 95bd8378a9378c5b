// Package peermanager is the aggregate root mediating between the
// signaling channel (ACDS) and the WebRTC Adapter (spec.md §4.4, Peer
// Manager). It owns the peer-connection set keyed by participant
// identifier, routes inbound SDP/ICE, initiates outbound connections, and
// fires transport_ready when a channel opens.
package peermanager

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ascii-chat-rtc/rtc/internal/icecodec"
	"github.com/ascii-chat-rtc/rtc/internal/ids"
	"github.com/ascii-chat-rtc/rtc/internal/rtcengine"
	"github.com/ascii-chat-rtc/rtc/internal/rtcerr"
	"github.com/ascii-chat-rtc/rtc/internal/transport"
)

// Role distinguishes the star-topology hub from its joiners (spec.md §1).
type Role int

const (
	Creator Role = iota
	Joiner
)

func (r Role) String() string {
	if r == Joiner {
		return "joiner"
	}
	return "creator"
}

// Config configures a Manager (spec.md §3, "Peer Manager" attributes).
type Config struct {
	Role   Role
	ICE    rtcengine.ICEConfig
	Logger *slog.Logger

	// SkipHost, when set, suppresses host-type candidates at the outbound
	// signaling point (spec.md §4.2, "Filtering policy").
	SkipHost bool

	// SendSDP and SendICE are the signaling callback contract (spec.md
	// §4.4). Both are required.
	SendSDP func(sessionID, peerID ids.ID, sdpType, sdp string) error
	SendICE func(sessionID, peerID ids.ID, candidate, mid string) error

	// OnTransportReady fires when a DataChannel opens. If nil, the
	// transport is immediately destroyed (spec.md §4.4, "Transport
	// ready").
	OnTransportReady func(tr *transport.Transport, peerID ids.ID)

	// OnGatheringTimeout fires once per peer torn down by
	// CheckGatheringTimeouts.
	OnGatheringTimeout func(peerID ids.ID)
}

type peerEntry struct {
	sessionID ids.ID
	pc        *rtcengine.PeerConnection
	connected bool

	// peerID is this entry's current address for outbound signaling: the
	// value placed in the SendSDP/SendICE sender_id field. It starts as
	// the entry's table key and is updated in place when handleAnswer
	// re-keys a joiner's provisional entry (spec.md §3, "Special
	// provisional key"), so candidates trickled after re-keying still
	// carry the real identifier instead of the stale all-zero one.
	peerID ids.ID

	gatheringStart time.Time
}

// Manager is the Peer Manager aggregate root.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu    sync.Mutex
	peers map[ids.ID]*peerEntry
}

// New allocates a Manager and initializes its table mutex (spec.md §4.4,
// `create`). Fails with InvalidParam if SendSDP or SendICE is missing.
func New(cfg Config) (*Manager, error) {
	if cfg.SendSDP == nil {
		return nil, rtcerr.Newf(rtcerr.InvalidParam, "peermanager.New", "SendSDP callback is required")
	}
	if cfg.SendICE == nil {
		return nil, rtcerr.Newf(rtcerr.InvalidParam, "peermanager.New", "SendICE callback is required")
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "peermanager", "role", cfg.Role.String())

	return &Manager{
		cfg:   cfg,
		log:   log,
		peers: make(map[ids.ID]*peerEntry),
	}, nil
}

// SDPPacket carries an inbound SDP offer or answer (spec.md §4.4).
type SDPPacket struct {
	SessionID ids.ID
	SenderID  ids.ID
	Type      string // "offer" or "answer"
	SDP       string
}

// ICEPacket carries an inbound trickled ICE candidate (spec.md §4.4).
type ICEPacket struct {
	SessionID ids.ID
	SenderID  ids.ID
	Candidate string
	Mid       string
}

// HandleSDP finds or creates a peer entry and applies the remote
// description (spec.md §4.4, `handle_sdp`).
func (m *Manager) HandleSDP(pkt SDPPacket) error {
	switch pkt.Type {
	case "offer":
		return m.handleOffer(pkt)
	case "answer":
		return m.handleAnswer(pkt)
	default:
		return rtcerr.Newf(rtcerr.InvalidParam, "peermanager.HandleSDP", "type must be \"offer\" or \"answer\", got %q", pkt.Type)
	}
}

func (m *Manager) handleOffer(pkt SDPPacket) error {
	m.mu.Lock()
	entry, exists := m.peers[pkt.SenderID]
	m.mu.Unlock()

	if !exists {
		// The offer's sender_id is the joiner's provisional all-zero
		// placeholder (spec.md §3, "Special provisional key") — it is not
		// a usable table key, since every joiner's first offer carries
		// the same value. Mint this peer's real identifier now, key the
		// new entry with it, and hand it back as the answer's sender_id
		// so the joiner can re-key its own provisional entry
		// (spec.md §4.4/§8 scenario 5).
		newID := ids.New()
		var err error
		entry, err = m.createEntry(pkt.SessionID, newID)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.peers[newID] = entry
		m.mu.Unlock()
	}

	if _, err := entry.pc.SetRemoteDescription("offer", pkt.SDP); err != nil {
		return err
	}
	return nil
}

func (m *Manager) handleAnswer(pkt SDPPacket) error {
	m.mu.Lock()
	entry, exists := m.peers[pkt.SenderID]
	if !exists {
		// Joiner re-keying: the provisional entry was created under the
		// all-zero id before the responder's identity was known
		// (spec.md §3, "Special provisional key"; §8 scenario 5).
		if provisional, ok := m.peers[ids.Zero]; ok {
			delete(m.peers, ids.Zero)
			provisional.peerID = pkt.SenderID
			m.peers[pkt.SenderID] = provisional
			entry, exists = provisional, true
		}
	}
	m.mu.Unlock()

	if !exists {
		return rtcerr.Newf(rtcerr.InvalidParam, "peermanager.HandleSDP", "answer from unknown peer %s", pkt.SenderID)
	}

	if _, err := entry.pc.SetRemoteDescription("answer", pkt.SDP); err != nil {
		return err
	}
	return nil
}

// HandleICE looks up the peer entry and adds the remote candidate. A
// candidate for an unknown peer is benign: it is logged and dropped
// without error (spec.md §4.4, §8 scenario 6).
func (m *Manager) HandleICE(pkt ICEPacket) error {
	m.mu.Lock()
	entry, exists := m.peers[pkt.SenderID]
	m.mu.Unlock()

	if !exists {
		m.log.Warn("ICE candidate for unknown peer, dropping", "peer_id", pkt.SenderID)
		return nil
	}

	return entry.pc.AddRemoteCandidate(pkt.Candidate, pkt.Mid)
}

// Connect is Joiner-only: it creates a peer entry and the local
// DataChannel, and has the engine produce the offer, which is relayed
// through SendSDP (spec.md §4.4, `connect`). participant may be ids.Zero for the
// provisional pre-answer key (spec.md §8 scenario 5).
func (m *Manager) Connect(session, participant ids.ID) error {
	if m.cfg.Role != Joiner {
		return rtcerr.Newf(rtcerr.InvalidParam, "peermanager.Connect", "Connect is Joiner-only, manager role is %s", m.cfg.Role)
	}

	entry, err := m.createEntry(session, participant)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.peers[participant] = entry
	m.mu.Unlock()

	if _, err := entry.pc.CreateOffer(); err != nil {
		m.removeEntry(participant)
		return err
	}
	return nil
}

// createEntry builds a fresh peer entry with a registered PeerConnection,
// without inserting it into the table (the caller holds/acquires the lock
// around the insertion per spec.md §4.4's locking discipline).
func (m *Manager) createEntry(session, peerID ids.ID) (*peerEntry, error) {
	entry := &peerEntry{
		sessionID:      session,
		peerID:         peerID,
		gatheringStart: time.Now(),
	}

	// pc is assigned once rtcengine.Create returns; the closures below only
	// run asynchronously afterward, so the capture is safe. The closures
	// close over entry itself (not the peerID argument) and re-read
	// entry.peerID on every call, since handleAnswer may re-key a joiner's
	// provisional entry in place after this function returns.
	var pc *rtcengine.PeerConnection

	created, err := rtcengine.Create(rtcengine.PeerConfig{
		ICE:      m.cfg.ICE,
		LocalID:  session.String(),
		RemoteID: peerID.String(),
		Logger:   m.log,

		OnLocalDescription: func(sdpType, sdp string) {
			id := m.currentPeerID(entry)
			if err := m.cfg.SendSDP(session, id, sdpType, sdp); err != nil {
				m.log.Error("send_sdp failed", "peer_id", id, "error", err)
			}
		},
		OnLocalCandidate: func(c *string) {
			if c == nil {
				return
			}
			if icecodec.SkipHost(m.cfg.SkipHost, *c) {
				return
			}
			id := m.currentPeerID(entry)
			if err := m.cfg.SendICE(session, id, *c, ""); err != nil {
				m.log.Error("send_ice failed", "peer_id", id, "error", err)
			}
		},
		OnDataChannel: func(dc *webrtc.DataChannel) {
			m.onDataChannelOpen(pc, dc, m.currentPeerID(entry))
		},
		OnStateChange: func(s rtcengine.State) {
			m.mu.Lock()
			entry.connected = s == rtcengine.StateConnected
			m.mu.Unlock()
		},
	})
	if err != nil {
		return nil, err
	}
	pc = created
	entry.pc = pc

	return entry, nil
}

// currentPeerID returns entry's current outbound signaling address, which
// may differ from the id it was constructed with if handleAnswer has since
// re-keyed it (spec.md §3, "Special provisional key").
func (m *Manager) currentPeerID(entry *peerEntry) ids.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return entry.peerID
}

// onDataChannelOpen wraps dc in a Transport and delivers it via
// OnTransportReady. If no callback is registered, the transport is
// destroyed immediately (spec.md §4.4, "Transport ready").
func (m *Manager) onDataChannelOpen(pc *rtcengine.PeerConnection, dc *webrtc.DataChannel, peerID ids.ID) {
	tr := transport.New(dc, pc.Close, m.log)
	if m.cfg.OnTransportReady == nil {
		m.log.Warn("data channel opened with no OnTransportReady callback registered, destroying", "peer_id", peerID)
		tr.Close()
		return
	}
	m.cfg.OnTransportReady(tr, peerID)
}

func (m *Manager) removeEntry(peerID ids.ID) {
	m.mu.Lock()
	entry, ok := m.peers[peerID]
	if ok {
		delete(m.peers, peerID)
	}
	m.mu.Unlock()

	if ok && entry.pc != nil {
		if err := entry.pc.Close(); err != nil {
			m.log.Error("closing peer connection", "peer_id", peerID, "error", err)
		}
	}
}

// CheckGatheringTimeouts tears down peers whose ICE gathering has exceeded
// timeout without connecting, firing OnGatheringTimeout for each
// (spec.md §4.4, `check_gathering_timeouts`). Victims are collected under
// the lock and torn down after releasing it, per spec.md §5.
func (m *Manager) CheckGatheringTimeouts(timeout time.Duration) int {
	now := time.Now()

	m.mu.Lock()
	var victims []ids.ID
	var victimPCs []*rtcengine.PeerConnection
	for peerID, entry := range m.peers {
		if !entry.connected && now.Sub(entry.gatheringStart) > timeout {
			victims = append(victims, peerID)
			victimPCs = append(victimPCs, entry.pc)
		}
	}
	for _, peerID := range victims {
		delete(m.peers, peerID)
	}
	m.mu.Unlock()

	for i, peerID := range victims {
		m.log.Warn("peer gathering timeout, tearing down", "peer_id", peerID)
		if pc := victimPCs[i]; pc != nil {
			if err := pc.Close(); err != nil {
				m.log.Error("closing peer connection", "peer_id", peerID, "error", err)
			}
		}
		if m.cfg.OnGatheringTimeout != nil {
			m.cfg.OnGatheringTimeout(peerID)
		}
	}
	return len(victims)
}

// Destroy tears down every peer entry, closing engine handles concurrently.
// After it returns, the peer table is empty (spec.md invariants).
func (m *Manager) Destroy() error {
	m.mu.Lock()
	entries := make([]*peerEntry, 0, len(m.peers))
	for _, entry := range m.peers {
		entries = append(entries, entry)
	}
	m.peers = make(map[ids.ID]*peerEntry)
	m.mu.Unlock()

	var g errgroup.Group
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			if entry.pc == nil {
				return nil
			}
			return entry.pc.Close()
		})
	}
	return g.Wait()
}

// Len returns the number of live peer entries, for tests and diagnostics.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}
