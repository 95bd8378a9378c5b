// Package transport adapts the WebRTC Adapter's push delivery model (the
// engine invokes OnMessage from its own threads) into the blocking pull
// interface an application thread uses to read a session's messages
// (spec.md §4.5, DataChannel Transport).
package transport

import (
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/ascii-chat-rtc/rtc/internal/rtcerr"
)

// QueueCapacity is the bounded receive queue's capacity (spec.md §4.5,
// "power-of-two capacity, e.g., 64 message slots").
const QueueCapacity = 64

// Transport bridges a DataChannel's async message delivery into Recv's
// blocking pull interface.
type Transport struct {
	dc        *webrtc.DataChannel
	closePeer func() error
	log       *slog.Logger

	mu         sync.Mutex
	cond       *sync.Cond
	queue      [][]byte
	closed     bool
	closeCause error
}

// New wraps dc, subscribing to its message/close/error events. closePeer, if
// non-nil, is invoked by Close after the DataChannel itself closes
// (spec.md §4.5: "close(): idempotent; closes the DataChannel then the
// peer connection; wakes all waiters").
func New(dc *webrtc.DataChannel, closePeer func() error, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if closePeer == nil {
		closePeer = func() error { return nil }
	}

	t := &Transport{
		dc:        dc,
		closePeer: closePeer,
		log:       logger.With("component", "transport", "label", dc.Label()),
		queue:     make([][]byte, 0, QueueCapacity),
	}
	t.cond = sync.NewCond(&t.mu)

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.push(msg.Data)
	})
	dc.OnClose(func() {
		t.markClosed(rtcerr.Newf(rtcerr.Network, "transport.Recv", "data channel closed"))
	})
	dc.OnError(func(err error) {
		t.markClosed(rtcerr.New(rtcerr.Network, "transport.Recv", err))
	})

	return t
}

// push copies msg into the queue, dropping the oldest entry when full
// (spec.md §4.5: "if the queue is full, drop the oldest entry to make
// room... and push the new one; signal the condition").
func (t *Transport) push(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if len(t.queue) >= QueueCapacity {
		t.log.Warn("receive queue full, dropping oldest message")
		t.queue = t.queue[1:]
	}
	t.queue = append(t.queue, buf)
	t.mu.Unlock()

	t.cond.Broadcast()
}

func (t *Transport) markClosed(cause error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.closeCause = cause
	t.mu.Unlock()

	t.cond.Broadcast()
}

// Send forwards buf to the engine's synchronous send, failing with Network
// if the channel is not open (spec.md §4.5).
func (t *Transport) Send(buf []byte) error {
	if t.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return rtcerr.Newf(rtcerr.Network, "transport.Send", "data channel not open")
	}
	if err := t.dc.Send(buf); err != nil {
		return rtcerr.New(rtcerr.Network, "transport.Send", err)
	}
	return nil
}

// Recv blocks until a message is available or the channel closes, in which
// case it returns a Network error. Messages are delivered whole, in send
// order, with no fragmentation or merging. The caller owns the returned
// buffer.
func (t *Transport) Recv() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for len(t.queue) == 0 && !t.closed {
		t.cond.Wait()
	}

	if len(t.queue) > 0 {
		buf := t.queue[0]
		t.queue = t.queue[1:]
		return buf, nil
	}

	if t.closeCause != nil {
		return nil, t.closeCause
	}
	return nil, rtcerr.Newf(rtcerr.Network, "transport.Recv", "transport closed")
}

// IsConnected reports whether the underlying DataChannel is open.
func (t *Transport) IsConnected() bool {
	return t.dc.ReadyState() == webrtc.DataChannelStateOpen
}

// Kind returns a label for the channel's transport ("reliable-ordered"),
// per spec.md §5's ordering guarantee that the underlying transport is
// reliable and ordered.
func (t *Transport) Kind() string {
	return "reliable-ordered"
}

// Close is idempotent: it closes the DataChannel then the owning peer
// connection, and wakes all Recv waiters (spec.md §4.5).
func (t *Transport) Close() error {
	t.markClosed(rtcerr.Newf(rtcerr.Network, "transport.Recv", "transport closed"))

	if err := t.dc.Close(); err != nil {
		t.log.Warn("closing data channel", "error", err)
	}
	if err := t.closePeer(); err != nil {
		return rtcerr.New(rtcerr.Network, "transport.Close", err)
	}
	return nil
}
