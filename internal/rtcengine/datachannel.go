package rtcengine

import "github.com/pion/webrtc/v4"

// DataChannelLabel is the label used for the session DataChannel.
const DataChannelLabel = "ascii-chat-rtc"

// dataChannelConfig returns the pion DataChannelInit for a reliable,
// ordered, message-framed channel. Unlike a tunnel carrying its own
// reliability layer, the video-chat session relies on SCTP's built-in
// retransmission and ordering, so Ordered/MaxRetransmits are left at pion's
// defaults (ordered, unlimited retransmits) rather than overridden.
func dataChannelConfig() *webrtc.DataChannelInit {
	return &webrtc.DataChannelInit{}
}
