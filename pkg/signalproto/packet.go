// Package signalproto implements the binary SDP/ICE signaling packet
// encoding consumed and produced by the Peer Manager (spec.md §6,
// "Signaling packets"). It is deliberately distinct from the ACDS wire
// protocol itself (out of scope per spec.md §1) — this package only
// defines the packet shapes the manager's callbacks exchange.
package signalproto

import (
	"encoding/binary"
	"fmt"
)

// SDPType discriminates an SDP packet's payload.
type SDPType uint8

const (
	SDPOffer  SDPType = 0
	SDPAnswer SDPType = 1
)

func (t SDPType) String() string {
	if t == SDPAnswer {
		return "answer"
	}
	return "offer"
}

// maxSDPLen bounds sdp_len, an on-wire big-endian uint16.
const maxSDPLen = 1<<16 - 1

// SDPPacket is the wire shape of an SDP offer or answer
// (spec.md §6: `session_id[16], sender_id[16], type, sdp_len, sdp_bytes`).
type SDPPacket struct {
	SessionID [16]byte
	SenderID  [16]byte
	Type      SDPType
	SDP       string
}

// EncodeSDP serializes pkt to its wire form. The SDP payload is not
// NUL-terminated on the wire (spec.md §6).
func EncodeSDP(pkt SDPPacket) ([]byte, error) {
	if len(pkt.SDP) > maxSDPLen {
		return nil, fmt.Errorf("signalproto: EncodeSDP: sdp length %d exceeds %d", len(pkt.SDP), maxSDPLen)
	}

	buf := make([]byte, 16+16+1+2+len(pkt.SDP))
	copy(buf[0:16], pkt.SessionID[:])
	copy(buf[16:32], pkt.SenderID[:])
	buf[32] = byte(pkt.Type)
	binary.BigEndian.PutUint16(buf[33:35], uint16(len(pkt.SDP)))
	copy(buf[35:], pkt.SDP)
	return buf, nil
}

// DecodeSDP parses an SDP packet, returning an error without side effects
// on any malformed input (spec.md §7, "Parse errors at the edge").
func DecodeSDP(data []byte) (SDPPacket, error) {
	const headerLen = 16 + 16 + 1 + 2
	if len(data) < headerLen {
		return SDPPacket{}, fmt.Errorf("signalproto: DecodeSDP: packet too short (%d bytes, want at least %d)", len(data), headerLen)
	}

	var pkt SDPPacket
	copy(pkt.SessionID[:], data[0:16])
	copy(pkt.SenderID[:], data[16:32])

	switch typ := data[32]; typ {
	case byte(SDPOffer):
		pkt.Type = SDPOffer
	case byte(SDPAnswer):
		pkt.Type = SDPAnswer
	default:
		return SDPPacket{}, fmt.Errorf("signalproto: DecodeSDP: invalid type byte %d", typ)
	}

	sdpLen := int(binary.BigEndian.Uint16(data[33:35]))
	if len(data) != headerLen+sdpLen {
		return SDPPacket{}, fmt.Errorf("signalproto: DecodeSDP: sdp_len %d does not match remaining payload %d bytes", sdpLen, len(data)-headerLen)
	}
	pkt.SDP = string(data[headerLen:])

	return pkt, nil
}

// ICEPacket is the wire shape of a trickled ICE candidate
// (spec.md §6: `session_id[16], sender_id[16], candidate_len, candidate_cstr, mid_cstr`).
// Both strings are NUL-terminated and back-to-back in the payload.
type ICEPacket struct {
	SessionID [16]byte
	SenderID  [16]byte
	Candidate string
	Mid       string
}

// EncodeICE serializes pkt to its wire form.
func EncodeICE(pkt ICEPacket) ([]byte, error) {
	candLen := len(pkt.Candidate) + 1 // +1 for the NUL terminator
	if candLen > maxSDPLen {
		return nil, fmt.Errorf("signalproto: EncodeICE: candidate length %d exceeds %d", candLen, maxSDPLen)
	}

	buf := make([]byte, 16+16+2+candLen+len(pkt.Mid)+1)
	copy(buf[0:16], pkt.SessionID[:])
	copy(buf[16:32], pkt.SenderID[:])
	binary.BigEndian.PutUint16(buf[32:34], uint16(candLen))

	off := 34
	copy(buf[off:], pkt.Candidate)
	off += len(pkt.Candidate)
	buf[off] = 0 // candidate_cstr NUL terminator
	off++

	copy(buf[off:], pkt.Mid)
	off += len(pkt.Mid)
	buf[off] = 0 // mid_cstr NUL terminator

	return buf, nil
}

// DecodeICE parses an ICE packet, returning an error without side effects
// on any malformed input.
func DecodeICE(data []byte) (ICEPacket, error) {
	const headerLen = 16 + 16 + 2
	if len(data) < headerLen {
		return ICEPacket{}, fmt.Errorf("signalproto: DecodeICE: packet too short (%d bytes, want at least %d)", len(data), headerLen)
	}

	var pkt ICEPacket
	copy(pkt.SessionID[:], data[0:16])
	copy(pkt.SenderID[:], data[16:32])

	candLen := int(binary.BigEndian.Uint16(data[32:34]))
	rest := data[headerLen:]
	if candLen < 1 || candLen > len(rest) {
		return ICEPacket{}, fmt.Errorf("signalproto: DecodeICE: candidate_len %d out of range for %d remaining bytes", candLen, len(rest))
	}

	candField := rest[:candLen]
	if candField[candLen-1] != 0 {
		return ICEPacket{}, fmt.Errorf("signalproto: DecodeICE: candidate_cstr is not NUL-terminated")
	}
	pkt.Candidate = string(candField[:candLen-1])

	midField := rest[candLen:]
	if len(midField) == 0 || midField[len(midField)-1] != 0 {
		return ICEPacket{}, fmt.Errorf("signalproto: DecodeICE: mid_cstr is not NUL-terminated")
	}
	pkt.Mid = string(midField[:len(midField)-1])

	return pkt, nil
}
