// Package icecodec parses and formats RFC 5245-style ICE candidate lines
// and computes their priorities (spec.md §4.2).
package icecodec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ascii-chat-rtc/rtc/internal/rtcerr"
)

// Type is an ICE candidate type.
type Type int

const (
	Host Type = iota
	ServerReflexive
	PeerReflexive
	Relay
)

func (t Type) String() string {
	switch t {
	case Host:
		return "host"
	case ServerReflexive:
		return "srflx"
	case PeerReflexive:
		return "prflx"
	case Relay:
		return "relay"
	default:
		return "unknown"
	}
}

func parseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "host":
		return Host, nil
	case "srflx":
		return ServerReflexive, nil
	case "prflx":
		return PeerReflexive, nil
	case "relay":
		return Relay, nil
	default:
		return 0, fmt.Errorf("unknown candidate type %q", s)
	}
}

// typePreference is the RFC 5245 §4.1.2.1 type-preference table.
func typePreference(t Type) uint32 {
	switch t {
	case Host:
		return 126
	case PeerReflexive:
		return 110
	case ServerReflexive:
		return 100
	case Relay:
		return 0
	default:
		return 0
	}
}

// Protocol is the transport protocol a candidate is reachable over.
type Protocol int

const (
	UDP Protocol = iota
	TCP
)

func (p Protocol) String() string {
	if p == TCP {
		return "tcp"
	}
	return "udp"
}

func parseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "udp":
		return UDP, nil
	case "tcp":
		return TCP, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
}

// TCPType is the optional "tcptype" sub-attribute for TCP candidates.
type TCPType int

const (
	TCPActive TCPType = iota
	TCPPassive
	TCPSimultaneousOpen
)

func (t TCPType) String() string {
	switch t {
	case TCPActive:
		return "active"
	case TCPSimultaneousOpen:
		return "so"
	default:
		return "passive"
	}
}

func parseTCPType(s string) (TCPType, error) {
	switch strings.ToLower(s) {
	case "active":
		return TCPActive, nil
	case "passive":
		return TCPPassive, nil
	case "so":
		return TCPSimultaneousOpen, nil
	default:
		return 0, fmt.Errorf("unknown tcptype %q", s)
	}
}

// Candidate is a parsed ICE candidate line (spec.md §3).
type Candidate struct {
	Foundation  string
	Component   int
	Protocol    Protocol
	Priority    uint32
	IP          string
	Port        int
	Type        Type
	RelatedAddr string
	RelatedPort int
	HasRelated  bool
	TCPType     TCPType
	HasTCPType  bool
	Extensions  string
}

// Priority computes the RFC 5245 candidate priority from a candidate's
// type, local preference and component id (spec.md §3, §4.2).
func Priority(t Type, localPref uint32, component int) uint32 {
	return (typePreference(t) << 24) | (localPref << 8) | uint32(256-component)
}

// Parse parses a candidate line per the grammar in spec.md §4.2. Parsing is
// atomic: on any error the zero Candidate is returned alongside the error,
// with no partial population of the caller-visible result.
func Parse(line string) (Candidate, error) {
	fields := strings.Fields(line)
	if len(fields) < 8 {
		return Candidate{}, rtcerr.Newf(rtcerr.InvalidParam, "icecodec.Parse", "too few fields in candidate line %q", line)
	}
	if !strings.EqualFold(fields[6], "typ") {
		return Candidate{}, rtcerr.Newf(rtcerr.InvalidParam, "icecodec.Parse", "expected \"typ\" at field 7, got %q", fields[6])
	}

	component, err := strconv.Atoi(fields[1])
	if err != nil || (component != 1 && component != 2) {
		return Candidate{}, rtcerr.Newf(rtcerr.InvalidParam, "icecodec.Parse", "invalid component %q", fields[1])
	}

	proto, err := parseProtocol(fields[2])
	if err != nil {
		return Candidate{}, rtcerr.New(rtcerr.InvalidParam, "icecodec.Parse", err)
	}

	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return Candidate{}, rtcerr.Newf(rtcerr.InvalidParam, "icecodec.Parse", "invalid priority %q", fields[3])
	}

	port, err := strconv.Atoi(fields[5])
	if err != nil || port < 0 || port > 65535 {
		return Candidate{}, rtcerr.Newf(rtcerr.InvalidParam, "icecodec.Parse", "invalid port %q", fields[5])
	}

	typ, err := parseType(fields[7])
	if err != nil {
		return Candidate{}, rtcerr.New(rtcerr.InvalidParam, "icecodec.Parse", err)
	}

	c := Candidate{
		Foundation: fields[0],
		Component:  component,
		Protocol:   proto,
		Priority:   uint32(priority),
		IP:         fields[4],
		Port:       port,
		Type:       typ,
	}

	rest := fields[8:]
	for i := 0; i < len(rest); {
		switch strings.ToLower(rest[i]) {
		case "raddr":
			if i+1 >= len(rest) {
				return Candidate{}, rtcerr.Newf(rtcerr.InvalidParam, "icecodec.Parse", "raddr missing value")
			}
			c.RelatedAddr = rest[i+1]
			c.HasRelated = true
			i += 2
		case "rport":
			if i+1 >= len(rest) {
				return Candidate{}, rtcerr.Newf(rtcerr.InvalidParam, "icecodec.Parse", "rport missing value")
			}
			rport, err := strconv.Atoi(rest[i+1])
			if err != nil || rport < 0 || rport > 65535 {
				return Candidate{}, rtcerr.Newf(rtcerr.InvalidParam, "icecodec.Parse", "invalid rport %q", rest[i+1])
			}
			c.RelatedPort = rport
			i += 2
		case "tcptype":
			if i+1 >= len(rest) {
				return Candidate{}, rtcerr.Newf(rtcerr.InvalidParam, "icecodec.Parse", "tcptype missing value")
			}
			tt, err := parseTCPType(rest[i+1])
			if err != nil {
				return Candidate{}, rtcerr.New(rtcerr.InvalidParam, "icecodec.Parse", err)
			}
			c.TCPType = tt
			c.HasTCPType = true
			i += 2
		default:
			if c.Extensions != "" {
				c.Extensions += " "
			}
			c.Extensions += rest[i]
			i++
		}
	}

	if c.Protocol == TCP && !c.HasTCPType {
		c.TCPType = TCPPassive
		c.HasTCPType = true
	}

	return c, nil
}

// Format renders c back to its wire string form per spec.md §4.2.
func Format(c Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s %d %s %d typ %s",
		c.Foundation, c.Component, c.Protocol, c.Priority, c.IP, c.Port, c.Type)

	if c.Type != Host && c.HasRelated {
		fmt.Fprintf(&b, " raddr %s rport %d", c.RelatedAddr, c.RelatedPort)
	}
	if c.Protocol == TCP {
		fmt.Fprintf(&b, " tcptype %s", c.TCPType)
	}
	if c.Extensions != "" {
		b.WriteString(" ")
		b.WriteString(c.Extensions)
	}

	return b.String()
}

// StripCandidatePrefix removes a leading "candidate:" prefix, which engines
// commonly prepend to the SDP a= candidate attribute value (spec.md §4.2).
func StripCandidatePrefix(s string) string {
	return strings.TrimPrefix(s, "candidate:")
}
