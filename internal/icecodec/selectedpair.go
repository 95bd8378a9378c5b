package icecodec

import (
	"github.com/pion/webrtc/v4"

	"github.com/ascii-chat-rtc/rtc/internal/rtcerr"
)

// SelectedPair retrieves and parses the (local, remote) candidate pair an
// ICE transport currently uses (spec.md §4.2, "Selected-pair query").
// It fails with InvalidState if no pair has been selected yet.
func SelectedPair(transport *webrtc.ICETransport) (local, remote Candidate, err error) {
	if transport == nil {
		return Candidate{}, Candidate{}, rtcerr.Newf(rtcerr.InvalidParam, "icecodec.SelectedPair", "nil ICE transport")
	}

	pair, err := transport.GetSelectedCandidatePair()
	if err != nil {
		return Candidate{}, Candidate{}, rtcerr.New(rtcerr.InvalidState, "icecodec.SelectedPair", err)
	}
	if pair == nil {
		return Candidate{}, Candidate{}, rtcerr.Newf(rtcerr.InvalidState, "icecodec.SelectedPair", "no candidate pair selected")
	}

	local, err = Parse(StripCandidatePrefix(pair.Local.String()))
	if err != nil {
		return Candidate{}, Candidate{}, rtcerr.New(rtcerr.InvalidState, "icecodec.SelectedPair", err)
	}
	remote, err = Parse(StripCandidatePrefix(pair.Remote.String()))
	if err != nil {
		return Candidate{}, Candidate{}, rtcerr.New(rtcerr.InvalidState, "icecodec.SelectedPair", err)
	}

	return local, remote, nil
}

// SkipHost reports whether a candidate line should be dropped at the
// outbound signaling point under the skip_host filtering policy
// (spec.md §4.2): local candidates of type host are suppressed so only
// server-reflexive/relay paths are exercised.
func SkipHost(skipHost bool, line string) bool {
	if !skipHost {
		return false
	}
	c, err := Parse(StripCandidatePrefix(line))
	if err != nil {
		return false
	}
	return c.Type == Host
}
