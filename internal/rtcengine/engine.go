// Package rtcengine is the WebRTC Adapter (spec.md §4.1): a typed façade
// over pion/webrtc/v4 that maps its callback-based API onto the Peer
// Connection state machine and provides process-wide, reference-counted
// library lifecycle.
package rtcengine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/ascii-chat-rtc/rtc/internal/rtcerr"
)

var (
	libMu     sync.Mutex
	libRefs   int
	sharedAPI *webrtc.API
)

// Init bumps the process-wide library refcount, configuring the engine
// logger on the first call. Every Init must be balanced by a Release; the
// engine is torn down exactly once when the count returns to zero
// (spec.md §4.1, "Library lifecycle").
func Init(logger *slog.Logger) error {
	libMu.Lock()
	defer libMu.Unlock()

	if libRefs == 0 {
		if logger == nil {
			logger = slog.Default()
		}
		m := &webrtc.MediaEngine{}
		settingEngine := webrtc.SettingEngine{}
		settingEngine.LoggerFactory = slogLoggerFactory{logger.With("component", "rtcengine")}
		sharedAPI = webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithSettingEngine(settingEngine),
		)
	}
	libRefs++
	return nil
}

// Release decrements the library refcount, tearing down the shared engine
// state on the zero transition.
func Release() error {
	libMu.Lock()
	defer libMu.Unlock()

	if libRefs == 0 {
		return rtcerr.Newf(rtcerr.InvalidState, "rtcengine.Release", "unbalanced release: refcount already zero")
	}
	libRefs--
	if libRefs == 0 {
		sharedAPI = nil
	}
	return nil
}

// Refs returns the current library refcount, for tests.
func Refs() int {
	libMu.Lock()
	defer libMu.Unlock()
	return libRefs
}

func api() (*webrtc.API, error) {
	libMu.Lock()
	defer libMu.Unlock()
	if libRefs == 0 {
		return nil, rtcerr.Newf(rtcerr.Init, "rtcengine.api", "library not initialized: call rtcengine.Init first")
	}
	return sharedAPI, nil
}

// ICEConfig holds the STUN/TURN server lists and transport policy for a
// Peer Connection (spec.md §3, "configuration snapshot").
type ICEConfig struct {
	STUNServers []string
	TURNServers []string

	// TURNUsername and TURNPassword authenticate against TURNServers, e.g.
	// the credentials produced by internal/turncred.
	TURNUsername string
	TURNPassword string

	// ForceRelay restricts the ICE transport policy to relay-only, so that
	// only TURN-relayed paths are used.
	ForceRelay bool
}

// pionICEServers flattens the STUN and TURN server lists into pion's
// ICEServer slice, attaching TURN credentials when TURN servers are present
// (spec.md §4.1, "flattens STUN+TURN URLs into the engine's ICE-server
// list").
func (c ICEConfig) pionICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(c.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNServers})
	}
	if len(c.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:           c.TURNServers,
			Username:       c.TURNUsername,
			Credential:     c.TURNPassword,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return servers
}

// slogLoggerFactory adapts log/slog to pion's logging.LoggerFactory so
// engine-internal diagnostics flow through the same structured logger as
// the rest of the adapter.
type slogLoggerFactory struct{ log *slog.Logger }

func (f slogLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return slogLeveledLogger{f.log.With("scope", scope)}
}

type slogLeveledLogger struct{ log *slog.Logger }

func (l slogLeveledLogger) Trace(msg string)                 { l.log.Debug(msg) }
func (l slogLeveledLogger) Tracef(format string, args ...any) { l.log.Debug(fmt.Sprintf(format, args...)) }
func (l slogLeveledLogger) Debug(msg string)                 { l.log.Debug(msg) }
func (l slogLeveledLogger) Debugf(format string, args ...any) { l.log.Debug(fmt.Sprintf(format, args...)) }
func (l slogLeveledLogger) Info(msg string)                  { l.log.Info(msg) }
func (l slogLeveledLogger) Infof(format string, args ...any) { l.log.Info(fmt.Sprintf(format, args...)) }
func (l slogLeveledLogger) Warn(msg string)                  { l.log.Warn(msg) }
func (l slogLeveledLogger) Warnf(format string, args ...any) { l.log.Warn(fmt.Sprintf(format, args...)) }
func (l slogLeveledLogger) Error(msg string)                 { l.log.Error(msg) }
func (l slogLeveledLogger) Errorf(format string, args ...any) { l.log.Error(fmt.Sprintf(format, args...)) }
