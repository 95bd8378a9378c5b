package main

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"
)

var relayAddr string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a minimal signaling relay pairing two peers per session",
	Long: `relay is not the ACDS discovery/signaling service — it is a bare
WebSocket pairing point for the demo CLI: the first two connections to a
given /session/<id> path are wired together and every binary frame one
sends is relayed verbatim to the other.`,
	RunE: runRelay,
}

func init() {
	relayCmd.Flags().StringVar(&relayAddr, "addr", ":8089", "address to listen on")
}

func runRelay(cmd *cobra.Command, args []string) error {
	h := newRelayHub(globalLogger)
	srv := &http.Server{Addr: relayAddr, Handler: h}
	globalLogger.Info("signaling relay listening", "addr", relayAddr)
	return srv.ListenAndServe()
}

type relayHub struct {
	mu       sync.Mutex
	sessions map[string]*relaySession
	log      logger
}

type logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type relaySession struct {
	mu    sync.Mutex
	conns []*websocket.Conn
}

func newRelayHub(log logger) *relayHub {
	return &relayHub{sessions: make(map[string]*relaySession), log: log}
}

func (h *relayHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/session/")
	if sessionID == "" || sessionID == r.URL.Path {
		http.Error(w, "expected /session/<id>", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sess := h.joinSession(sessionID, conn)
	defer h.leaveSession(sessionID, conn)

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		peer := sess.otherThan(conn)
		if peer == nil {
			h.log.Warn("frame dropped, no peer connected yet", "session", sessionID)
			continue
		}
		if err := peer.Write(ctx, typ, data); err != nil {
			return
		}
	}
}

func (h *relayHub) joinSession(id string, conn *websocket.Conn) *relaySession {
	h.mu.Lock()
	sess, ok := h.sessions[id]
	if !ok {
		sess = &relaySession{}
		h.sessions[id] = sess
	}
	h.mu.Unlock()

	sess.mu.Lock()
	sess.conns = append(sess.conns, conn)
	sess.mu.Unlock()

	h.log.Info("peer joined session", "session", id)
	return sess
}

func (h *relayHub) leaveSession(id string, conn *websocket.Conn) {
	h.mu.Lock()
	sess, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	for i, c := range sess.conns {
		if c == conn {
			sess.conns = append(sess.conns[:i], sess.conns[i+1:]...)
			break
		}
	}
	empty := len(sess.conns) == 0
	sess.mu.Unlock()

	if empty {
		h.mu.Lock()
		delete(h.sessions, id)
		h.mu.Unlock()
	}
}

func (s *relaySession) otherThan(conn *websocket.Conn) *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		if c != conn {
			return c
		}
	}
	return nil
}

func sessionURL(baseURL, sessionID string) string {
	return fmt.Sprintf("%s/session/%s", strings.TrimSuffix(baseURL, "/"), sessionID)
}
