package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ascii-chat-rtc/rtc/internal/config"
	"github.com/ascii-chat-rtc/rtc/internal/ids"
	"github.com/ascii-chat-rtc/rtc/internal/peermanager"
	"github.com/ascii-chat-rtc/rtc/internal/rtcengine"
	"github.com/ascii-chat-rtc/rtc/internal/transport"
	"github.com/ascii-chat-rtc/rtc/internal/turncred"
	"github.com/ascii-chat-rtc/rtc/pkg/signalproto"
	"github.com/ascii-chat-rtc/rtc/pkg/signalproto/acdsclient"
)

// runSession wires a peermanager.Manager to an acdsclient relay connection
// and, once a transport opens, bridges stdin/stdout to it (spec.md §4.4's
// transport_ready delivering the application-facing byte duct).
func runSession(role peermanager.Role, session ids.ID, relayURL string, cfg *config.Config) error {
	if err := rtcengine.Init(globalLogger); err != nil {
		return fmt.Errorf("initializing rtc engine: %w", err)
	}
	defer rtcengine.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := acdsclient.NewClient(acdsclient.Config{
		ServerURL: sessionURL(relayURL, session.String()),
		Logger:    globalLogger,
		Reconnect: acdsclient.ReconnectConfig{Enabled: false},
	})
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to signaling relay: %w", err)
	}
	defer client.Close()

	transportReady := make(chan *transport.Transport, 1)

	iceCfg := rtcengine.ICEConfig{
		STUNServers: cfg.ICE.STUNServers,
		TURNServers: cfg.ICE.TURNServers,
		ForceRelay:  cfg.ICE.ForceRelay,
	}
	if cfg.TURN.Secret() != "" {
		validity := time.Duration(cfg.TURN.ValiditySecs) * time.Second
		creds, err := turncred.Generate(cfg.TURN.Secret(), session.String(), validity, time.Now())
		if err != nil {
			return fmt.Errorf("generating TURN credentials: %w", err)
		}
		iceCfg.TURNUsername = creds.Username
		iceCfg.TURNPassword = creds.Password
	}

	manager, err := peermanager.New(peermanager.Config{
		Role:     role,
		ICE:      iceCfg,
		Logger:   globalLogger,
		SkipHost: cfg.ICE.SkipHost,
		SendSDP: func(sessionID, peerID ids.ID, sdpType, sdp string) error {
			typ := signalproto.SDPOffer
			if sdpType == "answer" {
				typ = signalproto.SDPAnswer
			}
			buf, err := signalproto.EncodeSDP(signalproto.SDPPacket{
				SessionID: sessionID, SenderID: peerID, Type: typ, SDP: sdp,
			})
			if err != nil {
				return err
			}
			return client.Send(ctx, acdsclient.KindSDP, buf)
		},
		SendICE: func(sessionID, peerID ids.ID, candidate, mid string) error {
			buf, err := signalproto.EncodeICE(signalproto.ICEPacket{
				SessionID: sessionID, SenderID: peerID, Candidate: candidate, Mid: mid,
			})
			if err != nil {
				return err
			}
			return client.Send(ctx, acdsclient.KindICE, buf)
		},
		OnTransportReady: func(tr *transport.Transport, peerID ids.ID) {
			globalLogger.Info("transport ready", "peer_id", peerID)
			select {
			case transportReady <- tr:
			default:
			}
		},
		OnGatheringTimeout: func(peerID ids.ID) {
			globalLogger.Warn("ICE gathering timed out, peer torn down", "peer_id", peerID)
		},
	})
	if err != nil {
		return fmt.Errorf("creating peer manager: %w", err)
	}
	defer manager.Destroy()

	go dispatchFrames(manager, client)

	timeoutMS := cfg.ICE.GatheringTimeoutMS
	go watchGatheringTimeouts(ctx, manager, time.Duration(timeoutMS)*time.Millisecond)

	if role == peermanager.Joiner {
		if err := manager.Connect(session, ids.Zero); err != nil {
			return fmt.Errorf("connecting to host: %w", err)
		}
	}

	var tr *transport.Transport
	select {
	case tr = <-transportReady:
	case <-ctx.Done():
		return nil
	}

	return chatLoop(ctx, tr)
}

func dispatchFrames(manager *peermanager.Manager, client *acdsclient.Client) {
	for frame := range client.Frames() {
		switch frame.Kind {
		case acdsclient.KindSDP:
			pkt, err := signalproto.DecodeSDP(frame.Payload)
			if err != nil {
				globalLogger.Warn("dropping malformed SDP frame", "error", err)
				continue
			}
			sdpType := "offer"
			if pkt.Type == signalproto.SDPAnswer {
				sdpType = "answer"
			}
			if err := manager.HandleSDP(peermanager.SDPPacket{
				SessionID: pkt.SessionID, SenderID: pkt.SenderID, Type: sdpType, SDP: pkt.SDP,
			}); err != nil {
				globalLogger.Error("handle_sdp failed", "error", err)
			}
		case acdsclient.KindICE:
			pkt, err := signalproto.DecodeICE(frame.Payload)
			if err != nil {
				globalLogger.Warn("dropping malformed ICE frame", "error", err)
				continue
			}
			if err := manager.HandleICE(peermanager.ICEPacket{
				SessionID: pkt.SessionID, SenderID: pkt.SenderID, Candidate: pkt.Candidate, Mid: pkt.Mid,
			}); err != nil {
				globalLogger.Error("handle_ice failed", "error", err)
			}
		}
	}
}

func watchGatheringTimeouts(ctx context.Context, manager *peermanager.Manager, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			manager.CheckGatheringTimeouts(timeout)
		}
	}
}

// chatLoop bridges stdin/stdout to tr until either closes or ctx is
// cancelled.
func chatLoop(ctx context.Context, tr *transport.Transport) error {
	fmt.Fprintln(os.Stderr, "connected — type a line and press enter to send, Ctrl-C to quit")

	recvErr := make(chan error, 1)
	go func() {
		for {
			msg, err := tr.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			fmt.Printf("peer> %s\n", msg)
		}
	}()

	sendErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := tr.Send(scanner.Bytes()); err != nil {
				sendErr <- err
				return
			}
		}
		sendErr <- scanner.Err()
	}()

	select {
	case <-ctx.Done():
		tr.Close()
		return nil
	case err := <-recvErr:
		return err
	case err := <-sendErr:
		return err
	}
}
