package main

import (
	"fmt"
	"os"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/ascii-chat-rtc/rtc/internal/config"
	"github.com/ascii-chat-rtc/rtc/internal/ids"
	"github.com/ascii-chat-rtc/rtc/internal/peermanager"
)

var hostRelayURL string

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Host a session and wait for a peer to join",
	Long: `host generates a new session ID, displays it (and a scannable QR code
of the relay join URL) and waits for a peer to connect, offer an SDP
description, and open a DataChannel.`,
	RunE: runHost,
}

func init() {
	hostCmd.Flags().StringVar(&hostRelayURL, "relay", "ws://localhost:8089", "signaling relay base URL")
}

func runHost(cmd *cobra.Command, args []string) error {
	cfgPath, err := resolvedConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w (run 'rtcdemo init' first)", err)
	}

	session := ids.New()
	joinURL := sessionURL(hostRelayURL, session.String())

	fmt.Fprintf(os.Stderr, "session ID: %s\n", session)
	fmt.Fprintf(os.Stderr, "join URL:   %s\n\n", joinURL)

	qr, err := qrcode.New(joinURL, qrcode.Medium)
	if err == nil {
		fmt.Fprintln(os.Stderr, qr.ToSmallString(false))
	} else {
		globalLogger.Warn("could not generate QR code", "error", err)
	}

	fmt.Fprintln(os.Stderr, "waiting for a peer to join...")

	return runSession(peermanager.Creator, session, hostRelayURL, cfg)
}

func resolvedConfigPath() (string, error) {
	if globalConfigPath != "" {
		return globalConfigPath, nil
	}
	return config.DefaultConfigPath()
}
