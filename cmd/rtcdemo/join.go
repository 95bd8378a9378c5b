package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ascii-chat-rtc/rtc/internal/config"
	"github.com/ascii-chat-rtc/rtc/internal/ids"
	"github.com/ascii-chat-rtc/rtc/internal/peermanager"
)

var joinRelayURL string

var joinCmd = &cobra.Command{
	Use:   "join [session-id]",
	Short: "Join a session hosted by another peer",
	Long: `join connects to the signaling relay, sends an SDP offer for the given
session ID, and waits for the DataChannel to open. If no session ID is
given on the command line, join prompts for one.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&joinRelayURL, "relay", "ws://localhost:8089", "signaling relay base URL")
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfgPath, err := resolvedConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w (run 'rtcdemo init' first)", err)
	}

	raw := ""
	if len(args) == 1 {
		raw = args[0]
	} else {
		if err := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Session ID").
					Description("Enter the session ID shown by the host").
					Value(&raw),
			),
		).Run(); err != nil {
			return fmt.Errorf("prompt cancelled: %w", err)
		}
	}

	session, err := ids.ParseHex(raw)
	if err != nil {
		return fmt.Errorf("parsing session ID %q: %w", raw, err)
	}

	return runSession(peermanager.Joiner, session, joinRelayURL, cfg)
}
