package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ascii-chat-rtc/rtc/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.toml and secrets.toml",
	Long: `init writes ~/.config/rtcdemo/config.toml with the default STUN
server list and a restricted secrets.toml beside it, which holds the TURN
shared secret if one is supplied (spec.md §4.3, TURN credential
derivation).

Run again with --force to overwrite an existing configuration.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfgPath, err := resolvedConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil && !initForce {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
	}

	cfg := config.DefaultConfig()

	var wantTURN bool
	var username, secret string
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Configure a TURN relay?").
				Description("Needed only when direct/STUN connectivity fails behind symmetric NATs").
				Value(&wantTURN),
		),
	).Run(); err != nil {
		return fmt.Errorf("prompt cancelled: %w", err)
	}

	if wantTURN {
		if err := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().Title("TURN username").Value(&username),
				huh.NewInput().Title("TURN shared secret").EchoMode(huh.EchoModePassword).Value(&secret),
			),
		).Run(); err != nil {
			return fmt.Errorf("prompt cancelled: %w", err)
		}
		cfg.TURN.Username = username
		cfg.SetTURNSecret(secret)
	}

	if err := config.SaveConfig(cfgPath, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintf(os.Stderr, "wrote %s\n", cfgPath)
	return nil
}
