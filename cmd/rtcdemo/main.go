// Command rtcdemo is a terminal demonstration of the WebRTC peer
// connection and ICE signaling core: one side hosts a session, the other
// joins it, and once the DataChannel opens both sides exchange lines of
// text typed at the terminal.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	globalConfigPath string
	globalVerbose    bool
	globalLogger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rtcdemo",
	Short: "Peer-to-peer terminal chat over a WebRTC DataChannel",
	Long: `rtcdemo establishes a direct, encrypted WebRTC DataChannel between two
terminals using ICE/STUN/TURN for NAT traversal, relaying SDP offers/answers
and trickled ICE candidates through a signaling relay.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if globalVerbose {
			level = slog.LevelDebug
		}
		globalLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalConfigPath, "config", "", "path to config file (default: ~/.config/rtcdemo/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&globalVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(relayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
