package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AmanBang/meshcall/internal/config"
	"github.com/AmanBang/meshcall/internal/ui"
)

var (
	flagJoinRelay    string
	flagJoinName     string
	flagJoinSTUN     string
	flagJoinTURN     string
	flagJoinTURNUser string
	flagJoinTURNPass string
	flagJoinMaxPeers int
	flagJoinAudio    bool
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id|code>",
	Aliases: []string{"j"},
	Short:   "Join an existing room's call",
	Long: `Join a call by room ID or the short code its creator shared.

Examples:
  meshcall join ABC234
  meshcall join 4f8a2c1e-... --name Bob
  meshcall join ABC234 --audio-only`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "" {
			return fmt.Errorf("room ID cannot be empty")
		}

		cfg, err := config.Load(config.Options{
			RelayURL:   flagJoinRelay,
			Name:       flagJoinName,
			STUNServer: flagJoinSTUN,
			TURNServer: flagJoinTURN,
			TURNUser:   flagJoinTURNUser,
			TURNPass:   flagJoinTURNPass,
			MaxPeers:   flagJoinMaxPeers,
		})
		if err != nil {
			return err
		}

		stopSpinner := ui.RunConnectionSpinner("Looking up room...")
		room, err := lookupRoom(cfg, args[0])
		stopSpinner()
		if err != nil {
			return err
		}

		return runCall(cfg, room, flagJoinAudio)
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVar(&flagJoinRelay, "relay", "", "Relay base URL")
	joinCmd.Flags().StringVarP(&flagJoinName, "name", "n", "", "Display name shown to other participants")
	joinCmd.Flags().StringVarP(&flagJoinSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagJoinTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVar(&flagJoinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagJoinTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().IntVar(&flagJoinMaxPeers, "max-peers", 0, "Cap on simultaneous peer links")
	joinCmd.Flags().BoolVar(&flagJoinAudio, "audio-only", false, "Join without video")
}
