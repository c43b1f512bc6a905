package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AmanBang/meshcall/internal/config"
	"github.com/AmanBang/meshcall/internal/ui"
)

var (
	flagCreateRelay    string
	flagCreateName     string
	flagCreateSTUN     string
	flagCreateTURN     string
	flagCreateTURNUser string
	flagCreateTURNPass string
	flagCreateMaxPeers int
	flagCreateAudio    bool
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a room and start a call in it",
	Long: `Create a new room on the relay, join its call and wait for others.

Examples:
  meshcall create
  meshcall create --name Alice
  meshcall create --audio-only --max-peers 4`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{
			RelayURL:   flagCreateRelay,
			Name:       flagCreateName,
			STUNServer: flagCreateSTUN,
			TURNServer: flagCreateTURN,
			TURNUser:   flagCreateTURNUser,
			TURNPass:   flagCreateTURNPass,
			MaxPeers:   flagCreateMaxPeers,
		})
		if err != nil {
			return err
		}

		stopSpinner := ui.RunConnectionSpinner("Creating room...")
		room, err := createRoom(cfg)
		stopSpinner()
		if err != nil {
			return err
		}

		fmt.Println(ui.RoomBanner(room.RoomID, room.Code))

		return runCall(cfg, room, flagCreateAudio)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVar(&flagCreateRelay, "relay", "", "Relay base URL")
	createCmd.Flags().StringVarP(&flagCreateName, "name", "n", "", "Display name shown to other participants")
	createCmd.Flags().StringVarP(&flagCreateSTUN, "stun", "s", "", "Custom STUN server")
	createCmd.Flags().StringVarP(&flagCreateTURN, "turn", "t", "", "Custom TURN server")
	createCmd.Flags().StringVar(&flagCreateTURNUser, "turn-user", "", "TURN username")
	createCmd.Flags().StringVar(&flagCreateTURNPass, "turn-pass", "", "TURN password")
	createCmd.Flags().IntVar(&flagCreateMaxPeers, "max-peers", 0, "Cap on simultaneous peer links")
	createCmd.Flags().BoolVar(&flagCreateAudio, "audio-only", false, "Join without video")
}
