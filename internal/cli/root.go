// Package cli implements the meshcall command tree.
package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/AmanBang/meshcall/internal/ui"
	"github.com/AmanBang/meshcall/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "meshcall",
	Short:   "Group voice and video calls in the terminal, peer to peer over WebRTC",
	Long: `Meshcall connects every participant of a room directly to every other
one over WebRTC. The relay only brokers the handshake; once a call is
up, media flows peer to peer. Create a room, share the code, talk.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
