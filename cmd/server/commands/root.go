package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "portofoon",
	Short: "Walkie-talkie relay",
	Long: `Portofoon relays presence, channel membership, push-to-talk state and
WebRTC signaling between handsets and browsers on the local network.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default is ./config.yaml or $PORTOFOON_CONFIG_DEFAULT_PATH/config.yaml)")
}
