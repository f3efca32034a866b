// file: cmd/fedgate-cli/main.go
package main

import (
	"os"

	"github.com/spf13/cobra"

	"fedgate/cmd/fedgate-cli/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "fedgate-cli",
	Short: "A CLI for checking and producing signed federation delivery fixtures.",
	Long: `fedgate-cli runs the inbound delivery authenticator offline. A delivery is
described by a YAML fixture and the actors it references by a YAML mock file,
so signature and policy decisions can be reproduced without a network.`,
	// If a subcommand is not provided, default to showing help.
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	cmd.AddCommands(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra prints the error, so we just need to exit
		os.Exit(1)
	}
}
