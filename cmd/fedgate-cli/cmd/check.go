// file: cmd/fedgate-cli/cmd/check.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"fedgate/internal/inspect"
	"fedgate/internal/logger"
)

var checkCmd = &cobra.Command{
	Use:   "check --fixture <delivery.yaml> [--actors <actors.yaml>]",
	Short: "Authenticate a single delivery fixture against mocked actors",
	Long: `The check command runs the deployment gate and signature authentication for
one delivery fixture. Actor and key lookups are answered from the actors file;
IRIs listed under 'statuses' answer with that HTTP status instead. It prints
the outcome, the response the gateway would send and the decision path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fixturePath, _ := cmd.Flags().GetString("fixture")
		actorsPath, _ := cmd.Flags().GetString("actors")
		outputFormat, _ := cmd.Flags().GetString("output")
		verbose, _ := cmd.Flags().GetBool("verbose")
		expect, _ := cmd.Flags().GetString("expect")

		if fixturePath == "" {
			return cmd.Help()
		}

		insp := inspect.New(logger.NewNopLogger(), verbose)
		report, err := insp.QuickCheck(cmd.OutOrStdout(), fixturePath, actorsPath, outputFormat == "json")
		if err != nil {
			return err
		}

		if expect != "" && report.Outcome != expect {
			return fmt.Errorf("expected outcome %q, got %q", expect, report.Outcome)
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringP("fixture", "f", "", "Path to a delivery fixture (required)")
	checkCmd.Flags().StringP("actors", "a", "", "Path to a mock actors file")
	checkCmd.Flags().StringP("output", "o", "pretty", "Output format: pretty, json")
	checkCmd.Flags().BoolP("verbose", "v", false, "Show the decision path and resolver calls")
	checkCmd.Flags().String("expect", "", "Fail unless the outcome matches (allow, missing_signature, invalid_signature, tombstone, internal_error, disabled)")
	checkCmd.MarkFlagRequired("fixture")
}
