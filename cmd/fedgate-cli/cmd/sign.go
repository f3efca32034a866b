// file: cmd/fedgate-cli/cmd/sign.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fedgate/internal/httpsig"
	"fedgate/internal/inspect"
)

var signCmd = &cobra.Command{
	Use:   "sign --fixture <delivery.yaml> --key <private.pem> --key-id <iri>",
	Short: "Sign a delivery fixture with a private key",
	Long: `The sign command signs the request described by a fixture over
(request-target), host, date and digest, and prints the fixture with the
resulting headers. Use --in-place to overwrite the fixture instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fixturePath, _ := cmd.Flags().GetString("fixture")
		keyPath, _ := cmd.Flags().GetString("key")
		keyID, _ := cmd.Flags().GetString("key-id")
		authorization, _ := cmd.Flags().GetBool("authorization")
		inPlace, _ := cmd.Flags().GetBool("in-place")

		if fixturePath == "" || keyPath == "" || keyID == "" {
			return cmd.Help()
		}

		fixture, err := inspect.LoadFixture(fixturePath)
		if err != nil {
			return err
		}
		keyPEM, err := os.ReadFile(keyPath)
		if err != nil {
			return fmt.Errorf("failed to read private key: %w", err)
		}

		scheme := httpsig.SchemeSignature
		if authorization {
			scheme = httpsig.SchemeAuthorization
		}
		if err := inspect.SignFixture(fixture, keyPEM, keyID, scheme); err != nil {
			return err
		}

		if !inPlace {
			return inspect.WriteFixture(cmd.OutOrStdout(), fixture)
		}

		f, err := os.Create(fixturePath)
		if err != nil {
			return fmt.Errorf("failed to open fixture for writing: %w", err)
		}
		defer f.Close()
		if err := inspect.WriteFixture(f, fixture); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Signed %s with %s\n", fixturePath, keyID)
		return nil
	},
}

func init() {
	signCmd.Flags().StringP("fixture", "f", "", "Path to a delivery fixture (required)")
	signCmd.Flags().StringP("key", "k", "", "Path to a PKCS#8 or PKCS#1 private key PEM (required)")
	signCmd.Flags().String("key-id", "", "keyId to put in the signature, e.g. https://a.example/users/alice#main-key (required)")
	signCmd.Flags().Bool("authorization", false, "Carry the signature in the Authorization header")
	signCmd.Flags().Bool("in-place", false, "Overwrite the fixture instead of printing it")
	signCmd.MarkFlagRequired("fixture")
	signCmd.MarkFlagRequired("key")
	signCmd.MarkFlagRequired("key-id")
}
