package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrsteele09/cube-auth/token/keys"
	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate credential signing keys",
	}

	keysCmd.AddCommand(&cobra.Command{
		Use:   "hmac",
		Short: "Print a random JWT_SECRET for HS256",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := keys.GenerateHMACSecret()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), secret)
			return err
		},
	})

	var outDir string
	var bits int
	rsaCmd := &cobra.Command{
		Use:   "rsa",
		Short: "Write an RS256 key pair as private.pem and public.pem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeRSAKeyPair(outDir, bits, cmd)
		},
	}
	rsaCmd.Flags().StringVar(&outDir, "out", ".", "directory for the PEM files")
	rsaCmd.Flags().IntVar(&bits, "bits", 2048, "RSA key size")
	keysCmd.AddCommand(rsaCmd)

	return keysCmd
}

func writeRSAKeyPair(dir string, bits int, cmd *cobra.Command) error {
	kp, err := keys.GenerateRSAKeyPair(bits)
	if err != nil {
		return err
	}
	privPEM, err := kp.ExportPrivateKeyPEM()
	if err != nil {
		return err
	}
	pubPEM, err := kp.ExportPublicKeyPEM()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	if err := os.WriteFile(privPath, []byte(privPEM), 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(pubPEM), 0o644); err != nil { // #nosec G306 -- public key
		return fmt.Errorf("write public key: %w", err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "key id %s\nJWT_ALGORITHM=RS256\nJWT_PRIVATE_KEY_FILE=%s\nJWT_PUBLIC_KEY_FILE=%s\n", kp.KeyID, privPath, pubPath)
	return err
}
