package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/cmwaters/privpoll/internal/config"
	"github.com/cmwaters/privpoll/pkg/homomorphic"
)

func keygenCommand() *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the secret key tallies are encrypted under",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = config.FromContext(cmd.Context()).KeyFile
			}
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", out)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			secret := homomorphic.GenerateKey()
			if err := homomorphic.SaveSecret(out, secret); err != nil {
				return err
			}
			public, err := homomorphic.EncodePublic(homomorphic.NewScheme(secret, 0).PublicKey())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote secret key to %s\npublic key: %s\n", out, public)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "path of the key file (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	return cmd
}
