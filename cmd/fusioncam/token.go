package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fusioncam/internal/auth"
)

var (
	tokenSubject string
	tokenExpiry  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a signed token for the HTTP and websocket surfaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.Secret == "" {
			return errors.New("no JWT secret configured (set auth.secret or FUSIONCAM_JWT_SECRET)")
		}
		expiry := cfg.Auth.Expiry
		if cmd.Flags().Changed("expiry") {
			expiry = tokenExpiry
		}

		token, expiresAt, err := auth.NewJWTManager(cfg.Auth.Secret, expiry).GenerateToken(tokenSubject)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "Token subject")
	tokenCmd.Flags().DurationVar(&tokenExpiry, "expiry", auth.DefaultExpiry, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
