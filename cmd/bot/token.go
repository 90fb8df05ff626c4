package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/highest-aircraft/internal/auth"
)

var tokenFlags struct {
	subject string
	ttl     time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator token for the admin API",
	Long: `Mint an operator JWT signed with ADMIN_JWT_SECRET. Send it as
"Authorization: Bearer <token>" to POST /api/jobs/{category}/run.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenFlags.subject, "subject", "operator", "who the token is issued to")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", auth.DefaultOperatorTTL, "token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	if cfg.Admin.JWTSecret == "" {
		return errors.New("ADMIN_JWT_SECRET is not set")
	}
	if tokenFlags.ttl <= 0 {
		return errors.New("--ttl must be positive")
	}

	tokens, err := auth.NewTokenService(cfg.Admin.JWTSecret)
	if err != nil {
		return err
	}
	token, err := tokens.Generate(tokenFlags.subject, tokenFlags.ttl)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
