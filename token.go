package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"irec-issuer/internal/auth"
)

var (
	tokenSubject string
	tokenAddress string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a bearer token for local testing",
	Long: `Sign an HS256 bearer token with the configured jwt_secret.

Examples:
  irec-issuer token --role user --address 0x1111111111111111111111111111111111111111
  irec-issuer token --role issuer --subject registry-ops`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject")
	tokenCmd.Flags().StringVar(&tokenAddress, "address", "", "Wallet address of the caller")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleUser), "Role: user, issuer or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	role, ok := auth.NormalizeRole(tokenRole)
	if !ok {
		return fmt.Errorf("unknown role %q", tokenRole)
	}
	if role == auth.RoleUser && tokenAddress == "" {
		return errors.New("--address is required for the user role")
	}
	subject := tokenSubject
	if subject == "" {
		subject = tokenAddress
	}
	signed, err := auth.IssueJWT([]byte(cfg.JWTSecret), subject, tokenAddress, role, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), signed)
	return nil
}
