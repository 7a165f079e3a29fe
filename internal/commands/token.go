package commands

import (
	"errors"
	"fmt"
	"time"

	"roomwatch/pkg/auth"

	"github.com/spf13/cobra"
)

// TokenCmd mints a dashboard access token
var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a dashboard access token",
	Long: `Signs a token with DASHBOARD_JWT_SECRET. Without --room the token can view
every room; otherwise only the rooms named.

The token is printed on stdout. Pass it as a Bearer header or ?token= query.`,
	RunE: runToken,
}

func init() {
	TokenCmd.Flags().String("subject", "viewer", "Who the token is for")
	TokenCmd.Flags().StringSlice("room", nil, "Room the token may view (repeatable)")
	TokenCmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to DASHBOARD_TOKEN_TTL)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd, nil)
	if err != nil {
		return err
	}
	if cfg.Dashboard.JWTSecret == "" {
		return errors.New("DASHBOARD_JWT_SECRET is not set")
	}

	subject, _ := cmd.Flags().GetString("subject")
	rooms, _ := cmd.Flags().GetStringSlice("room")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl <= 0 {
		ttl = cfg.Dashboard.TokenTTL
	}

	jwtAuth, err := auth.NewLocalJWTAuth(cfg.Dashboard.JWTSecret, ttl)
	if err != nil {
		return err
	}
	token, expiresAt, err := jwtAuth.GenerateToken(subject, rooms)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
	return nil
}
