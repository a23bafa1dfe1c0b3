package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/diagnosis/roomlife/pkg/auth"
	"github.com/diagnosis/roomlife/pkg/config"
)

// newTokenCmd mints an access token signed with AUTH_JWT_SECRET, for local use against the API.
func newTokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed access token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != auth.RoleMember && role != auth.RoleAdmin {
				return fmt.Errorf("unknown role %q (want %s or %s)", role, auth.RoleMember, auth.RoleAdmin)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.AccessTokenTTL
			}
			if ttl <= 0 {
				return errors.New("token ttl must be positive")
			}

			tok, err := auth.NewAccessToken(userID, email, role, cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id carried as the token subject")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", auth.RoleMember, "member or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to AUTH_ACCESS_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
