package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stadiumcard/stadiumcard-backend/pkg/auth"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

// newTokenCmd signs a bearer token with the configured secret, for calling
// the API from staging or local environments as a given user.
func newTokenCmd(rt func() *runtime) *cobra.Command {
	var (
		userID string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a user id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := rt().params.Config
			if cfg.App.IsProd() {
				return fmt.Errorf("refusing to mint tokens in prod")
			}
			token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{
				UserID: userID,
				Role:   enums.Role(role),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "subject user id")
	cmd.Flags().StringVar(&role, "role", string(enums.RoleUser), "user or admin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
