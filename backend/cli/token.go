// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/efchatnet/privchat/backend/middleware"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if userID == "" {
				userID = cfg.Gateway.UserID
			}
			now := time.Now()
			token, err := middleware.SignToken(middleware.Claims{
				UserID:    userID,
				Issuer:    cfg.Server.JWTIssuer,
				IssuedAt:  now.Unix(),
				ExpiresAt: now.Add(ttl).Unix(),
			}, cfg.Server.JWTSecret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID to put in the token (defaults to Gateway.UserID)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
