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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/efchatnet/privchat/backend/backup"
)

func newRecoveryKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recovery-key",
		Short: "Recovery key utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <key>",
		Short: "Check that a recovery key is well formed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := backup.ValidateRecoveryKey(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Recovery key is valid")
			return nil
		},
	})
	return cmd
}
