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
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/efchatnet/privchat/backend/integration"
	"github.com/efchatnet/privchat/backend/models"
	"github.com/efchatnet/privchat/backend/storage"
)

func newTimersCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timers",
		Short: "Inspect persisted self-destruct timers",
	}

	var userID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List pending self-destruct timers for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if userID == "" {
				userID = cfg.Gateway.UserID
			}

			backend, err := integration.OpenStorage(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}
			defer backend.Close()

			all, err := storage.NewTimers(storage.WithPrefix(backend.KV, userID+"/")).Load(cmd.Context())
			if err != nil {
				return err
			}
			timers := make([]models.SelfDestructTimer, 0, len(all))
			for _, t := range all {
				timers = append(timers, t)
			}
			sort.Slice(timers, func(i, j int) bool {
				return timers[i].DestroyTime < timers[j].DestroyTime
			})

			out := cmd.OutOrStdout()
			if len(timers) == 0 {
				fmt.Fprintf(out, "No pending timers for %s\n", userID)
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROOM\tEVENT\tDESTROY AT\tTIMEOUT")
			for _, t := range timers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.RoomID, t.EventID,
					t.Deadline().UTC().Format(time.RFC3339), time.Duration(t.TimeoutMs)*time.Millisecond)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&userID, "user", "", "user whose timers to list (defaults to Gateway.UserID)")

	cmd.AddCommand(list)
	return cmd
}
