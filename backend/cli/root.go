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

// Package cli implements the privchat command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/efchatnet/privchat/backend/config"
)

type rootOptions struct {
	configFile string
	envFiles   []string
}

// NewRootCommand builds the privchat command tree.
func NewRootCommand() *cobra.Command {
	opts := new(rootOptions)
	root := &cobra.Command{
		Use:           "privchat",
		Short:         "Self-destructing end-to-end encrypted private chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "TOML config file (defaults are used when omitted)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env", []string{".env"}, ".env files loaded before reading the environment")

	root.AddCommand(
		newServeCommand(opts),
		newTimersCommand(opts),
		newRecoveryKeyCommand(),
		newTokenCommand(opts),
	)
	return root
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	err := NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func (o *rootOptions) load() (*config.Config, error) {
	var cfg *config.Config
	if o.configFile == "" {
		cfg = config.Default()
	} else {
		var err error
		if cfg, err = config.LoadFile(o.configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg.ApplyEnv(o.envFiles...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the service logger. The returned func releases the log
// file, if one was opened.
func newLogger(cfg *config.Logging) (*log.Logger, func() error, error) {
	noop := func() error { return nil }
	if cfg.Disable {
		return log.New(io.Discard), noop, nil
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stderr
	closeFn := noop
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closeFn = f, f.Close
	}
	return log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		Prefix:          "privchat",
		Level:           level,
	}), closeFn, nil
}
