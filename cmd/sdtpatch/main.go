// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sdtpatch rewrites statically-defined tracing probe call
// sites in ELF relocatable objects into patchable no-ops.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sdtpatch <obj> [<obj> ...]",
		Short: "Patch DTrace probe call sites in relocatable ELF objects",
		Args:  cobra.MinimumNArgs(1),
		// Always print the error exactly once, in main, rather than
		// letting cobra print its own "Error: ..." too.
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The usage banner is reserved for a genuine argument
			// error (caught by Args above, before RunE runs); a
			// patching failure from here on shouldn't dump it too.
			cmd.SilenceUsage = true

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			}))

			return run(args, dryRun, logger)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose diagnostic logging")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "scan and report probe sites without writing changes")

	return cmd
}
