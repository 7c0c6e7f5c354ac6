// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"debug/elf"
	"fmt"
	"log/slog"

	"github.com/markjdb/sdtpatch/internal/elfobj"
	"github.com/markjdb/sdtpatch/sdt"
)

// run processes every path in order. A non-relocatable input is
// skipped with a warning; any other failure aborts the whole run.
func run(paths []string, dryRun bool, logger *slog.Logger) error {
	for _, path := range paths {
		if err := processObject(path, dryRun, logger); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func processObject(path string, dryRun bool, logger *slog.Logger) error {
	f, err := elfobj.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if f.Type() != elf.ET_REL {
		logger.Warn("skipping non-relocatable object", "path", path, "type", f.Type())
		return nil
	}

	instances, err := sdt.Scan(f, logger)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		logger.Debug("no probe call sites found", "path", path)
		return nil
	}

	logger.Info("patched probe call sites", "path", path, "count", len(instances))

	if err := sdt.EmitInstances(f, instances, logger); err != nil {
		return err
	}

	if dryRun {
		logger.Info("dry run: not writing changes", "path", path)
		return nil
	}

	return f.Flush()
}
