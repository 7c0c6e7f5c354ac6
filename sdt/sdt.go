// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sdt finds statically-defined tracing probe call sites in an
// ELF relocatable object, patches them into no-ops, and records a
// linker set describing each patched instance.
package sdt

import (
	"debug/elf"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markjdb/sdtpatch/internal/elfobj"
	"github.com/markjdb/sdtpatch/internal/patch"
)

// probeStubPrefix is the symbol-name prefix a compiler emits for a
// probe call-site stub.
const probeStubPrefix = "__dtrace_probe_"

// probeDefPrefix is the symbol-name prefix used for probe definitions
// in set_sdt_probes_set.
const probeDefPrefix = "sdt_"

const (
	instanceSectionName     = "set_sdt_instance_set"
	instanceRelaSectionName = ".relaset_sdt_instance_set"
	probeSetSectionName     = "set_sdt_probes_set"
)

// Instance is one patched probe call site, recorded while scanning so
// it can be emitted into set_sdt_instance_set afterward.
type Instance struct {
	// Symbol is the probe stub symbol's fully-qualified name.
	Symbol string

	// Offset is the original r_offset of the neutralized relocation:
	// the file offset, within .text, of the 4-byte displacement that
	// immediately follows the call/jmp opcode.
	Offset uint64
}

var (
	// ErrUnsupportedMachine means the object's e_machine has no
	// registered patch.Patcher.
	ErrUnsupportedMachine = errors.New("sdt: unsupported machine architecture")

	// errBadSymbolType is wrapped when a probe stub symbol fails the
	// STT_NOTYPE/STB_GLOBAL sanity check.
	errBadSymbolType = errors.New("sdt: probe stub symbol has unexpected type or binding")
)

// Scan walks every relocation section in f whose target is .text,
// classifying each entry and patching the ones that target probe
// stubs. It returns the ordered list of patched instances, in the
// order their call sites were encountered.
func Scan(f *elfobj.File, logger *slog.Logger) ([]Instance, error) {
	patcher := patch.ForMachine(f.Machine())
	if patcher == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMachine, f.Machine())
	}

	var instances []Instance
	for _, rs := range f.RelocationSections() {
		target := f.TargetOf(rs)
		if target == nil || target.Name != ".text" {
			continue
		}
		symtab := f.SymtabOf(rs)
		if symtab == nil {
			return nil, fmt.Errorf("sdt: relocation section %s has no linked symbol table", rs.Name)
		}

		rels, err := rs.Relocations()
		if err != nil {
			return nil, fmt.Errorf("sdt: reading relocations of %s: %w", rs.Name, err)
		}
		for i, rel := range rels {
			inst, ok, err := Classify(f, symtab, target, rel, patcher, logger)
			if err != nil {
				return nil, fmt.Errorf("sdt: %s entry %d: %w", rs.Name, i, err)
			}
			if !ok {
				continue
			}

			none, _ := patcher.NeutralizeRelocType(rel.Type)
			rel.Type = none
			if err := rs.WriteRelocation(i, rel); err != nil {
				return nil, fmt.Errorf("sdt: writing back neutralized relocation %d of %s: %w", i, rs.Name, err)
			}
			instances = append(instances, inst)
		}
	}
	return instances, nil
}

// Classify resolves the symbol rel refers to against symtab, and if it
// names a probe stub, patches the call site in text and returns the
// resulting Instance. It returns ok=false, with no error, for any
// relocation that isn't a probe call site; the caller leaves such
// entries untouched.
//
// A call window that is already fully patched is not an error: it is
// skipped with ok=false (the idempotence case). A relocation whose
// opcode is recognized but already carries a non-zero displacement is
// an error wrapping patch.ErrAlreadyRelocated, reported with its own
// message so a pre-linked input can be told apart from a malformed
// call site.
func Classify(f *elfobj.File, symtab, text *elfobj.Section, rel elfobj.RelEntry, patcher patch.Patcher, logger *slog.Logger) (Instance, bool, error) {
	sym, err := f.ResolveSymbol(symtab, rel.Sym)
	if err != nil {
		return Instance{}, false, fmt.Errorf("resolving symbol %d: %w", rel.Sym, err)
	}
	if sym.Name == "" {
		return Instance{}, false, errors.New("sdt: relocation targets a symbol with an empty name")
	}
	if !strings.HasPrefix(sym.Name, probeStubPrefix) {
		return Instance{}, false, nil
	}

	if sym.Info != elf.STT_NOTYPE || sym.Bind != elf.STB_GLOBAL {
		return Instance{}, false, fmt.Errorf("%w: %s (type=%s bind=%s)", errBadSymbolType, sym.Name, sym.Info, sym.Bind)
	}

	textData, err := text.Data()
	if err != nil {
		return Instance{}, false, err
	}

	if patcher.IsAlreadyPatched(textData, rel.Offset) {
		logger.Debug("probe call site already patched, skipping", "symbol", sym.Name, "offset", rel.Offset)
		return Instance{}, false, nil
	}

	kind, err := patcher.VerifyCallSite(textData, rel.Offset)
	if err != nil {
		if errors.Is(err, patch.ErrAlreadyRelocated) {
			return Instance{}, false, fmt.Errorf("call site for %s at offset %#x already relocated: %w", sym.Name, rel.Offset, err)
		}
		return Instance{}, false, fmt.Errorf("malformed call site for %s at offset %#x: %w", sym.Name, rel.Offset, err)
	}

	patcher.PatchToNop(textData, rel.Offset, kind)
	text.MarkDirty()
	logger.Debug("patched probe call site", "symbol", sym.Name, "offset", rel.Offset, "kind", kind.String())

	return Instance{Symbol: sym.Name, Offset: rel.Offset}, true, nil
}
