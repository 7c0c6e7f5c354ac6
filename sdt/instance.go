// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdt

import (
	"debug/elf"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markjdb/sdtpatch/internal/elfobj"
)

// probeRef is what ProbeIndex resolves a probe name suffix to: enough
// information to build a relocation pointing at the same symbol the
// matching set_sdt_probes_set entry already references.
type probeRef struct {
	sym uint32 // symbol table index, copied from the matched probe relocation
}

// ProbeIndex maps a probe name (the part of a "sdt_<name>" symbol
// after the "sdt_" prefix) to the probe definition that backs it.
// Building this once per object replaces the per-instance linear
// rescan of set_sdt_probes_set's relocation section with an O(1)
// lookup.
type ProbeIndex map[string]probeRef

// buildProbeIndex scans the relocation section targeting
// set_sdt_probes_set and indexes every "sdt_"-prefixed symbol it
// references by name suffix.
func buildProbeIndex(f *elfobj.File) (ProbeIndex, error) {
	probeSet, ok := f.Section(probeSetSectionName)
	if !ok {
		return nil, fmt.Errorf("sdt: no %s section present", probeSetSectionName)
	}

	var probeRels *elfobj.Section
	for _, rs := range f.RelocationSections() {
		if f.TargetOf(rs) == probeSet {
			probeRels = rs
			break
		}
	}
	if probeRels == nil {
		return nil, fmt.Errorf("sdt: no relocation section targets %s", probeSetSectionName)
	}

	symtab := f.SymtabOf(probeRels)
	if symtab == nil {
		return nil, fmt.Errorf("sdt: relocation section %s has no linked symbol table", probeRels.Name)
	}

	rels, err := probeRels.Relocations()
	if err != nil {
		return nil, fmt.Errorf("sdt: reading relocations of %s: %w", probeRels.Name, err)
	}

	idx := make(ProbeIndex, len(rels))
	for _, rel := range rels {
		sym, err := f.ResolveSymbol(symtab, rel.Sym)
		if err != nil {
			return nil, fmt.Errorf("sdt: resolving symbol %d in %s: %w", rel.Sym, probeRels.Name, err)
		}
		if !strings.HasPrefix(sym.Name, probeDefPrefix) {
			continue
		}
		name := strings.TrimPrefix(sym.Name, probeDefPrefix)
		if _, exists := idx[name]; !exists {
			idx[name] = probeRef{sym: rel.Sym}
		}
	}
	return idx, nil
}

// instanceDescSize returns the on-disk size of one sdt_instance
// descriptor: two pointer-width fields.
func instanceDescSize(f *elfobj.File) int {
	return 2 * f.Layout().WordSize()
}

// EmitInstances creates set_sdt_instance_set and
// .relaset_sdt_instance_set and appends one descriptor plus one
// relocation per instance. It is a no-op if instances is empty, per
// the driver contract that an object with no probe sites is left
// otherwise untouched.
func EmitInstances(f *elfobj.File, instances []Instance, logger *slog.Logger) error {
	if len(instances) == 0 {
		return nil
	}

	probes, err := buildProbeIndex(f)
	if err != nil {
		return err
	}

	instSec, err := f.NewSection(instanceSectionName, elf.SHT_PROGBITS, elf.SHF_ALLOC, 8)
	if err != nil {
		return fmt.Errorf("sdt: creating %s: %w", instanceSectionName, err)
	}
	relaSec, err := f.NewSection(instanceRelaSectionName, elf.SHT_RELA, 0, 8)
	if err != nil {
		return fmt.Errorf("sdt: creating %s: %w", instanceRelaSectionName, err)
	}

	// Use the same symbol table as the probe set's own relocations;
	// sdtpatch only ever operates on objects with a single .symtab.
	probeSet, _ := f.Section(probeSetSectionName)
	var symtab *elfobj.Section
	for _, rs := range f.RelocationSections() {
		if f.TargetOf(rs) == probeSet {
			symtab = f.SymtabOf(rs)
			break
		}
	}
	if symtab == nil {
		return errNoSymtab
	}
	relaSec.SetLink(symtab)
	relaSec.SetInfo(instSec)

	descSize := instanceDescSize(f)
	absRelocType := absolutePointerRelocType(f.Machine())

	for _, inst := range instances {
		name := strings.TrimPrefix(inst.Symbol, probeStubPrefix)
		probe, ok := probes[name]
		if !ok {
			return fmt.Errorf("sdt: no matching probe definition %s%s for instance of %s", probeDefPrefix, name, inst.Symbol)
		}

		descOffset := uint64(len(mustData(instSec)))
		desc := make([]byte, descSize)
		f.Layout().PutWord(desc[0:f.Layout().WordSize()], 0) // probe, resolved by the final linker
		f.Layout().PutWord(desc[f.Layout().WordSize():], inst.Offset)
		instSec.Append(desc)

		if err := relaSec.AppendRelocation(elfobj.RelEntry{
			Offset: descOffset,
			Sym:    probe.sym,
			Type:   absRelocType,
			Addend: 0,
		}); err != nil {
			return fmt.Errorf("sdt: appending relocation for instance of %s: %w", inst.Symbol, err)
		}

		logger.Debug("recorded probe instance", "symbol", inst.Symbol, "offset", inst.Offset, "probe", name)
	}

	return nil
}

// absolutePointerRelocType returns the relocation type used for a
// pointer-width absolute reference on m. sdtpatch only supports
// EM_X86_64 (see internal/patch), so this always resolves to
// R_X86_64_64; it's split out so a second architecture only has to
// extend this one switch.
func absolutePointerRelocType(m elf.Machine) uint32 {
	switch m {
	case elf.EM_X86_64:
		return uint32(elf.R_X86_64_64)
	default:
		return 0
	}
}

func mustData(s *elfobj.Section) []byte {
	data, err := s.Data()
	if err != nil {
		// A freshly created section's Data() never touches disk, so
		// this can't fail in practice; the error return exists for
		// sections read from an existing file.
		panic(err)
	}
	return data
}

var errNoSymtab = errors.New("sdt: object has no symbol table")
