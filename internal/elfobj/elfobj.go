// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elfobj is a minimal read/write ELF object container.
//
// debug/elf in the standard library only reads ELF files; sdtpatch
// needs to mutate relocatable objects in place and append new
// sections. elfobj layers that write path on top of debug/elf's
// parsing, following the same section/symbol/relocation model as
// github.com/aclements/go-obj's obj package, but tracking a dirty
// flag per section (§5 of the design) instead of exposing read-only
// mmap'd data.
package elfobj

import (
	"debug/elf"
	"fmt"
	"os"

	"github.com/markjdb/sdtpatch/arch"
)

// File is an ELF object file opened for read-write access.
type File struct {
	f      *os.File
	elf    *elf.File
	class  elf.Class
	layout arch.Layout

	// raw holds the section-header-table location fields debug/elf
	// parses but never surfaces (e_shoff, e_shentsize, e_shnum,
	// e_shstrndx). We need them to append sections and to rewrite the
	// table on Flush.
	raw rawHeader

	// shstrtab is the section-header string table section, or nil if
	// the file has none (malformed for our purposes, but we don't
	// reject it until something needs it).
	shstrtab *Section

	sections []*Section

	// nextShndx is the raw ELF section index that will be assigned to
	// the next section appended with NewSection.
	nextShndx int
}

// Open opens path for read-write access and parses its ELF header and
// section table. It does not reject files that aren't ET_REL; callers
// that only want to process relocatable objects must check Type()
// themselves (spec §4.1: a non-ET_REL input is a warning, not a
// failure, and that decision belongs to the driver, not this layer).
func Open(path string) (*File, error) {
	osf, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	ef, err := elf.NewFile(osf)
	if err != nil {
		osf.Close()
		return nil, fmt.Errorf("parsing ELF header of %s: %w", path, err)
	}

	layout, err := arch.NewLayoutForClass(ef.ByteOrder, ef.Class)
	if err != nil {
		osf.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	f := &File{
		f:      osf,
		elf:    ef,
		class:  ef.Class,
		layout: layout,
	}

	raw, err := readRawHeader(f)
	if err != nil {
		osf.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.raw = raw

	for i, es := range ef.Sections {
		s, err := newSection(f, i, es)
		if err != nil {
			osf.Close()
			return nil, fmt.Errorf("%s: section %d (%s): %w", path, i, es.Name, err)
		}
		f.sections = append(f.sections, s)
	}
	f.nextShndx = len(f.sections)

	if shstrndx := raw.shstrndx; shstrndx > 0 && int(shstrndx) < len(f.sections) {
		f.shstrtab = f.sections[shstrndx]
	}

	return f, nil
}

// Type returns the ELF file type (ET_REL, ET_EXEC, ...).
func (f *File) Type() elf.Type { return f.elf.Type }

// Machine returns the ELF machine constant (EM_X86_64, ...).
func (f *File) Machine() elf.Machine { return f.elf.Machine }

// Class returns the ELF file class (32 or 64 bit).
func (f *File) Class() elf.Class { return f.class }

// Layout returns the byte order and word size of f.
func (f *File) Layout() arch.Layout { return f.layout }

// Sections returns every section in f, in ELF section-table order.
func (f *File) Sections() []*Section { return f.sections }

// Section returns the first section named name, and whether it was
// found (spec §4.6: "Section lookup by name").
func (f *File) Section(name string) (*Section, bool) {
	for _, s := range f.sections {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// RelocationSections returns every SHT_REL/SHT_RELA section in f.
func (f *File) RelocationSections() []*Section {
	var out []*Section
	for _, s := range f.sections {
		if s.Type == elf.SHT_REL || s.Type == elf.SHT_RELA {
			out = append(out, s)
		}
	}
	return out
}

// TargetOf returns the section that relocation section rs applies to
// (its sh_info), or nil if rs doesn't target a known section.
func (f *File) TargetOf(rs *Section) *Section {
	if int(rs.info) >= len(f.sections) {
		return nil
	}
	return f.sections[rs.info]
}

// SymtabOf returns the symbol table section linked from rs (its
// sh_link), or nil.
func (f *File) SymtabOf(rs *Section) *Section {
	if int(rs.link) >= len(f.sections) {
		return nil
	}
	return f.sections[rs.link]
}

// Close releases the underlying file descriptor. Callers must call
// Flush first if they want changes persisted.
func (f *File) Close() error {
	return f.f.Close()
}
