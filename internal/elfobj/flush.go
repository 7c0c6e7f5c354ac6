// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elfobj

import (
	"debug/elf"
	"fmt"
)

// align rounds off up to a multiple of alignment. alignment 0 or 1
// means no alignment is required.
func align(off, alignment uint64) uint64 {
	if alignment <= 1 {
		return off
	}
	return (off + alignment - 1) &^ (alignment - 1)
}

// Flush writes every pending change back to the underlying file:
// patched section data in place where it still fits, relocated
// section data for anything that grew or is brand new, and a
// regenerated section header table.
//
// Sections that neither grew nor are new are written at their
// original file offset, so in an object with no new or growing
// sections (the common case: only bytes inside .text and a relocation
// section were patched) no section moves; only dirty sections are
// rewritten in place. The section header table is always rewritten,
// past the previous end of file, and e_shoff/e_shnum/e_shstrndx are
// updated to match.
func (f *File) Flush() error {
	// fileEnd tracks the next free byte past everything placed so far.
	// Start it past the highest extent any existing section or the
	// current section header table occupies, so relocated/new sections
	// never clobber data we haven't rewritten yet.
	var fileEnd uint64
	for _, s := range f.sections {
		if s.Type == elf.SHT_NOBITS {
			continue
		}
		if end := s.origOffset + s.origSize; end > fileEnd {
			fileEnd = end
		}
	}
	if shEnd := f.raw.shoff + uint64(f.raw.shnum)*uint64(f.raw.shentsize); shEnd > fileEnd {
		fileEnd = shEnd
	}

	for _, s := range f.sections {
		if s.Type == elf.SHT_NULL || s.Type == elf.SHT_NOBITS {
			continue
		}
		needsMove := s.isNew || s.Size > s.origSize
		if !needsMove {
			if s.dirty {
				data, err := s.Data()
				if err != nil {
					return err
				}
				if _, err := f.f.WriteAt(data, int64(s.Offset)); err != nil {
					return fmt.Errorf("writing section %s: %w", s.Name, err)
				}
			}
			continue
		}

		off := align(fileEnd, s.Addralign)
		data, err := s.Data()
		if err != nil {
			return err
		}
		if len(data) > 0 {
			if _, err := f.f.WriteAt(data, int64(off)); err != nil {
				return fmt.Errorf("writing relocated section %s: %w", s.Name, err)
			}
		}
		s.Offset = off
		fileEnd = off + uint64(len(data))
	}

	shoff := align(fileEnd, uint64(f.layout.WordSize()))
	if err := f.writeSectionHeaderTable(shoff); err != nil {
		return err
	}

	f.raw.shoff = shoff
	f.raw.shnum = uint16(len(f.sections))
	if f.shstrtab != nil {
		f.raw.shstrndx = uint16(f.shstrtab.index)
	}
	if err := writeRawHeader(f, f.raw); err != nil {
		return err
	}

	return nil
}

func (f *File) writeSectionHeaderTable(shoff uint64) error {
	entSize := shdrSize(f.class)
	buf := make([]byte, 0, entSize*len(f.sections))
	for _, s := range f.sections {
		nameOff := s.nameOff
		if s.Name != "" {
			off, err := f.GrowShStrtab(s.Name)
			if err != nil {
				return fmt.Errorf("resolving name offset for section %s: %w", s.Name, err)
			}
			nameOff = off
		}
		buf = append(buf, encodeShdr(f, s, nameOff)...)
	}
	if _, err := f.f.WriteAt(buf, int64(shoff)); err != nil {
		return fmt.Errorf("writing section header table: %w", err)
	}
	return nil
}
