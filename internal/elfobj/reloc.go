// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elfobj

import (
	"debug/elf"
	"fmt"
)

// RelEntry is one decoded relocation table entry, REL or RELA,
// 32- or 64-bit. Sym and Type are always unpacked out of r_info;
// Addend is zero (and meaningless) for REL sections.
//
// The four on-disk shapes this unifies: Rel32 (offset+info, 8 bytes),
// Rela32 (+addend, 12 bytes), Rel64 (offset+info, 16 bytes), Rela64
// (+addend, 24 bytes) -- following the encoding
// github.com/aclements/go-obj/obj's elfReloc.go reads, generalized
// here to also write.
type RelEntry struct {
	Offset uint64
	Sym    uint32
	Type   uint32
	Addend int64
}

// relEntSize returns the on-disk size of one relocation entry for the
// given section type and ELF class.
func relEntSize(class elf.Class, typ elf.SectionType) int {
	switch {
	case class == elf.ELFCLASS32 && typ == elf.SHT_REL:
		return 8
	case class == elf.ELFCLASS32 && typ == elf.SHT_RELA:
		return 12
	case class == elf.ELFCLASS64 && typ == elf.SHT_REL:
		return 16
	case class == elf.ELFCLASS64 && typ == elf.SHT_RELA:
		return 24
	}
	return 0
}

// rInfo32 packs a 32-bit r_info field (symbol index in the high 24
// bits, type in the low 8), the same layout as the standard library's
// elf.R_INFO32; sdtpatch uses it when writing ELFCLASS32 relocatable
// objects, a packer go-obj never needed (it was read-only).
func rInfo32(sym, typ uint32) uint32 {
	return sym<<8 | (typ & 0xff)
}

// Relocations decodes every entry in s, which must be a SHT_REL or
// SHT_RELA section.
func (s *Section) Relocations() ([]RelEntry, error) {
	if s.Type != elf.SHT_REL && s.Type != elf.SHT_RELA {
		return nil, fmt.Errorf("section %s is not a relocation section", s.Name)
	}
	entSize := relEntSize(s.f.class, s.Type)
	if entSize == 0 {
		return nil, fmt.Errorf("section %s: unsupported class/type combination", s.Name)
	}
	data, err := s.Data()
	if err != nil {
		return nil, err
	}
	n := len(data) / entSize
	out := make([]RelEntry, n)
	l := s.f.layout
	for i := 0; i < n; i++ {
		e := data[i*entSize:]
		var entry RelEntry
		switch {
		case s.f.class == elf.ELFCLASS32:
			entry.Offset = uint64(l.Uint32(e[0:4]))
			info := l.Uint32(e[4:8])
			entry.Sym = elf.R_SYM32(info)
			entry.Type = elf.R_TYPE32(info)
			if s.Type == elf.SHT_RELA {
				entry.Addend = int64(l.Int32(e[8:12]))
			}
		case s.f.class == elf.ELFCLASS64:
			entry.Offset = l.Uint64(e[0:8])
			info := l.Uint64(e[8:16])
			entry.Sym = uint32(elf.R_SYM64(info))
			entry.Type = uint32(elf.R_TYPE64(info))
			if s.Type == elf.SHT_RELA {
				entry.Addend = l.Int64(e[16:24])
			}
		}
		out[i] = entry
	}
	return out, nil
}

// WriteRelocation overwrites the i'th entry of relocation section s
// with e, marking the section dirty. Used both to neutralize an
// existing relocation (set Type to R_X86_64_NONE) and, via Append on
// set_sdt_instance_set's sibling, to add new ones.
func (s *Section) WriteRelocation(i int, e RelEntry) error {
	if s.Type != elf.SHT_REL && s.Type != elf.SHT_RELA {
		return fmt.Errorf("section %s is not a relocation section", s.Name)
	}
	entSize := relEntSize(s.f.class, s.Type)
	if entSize == 0 {
		return fmt.Errorf("section %s: unsupported class/type combination", s.Name)
	}
	data, err := s.Data()
	if err != nil {
		return err
	}
	if off := i * entSize; off+entSize > len(data) {
		return fmt.Errorf("relocation index %d out of range for section %s", i, s.Name)
	}
	buf := make([]byte, entSize)
	l := s.f.layout
	switch {
	case s.f.class == elf.ELFCLASS32:
		l.PutUint32(buf[0:4], uint32(e.Offset))
		l.PutUint32(buf[4:8], rInfo32(e.Sym, e.Type))
		if s.Type == elf.SHT_RELA {
			l.PutUint32(buf[8:12], uint32(e.Addend))
		}
	case s.f.class == elf.ELFCLASS64:
		l.PutUint64(buf[0:8], e.Offset)
		l.PutUint64(buf[8:16], elf.R_INFO(e.Sym, e.Type))
		if s.Type == elf.SHT_RELA {
			l.PutUint64(buf[16:24], uint64(e.Addend))
		}
	}
	return s.PatchBytes(uint64(i*entSize), buf)
}

// AppendRelocation grows s by one entry holding e.
func (s *Section) AppendRelocation(e RelEntry) error {
	entSize := relEntSize(s.f.class, s.Type)
	if entSize == 0 {
		return fmt.Errorf("section %s: unsupported class/type combination", s.Name)
	}
	data, _ := s.Data()
	idx := len(data) / entSize
	s.Append(make([]byte, entSize))
	return s.WriteRelocation(idx, e)
}
