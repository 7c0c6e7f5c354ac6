// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elfobj

import (
	"debug/elf"
	"fmt"
)

// SymRef is a decoded symbol table entry. It mirrors the fields
// sdt.Classify needs to decide whether a relocation targets a
// __dtrace_probe_ stub: the name, its section/type/bind, and value.
type SymRef struct {
	Name    string
	Info    elf.SymType
	Bind    elf.SymBind
	Shndx   elf.SectionIndex
	Value   uint64
	Size    uint64
}

// On-disk sizes of Elf32_Sym and Elf64_Sym.
const (
	sym32Size = 16
	sym64Size = 24
)

func symEntSize(class elf.Class) int {
	if class == elf.ELFCLASS32 {
		return sym32Size
	}
	return sym64Size
}

// ResolveSymbol decodes the index'th entry of symtab (a SHT_SYMTAB or
// SHT_DYNSYM section) and resolves its name against symtab's linked
// string table.
//
// This duplicates debug/elf's own symbol decoding rather than using
// elf.File.Symbols: it decodes from symtab's cached section data (see
// Section.Data), the same in-memory view the rest of this package
// reads and patches. The
// field layout follows github.com/aclements/go-obj/obj's elfSym.go:
// ELF32_Sym is name/value/size/info/other/shndx (16 bytes); ELF64_Sym
// reorders to name/info/other/shndx/value/size (24 bytes).
func (f *File) ResolveSymbol(symtab *Section, index uint32) (SymRef, error) {
	if symtab.Type != elf.SHT_SYMTAB && symtab.Type != elf.SHT_DYNSYM {
		return SymRef{}, fmt.Errorf("section %s is not a symbol table", symtab.Name)
	}
	strtab, ok := symtab.Link()
	if !ok {
		return SymRef{}, fmt.Errorf("symbol table %s has no linked string table", symtab.Name)
	}

	data, err := symtab.Data()
	if err != nil {
		return SymRef{}, err
	}
	entSize := symEntSize(f.class)
	off := int(index) * entSize
	if off+entSize > len(data) {
		return SymRef{}, fmt.Errorf("symbol index %d out of range in %s", index, symtab.Name)
	}
	e := data[off:]
	l := f.layout

	var ref SymRef
	var nameOff uint32
	var info byte
	switch f.class {
	case elf.ELFCLASS32:
		nameOff = l.Uint32(e[0:4])
		ref.Value = uint64(l.Uint32(e[4:8]))
		ref.Size = uint64(l.Uint32(e[8:12]))
		info = e[12]
		ref.Shndx = elf.SectionIndex(l.Uint16(e[14:16]))
	case elf.ELFCLASS64:
		nameOff = l.Uint32(e[0:4])
		info = e[4]
		ref.Shndx = elf.SectionIndex(l.Uint16(e[6:8]))
		ref.Value = l.Uint64(e[8:16])
		ref.Size = l.Uint64(e[16:24])
	}
	ref.Info = elf.SymType(info & 0xf)
	ref.Bind = elf.SymBind(info >> 4)

	name, err := stringAt(strtab, nameOff)
	if err != nil {
		return SymRef{}, fmt.Errorf("resolving name of symbol %d in %s: %w", index, symtab.Name, err)
	}
	ref.Name = name
	return ref, nil
}

// stringAt reads a NUL-terminated string out of a string table section
// at byte offset off.
func stringAt(strtab *Section, off uint32) (string, error) {
	data, err := strtab.Data()
	if err != nil {
		return "", err
	}
	if int(off) >= len(data) {
		return "", fmt.Errorf("offset %d out of range in string table %s", off, strtab.Name)
	}
	end := int(off)
	for end < len(data) && data[end] != 0 {
		end++
	}
	return string(data[off:end]), nil
}
