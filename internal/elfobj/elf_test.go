// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elfobj

import (
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildSyntheticObject writes a minimal ET_REL ELF64 little-endian
// object with a .text section, a .symtab/.strtab pair, and a single
// RELA section relocating .text against one symbol. It follows the
// hand-rolled-header approach used elsewhere in the corpus for
// building fixture ELF files without an external assembler: a fixed
// byte layout assembled with encoding/binary.
//
// Layout, in file-offset order:
//
//	ELF64 header (64 bytes)
//	.text data
//	.strtab data (leading NUL, then each symbol name NUL-terminated)
//	.symtab data (one null entry + one real entry, 24 bytes each)
//	.rela.text data (one entry, 24 bytes)
//	.shstrtab data
//	section header table (6 entries * 64 bytes)
func buildSyntheticObject(t *testing.T, textData []byte, symName string, relOffset uint64, relType elf.R_X86_64) string {
	t.Helper()
	le := binary.LittleEndian

	const ehSize = 64
	const shSize = 64

	textOff := uint64(ehSize)
	strtabData := append([]byte{0}, append([]byte(symName), 0)...)
	strtabOff := textOff + uint64(len(textData))

	symtabData := make([]byte, 24*2) // null sym + one real sym
	// sym[1]: name offset 1, info = (STB_GLOBAL<<4)|STT_NOTYPE, shndx=SHN_UNDEF
	le.PutUint32(symtabData[24:28], 1)
	symtabData[28] = byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_NOTYPE)
	symtabData[29] = 0
	le.PutUint16(symtabData[30:32], uint16(elf.SHN_UNDEF))
	symtabOff := strtabOff + uint64(len(strtabData))

	relData := make([]byte, 24)
	le.PutUint64(relData[0:8], relOffset)
	le.PutUint64(relData[8:16], elf.R_INFO(1, uint32(relType)))
	le.PutUint64(relData[16:24], 0)
	relOff := symtabOff + uint64(len(symtabData))

	shstrNames := "\x00.text\x00.symtab\x00.strtab\x00.rela.text\x00.shstrtab\x00"
	shstrOff := relOff + uint64(len(relData))

	shOff := shstrOff + uint64(len(shstrNames))
	if shOff%8 != 0 {
		shOff += 8 - shOff%8
	}

	// section indices: 0 null, 1 .text, 2 .symtab, 3 .strtab,
	// 4 .rela.text, 5 .shstrtab
	const numSections = 6
	totalSize := int(shOff) + numSections*shSize
	buf := make([]byte, totalSize)

	copy(buf[0:], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = byte(elf.ELFCLASS64)
	buf[5] = byte(elf.ELFDATA2LSB)
	buf[6] = 1
	le.PutUint16(buf[16:], uint16(elf.ET_REL))
	le.PutUint16(buf[18:], uint16(elf.EM_X86_64))
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[40:], shOff)
	le.PutUint16(buf[52:], ehSize)
	le.PutUint16(buf[58:], shSize)
	le.PutUint16(buf[60:], numSections)
	le.PutUint16(buf[62:], 5) // e_shstrndx

	copy(buf[textOff:], textData)
	copy(buf[strtabOff:], strtabData)
	copy(buf[symtabOff:], symtabData)
	copy(buf[relOff:], relData)
	copy(buf[shstrOff:], shstrNames)

	nameIdx := func(name string) uint32 {
		full := shstrNames
		i := 0
		for {
			j := i
			for j < len(full) && full[j] != 0 {
				j++
			}
			if full[i:j] == name {
				return uint32(i)
			}
			if j >= len(full) {
				t.Fatalf("name %q not in shstrtab", name)
			}
			i = j + 1
		}
	}

	writeShdr := func(idx int, name string, typ uint32, flags, addr, off, size uint64, link, info uint32, align, entsize uint64) {
		base := int(shOff) + idx*shSize
		le.PutUint32(buf[base:], nameIdx(name))
		le.PutUint32(buf[base+4:], typ)
		le.PutUint64(buf[base+8:], flags)
		le.PutUint64(buf[base+16:], addr)
		le.PutUint64(buf[base+24:], off)
		le.PutUint64(buf[base+32:], size)
		le.PutUint32(buf[base+40:], link)
		le.PutUint32(buf[base+44:], info)
		le.PutUint64(buf[base+48:], align)
		le.PutUint64(buf[base+56:], entsize)
	}

	writeShdr(0, "", 0, 0, 0, 0, 0, 0, 0, 0, 0)
	writeShdr(1, ".text", uint32(elf.SHT_PROGBITS), uint64(elf.SHF_ALLOC|elf.SHF_EXECINSTR), 0, textOff, uint64(len(textData)), 0, 0, 1, 0)
	writeShdr(2, ".symtab", uint32(elf.SHT_SYMTAB), 0, 0, symtabOff, uint64(len(symtabData)), 3, 1, 8, 24)
	writeShdr(3, ".strtab", uint32(elf.SHT_STRTAB), 0, 0, strtabOff, uint64(len(strtabData)), 0, 0, 1, 0)
	writeShdr(4, ".rela.text", uint32(elf.SHT_RELA), 0, 0, relOff, uint64(len(relData)), 2, 1, 8, 24)
	writeShdr(5, ".shstrtab", uint32(elf.SHT_STRTAB), 0, 0, shstrOff, uint64(len(shstrNames)), 0, 0, 1, 0)

	path := filepath.Join(t.TempDir(), "test.o")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("writing synthetic object: %v", err)
	}
	return path
}

func TestOpenAndSections(t *testing.T) {
	path := buildSyntheticObject(t, []byte{0x90, 0xe8, 0, 0, 0, 0, 0x90}, "__dtrace_probe_foo", 2, elf.R_X86_64_PLT32)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if f.Type() != elf.ET_REL {
		t.Errorf("Type() = %v, want ET_REL", f.Type())
	}
	if f.Machine() != elf.EM_X86_64 {
		t.Errorf("Machine() = %v, want EM_X86_64", f.Machine())
	}

	text, ok := f.Section(".text")
	if !ok {
		t.Fatal(".text section not found")
	}
	data, err := text.Data()
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	if len(data) != 7 {
		t.Errorf("len(.text data) = %d, want 7", len(data))
	}

	rs := f.RelocationSections()
	if len(rs) != 1 {
		t.Fatalf("len(RelocationSections()) = %d, want 1", len(rs))
	}
	if f.TargetOf(rs[0]) != text {
		t.Error("TargetOf(.rela.text) != .text")
	}
}

func TestRelocationsRoundTrip(t *testing.T) {
	path := buildSyntheticObject(t, []byte{0x90, 0xe8, 0, 0, 0, 0, 0x90}, "__dtrace_probe_foo", 2, elf.R_X86_64_PLT32)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	rs := f.RelocationSections()[0]
	rels, err := rs.Relocations()
	if err != nil {
		t.Fatalf("Relocations: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("len(rels) = %d, want 1", len(rels))
	}
	if rels[0].Offset != 2 || rels[0].Sym != 1 || rels[0].Type != uint32(elf.R_X86_64_PLT32) {
		t.Errorf("unexpected relocation: %+v", rels[0])
	}

	rels[0].Type = uint32(elf.R_X86_64_NONE)
	if err := rs.WriteRelocation(0, rels[0]); err != nil {
		t.Fatalf("WriteRelocation: %v", err)
	}

	rels2, err := rs.Relocations()
	if err != nil {
		t.Fatalf("Relocations (2): %v", err)
	}
	if rels2[0].Type != uint32(elf.R_X86_64_NONE) {
		t.Errorf("Type after write back = %v, want R_X86_64_NONE", rels2[0].Type)
	}
}

func TestResolveSymbol(t *testing.T) {
	path := buildSyntheticObject(t, []byte{0x90, 0xe8, 0, 0, 0, 0, 0x90}, "__dtrace_probe_foo", 2, elf.R_X86_64_PLT32)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	symtab, ok := f.Section(".symtab")
	if !ok {
		t.Fatal(".symtab not found")
	}

	sym, err := f.ResolveSymbol(symtab, 1)
	if err != nil {
		t.Fatalf("ResolveSymbol: %v", err)
	}
	if sym.Name != "__dtrace_probe_foo" {
		t.Errorf("Name = %q, want __dtrace_probe_foo", sym.Name)
	}
	if sym.Info != elf.STT_NOTYPE || sym.Bind != elf.STB_GLOBAL {
		t.Errorf("Info/Bind = %v/%v, want STT_NOTYPE/STB_GLOBAL", sym.Info, sym.Bind)
	}

	if _, err := f.ResolveSymbol(symtab, 99); err == nil {
		t.Error("expected error for out-of-range symbol index")
	}
}

func TestGrowShStrtabAndNewSection(t *testing.T) {
	path := buildSyntheticObject(t, []byte{0x90, 0xe8, 0, 0, 0, 0, 0x90}, "__dtrace_probe_foo", 2, elf.R_X86_64_PLT32)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	off1, err := f.GrowShStrtab("set_sdt_instance_set")
	if err != nil {
		t.Fatalf("GrowShStrtab: %v", err)
	}
	off2, err := f.GrowShStrtab("set_sdt_instance_set")
	if err != nil {
		t.Fatalf("GrowShStrtab (dedup): %v", err)
	}
	if off1 != off2 {
		t.Errorf("GrowShStrtab not idempotent: %d != %d", off1, off2)
	}

	s, err := f.NewSection("set_sdt_instance_set", elf.SHT_PROGBITS, elf.SHF_ALLOC, 8)
	if err != nil {
		t.Fatalf("NewSection: %v", err)
	}
	s.Append([]byte{1, 2, 3, 4})
	data, _ := s.Data()
	if len(data) != 4 {
		t.Errorf("len(data) = %d, want 4", len(data))
	}
}

func TestFlushPreservesUntouchedBytes(t *testing.T) {
	text := []byte{0x90, 0xe8, 0, 0, 0, 0, 0x90}
	path := buildSyntheticObject(t, text, "__dtrace_probe_foo", 2, elf.R_X86_64_PLT32)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	textSec, _ := f.Section(".text")
	if err := textSec.PatchByte(1, 0x90); err != nil {
		t.Fatalf("PatchByte: %v", err)
	}
	if err := textSec.PatchBytes(2, []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("PatchBytes: %v", err)
	}

	if err := f.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()

	textSec2, _ := f2.Section(".text")
	data, err := textSec2.Data()
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	want := []byte{0x90, 0x90, 0, 0, 0, 0, 0x90}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("data[%d] = %#x, want %#x", i, data[i], want[i])
		}
	}
}
