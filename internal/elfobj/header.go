// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elfobj

import (
	"debug/elf"
	"fmt"
)

// rawHeader holds the parts of the ELF file header that debug/elf
// parses internally but doesn't expose: the location of the section
// header table. We need these to append new sections and rewrite the
// table on Flush.
type rawHeader struct {
	shoff     uint64
	shentsize uint16
	shnum     uint16
	shstrndx  uint16
}

// elf32HdrSize and elf64HdrSize are the on-disk sizes of Elf32_Ehdr
// and Elf64_Ehdr.
const (
	elf32HdrSize = 52
	elf64HdrSize = 64
)

// readRawHeader re-reads the fixed parts of the ELF header directly
// from the file, since debug/elf.File doesn't surface e_shoff,
// e_shentsize, e_shnum, or e_shstrndx.
func readRawHeader(f *File) (rawHeader, error) {
	var buf []byte
	switch f.class {
	case elf.ELFCLASS32:
		buf = make([]byte, elf32HdrSize)
	case elf.ELFCLASS64:
		buf = make([]byte, elf64HdrSize)
	default:
		return rawHeader{}, fmt.Errorf("unsupported ELF class %s", f.class)
	}
	if _, err := f.f.ReadAt(buf, 0); err != nil {
		return rawHeader{}, fmt.Errorf("reading ELF header: %w", err)
	}

	order := f.elf.ByteOrder
	var h rawHeader
	switch f.class {
	case elf.ELFCLASS32:
		h.shoff = uint64(order.Uint32(buf[32:]))
		h.shentsize = order.Uint16(buf[46:])
		h.shnum = order.Uint16(buf[48:])
		h.shstrndx = order.Uint16(buf[50:])
	case elf.ELFCLASS64:
		h.shoff = order.Uint64(buf[40:])
		h.shentsize = order.Uint16(buf[58:])
		h.shnum = order.Uint16(buf[60:])
		h.shstrndx = order.Uint16(buf[62:])
	}
	return h, nil
}

// writeRawHeader updates e_shoff, e_shnum, and e_shstrndx in place.
// e_shentsize never changes (we always emit section headers in the
// file's native class size).
func writeRawHeader(f *File, h rawHeader) error {
	order := f.elf.ByteOrder
	var shoffOff, shnumOff, shstrndxOff int64
	switch f.class {
	case elf.ELFCLASS32:
		shoffOff, shnumOff, shstrndxOff = 32, 48, 50
	case elf.ELFCLASS64:
		shoffOff, shnumOff, shstrndxOff = 40, 60, 62
	default:
		return fmt.Errorf("unsupported ELF class %s", f.class)
	}

	var off [8]byte
	switch f.class {
	case elf.ELFCLASS32:
		order.PutUint32(off[:4], uint32(h.shoff))
		if _, err := f.f.WriteAt(off[:4], shoffOff); err != nil {
			return err
		}
	case elf.ELFCLASS64:
		order.PutUint64(off[:8], h.shoff)
		if _, err := f.f.WriteAt(off[:8], shoffOff); err != nil {
			return err
		}
	}

	var u16 [2]byte
	order.PutUint16(u16[:], h.shnum)
	if _, err := f.f.WriteAt(u16[:], shnumOff); err != nil {
		return err
	}
	order.PutUint16(u16[:], h.shstrndx)
	if _, err := f.f.WriteAt(u16[:], shstrndxOff); err != nil {
		return err
	}
	return nil
}
