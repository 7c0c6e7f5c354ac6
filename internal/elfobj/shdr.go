// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elfobj

import "debug/elf"

// On-disk sizes of Elf32_Shdr and Elf64_Shdr.
const (
	shdr32Size = 40
	shdr64Size = 64
)

// shdrSize returns the on-disk section header entry size for class.
func shdrSize(class elf.Class) int {
	if class == elf.ELFCLASS32 {
		return shdr32Size
	}
	return shdr64Size
}

// encodeShdr serializes one section header entry using f's layout and
// class. name is the section's offset into the section-header string
// table (sh_name); everything else comes from s.
func encodeShdr(f *File, s *Section, name uint32) []byte {
	l := f.layout
	b := make([]byte, shdrSize(f.class))

	switch f.class {
	case elf.ELFCLASS32:
		l.PutUint32(b[0:4], name)
		l.PutUint32(b[4:8], uint32(s.Type))
		l.PutUint32(b[8:12], uint32(s.Flags))
		l.PutUint32(b[12:16], uint32(s.Addr))
		l.PutUint32(b[16:20], uint32(s.Offset))
		l.PutUint32(b[20:24], uint32(s.Size))
		l.PutUint32(b[24:28], s.link)
		l.PutUint32(b[28:32], s.info)
		l.PutUint32(b[32:36], uint32(s.Addralign))
		l.PutUint32(b[36:40], uint32(s.Entsize))
	case elf.ELFCLASS64:
		l.PutUint32(b[0:4], name)
		l.PutUint32(b[4:8], uint32(s.Type))
		l.PutUint64(b[8:16], uint64(s.Flags))
		l.PutUint64(b[16:24], s.Addr)
		l.PutUint64(b[24:32], s.Offset)
		l.PutUint64(b[32:40], s.Size)
		l.PutUint32(b[40:44], s.link)
		l.PutUint32(b[44:48], s.info)
		l.PutUint64(b[48:56], s.Addralign)
		l.PutUint64(b[56:64], s.Entsize)
	}
	return b
}
