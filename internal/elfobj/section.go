// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elfobj

import (
	"debug/elf"
	"fmt"
	"io"
)

// A Section is one section of an ELF object, open for read-write
// access.
//
// This plays the role of github.com/aclements/go-obj/obj's elfSection,
// but where that type only ever decodes data out of a read-only mmap,
// Section tracks a dirty bit so the container layer knows what to
// write back on Flush (spec §5, "dirty-flag discipline").
type Section struct {
	f *File

	// index is this section's raw ELF section-table index.
	index int

	Name      string
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addr      uint64
	Offset    uint64
	Size      uint64
	Addralign uint64
	Entsize   uint64

	link uint32
	info uint32

	// origSize and origOffset record the as-parsed size/offset, so
	// Flush can tell whether a section grew and needs to move.
	origSize   uint64
	origOffset uint64

	data     []byte
	dataOnce bool
	dirty    bool
	isNew    bool
	nameOff  uint32 // offset into shstrtab, valid once assigned
}

func newSection(f *File, index int, es *elf.Section) (*Section, error) {
	return &Section{
		f:          f,
		index:      index,
		Name:       es.Name,
		Type:       es.Type,
		Flags:      es.Flags,
		Addr:       es.Addr,
		Offset:     es.Offset,
		Size:       es.Size,
		Addralign:  es.Addralign,
		Entsize:    es.Entsize,
		link:       es.Link,
		info:       es.Info,
		origSize:   es.Size,
		origOffset: es.Offset,
	}, nil
}

// Link returns the section referenced by this section's sh_link, and
// whether one was found.
func (s *Section) Link() (*Section, bool) {
	return s.f.sectionByIndex(s.link)
}

// Info returns the section referenced by this section's sh_info (only
// meaningful for SHT_REL/SHT_RELA sections, where sh_info names the
// relocated section), and whether one was found.
func (s *Section) Info() (*Section, bool) {
	return s.f.sectionByIndex(s.info)
}

func (f *File) sectionByIndex(idx uint32) (*Section, bool) {
	if int(idx) >= len(f.sections) {
		return nil, false
	}
	return f.sections[idx], true
}

// Index returns this section's raw ELF section-table index.
func (s *Section) Index() int { return s.index }

// SetLink sets sh_link to the given section's index.
func (s *Section) SetLink(linked *Section) {
	s.link = uint32(linked.index)
	s.dirty = true
}

// SetInfo sets sh_info to the given section's index. For REL/RELA
// sections this is the section the relocations apply to.
func (s *Section) SetInfo(target *Section) {
	s.info = uint32(target.index)
	s.dirty = true
}

// Data returns s's raw bytes, reading them from disk on first access
// and caching the result. The caller may modify the returned slice in
// place via PatchBytes/PatchByte; it must not otherwise retain it
// across a Flush.
func (s *Section) Data() ([]byte, error) {
	if s.dataOnce {
		return s.data, nil
	}
	if s.Type == elf.SHT_NOBITS {
		s.data = make([]byte, s.Size)
		s.dataOnce = true
		return s.data, nil
	}
	buf := make([]byte, s.Size)
	if s.Size > 0 {
		if _, err := s.f.f.ReadAt(buf, int64(s.Offset)); err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading section %s data: %w", s.Name, err)
		}
	}
	s.data = buf
	s.dataOnce = true
	return s.data, nil
}

// PatchBytes overwrites s's data at the given byte offset and marks
// the section dirty, so Flush writes it back. It returns an error,
// and changes nothing, if the range is out of bounds.
func (s *Section) PatchBytes(off uint64, b []byte) error {
	data, err := s.Data()
	if err != nil {
		return err
	}
	if off+uint64(len(b)) > uint64(len(data)) {
		return fmt.Errorf("patch [%#x,%#x) out of bounds for section %s (size %#x)", off, off+uint64(len(b)), s.Name, len(data))
	}
	copy(data[off:], b)
	s.dirty = true
	return nil
}

// PatchByte is a convenience wrapper around PatchBytes for a single
// byte.
func (s *Section) PatchByte(off uint64, b byte) error {
	return s.PatchBytes(off, []byte{b})
}

// Append grows s by appending data to its end, updating Size and
// marking it dirty. Used by the instance emitter (spec §4.5) to grow
// set_sdt_instance_set one descriptor at a time.
func (s *Section) Append(data []byte) {
	cur, _ := s.Data()
	s.data = append(cur, data...)
	s.dataOnce = true
	s.Size = uint64(len(s.data))
	s.dirty = true
}

// MarkDirty flags s to be written back on Flush even if nothing in
// this package's bookkeeping noticed a change (used when a caller
// pokes at Data()'s returned slice directly).
func (s *Section) MarkDirty() { s.dirty = true }
