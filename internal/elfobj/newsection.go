// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elfobj

import "debug/elf"

// NewSection appends a brand new, empty section named name to f and
// returns it. The section has no data until the caller Appends some.
// Its section index is assigned here (the next free one, after every
// existing section); its file offset is decided at Flush time,
// following the "relayout past the current end of file" strategy used
// for sections that grow (spec §4.5: emitting set_sdt_instance_set
// and .relaset_sdt_instance_set).
func (f *File) NewSection(name string, typ elf.SectionType, flags elf.SectionFlag, addralign uint64) (*Section, error) {
	nameOff, err := f.GrowShStrtab(name)
	if err != nil {
		return nil, err
	}

	s := &Section{
		f:         f,
		index:     f.nextShndx,
		Name:      name,
		Type:      typ,
		Flags:     flags,
		Addralign: addralign,
		data:      []byte{},
		dataOnce:  true,
		dirty:     true,
		isNew:     true,
		nameOff:   nameOff,
	}
	f.nextShndx++
	f.sections = append(f.sections, s)
	return s, nil
}
