// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elfobj

import (
	"bytes"
	"fmt"
)

// GrowShStrtab returns the byte offset of name within the
// section-header string table, appending it (NUL-terminated) if it
// isn't already present. Mirrors the string-table dedup-and-append
// pattern used by other ELF rewriters in the corpus (look for an
// existing NUL-bounded match before growing).
func (f *File) GrowShStrtab(name string) (uint32, error) {
	if f.shstrtab == nil {
		return 0, fmt.Errorf("file has no section header string table")
	}
	data, err := f.shstrtab.Data()
	if err != nil {
		return 0, err
	}

	needle := append([]byte(name), 0)
	if off := findStrtabEntry(data, needle); off >= 0 {
		return uint32(off), nil
	}

	off := uint32(len(data))
	f.shstrtab.Append(needle)
	return off, nil
}

// findStrtabEntry looks for needle (a NUL-terminated name) starting at
// a NUL boundary within data, so we don't match a name that is really
// a suffix of some other string.
func findStrtabEntry(data, needle []byte) int {
	start := 0
	for start < len(data) {
		if bytes.HasPrefix(data[start:], needle) {
			return start
		}
		nul := bytes.IndexByte(data[start:], 0)
		if nul < 0 {
			break
		}
		start += nul + 1
	}
	return -1
}
