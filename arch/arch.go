// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch describes the data layout of the machine architectures
// sdtpatch knows how to patch.
package arch

import "debug/elf"

// An Arch describes the parts of a CPU architecture that the object
// rewriter needs: how to read multi-byte values out of an ELF file
// built for it.
type Arch struct {
	// Layout is the byte order and word size of this architecture.
	Layout Layout

	// Machine is the debug/elf machine constant this Arch corresponds
	// to.
	Machine elf.Machine
}

// AMD64 describes the x86-64 architecture. It is the only architecture
// the instruction patcher supports; see internal/patch.
var AMD64 = &Arch{Layout: NewLayout64(), Machine: elf.EM_X86_64}

// String returns the debug/elf machine name of a.
func (a *Arch) String() string {
	if a == nil {
		return "<nil>"
	}
	return a.Machine.String()
}
