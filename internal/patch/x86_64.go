// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package patch

import (
	"debug/elf"

	"golang.org/x/arch/x86/x86asm"
)

const (
	opCallRel32 = 0xe8
	opJmpRel32  = 0xe9
	opNop       = 0x90
	opRet       = 0xc3
)

// X86_64 is the Patcher for EM_X86_64 objects. It is the only
// architecture sdtpatch supports; ForMachine is the seam a second one
// would be wired in through.
type X86_64 struct{}

// VerifyCallSite recognizes a direct CALL rel32 or JMP rel32 whose
// displacement field ends at offset+4, and cross-checks it by
// decoding the same five bytes with x86asm, the way
// github.com/aclements/go-obj/asm's disassembler does for its own
// control-flow classification. The opcode byte alone is sufficient to
// know what to patch; the x86asm decode exists only to catch the case
// where the compiler emitted something whose opcode byte happens to
// be 0xe8/0xe9 but isn't really a 5-byte call/jump at this offset.
func (X86_64) VerifyCallSite(text []byte, offset uint64) (CallSite, error) {
	if offset < 1 || offset+4 > uint64(len(text)) {
		return CallSiteInvalid, errUnexpectedOpcode(0)
	}
	window := text[offset-1 : offset+4]

	var kind CallSite
	switch window[0] {
	case opCallRel32:
		kind = CallSiteCall
	case opJmpRel32:
		kind = CallSiteTailCall
	default:
		return CallSiteInvalid, errUnexpectedOpcode(window[0])
	}

	disp := window[1:]
	if disp[0] != 0 || disp[1] != 0 || disp[2] != 0 || disp[3] != 0 {
		return CallSiteInvalid, ErrAlreadyRelocated
	}

	inst, err := x86asm.Decode(window, 64)
	if err != nil || inst.Len != CallWindow {
		return CallSiteInvalid, ErrNotCallSite
	}
	switch kind {
	case CallSiteCall:
		if inst.Op != x86asm.CALL {
			return CallSiteInvalid, ErrNotCallSite
		}
	case CallSiteTailCall:
		if inst.Op != x86asm.JMP {
			return CallSiteInvalid, ErrNotCallSite
		}
	}
	return kind, nil
}

// PatchToNop overwrites the 5-byte call window ending at offset+4. A
// call-site patches to five NOPs since execution falls through to the
// instruction after the call either way. A tail-call site patches to
// a leading RET followed by four NOPs, since nothing else in the
// function will return control to the caller once the jump is gone.
func (X86_64) PatchToNop(text []byte, offset uint64, kind CallSite) {
	window := text[offset-1 : offset+4]
	for i := range window {
		window[i] = opNop
	}
	if kind == CallSiteTailCall {
		window[0] = opRet
	}
}

// NeutralizeRelocType reports R_X86_64_NONE, the relocation type that
// tells a linker there is nothing left here to resolve.
func (X86_64) NeutralizeRelocType(relType uint32) (uint32, bool) {
	none := uint32(elf.R_X86_64_NONE)
	return none, relType == none
}

// isNopWindow reports whether window already holds a fully-patched
// call site (all NOPs, or a leading RET followed by NOPs for a tail
// call), so Classify can treat a second run over the same object as a
// no-op instead of an error.
func isNopWindow(window []byte) bool {
	for i, b := range window {
		if i == 0 && b == opRet {
			continue
		}
		if b != opNop {
			return false
		}
	}
	return true
}

// IsAlreadyPatched reports whether the 5-byte window ending at
// offset+4 in text is already all NOPs or a RET followed by NOPs.
func (X86_64) IsAlreadyPatched(text []byte, offset uint64) bool {
	if offset < 1 || offset+4 > uint64(len(text)) {
		return false
	}
	return isNopWindow(text[offset-1 : offset+4])
}
