// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package patch knows how to turn a call to a __dtrace_probe_ stub
// into a patchable no-op, one architecture at a time.
//
// Only the instruction-level mechanics live here: recognizing a call
// site, overwriting it, and picking the relocation type that marks it
// neutralized. Finding call sites in the first place is sdt's job.
package patch

import (
	"errors"
	"fmt"

	"debug/elf"
)

// CallSite classifies how a relocation's instruction reaches the
// probe stub it targets.
type CallSite int

const (
	// CallSiteInvalid means the bytes at the relocation's offset
	// aren't a call-site instruction this patcher recognizes.
	CallSiteInvalid CallSite = iota

	// CallSiteCall is a direct CALL rel32 (opcode 0xE8) to the probe
	// stub; the call falls through afterward, so it patches to five
	// NOPs.
	CallSiteCall

	// CallSiteTailCall is a direct JMP rel32 (opcode 0xE9) to the
	// probe stub, used when the call to the stub is the last thing a
	// function does before returning; it patches to RET + NOP*4 so
	// control still returns to the caller.
	CallSiteTailCall
)

func (c CallSite) String() string {
	switch c {
	case CallSiteCall:
		return "call"
	case CallSiteTailCall:
		return "tail call"
	default:
		return "invalid"
	}
}

// CallWindow is the number of bytes a CALL rel32 or JMP rel32
// instruction occupies: one opcode byte plus a 4-byte displacement.
const CallWindow = 5

var (
	// ErrNotCallSite means VerifyCallSite didn't find a recognized
	// call-site instruction at the given offset.
	ErrNotCallSite = errors.New("patch: not a recognized call-site instruction")

	// ErrAlreadyRelocated means a supposed call site has a recognized
	// opcode but its displacement bytes are already non-zero, as in an
	// object whose relocations a linker has already applied. It is
	// kept distinct from ErrNotCallSite so callers can tell such an
	// input apart from a malformed one.
	ErrAlreadyRelocated = errors.New("patch: call-site displacement already relocated")
)

// Patcher knows how to recognize and rewrite probe call sites for one
// machine architecture.
//
// offset in every method below is a relocation's r_offset: it points
// at the displacement field the linker would fill in, one byte past
// the opcode that starts the instruction. That's the ELF convention
// for PC-relative call/jump relocations, and it's also what makes
// VerifyCallSite's job possible without a disassembler pass over the
// whole section -- the opcode byte is always exactly at offset-1.
type Patcher interface {
	// VerifyCallSite inspects the CallWindow bytes of text ending at
	// offset+4 and reports what kind of call site they form. It
	// returns ErrNotCallSite if text[offset-1] isn't a recognized
	// opcode, and ErrAlreadyRelocated if the opcode is recognized but
	// the displacement bytes are already non-zero (the relocation has
	// already been applied).
	VerifyCallSite(text []byte, offset uint64) (CallSite, error)

	// PatchToNop overwrites the CallWindow bytes of text ending at
	// offset+4 according to kind, in place.
	PatchToNop(text []byte, offset uint64, kind CallSite)

	// NeutralizeRelocType returns the relocation type value that marks
	// a neutralized call-site relocation (typically the architecture's
	// "no relocation" constant), and reports whether relType is
	// already that value.
	NeutralizeRelocType(relType uint32) (neutral uint32, alreadyNeutral bool)

	// IsAlreadyPatched reports whether the call window ending at
	// offset+4 already holds a patched (all-NOP, or RET followed by NOPs)
	// instruction sequence, so a second run over the same object can
	// skip the site cleanly instead of erroring.
	IsAlreadyPatched(text []byte, offset uint64) bool
}

// ForMachine returns the Patcher for m, or nil if sdtpatch doesn't
// know how to patch that architecture. This is the extension point a
// second architecture would be added through.
func ForMachine(m elf.Machine) Patcher {
	switch m {
	case elf.EM_X86_64:
		return X86_64{}
	default:
		return nil
	}
}

// errUnexpectedOpcode is wrapped into VerifyCallSite's ErrNotCallSite
// result so a caller logging the failure can say why.
func errUnexpectedOpcode(op byte) error {
	return fmt.Errorf("%w: opcode %#x", ErrNotCallSite, op)
}
