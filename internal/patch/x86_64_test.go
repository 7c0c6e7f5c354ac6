// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package patch

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyCallSite(t *testing.T) {
	p := X86_64{}

	t.Run("call", func(t *testing.T) {
		// 0xe8 call opcode at offset 1, displacement at offset 2 (unresolved, zero).
		text := []byte{0x90, 0xe8, 0x00, 0x00, 0x00, 0x00, 0x90}
		kind, err := p.VerifyCallSite(text, 2)
		require.NoError(t, err)
		assert.Equal(t, CallSiteCall, kind)
	})

	t.Run("tail call", func(t *testing.T) {
		text := []byte{0x90, 0xe9, 0x00, 0x00, 0x00, 0x00}
		kind, err := p.VerifyCallSite(text, 2)
		require.NoError(t, err)
		assert.Equal(t, CallSiteTailCall, kind)
	})

	t.Run("unrelated opcode", func(t *testing.T) {
		text := []byte{0x48, 0x89, 0xe5, 0x00, 0x00, 0x00, 0x00}
		_, err := p.VerifyCallSite(text, 3)
		assert.ErrorIs(t, err, ErrNotCallSite)
	})

	t.Run("already relocated", func(t *testing.T) {
		text := []byte{0x90, 0xe8, 0x12, 0x34, 0x56, 0x78}
		_, err := p.VerifyCallSite(text, 2)
		assert.ErrorIs(t, err, ErrAlreadyRelocated)
	})

	t.Run("truncated window", func(t *testing.T) {
		text := []byte{0xe8, 0x00, 0x00}
		_, err := p.VerifyCallSite(text, 1)
		assert.Error(t, err)
	})
}

func TestPatchToNop(t *testing.T) {
	p := X86_64{}

	t.Run("call site becomes five nops", func(t *testing.T) {
		text := []byte{0x90, 0xe8, 0x00, 0x00, 0x00, 0x00, 0x90}
		p.PatchToNop(text, 2, CallSiteCall)
		want := []byte{0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90}
		assert.Equal(t, want, text)
	})

	t.Run("tail call becomes ret nop nop nop nop", func(t *testing.T) {
		text := []byte{0x00, 0xe9, 0x00, 0x00, 0x00, 0x00}
		p.PatchToNop(text, 2, CallSiteTailCall)
		want := []byte{0x00, 0xc3, 0x90, 0x90, 0x90, 0x90}
		assert.Equal(t, want, text)
	})
}

func TestNeutralizeRelocType(t *testing.T) {
	p := X86_64{}

	none, already := p.NeutralizeRelocType(uint32(elf.R_X86_64_PLT32))
	assert.Equal(t, uint32(elf.R_X86_64_NONE), none)
	assert.False(t, already)

	_, already = p.NeutralizeRelocType(uint32(elf.R_X86_64_NONE))
	assert.True(t, already)
}

func TestIsAlreadyPatched(t *testing.T) {
	p := X86_64{}

	assert.True(t, p.IsAlreadyPatched([]byte{0x90, 0x90, 0x90, 0x90, 0x90, 0x90}, 2))
	assert.True(t, p.IsAlreadyPatched([]byte{0x90, 0xc3, 0x90, 0x90, 0x90, 0x90}, 2))
	assert.False(t, p.IsAlreadyPatched([]byte{0x90, 0xe8, 0x00, 0x00, 0x00, 0x00}, 2))
}

func TestForMachine(t *testing.T) {
	assert.NotNil(t, ForMachine(elf.EM_X86_64))
	assert.Nil(t, ForMachine(elf.EM_AARCH64))
}
