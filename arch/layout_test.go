// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arch

import (
	"encoding/binary"
	"testing"
)

func TestLayoutOrder(t *testing.T) {
	data := []byte{0xff, 0xfe, 0xfd, 0xfc, 0xfb, 0xfa, 0xf9, 0xf8}
	check := func(layout Layout, label string, want, got interface{}) {
		t.Helper()
		if want != got {
			t.Errorf("for %s %s: want %v, got %v", layout.Order(), label, want, got)
		}
	}

	l := NewLayout(binary.LittleEndian, 1)
	check(l, "Uint16", l.Uint16(data), uint16(0xfeff))
	check(l, "Uint32", l.Uint32(data), uint32(0xfcfdfeff))
	check(l, "Uint64", l.Uint64(data), uint64(0xf8f9fafbfcfdfeff))
	check(l, "Int16", l.Int16(data), -int16(^uint16(0xfeff)+1))
	check(l, "Int32", l.Int32(data), -int32(^uint32(0xfcfdfeff)+1))
	check(l, "Int64", l.Int64(data), -int64(^uint64(0xf8f9fafbfcfdfeff)+1))

	l = NewLayout(binary.BigEndian, 1)
	check(l, "Uint16", l.Uint16(data), uint16(0xfffe))
	check(l, "Uint32", l.Uint32(data), uint32(0xfffefdfc))
	check(l, "Uint64", l.Uint64(data), uint64(0xfffefdfcfbfaf9f8))
}

func TestLayoutWord(t *testing.T) {
	data := []byte{0xff, 0xfe, 0xfd, 0xfc, 0xfb, 0xfa, 0xf9, 0xf8}
	check := func(wordSize int, want uint64) {
		t.Helper()
		l := NewLayout(binary.LittleEndian, wordSize)
		got := l.Word(data)
		if want != got {
			t.Errorf("for word size %d: want %#x, got %#x", wordSize, want, got)
		}
	}
	check(1, 0xff)
	check(2, 0xfeff)
	check(4, 0xfcfdfeff)
	check(8, 0xf8f9fafbfcfdfeff)
}

// TestLayoutRoundTrip checks that Put* followed by the matching
// reader produces the original value, for both byte orders.
func TestLayoutRoundTrip(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		l16 := NewLayout(order, 2)
		b := make([]byte, 2)
		l16.PutUint16(b, 0xabcd)
		if got := l16.Uint16(b); got != 0xabcd {
			t.Errorf("order=%v: PutUint16/Uint16 round trip: got %#x", order, got)
		}

		l32 := NewLayout(order, 4)
		b = make([]byte, 4)
		l32.PutUint32(b, 0xdeadbeef)
		if got := l32.Uint32(b); got != 0xdeadbeef {
			t.Errorf("order=%v: PutUint32/Uint32 round trip: got %#x", order, got)
		}

		l64 := NewLayout(order, 8)
		b = make([]byte, 8)
		l64.PutUint64(b, 0x0123456789abcdef)
		if got := l64.Uint64(b); got != 0x0123456789abcdef {
			t.Errorf("order=%v: PutUint64/Uint64 round trip: got %#x", order, got)
		}

		b = make([]byte, 8)
		l64.PutWord(b, 0x1122334455667788)
		if got := l64.Word(b); got != 0x1122334455667788 {
			t.Errorf("order=%v: PutWord/Word round trip (word size 8): got %#x", order, got)
		}
	}
}

func TestNewLayoutForClass(t *testing.T) {
	if _, err := NewLayoutForClass(binary.LittleEndian, 0xff); err == nil {
		t.Error("expected error for unsupported ELF class")
	}
}
