// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfx

import "testing"

func TestEvalAddr(t *testing.T) {
	cases := []struct {
		name     string
		loc      []byte
		addrSize int
		wantAddr uint64
		wantOk   bool
	}{
		{"32-bit addr", []byte{0x03, 0x78, 0x56, 0x34, 0x12}, 4, 0x12345678, true},
		{"64-bit addr", []byte{0x03, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 8, 0x01, true},
		{"wrong opcode", []byte{0x91, 0x04}, 4, 0, false},
		{"wrong length", []byte{0x03, 0x01, 0x02}, 4, 0, false},
		{"empty", nil, 4, 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			addr, ok := EvalAddr(c.loc, c.addrSize)
			if ok != c.wantOk {
				t.Fatalf("ok = %v, want %v", ok, c.wantOk)
			}
			if ok && addr != c.wantAddr {
				t.Errorf("addr = %#x, want %#x", addr, c.wantAddr)
			}
		})
	}
}
