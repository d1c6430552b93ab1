// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import "testing"

func TestSourceString(t *testing.T) {
	cases := []struct {
		s    *Source
		want string
	}{
		{nil, ""},
		{&Source{}, "<unknown file>"},
		{&Source{Path: "src/lib.rs"}, "src/lib.rs"},
		{&Source{Path: "src/lib.rs", Line: 42}, "src/lib.rs:42"},
		{&Source{Path: "src/lib.rs", Line: 42, Column: 9}, "src/lib.rs:42:9"},
	}
	for _, c := range cases {
		if got := c.s.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestTaskHeaderLayoutIsInit(t *testing.T) {
	h8 := TaskHeaderLayout{StateOffset: 0, StateWidth: 1}
	if h8.IsInit([]byte{0}) {
		t.Error("zero u8 state should be uninit")
	}
	if !h8.IsInit([]byte{1}) {
		t.Error("nonzero u8 state should be init")
	}

	h32 := TaskHeaderLayout{StateOffset: 4, StateWidth: 4}
	slot := []byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0}
	if h32.IsInit(slot) {
		t.Error("zero u32 state at offset should be uninit")
	}
	slot[4] = 1
	if !h32.IsInit(slot) {
		t.Error("nonzero u32 state at offset should be init")
	}
}
