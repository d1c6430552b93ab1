// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package typedesc

import "testing"

func TestDescriptorString(t *testing.T) {
	u32 := &Descriptor{Kind: Named, Path: "u32"}
	cases := []struct {
		d    *Descriptor
		want string
	}{
		{nil, "<unknown>"},
		{&Descriptor{Kind: Void}, "void"},
		{&Descriptor{Kind: Array, Elem: u32, Count: 4}, "[u32; 4]"},
		{&Descriptor{Kind: Pointer, Elem: u32}, "*u32"},
		{&Descriptor{Kind: Reference, Elem: u32}, "&u32"},
		{u32, "u32"},
		{&Descriptor{Kind: Unknown}, "<unknown>"},
	}
	for _, c := range cases {
		if got := c.d.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestDescriptorEqual(t *testing.T) {
	a := &Descriptor{Kind: Named, Path: "Foo"}
	b := &Descriptor{Kind: Named, Path: "Foo"}
	c := &Descriptor{Kind: Named, Path: "Bar"}
	if !a.Equal(b) {
		t.Error("identical named descriptors built separately should be Equal")
	}
	if a.Equal(c) {
		t.Error("differently named descriptors should not be Equal")
	}

	p1 := &Descriptor{Kind: Pointer, Elem: a}
	p2 := &Descriptor{Kind: Pointer, Elem: b}
	if !p1.Equal(p2) {
		t.Error("pointers to equal element types should be Equal")
	}

	if (*Descriptor)(nil).Equal(a) {
		t.Error("nil should not equal a non-nil descriptor")
	}
	if !(*Descriptor)(nil).Equal(nil) {
		t.Error("nil should equal nil")
	}
}

func TestAsKeyDistinguishesShapes(t *testing.T) {
	named := &Descriptor{Kind: Named, Path: "Foo"}
	ptr := &Descriptor{Kind: Pointer, Elem: named}
	ref := &Descriptor{Kind: Reference, Elem: named}
	arr := &Descriptor{Kind: Array, Elem: named, Count: 3}

	keys := map[Key]string{
		AsKey(named): "named",
		AsKey(ptr):   "pointer",
		AsKey(ref):   "reference",
		AsKey(arr):   "array",
	}
	if len(keys) != 4 {
		t.Fatalf("expected 4 distinct keys, got %d", len(keys))
	}
}

func TestAsKeyStable(t *testing.T) {
	a := &Descriptor{Kind: Named, Path: "embassy_executor::raw::TaskHeader"}
	b := &Descriptor{Kind: Named, Path: "embassy_executor::raw::TaskHeader"}
	if AsKey(a) != AsKey(b) {
		t.Error("two descriptors built from the same path should produce the same key")
	}
}
