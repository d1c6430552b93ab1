// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import "testing"

func TestBasenameAndNamespace(t *testing.T) {
	cases := []struct {
		path, base, ns string
	}{
		{"embassy_executor::raw::TaskHeader", "TaskHeader", "embassy_executor::raw"},
		{"POOL", "POOL", ""},
		{"a::b::c", "c", "a::b"},
	}
	for _, c := range cases {
		if got := basename(c.path); got != c.base {
			t.Errorf("basename(%q) = %q, want %q", c.path, got, c.base)
		}
		if got := namespaceOf(c.path); got != c.ns {
			t.Errorf("namespaceOf(%q) = %q, want %q", c.path, got, c.ns)
		}
	}
}

func TestStripGenerics(t *testing.T) {
	cases := map[string]string{
		"Select3<A,B,C>": "Select3",
		"TaskPool<Fut,4>": "TaskPool",
		"POOL":           "POOL",
	}
	for in, want := range cases {
		if got := stripGenerics(in); got != want {
			t.Errorf("stripGenerics(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTrimSigil(t *testing.T) {
	if got := trimSigil("$async_fn#0"); got != "async_fn#0" {
		t.Errorf("trimSigil with sigil = %q, want %q", got, "async_fn#0")
	}
	if got := trimSigil("async_fn#0"); got != "async_fn#0" {
		t.Errorf("trimSigil without sigil = %q, want unchanged", got)
	}
	if got := trimSigil(""); got != "" {
		t.Errorf("trimSigil(\"\") = %q, want \"\"", got)
	}
}

func TestIsAsyncFnName(t *testing.T) {
	yes := []string{
		"my_crate::my_task::{async_fn#0}",
		"my_crate::async_block#3",
		"a::b::async_gen_fn#0",
	}
	for _, p := range yes {
		if !isAsyncFnName(p) {
			t.Errorf("isAsyncFnName(%q) = false, want true", p)
		}
	}
	no := []string{"embassy_executor::raw::TaskHeader", "POOL", "my_crate::Widget"}
	for _, p := range no {
		if isAsyncFnName(p) {
			t.Errorf("isAsyncFnName(%q) = true, want false", p)
		}
	}
}

func TestCombinatorKindOf(t *testing.T) {
	cases := []struct {
		path string
		kind CombinatorKind
		ok   bool
	}{
		{"embassy_futures::select::Select<A,B>", SelectLike, true},
		{"embassy_futures::select::Select3<A,B,C>", SelectLike, true},
		{"embassy_futures::select::SelectArray<F,4>", SelectLike, true},
		{"embassy_futures::join::Join<A,B>", JoinLike, true},
		{"embassy_futures::join::JoinArray<F,4>", JoinLike, true},
		{"my_crate::Widget", 0, false},
		{"embassy_futures::select::NotASelect", 0, false},
	}
	for _, c := range cases {
		kind, ok := combinatorKindOf(c.path)
		if ok != c.ok || (ok && kind != c.kind) {
			t.Errorf("combinatorKindOf(%q) = (%v,%v), want (%v,%v)", c.path, kind, ok, c.kind, c.ok)
		}
	}
}

func TestIsArrayForm(t *testing.T) {
	if !isArrayForm("embassy_futures::select::SelectArray<F,4>") {
		t.Error("SelectArray should be array form")
	}
	if isArrayForm("embassy_futures::select::Select3<A,B,C>") {
		t.Error("Select3 should not be array form")
	}
}
