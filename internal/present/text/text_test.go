// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package text

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aclements/taskscope/internal/controller"
	"github.com/aclements/taskscope/internal/layout"
	"github.com/aclements/taskscope/internal/reify"
	"github.com/aclements/taskscope/internal/typedesc"
)

func namedType(path string) *typedesc.Descriptor {
	return &typedesc.Descriptor{Kind: typedesc.Named, Path: path}
}

func noFormat(bytes []byte, ty *typedesc.Descriptor) (string, bool) { return "", false }

func TestNewDefaultsColorOffForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	if p.Color {
		t.Error("a bytes.Buffer is not a terminal; Color should default false")
	}
}

func TestRenderUninitSlot(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{W: &buf}
	pools := []controller.TaskPoolValue{{
		Pool:   &layout.TaskPool{Path: "my_task", SlotCount: 1},
		Values: []reify.TaskValue{{}},
	}}
	p.Render(pools, noFormat)
	out := buf.String()
	if !strings.Contains(out, "my_task") {
		t.Errorf("output missing pool path: %q", out)
	}
	if !strings.Contains(out, "<uninit>") {
		t.Errorf("output missing uninit marker: %q", out)
	}
}

func TestRenderAsyncFnStateWithMembers(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{W: &buf}
	pools := []controller.TaskPoolValue{{
		Pool: &layout.TaskPool{Path: "my_task", SlotCount: 1},
		Values: []reify.TaskValue{{
			Init: true,
			Future: reify.FutureValue{
				Type: namedType("my_task::{async_fn#0}"),
				Kind: reify.KindAsyncFn,
				Async: &reify.AsyncFnValue{
					Ok: true,
					State: &reify.StateValue{
						State: layout.State{Name: "Waiting", Source: &layout.Source{Path: "src/lib.rs", Line: 10}},
						MemberValues: []reify.MemberValue{
							{Member: layout.Member{Name: "count", Type: namedType("u32")}, Bytes: []byte{5}},
						},
					},
				},
			},
		}},
	}}
	format := func(bytes []byte, ty *typedesc.Descriptor) (string, bool) {
		return "5", true
	}
	p.Render(pools, format)
	out := buf.String()
	for _, want := range []string{"Waiting", "src/lib.rs:10", "count", "u32", "= 5"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderAsyncFnUnknownState(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{W: &buf}
	pools := []controller.TaskPoolValue{{
		Pool: &layout.TaskPool{Path: "my_task", SlotCount: 1},
		Values: []reify.TaskValue{{
			Init: true,
			Future: reify.FutureValue{
				Type:  namedType("my_task::{async_fn#0}"),
				Kind:  reify.KindAsyncFn,
				Async: &reify.AsyncFnValue{Ok: false, Unknown: 9},
			},
		}},
	}}
	p.Render(pools, noFormat)
	if !strings.Contains(buf.String(), "unknown state 9") {
		t.Errorf("output missing unknown-state marker: %q", buf.String())
	}
}

func TestRenderSelectWithBranches(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{W: &buf}
	pools := []controller.TaskPoolValue{{
		Pool: &layout.TaskPool{Path: "racer", SlotCount: 1},
		Values: []reify.TaskValue{{
			Init: true,
			Future: reify.FutureValue{
				Type: namedType("embassy_futures::select::Select<A,B>"),
				Kind: reify.KindSelect,
				Multi: &reify.MultiValue{Awaitees: []reify.FutureValue{
					{Type: namedType("a::Fut"), Kind: reify.KindOpaque, Bytes: []byte{1}},
					{Type: namedType("b::Fut"), Kind: reify.KindOpaque, Bytes: []byte{2}},
				}},
			},
		}},
	}}
	p.Render(pools, noFormat)
	out := buf.String()
	for _, want := range []string{"select", "branch 0", "branch 1", "a::Fut", "b::Fut"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
