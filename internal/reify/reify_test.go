// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reify

import (
	"testing"

	"github.com/aclements/taskscope/internal/layout"
	"github.com/aclements/taskscope/internal/typedesc"
)

func namedType(path string) *typedesc.Descriptor {
	return &typedesc.Descriptor{Kind: typedesc.Named, Path: path}
}

// a two-state async fn: state 0 ("Start") has no members; state 1
// ("Waiting") has one u8 member plus an awaitee member at offset 2.
func testAsyncFn() *layout.AsyncFnLayout {
	return &layout.AsyncFnLayout{
		TotalSize:   3,
		StateMember: layout.Member{Name: "__state", Offset: 0, Size: 1},
		Members: []layout.Member{
			{Name: "x", Type: namedType("u8"), Offset: 1, Size: 1},
			{Name: "__awaitee", Type: namedType("child::Fut"), Offset: 2, Size: 1},
		},
		States: []layout.State{
			{DiscriminantValue: 0, Name: "Start"},
			{
				DiscriminantValue: 1, Name: "Waiting",
				ActiveMembers: []int{0},
				Awaitee:       &layout.Member{Name: "__awaitee", Type: namedType("child::Fut"), Offset: 2, Size: 1},
			},
		},
	}
}

func TestReifyAsyncFnKnownStateNoAwaitee(t *testing.T) {
	l := testAsyncFn()
	bytes := []byte{0, 0xAA, 0xBB}
	av := ReifyAsyncFn(l, bytes, nil, 0)
	if !av.Ok {
		t.Fatalf("expected Ok state, got Unknown=%d", av.Unknown)
	}
	if av.State.State.Name != "Start" {
		t.Errorf("State.Name = %q, want Start", av.State.State.Name)
	}
	if len(av.State.MemberValues) != 0 {
		t.Errorf("Start state should have no active members, got %d", len(av.State.MemberValues))
	}
	if av.State.Awaitee != nil {
		t.Error("Start state should have no awaitee")
	}
}

func TestReifyAsyncFnActiveMembersAndAwaitee(t *testing.T) {
	l := testAsyncFn()
	bytes := []byte{1, 0x42, 0x99}
	av := ReifyAsyncFn(l, bytes, nil, 0)
	if !av.Ok || av.State.State.Name != "Waiting" {
		t.Fatalf("expected Waiting state, got %+v", av)
	}
	if len(av.State.MemberValues) != 1 || av.State.MemberValues[0].Bytes[0] != 0x42 {
		t.Fatalf("unexpected member values: %+v", av.State.MemberValues)
	}
	if av.State.Awaitee == nil {
		t.Fatal("expected an awaitee")
	}
	// No futureTypes entry for child::Fut, so it must degrade to Opaque.
	if av.State.Awaitee.Kind != KindOpaque {
		t.Errorf("awaitee kind = %v, want KindOpaque", av.State.Awaitee.Kind)
	}
	if len(av.State.Awaitee.Bytes) != 1 || av.State.Awaitee.Bytes[0] != 0x99 {
		t.Errorf("awaitee bytes = %v, want [0x99]", av.State.Awaitee.Bytes)
	}
}

func TestReifyAsyncFnUnknownDiscriminant(t *testing.T) {
	l := testAsyncFn()
	av := ReifyAsyncFn(l, []byte{7, 0, 0}, nil, 0)
	if av.Ok {
		t.Fatal("discriminant 7 matches no state; expected Ok=false")
	}
	if av.Unknown != 7 {
		t.Errorf("Unknown = %d, want 7", av.Unknown)
	}
}

func TestReifyFutureResolvesRegisteredAwaitee(t *testing.T) {
	childTy := namedType("child::Fut")
	childLayout := &layout.AsyncFnLayout{
		TotalSize:   1,
		StateMember: layout.Member{Offset: 0, Size: 1},
		States:      []layout.State{{DiscriminantValue: 5, Name: "Done"}},
	}
	futureTypes := map[typedesc.Key]*layout.FutureType{
		typedesc.AsKey(childTy): {Kind: layout.KindAsyncFn, AsyncFn: childLayout},
	}

	l := testAsyncFn()
	bytes := []byte{1, 0x00, 5}
	av := ReifyAsyncFn(l, bytes, futureTypes, 0)
	if av.State.Awaitee == nil || av.State.Awaitee.Kind != KindAsyncFn {
		t.Fatalf("expected awaitee to resolve to an async fn, got %+v", av.State.Awaitee)
	}
	if !av.State.Awaitee.Async.Ok || av.State.Awaitee.Async.State.State.Name != "Done" {
		t.Errorf("unexpected resolved child state: %+v", av.State.Awaitee.Async)
	}
}

func TestReifyTaskPool(t *testing.T) {
	l := testAsyncFn()
	pool := &layout.TaskPool{
		Path:               "my_task",
		SlotCount:          2,
		SlotSize:           4, // 1 header byte + 3 future bytes
		FutureOffsetInSlot: 1,
		FutureLayout:       *l,
		FutureType:         namedType("my_task::{async_fn#0}"),
		HeaderLayout:       layout.TaskHeaderLayout{StateOffset: 0, StateWidth: 1},
	}
	bytes := []byte{
		0, 0, 0, 0, // slot 0: uninit
		1, 1, 0x11, 0, // slot 1: init, state 1 (Waiting), x=0x11
	}
	values := ReifyTaskPool(pool, bytes, nil)
	if len(values) != 2 {
		t.Fatalf("len(values) = %d, want 2", len(values))
	}
	if values[0].Init {
		t.Error("slot 0 should be uninit")
	}
	if !values[1].Init {
		t.Fatal("slot 1 should be init")
	}
	av := values[1].Future.Async
	if !av.Ok || av.State.State.Name != "Waiting" {
		t.Errorf("slot 1 state = %+v, want Waiting", av)
	}
}

func TestReifyCombinatorSelect(t *testing.T) {
	cl := &layout.CombinatorLayout{
		Kind: layout.SelectLike,
		Awaitees: []layout.CombinatorAwaitee{
			{Offset: 0, Type: namedType("a::Fut")},
			{Offset: 1, Type: namedType("b::Fut")},
		},
	}
	mv := reifyCombinator(cl, []byte{0x01, 0x02}, nil, 0)
	if len(mv.Awaitees) != 2 {
		t.Fatalf("len(Awaitees) = %d, want 2", len(mv.Awaitees))
	}
	if mv.Awaitees[0].Kind != KindOpaque || mv.Awaitees[0].Bytes[0] != 0x01 {
		t.Errorf("branch 0 = %+v", mv.Awaitees[0])
	}
	if mv.Awaitees[1].Bytes[0] != 0x02 {
		t.Errorf("branch 1 = %+v", mv.Awaitees[1])
	}
}

func testMaybeDone(doneTy *typedesc.Descriptor) *layout.MaybeDoneLayout {
	return &layout.MaybeDoneLayout{
		DiscriminantOffset: 0,
		DiscriminantSize:   1,
		Future: layout.MaybeDoneVariant{Discriminant: 0, Offset: 1, Size: 1, Type: namedType("child::Fut")},
		Done:   layout.MaybeDoneVariant{Discriminant: 1, Offset: 1, Size: 2, Type: doneTy},
	}
}

func TestReifyMaybeDoneFutureVariant(t *testing.T) {
	md := testMaybeDone(namedType("u32"))
	fv := reifyMaybeDone(md, []byte{0, 0x77}, nil, 0)
	if fv.Kind != KindOpaque || len(fv.Bytes) != 1 || fv.Bytes[0] != 0x77 {
		t.Errorf("Future variant = %+v", fv)
	}
}

func TestReifyMaybeDoneDoneVariant(t *testing.T) {
	doneTy := namedType("u32")
	md := testMaybeDone(doneTy)
	fv := reifyMaybeDone(md, []byte{1, 0xAA, 0xBB}, nil, 0)
	if fv.Kind != KindOpaque || !fv.Type.Equal(doneTy) {
		t.Fatalf("Done variant = %+v", fv)
	}
	if len(fv.Bytes) != 2 || fv.Bytes[0] != 0xAA || fv.Bytes[1] != 0xBB {
		t.Errorf("Done bytes = %v", fv.Bytes)
	}
}

func TestReifyMaybeDoneGoneVariant(t *testing.T) {
	md := testMaybeDone(namedType("u32"))
	fv := reifyMaybeDone(md, []byte{2, 0, 0}, nil, 0)
	if fv.Kind != KindOpaque || fv.Type.Kind != typedesc.Void || len(fv.Bytes) != 0 {
		t.Errorf("Gone variant = %+v, want empty Opaque(Void)", fv)
	}
}

func TestReifyByTypeDepthBound(t *testing.T) {
	ty := namedType("self::Fut")
	selfReferencing := map[typedesc.Key]*layout.FutureType{
		typedesc.AsKey(ty): {
			Kind: layout.KindSelect,
			Combinator: &layout.CombinatorLayout{
				Kind:     layout.SelectLike,
				Awaitees: []layout.CombinatorAwaitee{{Offset: 0, Type: ty}},
			},
		},
	}
	fv := reifyByType(ty, []byte{0}, selfReferencing, maxDepth)
	if fv.Kind != KindOpaque {
		t.Errorf("at maxDepth, reifyByType should degrade to Opaque, got %v", fv.Kind)
	}
}
