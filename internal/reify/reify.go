// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reify implements spec.md component D: a pure function from a
// layout (internal/layout) and a byte window to a typed value tree. It
// performs no I/O and never touches an Adapter — see spec.md §8's
// "Pure reifier" property.
package reify

import (
	"github.com/aclements/taskscope/internal/layout"
	"github.com/aclements/taskscope/internal/typedesc"
)

// maxDepth bounds awaitee recursion. spec.md §9: coroutine frames are
// value types with statically bounded size so cycles cannot arise in
// practice, but malformed debug info should degrade to Opaque rather
// than recurse forever.
const maxDepth = 64

// TaskValue is Uninit or Init(FutureValue), per spec.md §3.
type TaskValue struct {
	Init   bool
	Future FutureValue
}

// FutureKind discriminates the shapes a FutureValue can take.
type FutureKind int

const (
	KindAsyncFn FutureKind = iota
	KindSelect
	KindJoin
	KindOpaque
)

// FutureValue is one node of the await-point backtrace.
type FutureValue struct {
	Type  *typedesc.Descriptor
	Kind  FutureKind
	Async *AsyncFnValue
	Multi *MultiValue // Select or Join
	Bytes []byte      // Opaque
}

// AsyncFnValue is the reification of an AsyncFnLayout.
type AsyncFnValue struct {
	Layout *layout.AsyncFnLayout
	// Ok is false iff the discriminant matched no known state; Unknown
	// then holds the raw discriminant value (spec.md: "Err(discriminant)").
	Ok      bool
	Unknown uint64
	State   *StateValue
}

// MemberValue is one active member's raw bytes, never interpreted here
// — spec.md §4.D: "decoding of user types is deferred to the Presenter."
type MemberValue struct {
	Member layout.Member
	Bytes  []byte
}

// StateValue is the reification of the AsyncFnLayout state the
// discriminant selected.
type StateValue struct {
	State        layout.State
	MemberValues []MemberValue
	Awaitee      *FutureValue
}

// MultiValue is the reification of a CombinatorLayout (Select or Join).
type MultiValue struct {
	Awaitees []FutureValue
}

func leUint(b []byte) uint64 {
	var v uint64
	for i, c := range b {
		v |= uint64(c) << (8 * i)
	}
	return v
}

// ReifyTaskPool reifies every slot of pool against bytes, which must be
// exactly pool.TotalSize bytes read starting at pool.Address (spec.md
// §4.D "Task pool"). slot_count == 0 yields an empty, non-nil slice.
// futureTypes is normally DebugModel.FutureTypes, used to resolve any
// awaitee the pool's own future type is suspended on.
func ReifyTaskPool(pool *layout.TaskPool, bytes []byte, futureTypes map[typedesc.Key]*layout.FutureType) []TaskValue {
	values := make([]TaskValue, 0, pool.SlotCount)
	for i := uint64(0); i < pool.SlotCount; i++ {
		slot := bytes[i*pool.SlotSize : (i+1)*pool.SlotSize]
		if !pool.HeaderLayout.IsInit(slot) {
			values = append(values, TaskValue{})
			continue
		}
		futureBytes := slot[pool.FutureOffsetInSlot:]
		fv := reifyAsyncFnAsFuture(&pool.FutureLayout, pool.FutureType, futureBytes, futureTypes, 0)
		values = append(values, TaskValue{Init: true, Future: fv})
	}
	return values
}

// ReifyFuture reifies one future of the given type against bytes, using
// futureTypes (normally DebugModel.FutureTypes) to resolve awaitees and
// combinator children recursively.
func ReifyFuture(ty *typedesc.Descriptor, bytes []byte, futureTypes map[typedesc.Key]*layout.FutureType) FutureValue {
	return reifyByType(ty, bytes, futureTypes, 0)
}

func reifyByType(ty *typedesc.Descriptor, bytes []byte, futureTypes map[typedesc.Key]*layout.FutureType, depth int) FutureValue {
	if depth >= maxDepth {
		return FutureValue{Type: ty, Kind: KindOpaque, Bytes: bytes}
	}
	ft, ok := futureTypes[typedesc.AsKey(ty)]
	if !ok {
		// spec.md §4.D "Awaitee recursion": "Miss ⇒ Opaque(bytes)."
		return FutureValue{Type: ty, Kind: KindOpaque, Bytes: bytes}
	}
	switch ft.Kind {
	case layout.KindAsyncFn:
		return reifyAsyncFnAsFuture(ft.AsyncFn, ty, bytes, futureTypes, depth)
	case layout.KindSelect:
		return FutureValue{Type: ty, Kind: KindSelect, Multi: reifyCombinator(ft.Combinator, bytes, futureTypes, depth)}
	case layout.KindJoin:
		return FutureValue{Type: ty, Kind: KindJoin, Multi: reifyCombinator(ft.Combinator, bytes, futureTypes, depth)}
	default:
		return FutureValue{Type: ty, Kind: KindOpaque, Bytes: bytes}
	}
}

func reifyAsyncFnAsFuture(l *layout.AsyncFnLayout, ty *typedesc.Descriptor, bytes []byte, futureTypes map[typedesc.Key]*layout.FutureType, depth int) FutureValue {
	av := ReifyAsyncFn(l, bytes, futureTypes, depth)
	return FutureValue{Type: ty, Kind: KindAsyncFn, Async: av}
}

// ReifyAsyncFn implements spec.md §4.D's discriminant decode,
// active-member extraction, and awaitee recursion for one coroutine
// frame.
func ReifyAsyncFn(l *layout.AsyncFnLayout, bytes []byte, futureTypes map[typedesc.Key]*layout.FutureType, depth int) *AsyncFnValue {
	sm := l.StateMember
	discr := leUint(bytes[sm.Offset : sm.Offset+sm.Size])

	for _, st := range l.States {
		if st.DiscriminantValue != discr {
			continue
		}
		sv := &StateValue{State: st}
		for _, idx := range st.ActiveMembers {
			m := l.Members[idx]
			sv.MemberValues = append(sv.MemberValues, MemberValue{Member: m, Bytes: bytes[m.Offset : m.Offset+m.Size]})
		}
		if st.Awaitee != nil {
			aw := st.Awaitee
			awBytes := bytes[aw.Offset : aw.Offset+aw.Size]
			fv := reifyByType(aw.Type, awBytes, futureTypes, depth+1)
			sv.Awaitee = &fv
		}
		return &AsyncFnValue{Layout: l, Ok: true, State: sv}
	}
	return &AsyncFnValue{Layout: l, Ok: false, Unknown: discr}
}

// reifyCombinator implements spec.md §4.D for Select/Join layouts,
// including the three-way Join child decode (Future/Done/Gone).
func reifyCombinator(cl *layout.CombinatorLayout, bytes []byte, futureTypes map[typedesc.Key]*layout.FutureType, depth int) *MultiValue {
	mv := &MultiValue{}
	for _, aw := range cl.Awaitees {
		if aw.MaybeDone == nil {
			childBytes := sliceFrom(bytes, aw.Offset)
			mv.Awaitees = append(mv.Awaitees, reifyByType(aw.Type, childBytes, futureTypes, depth+1))
			continue
		}
		mv.Awaitees = append(mv.Awaitees, reifyMaybeDone(aw.MaybeDone, sliceFrom(bytes, aw.Offset), futureTypes, depth+1))
	}
	return mv
}

func reifyMaybeDone(md *layout.MaybeDoneLayout, bytes []byte, futureTypes map[typedesc.Key]*layout.FutureType, depth int) FutureValue {
	discr := leUint(bytes[md.DiscriminantOffset : md.DiscriminantOffset+md.DiscriminantSize])
	switch {
	case discr == md.Future.Discriminant:
		childBytes := sliceFrom(bytes, md.Future.Offset)
		return reifyByType(md.Future.Type, childBytes, futureTypes, depth)
	case discr == md.Done.Discriminant:
		// "construct an Opaque carrying the stored output bytes with
		// the Done type attached" (spec.md §4.D).
		outBytes := bytesOfSize(bytes, md.Done.Offset, md.Done.Size)
		return FutureValue{Type: md.Done.Type, Kind: KindOpaque, Bytes: outBytes}
	default:
		// Gone, or any other value: "empty opaque with type Void".
		return FutureValue{Type: &typedesc.Descriptor{Kind: typedesc.Void}, Kind: KindOpaque}
	}
}

func sliceFrom(b []byte, off uint64) []byte {
	if off >= uint64(len(b)) {
		return nil
	}
	return b[off:]
}

func bytesOfSize(b []byte, off, size uint64) []byte {
	if off+size > uint64(len(b)) {
		return nil
	}
	return b[off : off+size]
}
