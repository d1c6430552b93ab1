// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package layout walks DWARF debug information for an async-heavy
// firmware image (a state-machine-style future coroutine compiler, a
// cooperative task executor, and select/join combinator futures) and
// reconstructs the exact memory layouts needed to read live task state
// out of target RAM.
//
// This is spec.md component B. It builds the DebugModel that
// internal/reify decodes bytes against and internal/controller drives.
package layout

import (
	"strconv"

	"github.com/aclements/taskscope/internal/typedesc"
)

// Member is one field of a coroutine frame or combinator future, sliced
// directly out of the bytes read for its enclosing future.
type Member struct {
	Name   string
	Type   *typedesc.Descriptor
	Offset uint64
	Size   uint64
}

// State is one variant of an async-fn's state machine: a discriminant
// value, the members live in that state, and, if the coroutine is
// suspended there, the future it's waiting on.
type State struct {
	DiscriminantValue uint64
	Name              string
	// ActiveMembers indexes into AsyncFnLayout.Members.
	ActiveMembers []int
	// Awaitee is non-nil iff this state is suspended on another future.
	Awaitee  *Member
	Source   *Source
}

// Source is a source-code location, formatted the way debuggers print
// them: "file", "file:line" or "file:line:column" depending on which
// fields DWARF actually supplied.
type Source struct {
	Path   string
	Line   uint32
	Column uint32
}

func (s *Source) String() string {
	if s == nil {
		return ""
	}
	path := s.Path
	if path == "" {
		path = "<unknown file>"
	}
	switch {
	case s.Line == 0:
		return path
	case s.Column == 0:
		return formatLine(path, s.Line)
	default:
		return formatLineCol(path, s.Line, s.Column)
	}
}

// AsyncFnLayout is the layout of one compiler-generated coroutine frame.
type AsyncFnLayout struct {
	TotalSize uint64
	// StateMember is the single discriminant field selecting the
	// current state; its Size is in {1,2,4,8}.
	StateMember Member
	// Members is the deduplicated union of every state's members,
	// sorted ascending by Offset.
	Members []Member
	// States is in DWARF declaration order; DiscriminantValue is
	// unique across the slice.
	States []State
}

// CombinatorKind distinguishes the two recognized combinator shapes.
type CombinatorKind int

const (
	SelectLike CombinatorKind = iota
	JoinLike
)

// CombinatorLayout is the layout of a select-like or join-like future
// that drives several children concurrently.
type CombinatorLayout struct {
	Kind CombinatorKind
	// Awaitees is in DWARF member order (element order for the array
	// forms); it is not re-sorted by Offset. For SelectLike, each entry's
	// MaybeDone is nil (the combinator owns the child directly). For
	// JoinLike, each entry's MaybeDone describes the MaybeDone<T>
	// tagged-variant wrapper around the child.
	Awaitees []CombinatorAwaitee
}

type CombinatorAwaitee struct {
	Offset    uint64
	Type      *typedesc.Descriptor
	MaybeDone *MaybeDoneLayout
}

// MaybeDoneLayout is the per-child wrapper used by join-like combinators:
// a tagged union of "still running the child future" and "holds the
// child's finished output". A third "Gone" state (output already taken
// by the caller) is permitted but carries no data of its own.
type MaybeDoneLayout struct {
	DiscriminantOffset uint64
	DiscriminantSize   uint64
	Future             MaybeDoneVariant
	Done               MaybeDoneVariant
}

type MaybeDoneVariant struct {
	Discriminant uint64
	Offset       uint64
	Size         uint64
	Type         *typedesc.Descriptor
}

// FutureKind discriminates the shapes a FutureType can take.
type FutureKind int

const (
	KindAsyncFn FutureKind = iota
	KindSelect
	KindJoin
)

// FutureType is one entry of DebugModel.FutureTypes: the normalized
// layout of a future, interned by its own TypeDescriptor.
type FutureType struct {
	Kind      FutureKind
	AsyncFn   *AsyncFnLayout
	Combinator *CombinatorLayout
}

// TaskHeaderLayout is the executor's per-slot bookkeeping word: a state
// field whose value distinguishes an empty slot from a live one.
type TaskHeaderLayout struct {
	StateOffset uint64
	// StateWidth is 1 (a u8 state byte) or 4 (a u32 state word).
	StateWidth uint64
}

// IsInit reports whether the state word found at StateOffset within slot
// indicates a spawned-or-queued task, per spec.md §4.D: "nonzero ⇒
// initialized" (see spec.md §9 Open Question 3 for the caveat that this
// conflates "spawned" and "queued").
func (h TaskHeaderLayout) IsInit(slot []byte) bool {
	b := slot[h.StateOffset:]
	switch h.StateWidth {
	case 1:
		return b[0] != 0
	case 4:
		return leU32(b) != 0
	default:
		return false
	}
}

// TaskPool is a fixed-size, compile-time-allocated array of task slots,
// each holding one TaskHeader plus one coroutine frame of a specific
// future type.
type TaskPool struct {
	Path      string
	Address   uint64
	TotalSize uint64
	SlotCount uint64
	// SlotSize is TotalSize / SlotCount.
	SlotSize          uint64
	FutureOffsetInSlot uint64
	FutureLayout      AsyncFnLayout
	FutureType        *typedesc.Descriptor
	HeaderLayout      TaskHeaderLayout
}

// DebugModel is the immutable, whole-session model built once at startup
// from one object file's debug info.
type DebugModel struct {
	// FutureTypes is keyed by typedesc.AsKey of each future's own type.
	FutureTypes map[typedesc.Key]*FutureType
	// TaskPools is ordered by descending future size, for deterministic
	// presentation.
	TaskPools []TaskPool
	// SafepointAddresses are the instruction addresses at which the
	// executor has quiesced every task; see internal/safepoint.
	SafepointAddresses []uint64
}

func formatLine(path string, line uint32) string {
	return path + ":" + strconv.Itoa(int(line))
}

func formatLineCol(path string, line, column uint32) string {
	return path + ":" + strconv.Itoa(int(line)) + ":" + strconv.Itoa(int(column))
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
