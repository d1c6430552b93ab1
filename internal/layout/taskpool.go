// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"debug/dwarf"
	"fmt"
	"strings"

	"github.com/aclements/taskscope/internal/dwarfx"
	"github.com/aclements/taskscope/internal/typedesc"
)

// buildTaskPool resolves one POOL holder variable into a TaskPool, per
// spec.md §4.B's "Task-pool discovery" and the two-phase resolution
// supplemented from original_source/ (SPEC_FULL.md §5): first the
// holder variable's enclosing namespace gives the task path, then a
// separate prefix search over every unit type finds the sibling
// TaskPool<...> type, since the two are declared in unrelated compile
// units and cannot be resolved in a single DWARF pass.
func (b *builder) buildTaskPool(pc poolCandidate, header TaskHeaderLayout, model *DebugModel) (*TaskPool, error) {
	poolType, err := b.findTaskPoolType(pc.taskPath)
	if err != nil {
		return nil, err
	}

	arrMember, slotArrDesc, err := b.findFixedArrayMember(poolType)
	if err != nil {
		return nil, err
	}
	slotCount := slotArrDesc.Count

	arrTypeOff, _ := dwarfx.Offset(arrMember.Entry, dwarf.AttrType)
	arrEntry, err := dwarfx.ReadAt(b.d, arrTypeOff)
	if err != nil {
		return nil, err
	}
	slotTypeOff, _ := dwarfx.Offset(arrEntry.Entry, dwarf.AttrType)
	slotEntry, err := dwarfx.ReadAt(b.d, slotTypeOff)
	if err != nil {
		return nil, err
	}

	var futureOffset uint64
	var futureTypeOff dwarf.Offset
	found := false
	for _, m := range dwarfx.Children(slotEntry.Kids, dwarf.TagMember) {
		if dwarfx.Str(m.Entry, dwarf.AttrName) == slotFutureMember {
			futureOffset = mustUint(m.Entry, dwarf.AttrDataMemberLoc)
			futureTypeOff, _ = dwarfx.Offset(m.Entry, dwarf.AttrType)
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("layout: task pool %s: slot type has no %q member", pc.taskPath, slotFutureMember)
	}

	futureDesc := b.res.Resolve(futureTypeOff)
	ft := lookupFutureType(model, futureDesc, pc.taskPath)
	if ft == nil || ft.AsyncFn == nil {
		return nil, fmt.Errorf("layout: task pool %s: future type %s not found in future_types", pc.taskPath, futureDesc)
	}

	slotSize := dwarfx.TypeSize(b.d, slotTypeOff)
	if slotSize == 0 && slotCount > 0 {
		arrTotal := dwarfx.TypeSize(b.d, arrTypeOff)
		slotSize = arrTotal / slotCount
	}
	totalSize := slotSize * slotCount
	if futureOffset+ft.AsyncFn.TotalSize > slotSize {
		return nil, fmt.Errorf("layout: task pool %s: future does not fit in slot (offset %d + size %d > slot size %d)",
			pc.taskPath, futureOffset, ft.AsyncFn.TotalSize, slotSize)
	}

	return &TaskPool{
		Path:               pc.taskPath,
		Address:            pc.addr,
		TotalSize:          totalSize,
		SlotCount:          slotCount,
		SlotSize:           slotSize,
		FutureOffsetInSlot: futureOffset,
		FutureLayout:       *ft.AsyncFn,
		FutureType:         futureDesc,
		HeaderLayout:       header,
	}, nil
}

// taskWrapperPrefix reconstructs the synthesized task-wrapper path
// named in spec.md §6 ("::__<taskname>_task"): the task macro generates
// a namespace named after the task function, so taskPath's own parent
// plus that leaf name gives the wrapper's path, exactly as the original
// builds it — "namespace_to_path(namespace.parent()) + '::__' +
// namespace.name() + '_task'" (task_pool.rs, model/task_pool.rs).
func taskWrapperPrefix(taskPath string) string {
	parent := namespaceOf(taskPath)
	leaf := basename(taskPath)
	if parent == "" {
		return "__" + leaf + "_task"
	}
	return parent + "::__" + leaf + "_task"
}

// findTaskPoolType implements the "sibling task-pool type (found by
// prefix search)" step: search every struct for a TaskPool<...> whose
// generic argument embeds this task's wrapper path, since the Rust
// compiler monomorphizes one TaskPool<F> type per task function and
// does not otherwise link it back to the POOL variable that holds it.
func (b *builder) findTaskPoolType(taskPath string) (dwarfx.Entry, error) {
	want := poolTypePrefix + taskWrapperPrefix(taskPath)
	for _, s := range b.structs {
		path := dwarfx.Str(s.Entry, dwarf.AttrName)
		// TaskPool<...>'s own DW_AT_name is never namespace-qualified
		// (unlike TaskHeader and the combinator structs), so the match
		// is against path directly rather than basename(path) — the
		// monomorphized generic argument embeds "::" of its own, which
		// a basename split would cut through.
		if strings.HasPrefix(path, want) {
			return s, nil
		}
	}
	return dwarfx.Entry{}, fmt.Errorf("layout: no %s type found for task %s", poolTypePrefix, taskPath)
}

// findFixedArrayMember returns the pool type's one member of fixed-array
// type — spec.md §4.B: "contains one member of fixed-array type;
// slot_count is the array length, slot_type is the element type."
func (b *builder) findFixedArrayMember(e dwarfx.Entry) (dwarfx.Entry, *typedesc.Descriptor, error) {
	for _, m := range dwarfx.Children(e.Kids, dwarf.TagMember) {
		typeOff, ok := dwarfx.Offset(m.Entry, dwarf.AttrType)
		if !ok {
			continue
		}
		desc := b.res.Resolve(typeOff)
		if desc.Kind == typedesc.Array {
			return m, desc, nil
		}
	}
	return dwarfx.Entry{}, nil, fmt.Errorf("layout: pool type has no fixed-array member")
}

// lookupFutureType implements spec.md §4.B's final step: "The future
// type is looked up in future_types by matching a Named(path) whose
// path begins with the synthesized task-wrapper prefix" (§6:
// "::__<taskname>_task"). The slot's direct member type is frequently a
// thin compiler-generated wrapper rather than the coroutine struct
// itself, so a direct key lookup is tried first and a prefix search
// over every known future type is the fallback, exactly as the
// original matches `ty.path.starts_with(&task_name)`.
func lookupFutureType(model *DebugModel, desc *typedesc.Descriptor, taskPath string) *FutureType {
	if ft, ok := model.FutureTypes[typedesc.AsKey(desc)]; ok {
		return ft
	}
	want := string(typedesc.AsKey(&typedesc.Descriptor{Kind: typedesc.Named, Path: taskWrapperPrefix(taskPath)}))
	for k, ft := range model.FutureTypes {
		if strings.HasPrefix(string(k), want) {
			return ft
		}
	}
	return nil
}
