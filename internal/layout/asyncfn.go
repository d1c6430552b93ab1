// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"debug/dwarf"
	"fmt"
	"sort"

	"github.com/aclements/taskscope/internal/dwarfx"
	"github.com/aclements/taskscope/internal/typedesc"
)

// buildAsyncFn extracts the AsyncFnLayout of a struct already recognized
// as a coroutine frame by isAsyncFnName, per spec.md §4.B.
func (b *builder) buildAsyncFn(e dwarfx.Entry) (*AsyncFnLayout, error) {
	path := dwarfx.Str(e.Entry, dwarf.AttrName)

	variantParts := dwarfx.Children(e.Kids, dwarfx.TagVariantPart)
	if len(variantParts) != 1 {
		return nil, fmt.Errorf("layout: %s: want exactly one variant part, found %d", path, len(variantParts))
	}

	stateFields := make([]dwarfx.Entry, 0, 1)
	for _, m := range dwarfx.Children(e.Kids, dwarf.TagMember) {
		if dwarfx.Str(m.Entry, dwarf.AttrName) == stateFieldName {
			stateFields = append(stateFields, m)
		}
	}
	if len(stateFields) != 1 {
		return nil, fmt.Errorf("layout: %s: want exactly one %s field, found %d", path, stateFieldName, len(stateFields))
	}
	sf := stateFields[0]
	sfOff, _ := dwarfx.Offset(sf.Entry, dwarf.AttrType)
	stateMember := Member{
		Name:   stateFieldName,
		Type:   b.res.ResolveAttr(sf.Entry, dwarf.AttrType),
		Offset: mustUint(sf.Entry, dwarf.AttrDataMemberLoc),
		Size:   dwarfx.TypeSize(b.d, sfOff),
	}
	if w := stateMember.Size; w != 1 && w != 2 && w != 4 && w != 8 {
		return nil, fmt.Errorf("layout: %s: %s has width %d, want one of 1,2,4,8", path, stateFieldName, w)
	}

	totalSize, _ := dwarfx.Uint(e.Entry, dwarf.AttrByteSize)
	afl := &AsyncFnLayout{TotalSize: totalSize, StateMember: stateMember}

	type memberKey struct {
		name   string
		typ    typedesc.Key
		offset uint64
		size   uint64
	}
	memberIndex := make(map[memberKey]int)

	for _, v := range dwarfx.Children(variantParts[0].Kids, dwarfx.TagVariant) {
		discr, ok := dwarfx.Uint(v.Entry, dwarf.AttrDiscrValue)
		if !ok {
			return nil, fmt.Errorf("layout: %s: state missing discriminant value", path)
		}

		st := State{DiscriminantValue: discr, Name: dwarfx.Str(v.Entry, dwarf.AttrName)}
		if st.Name == "" {
			st.Name = fmt.Sprintf("state%d", discr)
		}

		var awaitee *Member
		seen := make(map[int]bool)
		for _, m := range dwarfx.Children(v.Kids, dwarf.TagMember) {
			name := dwarfx.Str(m.Entry, dwarf.AttrName)
			typeOff, _ := dwarfx.Offset(m.Entry, dwarf.AttrType)
			size := dwarfx.TypeSize(b.d, typeOff)
			if size == 0 {
				continue // spec.md §3: "Members with size == 0 are elided."
			}
			mem := Member{
				Name:   name,
				Type:   b.res.ResolveAttr(m.Entry, dwarf.AttrType),
				Offset: mustUint(m.Entry, dwarf.AttrDataMemberLoc),
				Size:   size,
			}
			if name == awaiteeFieldName {
				if awaitee != nil {
					return nil, fmt.Errorf("layout: %s: state %s has more than one %s field", path, st.Name, awaiteeFieldName)
				}
				mCopy := mem
				awaitee = &mCopy
				continue
			}
			key := memberKey{mem.Name, typedesc.AsKey(mem.Type), mem.Offset, mem.Size}
			idx, ok := memberIndex[key]
			if !ok {
				idx = len(afl.Members)
				afl.Members = append(afl.Members, mem)
				memberIndex[key] = idx
			}
			if !seen[idx] {
				st.ActiveMembers = append(st.ActiveMembers, idx)
				seen[idx] = true
			}
		}
		st.Awaitee = awaitee
		if src := b.declSource(v.Entry); src != nil {
			st.Source = src
		}
		afl.States = append(afl.States, st)
	}

	sortMembersAndRewriteIndices(afl)
	return afl, nil
}

// sortMembersAndRewriteIndices implements spec.md §4.B's final step:
// "members is sorted ascending by offset; every state's index list is
// rewritten through an old→new permutation and then sorted."
func sortMembersAndRewriteIndices(afl *AsyncFnLayout) {
	n := len(afl.Members)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return afl.Members[order[i]].Offset < afl.Members[order[j]].Offset
	})
	oldToNew := make([]int, n)
	sorted := make([]Member, n)
	for newIdx, oldIdx := range order {
		oldToNew[oldIdx] = newIdx
		sorted[newIdx] = afl.Members[oldIdx]
	}
	afl.Members = sorted

	for si := range afl.States {
		ams := afl.States[si].ActiveMembers
		for i, old := range ams {
			ams[i] = oldToNew[old]
		}
		sort.Ints(ams)
	}
}

func mustUint(e *dwarf.Entry, a dwarf.Attr) uint64 {
	v, _ := dwarfx.Uint(e, a)
	return v
}

// declSource builds a Source from an entry's DW_AT_decl_line/
// DW_AT_decl_column attributes. DW_AT_decl_file is a file-table index
// that only resolves to a path via the owning compile unit's line
// program; this package does not thread compile-unit identity down to
// individual variant DIEs, so Source.Path is left blank rather than
// risking a wrong file attribution — Source.String degrades for that
// case (see spec.md §3's "source_location?").
func (b *builder) declSource(e *dwarf.Entry) *Source {
	line, hasLine := dwarfx.Uint(e, dwarf.AttrDeclLine)
	if !hasLine || line == 0 {
		return nil
	}
	col, _ := dwarfx.Uint(e, dwarf.AttrDeclColumn)
	return &Source{Line: uint32(line), Column: uint32(col)}
}
