// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"debug/dwarf"
	"fmt"

	"github.com/aclements/taskscope/internal/dwarfx"
	"github.com/aclements/taskscope/internal/typedesc"
)

// buildCombinator extracts the CombinatorLayout of a struct already
// recognized as select-like or join-like by combinatorKindOf, per
// spec.md §4.B's "Combinator detection".
func (b *builder) buildCombinator(e dwarfx.Entry, kind CombinatorKind) (*CombinatorLayout, error) {
	path := dwarfx.Str(e.Entry, dwarf.AttrName)
	members := dwarfx.Children(e.Kids, dwarf.TagMember)

	var awaitees []CombinatorAwaitee
	if isArrayForm(path) {
		if len(members) != 1 {
			return nil, fmt.Errorf("layout: %s: array-form combinator wants exactly one member, found %d", path, len(members))
		}
		m := members[0]
		arrTypeOff, ok := dwarfx.Offset(m.Entry, dwarf.AttrType)
		if !ok {
			return nil, fmt.Errorf("layout: %s: aggregated member has no type", path)
		}
		arrDesc := b.res.Resolve(arrTypeOff)
		if arrDesc.Kind != typedesc.Array || arrDesc.Count == 0 {
			return nil, fmt.Errorf("layout: %s: aggregated member is not a fixed-count array", path)
		}
		baseOff := mustUint(m.Entry, dwarf.AttrDataMemberLoc)
		arrEntry, err := dwarfx.ReadAt(b.d, arrTypeOff)
		if err != nil {
			return nil, err
		}
		elemTypeOff, _ := dwarfx.Offset(arrEntry.Entry, dwarf.AttrType)
		elemSize := dwarfx.TypeSize(b.d, elemTypeOff)
		for i := uint64(0); i < arrDesc.Count; i++ {
			aw, err := b.buildAwaitee(kind, baseOff+i*elemSize, elemTypeOff)
			if err != nil {
				return nil, err
			}
			awaitees = append(awaitees, aw)
		}
	} else {
		for _, m := range members {
			typeOff, ok := dwarfx.Offset(m.Entry, dwarf.AttrType)
			if !ok {
				continue
			}
			off := mustUint(m.Entry, dwarf.AttrDataMemberLoc)
			aw, err := b.buildAwaitee(kind, off, typeOff)
			if err != nil {
				return nil, err
			}
			awaitees = append(awaitees, aw)
		}
	}

	return &CombinatorLayout{Kind: kind, Awaitees: awaitees}, nil
}

func (b *builder) buildAwaitee(kind CombinatorKind, offset uint64, typeOff dwarf.Offset) (CombinatorAwaitee, error) {
	desc := b.res.Resolve(typeOff)
	aw := CombinatorAwaitee{Offset: offset, Type: desc}
	if kind == SelectLike {
		return aw, nil
	}
	md, err := b.buildMaybeDone(typeOff)
	if err != nil {
		return CombinatorAwaitee{}, err
	}
	aw.MaybeDone = md
	return aw, nil
}

// buildMaybeDone extracts a MaybeDoneLayout from the MaybeDone<T> struct
// at typeOff, using the same variant-part walk as an async-fn state
// machine but interpreting variant names as Future/Done/Gone rather than
// coroutine states (spec.md §4.B: "extracted the same way as an
// async-fn state machine").
func (b *builder) buildMaybeDone(typeOff dwarf.Offset) (*MaybeDoneLayout, error) {
	e, err := dwarfx.ReadAt(b.d, typeOff)
	if err != nil {
		return nil, err
	}
	path := dwarfx.Str(e.Entry, dwarf.AttrName)

	vps := dwarfx.Children(e.Kids, dwarfx.TagVariantPart)
	if len(vps) != 1 {
		return nil, fmt.Errorf("layout: %s: want exactly one variant part for MaybeDone, found %d", path, len(vps))
	}
	vp := vps[0]

	discrOff := mustUint(vp.Entry, dwarf.AttrDataMemberLoc)
	discrTypeOff, hasDiscrType := dwarfx.Offset(vp.Entry, dwarf.AttrType)
	discrSize := uint64(1)
	if hasDiscrType {
		if sz := dwarfx.TypeSize(b.d, discrTypeOff); sz > 0 {
			discrSize = sz
		}
	}

	md := &MaybeDoneLayout{DiscriminantOffset: discrOff, DiscriminantSize: discrSize}
	for _, v := range dwarfx.Children(vp.Kids, dwarfx.TagVariant) {
		name := dwarfx.Str(v.Entry, dwarf.AttrName)
		discr, _ := dwarfx.Uint(v.Entry, dwarf.AttrDiscrValue)
		mv := MaybeDoneVariant{Discriminant: discr}
		if ms := dwarfx.Children(v.Kids, dwarf.TagMember); len(ms) > 0 {
			m0 := ms[0]
			mv.Offset = mustUint(m0.Entry, dwarf.AttrDataMemberLoc)
			mTypeOff, _ := dwarfx.Offset(m0.Entry, dwarf.AttrType)
			mv.Type = b.res.ResolveAttr(m0.Entry, dwarf.AttrType)
			mv.Size = dwarfx.TypeSize(b.d, mTypeOff)
		}
		switch name {
		case "Future":
			md.Future = mv
		case "Done":
			md.Done = mv
		case "Gone":
			// No data of its own; spec.md §3's "a third Gone variant
			// is permitted but carries no data" — nothing to record.
		}
	}
	return md, nil
}
