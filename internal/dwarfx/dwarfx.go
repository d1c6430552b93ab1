// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dwarfx provides the raw debug-info-entry walking that
// debug/dwarf's higher-level Type/Reader API does not: reading a DIE's
// full child subtree, resolving discriminated-union shapes
// (DW_TAG_variant_part/DW_TAG_variant, used by Rust's enum and async-fn
// encodings), and distinguishing DW_TAG_reference_type from
// DW_TAG_pointer_type (debug/dwarf's Type tree collapses tags it does not
// model into *dwarf.UnsupportedType, which loses the pointee).
//
// Everything here operates directly on dwarf.Entry trees rather than
// dwarf.Type, the same level ptype and dumptype drop to when they need
// more than d.Type() gives them (field offsets, bit sizes).
package dwarfx

import (
	"debug/dwarf"
	"fmt"
)

// Tags and attributes debug/dwarf's Tag/Attr enums already name are used
// via their dwarf.Tag* / dwarf.Attr* constants. These are the handful the
// stdlib package does not export a name for, or that it actively
// mishandles for our purposes (DW_TAG_reference_type), kept as untyped
// numeric constants at their standard DWARF encodings.
const (
	TagReferenceType       dwarf.Tag = 0x10
	TagVariantPart         dwarf.Tag = 0x33
	TagVariant             dwarf.Tag = 0x19
	TagRvalueReferenceType dwarf.Tag = 0x42
	TagPackedType          dwarf.Tag = 0x2d
	TagAtomicType          dwarf.Tag = 0x47
	TagSharedType          dwarf.Tag = 0x40
)

// Entry is one DIE together with its full (already-read) child subtree.
// debug/dwarf's Reader emits a Tag==0 entry to close a sequence of
// children; ReadTree consumes that sentinel and stops there, so callers
// never see it in Kids.
type Entry struct {
	*dwarf.Entry
	Kids []Entry
}

// ReadTree reads entry e's children (e.Children must be true, and r must
// be positioned immediately after e was read) and returns them as a flat
// list of subtrees, recursing into any of their own children.
func ReadTree(r *dwarf.Reader, e *dwarf.Entry) ([]Entry, error) {
	if !e.Children {
		return nil, nil
	}
	return readSiblings(r)
}

func readSiblings(r *dwarf.Reader) ([]Entry, error) {
	var out []Entry
	for {
		kid, err := r.Next()
		if err != nil {
			return nil, err
		}
		if kid == nil || kid.Tag == 0 {
			return out, nil
		}
		var grandkids []Entry
		if kid.Children {
			grandkids, err = readSiblings(r)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, Entry{Entry: kid, Kids: grandkids})
	}
}

// Child returns the first entry of kids with the given tag, if any.
func Child(kids []Entry, tag dwarf.Tag) (Entry, bool) {
	for _, k := range kids {
		if k.Tag == tag {
			return k, true
		}
	}
	return Entry{}, false
}

// Children returns every direct child of kids with the given tag.
func Children(kids []Entry, tag dwarf.Tag) []Entry {
	var out []Entry
	for _, k := range kids {
		if k.Tag == tag {
			out = append(out, k)
		}
	}
	return out
}

// Str reads a string attribute, returning "" if absent or of the wrong type.
func Str(e *dwarf.Entry, a dwarf.Attr) string {
	s, _ := e.Val(a).(string)
	return s
}

// OptStr is like Str but also reports whether the attribute was present.
func OptStr(e *dwarf.Entry, a dwarf.Attr) (string, bool) {
	s, ok := e.Val(a).(string)
	return s, ok
}

// Int reads an integer attribute (DWARF constant forms decode to int64 in
// debug/dwarf) as an int64, returning 0, false if absent or of the wrong
// form (e.g. a location-expression encoded AttrDataMemberLoc, which this
// package does not evaluate).
func Int(e *dwarf.Entry, a dwarf.Attr) (int64, bool) {
	switch v := e.Val(a).(type) {
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Uint is like Int but zero-extends to uint64, the representation every
// discriminant and offset in this repository's data model uses.
func Uint(e *dwarf.Entry, a dwarf.Attr) (uint64, bool) {
	v, ok := Int(e, a)
	return uint64(v), ok
}

// Offset reads a reference-form attribute (a byte offset of another DIE
// in the same .debug_info section) as a dwarf.Offset.
func Offset(e *dwarf.Entry, a dwarf.Attr) (dwarf.Offset, bool) {
	switch v := e.Val(a).(type) {
	case dwarf.Offset:
		return v, true
	case uint64:
		return dwarf.Offset(v), true
	default:
		return 0, false
	}
}

// Bool reads a flag attribute.
func Bool(e *dwarf.Entry, a dwarf.Attr) bool {
	b, _ := e.Val(a).(bool)
	return b
}

// EvalAddr evaluates the small subset of DWARF location expressions this
// repository needs: a single DW_OP_addr operation, the form every static
// global (in particular the executor's task-pool holders) gets emitted
// with. Anything more elaborate (register-relative locations, piece
// expressions) reports ok=false rather than guessing.
func EvalAddr(loc []byte, addrSize int) (addr uint64, ok bool) {
	const opAddr = 0x03
	if len(loc) != 1+addrSize || loc[0] != opAddr {
		return 0, false
	}
	var v uint64
	for i := 0; i < addrSize; i++ {
		v |= uint64(loc[1+i]) << (8 * i)
	}
	return v, true
}

// Loc reads a DW_AT_location attribute as the raw bytes of its expression.
func Loc(e *dwarf.Entry, a dwarf.Attr) ([]byte, bool) {
	b, ok := e.Val(a).([]byte)
	return b, ok
}

// TypeSize returns the byte size of the type at off, deferring to
// debug/dwarf's own Type tree (which already knows the compile unit's
// address size for pointer/reference defaults, and how to sum array and
// struct sizes) rather than reimplementing those rules here. It returns
// 0 for an unknown or negative size, the same "degrade, don't crash"
// policy the rest of this package uses.
func TypeSize(d *dwarf.Data, off dwarf.Offset) uint64 {
	t, err := d.Type(off)
	if err != nil {
		return 0
	}
	if s := t.Common().ByteSize; s > 0 {
		return uint64(s)
	}
	return 0
}

// ReadAt seeks r to off, reads the entry there and, if it has children,
// its full subtree.
func ReadAt(d *dwarf.Data, off dwarf.Offset) (Entry, error) {
	r := d.Reader()
	r.Seek(off)
	e, err := r.Next()
	if err != nil {
		return Entry{}, err
	}
	if e == nil {
		return Entry{}, fmt.Errorf("dwarfx: no entry at offset %#x", off)
	}
	kids, err := ReadTree(r, e)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Entry: e, Kids: kids}, nil
}
