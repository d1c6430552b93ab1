// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package typedesc provides a compiler- and debugger-agnostic description
// of a target-language type, normalized from raw DWARF debug-info entries.
//
// Two Descriptors compare equal iff they describe the same shape; this is
// what lets the reifier find a child future's layout in a table keyed by
// exactly this type (see AsKey). Descriptor intentionally does not use
// debug/dwarf's own dwarf.Type tree: that tree collapses tags it does not
// model (notably DW_TAG_reference_type, which Rust emits for `&T`) into an
// UnsupportedType that drops the pointee, so construction instead walks
// raw dwarf.Entry nodes via internal/dwarfx.
package typedesc

import (
	"debug/dwarf"
	"fmt"
	"strings"

	"github.com/aclements/taskscope/internal/dwarfx"
)

// Kind discriminates the variants of Descriptor.
type Kind int

const (
	Unknown Kind = iota
	Void
	Array
	Pointer
	Reference
	Named
)

// Descriptor is a normalized target type. The zero value is Unknown.
//
// Array, Pointer and Reference carry their element/pointee in Elem (and,
// for Array, a Count); Named carries a fully qualified path in Path.
type Descriptor struct {
	Kind  Kind
	Elem  *Descriptor
	Count uint64
	Path  string
}

func (d *Descriptor) String() string {
	if d == nil {
		return "<unknown>"
	}
	switch d.Kind {
	case Void:
		return "void"
	case Array:
		return fmt.Sprintf("[%s; %d]", d.Elem, d.Count)
	case Pointer:
		return "*" + d.Elem.String()
	case Reference:
		return "&" + d.Elem.String()
	case Named:
		return d.Path
	default:
		return "<unknown>"
	}
}

// Equal reports whether d and o describe the same shape.
func (d *Descriptor) Equal(o *Descriptor) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.Kind != o.Kind || d.Count != o.Count || d.Path != o.Path {
		return false
	}
	return d.Elem.Equal(o.Elem)
}

// Key is a hashable, comparable projection of a Descriptor, usable as a
// map key where the Descriptor itself cannot be (it contains a pointer,
// so two independently-built-but-equal Descriptors are distinct pointers).
type Key string

// AsKey returns the map key for d; future_types and similar tables should
// be keyed by AsKey(ty), never by *Descriptor.
func AsKey(d *Descriptor) Key {
	return Key(d.str())
}

func (d *Descriptor) str() string {
	if d == nil {
		return "<unknown>"
	}
	switch d.Kind {
	case Void:
		return "void"
	case Array:
		return fmt.Sprintf("[%s;%d]", d.Elem.str(), d.Count)
	case Pointer:
		return "*" + d.Elem.str()
	case Reference:
		return "&" + d.Elem.str()
	case Named:
		return "=" + d.Path
	default:
		return "<unknown>"
	}
}

// Resolver turns DWARF type offsets into Descriptors, memoizing by
// offset (type graphs are DAGs in practice — the same struct type is
// referenced from many members — so this also bounds the work to one
// pass per distinct type in the unit).
type Resolver struct {
	d     *dwarf.Data
	cache map[dwarf.Offset]*Descriptor
}

func NewResolver(d *dwarf.Data) *Resolver {
	return &Resolver{d: d, cache: make(map[dwarf.Offset]*Descriptor)}
}

// ResolveAttr resolves the type referenced by attribute a (normally
// dwarf.AttrType) on e, returning Unknown if the attribute is absent —
// "a missing type node becomes Unknown" (spec.md §4.A).
func (r *Resolver) ResolveAttr(e *dwarf.Entry, a dwarf.Attr) *Descriptor {
	off, ok := dwarfx.Offset(e, a)
	if !ok {
		return &Descriptor{Kind: Unknown}
	}
	return r.Resolve(off)
}

// Resolve returns the Descriptor for the type at DWARF offset off.
func (r *Resolver) Resolve(off dwarf.Offset) *Descriptor {
	if d, ok := r.cache[off]; ok {
		return d
	}
	// Break cycles conservatively: install a placeholder before
	// recursing. Target-language future/type graphs are not cyclic
	// (spec.md §9), but malformed debug info should degrade, not loop.
	placeholder := &Descriptor{Kind: Unknown}
	r.cache[off] = placeholder
	desc := r.resolveUncached(off)
	*placeholder = *desc
	r.cache[off] = desc
	return desc
}

func (r *Resolver) resolveUncached(off dwarf.Offset) *Descriptor {
	entry, err := dwarfx.ReadAt(r.d, off)
	if err != nil {
		return &Descriptor{Kind: Unknown}
	}
	return r.fromEntry(entry)
}

func (r *Resolver) fromEntry(e dwarfx.Entry) *Descriptor {
	switch e.Tag {
	case dwarf.TagConstType, dwarf.TagVolatileType, dwarf.TagRestrictType,
		dwarfx.TagPackedType, dwarfx.TagAtomicType, dwarfx.TagSharedType:
		// Modifiers are transparent.
		return r.ResolveAttr(e.Entry, dwarf.AttrType)

	case dwarf.TagPointerType:
		return &Descriptor{Kind: Pointer, Elem: r.ResolveAttr(e.Entry, dwarf.AttrType)}

	case dwarfx.TagReferenceType, dwarfx.TagRvalueReferenceType:
		return &Descriptor{Kind: Reference, Elem: r.ResolveAttr(e.Entry, dwarf.AttrType)}

	case dwarf.TagArrayType:
		return r.fromArray(e)

	case dwarf.TagSubroutineType:
		return &Descriptor{Kind: Named, Path: r.funcSignature(e)}

	case dwarf.TagBaseType, dwarf.TagTypedef, dwarf.TagEnumerationType,
		dwarf.TagStructType, dwarf.TagUnionType, dwarf.TagClassType,
		dwarf.TagUnspecifiedType:
		name, ok := dwarfx.OptStr(e.Entry, dwarf.AttrName)
		if !ok {
			return &Descriptor{Kind: Unknown}
		}
		return &Descriptor{Kind: Named, Path: name}

	case dwarf.TagVoidType:
		return &Descriptor{Kind: Void}

	default:
		return &Descriptor{Kind: Unknown}
	}
}

// fromArray handles DW_TAG_array_type, whose element count lives on a
// child DW_TAG_subrange_type rather than on the array entry itself.
// "Fixed-count arrays with a single known length become Array{elem,
// count}; unknown-count arrays become Unknown" (spec.md §4.A).
func (r *Resolver) fromArray(e dwarfx.Entry) *Descriptor {
	elem := r.ResolveAttr(e.Entry, dwarf.AttrType)

	subranges := dwarfx.Children(e.Kids, dwarf.TagSubrangeType)
	if len(subranges) != 1 {
		return &Descriptor{Kind: Unknown}
	}
	sub := subranges[0]
	if count, ok := dwarfx.Uint(sub.Entry, dwarf.AttrCount); ok {
		return &Descriptor{Kind: Array, Elem: elem, Count: count}
	}
	// DWARF often expresses length as an inclusive upper bound instead
	// of a count.
	if upper, ok := dwarfx.Uint(sub.Entry, dwarf.AttrUpperBound); ok {
		return &Descriptor{Kind: Array, Elem: elem, Count: upper + 1}
	}
	return &Descriptor{Kind: Unknown}
}

// funcSignature lowers a DW_TAG_subroutine_type to the stable,
// human-readable canonicalization "fn(T1,T2,...) -> R" named in
// spec.md §4.A. GDB and similar debuggers have no syntax to reconstruct a
// function type from scratch, so this is purely descriptive.
func (r *Resolver) funcSignature(e dwarfx.Entry) string {
	var params []string
	for _, p := range dwarfx.Children(e.Kids, dwarf.TagFormalParameter) {
		params = append(params, r.ResolveAttr(p.Entry, dwarf.AttrType).String())
	}

	var b strings.Builder
	b.WriteString("fn(")
	b.WriteString(strings.Join(params, ","))
	b.WriteString(")")
	if ret := r.ResolveAttr(e.Entry, dwarf.AttrType); ret.Kind != Unknown {
		b.WriteString(" -> ")
		b.WriteString(ret.String())
	}
	return b.String()
}
