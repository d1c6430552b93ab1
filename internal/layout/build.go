// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"debug/dwarf"
	"fmt"
	"sort"
	"strings"

	"github.com/aclements/taskscope/internal/dwarfx"
	"github.com/aclements/taskscope/internal/typedesc"
)

// Build walks every compile unit in d and produces the DebugModel
// described by spec.md §3-§4.B: every recognized async-fn and combinator
// future, the executor's task-header layout, and every task pool.
// SafepointAddresses is left empty; internal/safepoint fills it in
// separately (component C runs over the same debug info but is kept a
// distinct pass, matching spec.md's component split).
func Build(d *dwarf.Data) (*DebugModel, error) {
	b := &builder{d: d, res: typedesc.NewResolver(d)}
	if err := b.scan(); err != nil {
		return nil, err
	}
	return b.assemble()
}

type poolCandidate struct {
	taskPath   string
	holderType dwarf.Offset
	addr       uint64
	hasAddr    bool
}

type builder struct {
	d   *dwarf.Data
	res *typedesc.Resolver

	structs    []dwarfx.Entry
	pools      []poolCandidate
	taskHeader *dwarfx.Entry
}

func (b *builder) scan() error {
	r := b.d.Reader()
	for {
		cu, err := r.Next()
		if err != nil {
			return fmt.Errorf("layout: reading compile unit: %w", err)
		}
		if cu == nil {
			break
		}
		if cu.Tag != dwarf.TagCompileUnit {
			if cu.Children {
				if err := skipSiblings(r); err != nil {
					return err
				}
			}
			continue
		}
		kids, err := dwarfx.ReadTree(r, cu)
		if err != nil {
			return fmt.Errorf("layout: reading compile unit subtree: %w", err)
		}
		b.walk(kids, nil)
	}
	return nil
}

func skipSiblings(r *dwarf.Reader) error {
	for {
		e, err := r.Next()
		if err != nil {
			return err
		}
		if e == nil || e.Tag == 0 {
			return nil
		}
		if e.Children {
			if err := skipSiblings(r); err != nil {
				return err
			}
		}
	}
}

// walk recurses through a subtree collecting structs, task-pool holder
// variables, and the task-header struct, threading a namespace-path
// stack for variables (type names are already fully qualified by
// rustc, so types never consult ns — see basename's doc comment).
func (b *builder) walk(entries []dwarfx.Entry, ns []string) {
	for _, e := range entries {
		switch e.Tag {
		case dwarf.TagNamespace:
			name := dwarfx.Str(e.Entry, dwarf.AttrName)
			b.walk(e.Kids, append(ns, name))

		case dwarf.TagStructType, dwarf.TagUnionType:
			path := dwarfx.Str(e.Entry, dwarf.AttrName)
			if path != "" {
				b.structs = append(b.structs, e)
				if path == taskHeaderPath {
					ee := e
					b.taskHeader = &ee
				}
			}
			b.walk(e.Kids, ns)

		case dwarf.TagVariable:
			b.scanVariable(e, ns)
			b.walk(e.Kids, ns)

		default:
			if len(e.Kids) > 0 {
				b.walk(e.Kids, ns)
			}
		}
	}
}

func (b *builder) scanVariable(e dwarfx.Entry, ns []string) {
	if dwarfx.Str(e.Entry, dwarf.AttrName) != poolHolderName {
		return
	}
	typeOff, ok := dwarfx.Offset(e.Entry, dwarf.AttrType)
	if !ok {
		return
	}
	typeDesc := b.res.Resolve(typeOff)
	if typeDesc.Kind != typedesc.Named || !strings.HasPrefix(basename(typeDesc.Path), poolHolderTypePrefix) {
		return
	}
	cand := poolCandidate{taskPath: strings.Join(ns, "::"), holderType: typeOff}
	if locBytes, ok := dwarfx.Loc(e.Entry, dwarf.AttrLocation); ok {
		if addr, ok := dwarfx.EvalAddr(locBytes, 4); ok {
			cand.addr, cand.hasAddr = addr, true
		} else if addr, ok := dwarfx.EvalAddr(locBytes, 8); ok {
			cand.addr, cand.hasAddr = addr, true
		}
	}
	b.pools = append(b.pools, cand)
}

func (b *builder) assemble() (*DebugModel, error) {
	model := &DebugModel{FutureTypes: make(map[typedesc.Key]*FutureType)}

	for _, s := range b.structs {
		path := dwarfx.Str(s.Entry, dwarf.AttrName)
		selfKey := typedesc.AsKey(&typedesc.Descriptor{Kind: typedesc.Named, Path: path})
		switch kind, isCombinator := combinatorKindOf(path); {
		case isAsyncFnName(path):
			afl, err := b.buildAsyncFn(s)
			if err != nil {
				// spec.md §7: a malformed coroutine layout is a Fatal
				// model error and must surface to the caller, not be
				// swallowed — the ground truth propagates this with
				// `?` (AsyncFnType::from_ddbug_type).
				return nil, fmt.Errorf("layout: building async fn %s: %w", path, err)
			}
			model.FutureTypes[selfKey] = &FutureType{Kind: KindAsyncFn, AsyncFn: afl}

		case isCombinator:
			cl, err := b.buildCombinator(s, kind)
			if err != nil {
				continue
			}
			fk := KindSelect
			if kind == JoinLike {
				fk = KindJoin
			}
			model.FutureTypes[selfKey] = &FutureType{Kind: fk, Combinator: cl}
		}
	}

	if b.taskHeader == nil {
		return nil, fmt.Errorf("layout: no %s struct found in debug info", taskHeaderPath)
	}
	headerLayout, err := b.buildTaskHeader(*b.taskHeader)
	if err != nil {
		return nil, err
	}

	for _, pc := range b.pools {
		pool, err := b.buildTaskPool(pc, headerLayout, model)
		if err != nil {
			// spec.md §7.2: a specific task pool's future type not
			// found is a recoverable gap, not fatal to construction.
			continue
		}
		model.TaskPools = append(model.TaskPools, *pool)
	}

	sort.SliceStable(model.TaskPools, func(i, j int) bool {
		return model.TaskPools[i].FutureLayout.TotalSize > model.TaskPools[j].FutureLayout.TotalSize
	})

	return model, nil
}

func (b *builder) buildTaskHeader(e dwarfx.Entry) (TaskHeaderLayout, error) {
	for _, m := range dwarfx.Children(e.Kids, dwarf.TagMember) {
		if dwarfx.Str(m.Entry, dwarf.AttrName) != taskHeaderStateField {
			continue
		}
		off, _ := dwarfx.Uint(m.Entry, dwarf.AttrDataMemberLoc)
		typeOff, _ := dwarfx.Offset(m.Entry, dwarf.AttrType)
		size := dwarfx.TypeSize(b.d, typeOff)
		if size != 1 && size != 4 {
			return TaskHeaderLayout{}, fmt.Errorf("layout: %s.state has width %d, want 1 or 4", taskHeaderPath, size)
		}
		return TaskHeaderLayout{StateOffset: off, StateWidth: size}, nil
	}
	return TaskHeaderLayout{}, fmt.Errorf("layout: %s has no %q field", taskHeaderPath, taskHeaderStateField)
}
