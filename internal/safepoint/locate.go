// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package safepoint implements spec.md component C: locating the
// instruction address(es) at which the executor has finished polling
// every ready task — the only moment a consistent snapshot of task
// memory can be taken.
package safepoint

import (
	"debug/dwarf"
	"fmt"
	"strings"

	"github.com/aclements/taskscope/internal/dwarfx"
)

const (
	closureNameMarker    = "{closure"
	executorClassMarker  = "SyncExecutor"
	executorRawPrefix    = "embassy_executor::raw"
	pollSuffix           = "poll"
	linkageNameAttr      = dwarf.Attr(0x6e) // DW_AT_linkage_name
)

// Locate runs the algorithm of spec.md §4.C over every compile unit in
// d and returns every discovered safepoint address. window is W, the
// architecture's return-prologue window subtracted from a single-range
// candidate's end address (spec.md §6, §9 Open Question 1; callers
// should pass DefaultReturnPrologueWindow from internal/layout unless
// the target architecture is known to need something else).
//
// A nil, nil result means no safepoint was found — spec.md §7.2 treats
// this as a recoverable model gap, not an error; callers are expected
// to log it themselves.
func Locate(d *dwarf.Data, window uint64) ([]uint64, error) {
	var cus [][]dwarfx.Entry
	r := d.Reader()
	for {
		cu, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("safepoint: reading compile unit: %w", err)
		}
		if cu == nil {
			break
		}
		if cu.Tag != dwarf.TagCompileUnit {
			continue
		}
		kids, err := dwarfx.ReadTree(r, cu)
		if err != nil {
			return nil, fmt.Errorf("safepoint: reading compile unit subtree: %w", err)
		}
		cus = append(cus, kids)
	}

	var candidates []dwarfx.Entry
	for _, kids := range cus {
		collectCandidates(kids, nil, &candidates)
	}

	var addrs []uint64
	for _, c := range candidates {
		if _, high, ok := addrRange(c.Entry); ok {
			addrs = append(addrs, high-window)
			continue
		}
		if !isInline(c.Entry) {
			continue
		}
		origin := c.Offset
		for _, kids := range cus {
			searchInlined(d, kids, origin, &addrs)
		}
	}
	return addrs, nil
}

// collectCandidates finds every DW_TAG_subprogram matching spec.md
// §4.C step 1, threading a namespace-path stack the same way
// internal/layout does for task-pool holder variables.
func collectCandidates(entries []dwarfx.Entry, ns []string, out *[]dwarfx.Entry) {
	for _, e := range entries {
		switch e.Tag {
		case dwarf.TagNamespace:
			name := dwarfx.Str(e.Entry, dwarf.AttrName)
			collectCandidates(e.Kids, append(ns, name), out)
			continue

		case dwarf.TagSubprogram:
			if isCandidate(e.Entry, ns) {
				*out = append(*out, e)
			}
		}
		if len(e.Kids) > 0 {
			collectCandidates(e.Kids, ns, out)
		}
	}
}

func isCandidate(e *dwarf.Entry, ns []string) bool {
	name := dwarfx.Str(e, dwarf.AttrName)
	if !strings.Contains(name, closureNameMarker) {
		return false
	}
	linkage := dwarfx.Str(e, linkageNameAttr)
	if !strings.Contains(linkage, executorClassMarker) {
		return false
	}
	nsPath := strings.Join(ns, "::")
	return strings.HasPrefix(nsPath, executorRawPrefix) && strings.HasSuffix(nsPath, pollSuffix)
}

func isInline(e *dwarf.Entry) bool {
	v, ok := dwarfx.Int(e, dwarf.AttrInline)
	return ok && v != 0
}

// addrRange reads a DW_TAG_subprogram's or DW_TAG_inlined_subroutine's
// address range. DW_AT_high_pc is either an absolute address (class
// address, decoded by debug/dwarf as uint64) or an offset from low_pc
// (class constant, decoded as int64) depending on the producer; both
// forms are handled.
func addrRange(e *dwarf.Entry) (low, high uint64, ok bool) {
	lv, lok := e.Val(dwarf.AttrLowpc).(uint64)
	if !lok {
		return 0, 0, false
	}
	switch hv := e.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		return lv, hv, true
	case int64:
		return lv, lv + uint64(hv), true
	default:
		return 0, 0, false
	}
}

// searchInlined implements spec.md §4.C step 3: recursively walk every
// function's inlined-function tree for inlinings whose abstract origin
// is the candidate, emitting range.end for every range whose begin is
// not 0 (a known debug-info artifact) and recursing into nested
// inlinings regardless of whether this entry matched.
func searchInlined(d *dwarf.Data, entries []dwarfx.Entry, origin dwarf.Offset, out *[]uint64) {
	for _, e := range entries {
		if e.Tag == dwarf.TagInlinedSubroutine {
			if ao, ok := dwarfx.Offset(e.Entry, dwarf.AttrAbstractOrigin); ok && ao == origin {
				// d.Ranges covers both a low_pc/high_pc pair and a
				// DW_AT_ranges list.
				ranges, err := d.Ranges(e.Entry)
				if err == nil {
					for _, rg := range ranges {
						if rg[0] != 0 {
							*out = append(*out, rg[1])
						}
					}
				}
			}
		}
		searchInlined(d, e.Kids, origin, out)
	}
}
