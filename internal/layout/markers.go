// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import "strings"

// Recognized markers, verbatim from spec.md §6 ("Recognized markers
// (exact-match, case-sensitive)"). Apart from the MaybeDone variant names
// matched in combinator.go (Future, Done, Gone), these are the only names
// this package hardcodes; everything else about a struct/variable/
// function's shape is derived from its DWARF entry.
var coroutinePrefixes = []string{
	"gen_block", "gen_closure", "gen_fn",
	"async_block", "async_closure", "async_fn",
	"async_gen_block", "async_gen_closure", "async_gen_fn",
}

const (
	stateFieldName   = "__state"
	awaiteeFieldName = "__awaitee"

	taskHeaderPath       = "embassy_executor::raw::TaskHeader"
	taskHeaderStateField = "state"

	executorRawPrefix    = "embassy_executor::raw"
	executorClassMarker  = "SyncExecutor"

	selectNamespace = "embassy_futures::select"
	joinNamespace   = "embassy_futures::join"

	poolHolderName       = "POOL"
	poolHolderTypePrefix = "TaskPoolHolder"
	poolTypePrefix       = "TaskPool<"
	slotFutureMember     = "future"

	// DefaultReturnPrologueWindow is W from spec.md §6/§9 Open Question
	// 1: the number of bytes a single-range safepoint's end address is
	// stepped back by, to land on the instruction before the executor's
	// return prologue rather than past it. 4 is the value the original
	// hardcodes for 32-bit embedded targets; internal/safepoint exposes
	// it as a parameter rather than repeating that assumption silently.
	DefaultReturnPrologueWindow = 4
)

var selectPrefixes = []string{"SelectArray", "Select3", "Select4", "Select"}
var joinPrefixes = []string{"JoinArray", "Join3", "Join4", "Join"}

// basename returns the unqualified tail of a fully qualified path, the
// part marker matching always operates on — rustc emits struct/enum
// DW_AT_name values that already include the full module path, unlike
// variables and functions which need a DW_TAG_namespace parent walk.
func basename(path string) string {
	if i := strings.LastIndex(path, "::"); i >= 0 {
		return path[i+2:]
	}
	return path
}

func namespaceOf(path string) string {
	if i := strings.LastIndex(path, "::"); i >= 0 {
		return path[:i]
	}
	return ""
}

// stripGenerics drops a trailing `<...>` type-argument list, so
// "Select3<A,B,C>" matches the "Select3" prefix marker.
func stripGenerics(name string) string {
	if i := strings.IndexByte(name, '<'); i >= 0 {
		return name[:i]
	}
	return name
}

// trimSigil drops at most one leading non-identifier byte, the "leading
// sigil character" spec.md allows for compiler-specific prefixing of
// coroutine struct names (e.g. a closure-numbering marker).
func trimSigil(name string) string {
	if name == "" {
		return name
	}
	c := name[0]
	isIdent := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
	if isIdent {
		return name
	}
	return name[1:]
}

func isAsyncFnName(path string) bool {
	b := trimSigil(basename(path))
	for _, p := range coroutinePrefixes {
		if strings.HasPrefix(b, p) {
			return true
		}
	}
	return false
}

// combinatorKindOf reports the combinator kind a struct's fully
// qualified path names, if any.
func combinatorKindOf(path string) (CombinatorKind, bool) {
	ns := namespaceOf(path)
	base := stripGenerics(basename(path))
	switch ns {
	case selectNamespace:
		for _, p := range selectPrefixes {
			if strings.HasPrefix(base, p) {
				return SelectLike, true
			}
		}
	case joinNamespace:
		for _, p := range joinPrefixes {
			if strings.HasPrefix(base, p) {
				return JoinLike, true
			}
		}
	}
	return 0, false
}

func isArrayForm(path string) bool {
	return strings.HasSuffix(stripGenerics(basename(path)), "Array")
}
