// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sim is an in-memory simulated controller.Adapter: a flat byte
// buffer standing in for target RAM, with deterministic breakpoint IDs.
// It backs cmd/taskscope's -sim mode, the same role a hand-written fake
// plays in rtcheck/rtanalysis's tests —
// no mocking framework, just a small real implementation of the
// interface under test.
package sim

import (
	"fmt"

	"github.com/aclements/taskscope/internal/typedesc"
)

// Adapter is a simulated target: a contiguous memory window starting at
// Base, plus whatever object file Construct should parse.
type Adapter struct {
	ObjectFile string
	Base       uint64
	Mem        []byte

	breakpoints  []uint64
	resumeCalls  int
}

// New returns an Adapter whose simulated RAM is [base, base+len(mem)).
func New(objectFile string, base uint64, mem []byte) *Adapter {
	return &Adapter{ObjectFile: objectFile, Base: base, Mem: mem}
}

func (a *Adapter) ObjectFiles() ([]string, error) {
	return []string{a.ObjectFile}, nil
}

// SetBreakpoint returns a 1-based sequential ID, unique per call, as
// spec.md §6 requires ("opaque 64-bit ID, unique per call") without
// mandating any particular scheme.
func (a *Adapter) SetBreakpoint(addr uint64) (uint64, error) {
	a.breakpoints = append(a.breakpoints, addr)
	return uint64(len(a.breakpoints)), nil
}

// Breakpoints returns every address passed to SetBreakpoint, in order —
// used by tests to assert the controller installed what Locate found.
func (a *Adapter) Breakpoints() []uint64 { return append([]uint64(nil), a.breakpoints...) }

func (a *Adapter) Resume() error {
	a.resumeCalls++
	return nil
}

// ResumeCalls returns how many times Resume has been called.
func (a *Adapter) ResumeCalls() int { return a.resumeCalls }

func (a *Adapter) ReadMemory(addr, length uint64) ([]byte, error) {
	if addr < a.Base || addr+length > a.Base+uint64(len(a.Mem)) {
		return nil, fmt.Errorf("sim: read [%#x,%#x) out of simulated range [%#x,%#x)",
			addr, addr+length, a.Base, a.Base+uint64(len(a.Mem)))
	}
	off := addr - a.Base
	out := make([]byte, length)
	copy(out, a.Mem[off:off+length])
	return out, nil
}

// TryFormatValue declines every request: a deliberately minimal
// reference adapter has no user-type formatter of its own, matching
// spec.md §6's "may return none if unsupported".
func (a *Adapter) TryFormatValue(bytes []byte, ty *typedesc.Descriptor) (string, bool) {
	return "", false
}
