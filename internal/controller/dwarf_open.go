// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package controller

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
)

// openDWARF opens an object file and pulls its DWARF data exactly the
// way ptype and dumptype do: elf.Open followed by f.DWARF(). taskscope
// only ever inspects firmware images built for embedded targets, which
// are always ELF (the only other teacher-era tool, obj/internal/obj,
// abstracts over multiple object formats for a generic disassembler;
// this repository's subject matter does not need that generality).
func openDWARF(path string) (*dwarf.Data, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	d, err := f.DWARF()
	if err != nil {
		return nil, fmt.Errorf("reading DWARF from %s: %w", path, err)
	}
	return d, nil
}
