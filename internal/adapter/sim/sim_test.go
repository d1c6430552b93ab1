// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import "testing"

func TestObjectFiles(t *testing.T) {
	a := New("firmware.elf", 0, nil)
	files, err := a.ObjectFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "firmware.elf" {
		t.Errorf("ObjectFiles() = %v, want [firmware.elf]", files)
	}
}

func TestSetBreakpointIsSequentialAndUnique(t *testing.T) {
	a := New("fw.elf", 0, nil)
	id1, err := a.SetBreakpoint(0x100)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := a.SetBreakpoint(0x200)
	if err != nil {
		t.Fatal(err)
	}
	if id1 == id2 {
		t.Errorf("expected unique breakpoint ids, got %d twice", id1)
	}
	if got := a.Breakpoints(); len(got) != 2 || got[0] != 0x100 || got[1] != 0x200 {
		t.Errorf("Breakpoints() = %v, want [0x100 0x200]", got)
	}
}

func TestResumeCounts(t *testing.T) {
	a := New("fw.elf", 0, nil)
	a.Resume()
	a.Resume()
	if a.ResumeCalls() != 2 {
		t.Errorf("ResumeCalls() = %d, want 2", a.ResumeCalls())
	}
}

func TestReadMemoryInBounds(t *testing.T) {
	a := New("fw.elf", 0x1000, []byte{1, 2, 3, 4, 5})
	got, err := a.ReadMemory(0x1001, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{2, 3, 4}
	if string(got) != string(want) {
		t.Errorf("ReadMemory = %v, want %v", got, want)
	}
}

func TestReadMemoryOutOfBounds(t *testing.T) {
	a := New("fw.elf", 0x1000, []byte{1, 2, 3})
	if _, err := a.ReadMemory(0x2000, 1); err == nil {
		t.Error("expected an error reading outside the simulated window")
	}
	if _, err := a.ReadMemory(0x1000, 10); err == nil {
		t.Error("expected an error reading past the end of the simulated window")
	}
}

func TestReadMemoryReturnsACopy(t *testing.T) {
	mem := []byte{1, 2, 3}
	a := New("fw.elf", 0, mem)
	got, err := a.ReadMemory(0, 3)
	if err != nil {
		t.Fatal(err)
	}
	got[0] = 0xff
	if mem[0] != 1 {
		t.Error("ReadMemory should return a copy, not alias the backing memory")
	}
}

func TestTryFormatValueDeclines(t *testing.T) {
	a := New("fw.elf", 0, nil)
	if _, ok := a.TryFormatValue([]byte{1}, nil); ok {
		t.Error("sim adapter should never claim to format a value")
	}
}
