// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command taskscope reconstructs and prints the live async-task state of
// an embedded firmware image from its DWARF debug info: every spawned
// task's coroutine frame, decoded down to the await point it is
// currently suspended at.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	shellwords "github.com/kballard/go-shellquote"

	"github.com/aclements/taskscope/internal/adapter/gdbpipe"
	"github.com/aclements/taskscope/internal/adapter/sim"
	"github.com/aclements/taskscope/internal/controller"
	"github.com/aclements/taskscope/internal/present/text"
)

func main() {
	var (
		simFlag    = flag.Bool("sim", false, "run against an empty simulated target instead of a debugger (for trying out the tool against an image with no live process)")
		gdbFlag    = flag.String("gdb", "", "path to a gdb (or gdb-multiarch) binary to drive over a pipe; default \"gdb\" if -sim is not given")
		gdbArgs    = flag.String("gdb-args", "", "extra arguments to pass to the gdb subprocess, shell-quoted")
		windowFlag = flag.Uint64("w", 0, "architecture return-prologue window in bytes, subtracted from a safepoint candidate's end address (0 uses the built-in default)")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] firmware.elf\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	objectFile := flag.Arg(0)

	adapter, closeFn, err := makeAdapter(objectFile, *simFlag, *gdbFlag, *gdbArgs)
	if err != nil {
		log.Fatal(err)
	}
	if closeFn != nil {
		defer closeFn()
	}

	c, err := controller.Construct(adapter, controller.Options{Window: *windowFlag})
	if err != nil {
		log.Fatal(err)
	}

	printer := text.New(os.Stdout)
	c.Handle(controller.Event{Kind: controller.Redraw}, printer)
}

// makeAdapter picks the controller.Adapter implied by the flags: -sim
// for the in-memory reference target, otherwise a gdb subprocess (the
// binary named by -gdb, or plain "gdb" if that flag is empty).
func makeAdapter(objectFile string, useSim bool, gdbBinary, gdbArgsStr string) (controller.Adapter, func(), error) {
	if useSim {
		return sim.New(objectFile, 0, nil), nil, nil
	}

	if gdbBinary == "" {
		gdbBinary = "gdb"
	}
	var extraArgs []string
	if gdbArgsStr != "" {
		args, err := shellwords.Split(gdbArgsStr)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing -gdb-args: %w", err)
		}
		extraArgs = args
	}

	a, err := gdbpipe.Start(context.Background(), gdbBinary, objectFile, extraArgs)
	if err != nil {
		return nil, nil, err
	}
	return a, func() { a.Close() }, nil
}
