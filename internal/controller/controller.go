// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package controller implements spec.md component E: the single
// stateful orchestrator that owns the live DebugModel, drives the
// Adapter through safepoint breakpoints, and republishes a snapshot of
// every task pool's values to a Presenter on every relevant event.
package controller

import (
	"fmt"
	"log"

	"github.com/aclements/taskscope/internal/layout"
	"github.com/aclements/taskscope/internal/reify"
	"github.com/aclements/taskscope/internal/safepoint"
	"github.com/aclements/taskscope/internal/typedesc"
)

// Adapter is the capability interface the core consumes (spec.md §6),
// translated field-for-field from the original Rust Callback trait:
// get_objectfiles, set_breakpoint, resume, read_memory,
// try_format_value. Implementations may be a simulated in-memory
// target (internal/adapter/sim) or a real debugger driven over a pipe
// (internal/adapter/gdbpipe).
type Adapter interface {
	ObjectFiles() ([]string, error)
	SetBreakpoint(addr uint64) (id uint64, err error)
	Resume() error
	ReadMemory(addr, length uint64) ([]byte, error)
	// TryFormatValue returns "", false if unsupported or bytes are
	// malformed; never an error, per spec.md §6.
	TryFormatValue(bytes []byte, ty *typedesc.Descriptor) (string, bool)
}

// Presenter is the interface the core exposes (spec.md §6): after
// handling each event, the controller re-renders through it. format is
// bound to the controller's formatting cache (spec.md §4.E).
type Presenter interface {
	Render(pools []TaskPoolValue, format FormatFunc)
}

// FormatFunc formats bytes by type, backed by the controller's cache.
type FormatFunc func(bytes []byte, ty *typedesc.Descriptor) (string, bool)

// TaskPoolValue is one task pool's reified values, the shape Handle
// publishes to the Presenter.
type TaskPoolValue struct {
	Pool   *layout.TaskPool
	Values []reify.TaskValue
}

// EventKind discriminates the members of the Event union (spec.md §6).
type EventKind int

const (
	Redraw EventKind = iota
	Click
	Scroll
	Breakpoint
	Stopped
)

type MouseButton int

const (
	Left MouseButton = iota
	Middle
	Right
)

// Event is the union the Presenter/host produces.
type Event struct {
	Kind EventKind

	// Click
	X, Y   int
	Button MouseButton

	// Scroll
	Delta int32

	// Breakpoint
	BreakpointID uint64
}

// Logger receives recoverable-gap and per-snapshot warnings (spec.md
// §7 kinds 2-3), kept as a small injected interface — as
// rtcheck/rtanalysis thread a *log.Logger through their analysis
// passes — rather than calling the log package directly, so
// Controller stays testable without capturing global output.
type Logger interface {
	Warnf(format string, args ...any)
}

// StdLogger backs Logger with the standard log package.
type StdLogger struct{}

func (StdLogger) Warnf(format string, args ...any) { log.Printf("warning: "+format, args...) }

// Controller is the only stateful orchestrator (spec.md §4.E). The
// zero value is not usable; construct with Construct.
type Controller struct {
	adapter Adapter
	logger  Logger

	model        *layout.DebugModel
	breakpoints  map[uint64]bool
	lastSnapshot []TaskPoolValue

	cache map[cacheKey]cacheEntry
}

type cacheKey struct {
	bytes string
	ty    typedesc.Key
}

type cacheEntry struct {
	text string
	ok   bool
}

// Window is the return-prologue window passed to safepoint.Locate; it
// defaults to layout.DefaultReturnPrologueWindow but is exposed here so
// cmd/taskscope's -w flag can override it per spec.md §9 Open Question 1.
type Options struct {
	Logger Logger
	Window uint64
}

// Construct builds the DebugModel from the adapter's first object file,
// installs a breakpoint at every discovered safepoint, and takes an
// initial snapshot (spec.md §4.E).
func Construct(adapter Adapter, opts Options) (*Controller, error) {
	if opts.Logger == nil {
		opts.Logger = StdLogger{}
	}
	if opts.Window == 0 {
		opts.Window = layout.DefaultReturnPrologueWindow
	}

	files, err := adapter.ObjectFiles()
	if err != nil {
		return nil, fmt.Errorf("controller: listing object files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("controller: adapter reported no object files")
	}

	d, err := openDWARF(files[0])
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	model, err := layout.Build(d)
	if err != nil {
		return nil, fmt.Errorf("controller: building debug model: %w", err)
	}

	addrs, err := safepoint.Locate(d, opts.Window)
	if err != nil {
		return nil, fmt.Errorf("controller: locating safepoints: %w", err)
	}
	if len(addrs) == 0 {
		opts.Logger.Warnf("no safepoint found; snapshots will only refresh on other stop events")
	}
	model.SafepointAddresses = addrs

	c := &Controller{
		adapter:     adapter,
		logger:      opts.Logger,
		model:       model,
		breakpoints: make(map[uint64]bool),
	}
	for _, addr := range addrs {
		id, err := adapter.SetBreakpoint(addr)
		if err != nil {
			return nil, fmt.Errorf("controller: setting breakpoint at %#x: %w", addr, err)
		}
		c.breakpoints[id] = true
	}

	c.takeSnapshot()
	return c, nil
}

// Model returns the controller's immutable DebugModel.
func (c *Controller) Model() *layout.DebugModel { return c.model }

// Handle dispatches one event per spec.md §4.E and re-renders through
// presenter.
func (c *Controller) Handle(ev Event, presenter Presenter) {
	switch ev.Kind {
	case Redraw, Click, Scroll:
		// No memory access.
	case Breakpoint:
		c.takeSnapshot()
		if c.breakpoints[ev.BreakpointID] {
			if err := c.adapter.Resume(); err != nil {
				c.logger.Warnf("resume after breakpoint %#x: %v", ev.BreakpointID, err)
			}
		}
	case Stopped:
		c.takeSnapshot()
	}
	presenter.Render(c.lastSnapshot, c.format)
}

// takeSnapshot implements spec.md §4.E: clear cache and last values,
// read each pool's region in one call, reify, push the result. A
// per-pool read error is logged and that pool skipped.
func (c *Controller) takeSnapshot() {
	c.cache = make(map[cacheKey]cacheEntry)
	snapshot := make([]TaskPoolValue, 0, len(c.model.TaskPools))
	for i := range c.model.TaskPools {
		pool := &c.model.TaskPools[i]
		bytes, err := c.adapter.ReadMemory(pool.Address, pool.TotalSize)
		if err != nil {
			c.logger.Warnf("reading task pool %s: %v", pool.Path, err)
			continue
		}
		values := reify.ReifyTaskPool(pool, bytes, c.model.FutureTypes)
		snapshot = append(snapshot, TaskPoolValue{Pool: pool, Values: values})
	}
	c.lastSnapshot = snapshot
}

// format backs the controller's (bytes, TypeDescriptor) -> formatted
// string cache (spec.md §4.E's "Cache policy"): consulted only within
// the current snapshot generation, since takeSnapshot clears it.
func (c *Controller) format(bytes []byte, ty *typedesc.Descriptor) (string, bool) {
	key := cacheKey{bytes: string(bytes), ty: typedesc.AsKey(ty)}
	if e, ok := c.cache[key]; ok {
		return e.text, e.ok
	}
	text, ok := c.adapter.TryFormatValue(bytes, ty)
	c.cache[key] = cacheEntry{text: text, ok: ok}
	return text, ok
}
