// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gdbpipe is a reference controller.Adapter that drives a real
// gdb (or gdb-multiarch) subprocess in MI batch mode over a pipe. It
// exists to prove controller.Adapter is implementable against a real
// debugger, the same role the original tool's gdb_backend plays against
// its Callback trait — translated here from an in-process PyO3
// extension to a separate process spoken to over stdin/stdout, since Go
// has no equivalent of embedding gdb's Python interpreter.
package gdbpipe

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/aclements/taskscope/internal/typedesc"
)

// Adapter drives one gdb subprocess across the lifetime of a session.
type Adapter struct {
	objectFile string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader

	mu    sync.Mutex
	token int
}

// Start launches gdb (or an alternative binary such as gdb-multiarch,
// selected via binary) against objectFile with extraArgs appended to
// its argv — the shape cmd/taskscope builds from -gdb-args by splitting
// the flag's value with go-shellquote, exactly as a shell would.
func Start(ctx context.Context, binary, objectFile string, extraArgs []string) (*Adapter, error) {
	args := append([]string{"--interpreter=mi2", "--batch-silent", "--quiet", objectFile}, extraArgs...)
	cmd := exec.CommandContext(ctx, binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("gdbpipe: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("gdbpipe: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("gdbpipe: starting %s: %w", binary, err)
	}
	return &Adapter{
		objectFile: objectFile,
		cmd:        cmd,
		stdin:      stdin,
		stdout:     bufio.NewReader(stdout),
	}, nil
}

// Close terminates the gdb subprocess.
func (a *Adapter) Close() error {
	a.stdin.Close()
	return a.cmd.Wait()
}

// resultRecord is one MI "^class,results" line's parsed form. Only the
// fields taskscope needs are extracted; everything else is left in raw
// for ad hoc field lookups.
type resultRecord struct {
	class string
	raw   string
}

var fieldRE = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_-]*)="((?:[^"\\]|\\.)*)"`)

func (r resultRecord) field(name string) (string, bool) {
	for _, m := range fieldRE.FindAllStringSubmatch(r.raw, -1) {
		if m[1] == name {
			return unescapeMI(m[2]), true
		}
	}
	return "", false
}

func unescapeMI(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	s = strings.ReplaceAll(s, `\n`, "\n")
	return s
}

// send writes one MI command and blocks until the matching result
// record (the "^done"/"^error"/"^running" line terminating the command,
// per the GDB/MI spec's token-correlation rule) arrives, skipping
// asynchronous and console-stream records in between.
func (a *Adapter) send(cmd string) (resultRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.token++
	tok := a.token
	line := fmt.Sprintf("%d%s\n", tok, cmd)
	if _, err := io.WriteString(a.stdin, line); err != nil {
		return resultRecord{}, fmt.Errorf("gdbpipe: writing command: %w", err)
	}

	prefix := strconv.Itoa(tok)
	for {
		raw, err := a.stdout.ReadString('\n')
		if err != nil {
			return resultRecord{}, fmt.Errorf("gdbpipe: reading response: %w", err)
		}
		raw = strings.TrimRight(raw, "\r\n")
		rest, ok := strings.CutPrefix(raw, prefix)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(rest, "^done"):
			return resultRecord{class: "done", raw: rest}, nil
		case strings.HasPrefix(rest, "^running"):
			return resultRecord{class: "running", raw: rest}, nil
		case strings.HasPrefix(rest, "^error"):
			msg, _ := resultRecord{raw: rest}.field("msg")
			return resultRecord{}, fmt.Errorf("gdbpipe: %s: %s", cmd, msg)
		}
	}
}

func (a *Adapter) ObjectFiles() ([]string, error) {
	return []string{a.objectFile}, nil
}

func (a *Adapter) SetBreakpoint(addr uint64) (uint64, error) {
	r, err := a.send(fmt.Sprintf("-break-insert *0x%x", addr))
	if err != nil {
		return 0, err
	}
	num, ok := r.field("number")
	if !ok {
		return 0, fmt.Errorf("gdbpipe: -break-insert response missing bkpt number")
	}
	id, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("gdbpipe: parsing breakpoint number %q: %w", num, err)
	}
	return id, nil
}

func (a *Adapter) Resume() error {
	_, err := a.send("-exec-continue")
	return err
}

func (a *Adapter) ReadMemory(addr, length uint64) ([]byte, error) {
	r, err := a.send(fmt.Sprintf("-data-read-memory-bytes 0x%x %d", addr, length))
	if err != nil {
		return nil, err
	}
	contents, ok := r.field("contents")
	if !ok {
		return nil, fmt.Errorf("gdbpipe: -data-read-memory-bytes response missing contents")
	}
	b, err := hex.DecodeString(contents)
	if err != nil {
		return nil, fmt.Errorf("gdbpipe: decoding memory contents: %w", err)
	}
	return b, nil
}

// TryFormatValue always declines: formatting a value through gdb's own
// pretty-printers requires a live frame/register context this adapter
// does not track, unlike the original gdb_backend which runs inside
// gdb's own process and always has one. taskscope's text presenter
// falls back to its own raw rendering in that case.
func (a *Adapter) TryFormatValue(bytes []byte, ty *typedesc.Descriptor) (string, bool) {
	return "", false
}
