// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package text is a deliberately minimal reference controller.Presenter:
// it renders every task pool's reified values as an indented
// await-point backtrace to an io.Writer. It is not a page-stack TUI
// (spec.md's Non-goals exclude one); it exists to prove the
// Presenter/FormatFunc contract is usable end to end, the same way
// git-p/pager.go checks term.IsTerminal before deciding whether to
// engage a color path.
package text

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/aclements/taskscope/internal/controller"
	"github.com/aclements/taskscope/internal/reify"
)

// Printer renders to W. Color, if true, wraps pool paths, state names,
// combinator labels and the <uninit>/<unknown state> markers in ANSI SGR
// codes; type names are printed unstyled.
type Printer struct {
	W     io.Writer
	Color bool
}

// New returns a Printer writing to w. If w is a terminal file descriptor
// (checked via term.IsTerminal, as git-p does for its pager path),
// Color defaults on.
func New(w io.Writer) *Printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{W: w, Color: color}
}

const (
	sgrBold   = "\x1b[1m"
	sgrDim    = "\x1b[2m"
	sgrYellow = "\x1b[33m"
	sgrReset  = "\x1b[0m"
)

func (p *Printer) style(code, s string) string {
	if !p.Color {
		return s
	}
	return code + s + sgrReset
}

// Render implements controller.Presenter.
func (p *Printer) Render(pools []controller.TaskPoolValue, format controller.FormatFunc) {
	for i, tp := range pools {
		if i > 0 {
			fmt.Fprintln(p.W)
		}
		fmt.Fprintf(p.W, "%s (%d slots)\n", p.style(sgrBold, tp.Pool.Path), tp.Pool.SlotCount)
		for slot, v := range tp.Values {
			p.renderSlot(slot, v, format)
		}
	}
}

func (p *Printer) renderSlot(slot int, v reify.TaskValue, format controller.FormatFunc) {
	if !v.Init {
		fmt.Fprintf(p.W, "  [%d] %s\n", slot, p.style(sgrDim, "<uninit>"))
		return
	}
	fmt.Fprintf(p.W, "  [%d]\n", slot)
	p.renderFuture(v.Future, format, 2)
}

func (p *Printer) renderFuture(fv reify.FutureValue, format controller.FormatFunc, indent int) {
	pad := spaces(indent)
	switch fv.Kind {
	case reify.KindAsyncFn:
		p.renderAsyncFn(fv, format, indent)
	case reify.KindSelect, reify.KindJoin:
		label := "select"
		if fv.Kind == reify.KindJoin {
			label = "join"
		}
		fmt.Fprintf(p.W, "%s%s %s\n", pad, p.style(sgrYellow, label), fv.Type)
		for i, aw := range fv.Multi.Awaitees {
			fmt.Fprintf(p.W, "%s  branch %d:\n", pad, i)
			p.renderFuture(aw, format, indent+4)
		}
	default: // KindOpaque
		fmt.Fprintf(p.W, "%s%s", pad, fv.Type)
		if text, ok := format(fv.Bytes, fv.Type); ok {
			fmt.Fprintf(p.W, " = %s\n", text)
		} else {
			fmt.Fprintf(p.W, " (%d bytes)\n", len(fv.Bytes))
		}
	}
}

func (p *Printer) renderAsyncFn(fv reify.FutureValue, format controller.FormatFunc, indent int) {
	pad := spaces(indent)
	av := fv.Async
	if !av.Ok {
		fmt.Fprintf(p.W, "%s%s %s\n", pad, fv.Type, p.style(sgrDim, fmt.Sprintf("<unknown state %d>", av.Unknown)))
		return
	}
	st := av.State
	name := st.State.Name
	if name == "" {
		name = "?"
	}
	loc := ""
	if st.State.Source != nil {
		if s := st.State.Source.String(); s != "" {
			loc = " at " + s
		}
	}
	fmt.Fprintf(p.W, "%s%s::%s%s\n", pad, fv.Type, p.style(sgrBold, name), loc)
	for _, mv := range st.MemberValues {
		fmt.Fprintf(p.W, "%s  %s: %s", pad, mv.Member.Name, mv.Member.Type)
		if text, ok := format(mv.Bytes, mv.Member.Type); ok {
			fmt.Fprintf(p.W, " = %s", text)
		}
		fmt.Fprintln(p.W)
	}
	if st.Awaitee != nil {
		fmt.Fprintf(p.W, "%s  awaiting:\n", pad)
		p.renderFuture(*st.Awaitee, format, indent+4)
	}
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
