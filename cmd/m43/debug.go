package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chazu/m43/tracestore"
	"github.com/chazu/m43/vm"
	"github.com/chazu/m43/vm/wire"
)

// ---------------------------------------------------------------------------
// m43 debug: interactive stepping debugger
// ---------------------------------------------------------------------------

func handleDebugCommand(args []string) {
	fs := flag.NewFlagSet("debug", flag.ExitOnError)
	demo := fs.Bool("demo", false, "Debug the built-in sample program")
	breaks := fs.String("break", "", "Breakpoint ranges as a flat list, e.g. 2,2,5,7")
	load := fs.String("load", "", "Resume a session saved with 'save'")
	limit := fs.Int("limit", -1, "Step limit (0 = unbounded, default from m43.toml)")
	verbosity := fs.Int("v", 0, "Log verbosity (1 = info, 2 = debug)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: m43 debug [options] [file.m43]\n\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nType 'help' at the prompt for commands.\n")
	}
	fs.Parse(args)

	m := loadProject()
	configureLogging(m, *verbosity)
	if *limit < 0 {
		*limit = m.Debug.StepLimit
	}

	sc := bufio.NewScanner(os.Stdin)
	r := &debugREPL{
		sc:     sc,
		out:    os.Stdout,
		opts:   stepOptions(*limit),
		traces: openTraces(m),
	}
	if r.traces != nil {
		defer r.traces.Close()
	}

	if *load != "" {
		if err := r.load(*load); err != nil {
			fatal("%v", err)
		}
	} else {
		prog, err := loadProgram(m, fs.Arg(0), *demo)
		if err != nil {
			fatal("%v", err)
		}
		flat := m.Debug.Breakpoints
		if *breaks != "" {
			if flat, err = parseBreakpoints(*breaks); err != nil {
				fatal("%v", err)
			}
		}
		if err := r.open(prog, flat); err != nil {
			fatal("%v", err)
		}
	}

	r.loop()
}

// debugREPL reads debugger commands line by line. Program input is read
// from the same scanner.
type debugREPL struct {
	prog     *program
	d        *vm.Debugger
	output   []string
	recorded bool

	sc     *bufio.Scanner
	out    io.Writer
	opts   []vm.Option
	traces *tracestore.Store
}

func (r *debugREPL) write(text string) {
	r.output = append(r.output, text)
	fmt.Fprintf(r.out, "out: %s\n", text)
}

// open starts a fresh debugger on prog.
func (r *debugREPL) open(prog *program, breakpoints []int) error {
	d, err := vm.NewDebugger(prog.grid, lineInput(r.sc, r.out), r.write, breakpoints, r.opts...)
	if err != nil {
		return err
	}
	r.prog, r.d = prog, d
	r.output, r.recorded = nil, false
	return nil
}

// load resumes a saved session.
func (r *debugREPL) load(path string) error {
	s, err := wire.LoadSession(path)
	if err != nil {
		return err
	}
	d, err := s.Resume(lineInput(r.sc, r.out), r.write, r.opts...)
	if err != nil {
		return err
	}
	r.prog = &program{name: path, source: s.Source, grid: d.Grid()}
	r.d = d
	r.output, r.recorded = nil, false
	fmt.Fprintf(r.out, "resumed %s at step %d\n", path, d.Steps())
	return nil
}

func (r *debugREPL) loop() {
	fmt.Fprintf(r.out, "m43 debugger: %s (type 'help' for commands)\n", r.prog.name)
	for {
		fmt.Fprint(r.out, "(m43) ")
		if !r.sc.Scan() {
			fmt.Fprintln(r.out)
			return
		}
		if r.exec(r.sc.Text()) {
			return
		}
	}
}

// exec runs one command line and reports whether the session should end.
func (r *debugREPL) exec(line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "q", "exit":
		return true
	case "help", "h", "?":
		r.help()
	case "step", "s":
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 1 {
				fmt.Fprintf(r.out, "step count must be a positive integer\n")
				return false
			}
			n = v
		}
		var err error
		for i := 0; i < n && r.d.Status() == vm.Running; i++ {
			if err = r.d.Step(); err != nil {
				break
			}
		}
		r.report(err)
	case "run", "r", "continue", "c":
		r.report(r.d.RunContext(context.Background()))
	case "state", "st":
		r.printState()
	case "grid", "g":
		fmt.Fprint(r.out, vm.RenderGrid(r.d.Grid(), r.d.State().Pos))
	case "cell":
		r.describeCell()
	case "break", "b":
		r.breakCommand(args)
	case "delete", "enable", "disable":
		r.toggleCommand(cmd, args)
	case "save":
		if len(args) != 1 {
			fmt.Fprintf(r.out, "usage: save <path>\n")
			return false
		}
		if err := wire.SaveSession(args[0], wire.Capture(r.prog.source, r.d)); err != nil {
			fmt.Fprintf(r.out, "save failed: %v\n", err)
			return false
		}
		fmt.Fprintf(r.out, "saved to %s\n", args[0])
	case "load":
		if len(args) != 1 {
			fmt.Fprintf(r.out, "usage: load <path>\n")
			return false
		}
		if err := r.load(args[0]); err != nil {
			fmt.Fprintf(r.out, "load failed: %v\n", err)
		}
	default:
		fmt.Fprintf(r.out, "unknown command %q (type 'help')\n", cmd)
	}
	return false
}

func (r *debugREPL) help() {
	fmt.Fprintln(r.out, `Commands:
  step [n]          execute n steps (default 1), ignoring breakpoints
  run               run until halt, fault or breakpoint
  state             show direction, position, accumulator and storage
  grid              draw the grid with the cursor in brackets
  cell              describe the cell under the cursor
  break [a b]       add breakpoint range a..b, or list breakpoints
  delete|enable|disable <id>
  save <path>       save the session
  load <path>       resume a saved session
  quit`)
}

// report prints the outcome of a step or run.
func (r *debugREPL) report(err error) {
	snap := r.d.State()
	switch {
	case errors.Is(err, vm.FaultPaused):
		fmt.Fprintf(r.out, "paused at (%d,%d) position %d after %d steps\n", snap.X, snap.Y, snap.Pos, snap.Steps)
	case err != nil:
		fmt.Fprintf(r.out, "fault %d: %v\n", faultCode(err), err)
	case r.d.Status() == vm.Halted:
		fmt.Fprintf(r.out, "halted after %d steps\n", snap.Steps)
	default:
		fmt.Fprintf(r.out, "at (%d,%d) position %d, step %d\n", snap.X, snap.Y, snap.Pos, snap.Steps)
	}
	r.record()
}

// record adds a finished program to the run history once.
func (r *debugREPL) record() {
	if r.traces == nil || r.recorded || r.d.Status() == vm.Running {
		return
	}
	r.recorded = true
	run := tracestore.NewRun(r.prog.name, r.prog.source, r.d.Steps(), r.output, r.d.Err())
	if _, err := r.traces.Record(context.Background(), run); err != nil {
		fmt.Fprintf(r.out, "warning: %v\n", err)
	}
}

func (r *debugREPL) printState() {
	s := r.d.State()
	fmt.Fprintf(r.out, "status    %s\n", s.Status)
	fmt.Fprintf(r.out, "steps     %d\n", s.Steps)
	fmt.Fprintf(r.out, "position  %d (%d,%d) heading %s\n", s.Pos, s.X, s.Y, s.Dir)
	fmt.Fprintf(r.out, "value     %d\n", s.Val)
	fmt.Fprintf(r.out, "storage   %v\n", s.Storage[:s.Top])
	if err := r.d.Err(); err != nil {
		fmt.Fprintf(r.out, "fault     %v\n", err)
	}
}

func (r *debugREPL) describeCell() {
	s := r.d.State()
	cell := vm.Lookup(r.d.Grid(), vm.Coord{X: s.X, Y: s.Y})
	fmt.Fprintf(r.out, "%s: %s\n", vm.CellLabel(cell), vm.DescribeBlock(cell))
}

func (r *debugREPL) breakCommand(args []string) {
	if len(args) == 0 {
		bps := r.d.Breakpoints()
		if len(bps) == 0 {
			fmt.Fprintf(r.out, "no breakpoints\n")
		}
		for _, bp := range bps {
			state := "enabled"
			if !bp.Active {
				state = "disabled"
			}
			fmt.Fprintf(r.out, "%d: %d..%d %s\n", bp.ID, bp.From, bp.To, state)
		}
		return
	}
	if len(args) != 2 {
		fmt.Fprintf(r.out, "usage: break <from> <to>\n")
		return
	}
	from, err1 := strconv.Atoi(args[0])
	to, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		fmt.Fprintf(r.out, "breakpoint endpoints must be integers\n")
		return
	}
	id := r.d.AddBreakpoint(from, to)
	fmt.Fprintf(r.out, "breakpoint %d added\n", id)
}

func (r *debugREPL) toggleCommand(cmd string, args []string) {
	if len(args) != 1 {
		fmt.Fprintf(r.out, "usage: %s <id>\n", cmd)
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(r.out, "breakpoint id must be an integer\n")
		return
	}
	var done string
	switch cmd {
	case "delete":
		err, done = r.d.RemoveBreakpoint(id), "deleted"
	case "enable":
		err, done = r.d.EnableBreakpoint(id), "enabled"
	case "disable":
		err, done = r.d.DisableBreakpoint(id), "disabled"
	}
	if err != nil {
		fmt.Fprintf(r.out, "%v\n", err)
		return
	}
	fmt.Fprintf(r.out, "breakpoint %d %s\n", id, done)
}

func faultCode(err error) uint8 {
	if f, ok := vm.FaultOf(err); ok {
		return f.Code()
	}
	return 0
}
