package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/chazu/m43/tracestore"
	"github.com/chazu/m43/vm"
)

// ---------------------------------------------------------------------------
// m43 run
// ---------------------------------------------------------------------------

func handleRunCommand(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	demo := fs.Bool("demo", false, "Run the built-in sample program (displays \"+\", then stops with fault 2)")
	limit := fs.Int("limit", -1, "Step limit (0 = unbounded, default from m43.toml)")
	noTrace := fs.Bool("no-trace", false, "Don't record the run in the history")
	profile := fs.Bool("profile", false, "Print per-cell execution counts to stderr")
	verbosity := fs.Int("v", 0, "Log verbosity (1 = info, 2 = debug)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: m43 run [options] [file.m43]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a program. Output goes to stdout, one line per print or display.\n")
		fmt.Fprintf(os.Stderr, "The exit status is the fault code, 0 when the program halts.\n")
		fmt.Fprintf(os.Stderr, "The built-in sample adds with a single stored value, so -demo exits with 2.\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	m := loadProject()
	configureLogging(m, *verbosity)

	prog, err := loadProgram(m, fs.Arg(0), *demo)
	if err != nil {
		fatal("%v", err)
	}
	if *limit < 0 {
		*limit = m.Debug.StepLimit
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := stepOptions(*limit)
	var prof *vm.Profiler
	if *profile {
		prof = vm.NewProfiler()
		opts = append(opts, vm.WithProfiler(prof))
	}

	in := lineInput(bufio.NewScanner(os.Stdin), os.Stderr)
	res := runProgram(ctx, prog, in, os.Stdout, opts...)

	if prof != nil {
		stats := prof.Stats()
		fmt.Fprintf(os.Stderr, "%d cells executed %d times, %d hot\n", stats.CellsVisited, stats.Visits, stats.HotCells)
		fmt.Fprint(os.Stderr, prof.RenderHeat(prog.grid))
	}

	if !*noTrace {
		if store := openTraces(m); store != nil {
			if _, err := store.Record(context.Background(), res.run(prog)); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
			store.Close()
		}
	}

	if res.err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v (after %d steps)\n", prog.name, res.err, res.steps)
		if f, ok := vm.FaultOf(res.err); ok {
			os.Exit(int(f.Code()))
		}
		os.Exit(1)
	}
}

// runResult is what a finished run leaves behind.
type runResult struct {
	output []string
	steps  int
	err    error
}

func (r runResult) run(p *program) tracestore.Run {
	return tracestore.NewRun(p.name, p.source, r.steps, r.output, r.err)
}

// runProgram runs p to completion, writing each output to w as its own line.
func runProgram(ctx context.Context, p *program, in vm.InputFunc, w io.Writer, opts ...vm.Option) runResult {
	var res runResult
	out := func(text string) {
		res.output = append(res.output, text)
		fmt.Fprintln(w, text)
	}
	interp, err := vm.NewInterpreter(p.grid, in, out, opts...)
	if err != nil {
		res.err = err
		return res
	}
	res.err = interp.RunContext(ctx)
	res.steps = interp.Steps()
	return res
}
