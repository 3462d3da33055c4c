// m43 CLI - run, format and debug m43 grid programs
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/m43/manifest"
	"github.com/chazu/m43/pkg/parser"
	"github.com/chazu/m43/tracestore"
	"github.com/chazu/m43/vm"

	_ "github.com/tliron/commonlog/simple"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: m43 <command> [options] [file.m43]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run      Run a program to completion\n")
	fmt.Fprintf(os.Stderr, "  debug    Step through a program interactively\n")
	fmt.Fprintf(os.Stderr, "  fmt      Rewrite programs in canonical form\n")
	fmt.Fprintf(os.Stderr, "  serve    Start the debug service (Connect HTTP/JSON)\n")
	fmt.Fprintf(os.Stderr, "  lsp      Start the language server on stdio\n")
	fmt.Fprintf(os.Stderr, "  history  List recorded runs\n")
	fmt.Fprintf(os.Stderr, "\nWithout a file, the program named in m43.toml is used.\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  m43 run -demo                 # Run the built-in sample (exits 2)\n")
	fmt.Fprintf(os.Stderr, "  m43 debug -break 4,4 prog.m43 # Pause when the cursor reaches cell 4\n")
	fmt.Fprintf(os.Stderr, "  m43 fmt --check .             # Report unformatted files\n")
	fmt.Fprintf(os.Stderr, "  m43 serve -port 8080          # Serve debug sessions on :8080\n")
	fmt.Fprintf(os.Stderr, "\nRun 'm43 <command> -h' for command options.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "run":
		handleRunCommand(args)
	case "debug":
		handleDebugCommand(args)
	case "fmt":
		handleFmtCommand(args)
	case "serve":
		handleServeCommand(args)
	case "lsp":
		handleLspCommand(args)
	case "history":
		handleHistoryCommand(args)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

// fatal prints an error and exits with status 1.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// ---------------------------------------------------------------------------
// Project setup shared by the commands
// ---------------------------------------------------------------------------

// loadProject finds m43.toml above the working directory, falling back to
// defaults when there is none.
func loadProject() *manifest.Manifest {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fatal("%v", err)
	}
	if m == nil {
		m = manifest.Default()
	}
	return m
}

// configureLogging applies the manifest's log settings. A non-zero
// verbosity flag overrides the manifest.
func configureLogging(m *manifest.Manifest, verbosity int) {
	if verbosity == 0 {
		verbosity = m.Log.Verbosity
	}
	commonlog.Configure(verbosity, m.LogPath())
}

// program is loaded program text plus the name runs are recorded under.
type program struct {
	name   string
	source string
	grid   vm.Grid
}

// loadProgram reads and parses path. With demo set, the built-in sample is
// used instead; with an empty path the manifest's program is used.
func loadProgram(m *manifest.Manifest, path string, demo bool) (*program, error) {
	if demo {
		return &program{name: "demo", source: parser.Unparse(vm.DemoProgram), grid: vm.DemoProgram}, nil
	}

	name := path
	if path == "" {
		path = m.SourcePath()
		name = m.Program.Name
		if name == "" {
			name = m.Program.Source
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := parser.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &program{name: name, source: string(data), grid: g}, nil
}

// openTraces opens the run history, or returns nil when it is disabled or
// unavailable. History is best effort and never stops a run.
func openTraces(m *manifest.Manifest) *tracestore.Store {
	path, err := m.TraceDatabase()
	if err != nil || path == "" {
		return nil
	}
	store, err := tracestore.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: run history unavailable: %v\n", err)
		return nil
	}
	return store
}

// stepOptions turns the configured step limit into interpreter options.
func stepOptions(limit int) []vm.Option {
	if limit <= 0 {
		return nil
	}
	return []vm.Option{vm.WithStepLimit(limit)}
}

// lineInput answers Set-from-input cells by prompting on w and reading one
// integer per line from sc.
func lineInput(sc *bufio.Scanner, w io.Writer) vm.InputFunc {
	return func(prompt string) (vm.Value, error) {
		fmt.Fprintf(w, "%s ", prompt)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return 0, err
			}
			return 0, io.ErrUnexpectedEOF
		}
		n, err := strconv.ParseInt(strings.TrimSpace(sc.Text()), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %w", err)
		}
		return vm.Value(n), nil
	}
}

// parseBreakpoints reads a comma separated flat endpoint list, e.g. "2,2,5,7".
func parseBreakpoints(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var flat []int
	for _, field := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("bad breakpoint %q", field)
		}
		flat = append(flat, n)
	}
	if _, err := vm.PairBreakpoints(flat); err != nil {
		return nil, err
	}
	return flat, nil
}
