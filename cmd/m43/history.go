package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chazu/m43/tracestore"
)

// ---------------------------------------------------------------------------
// m43 history
// ---------------------------------------------------------------------------

func handleHistoryCommand(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	n := fs.Int("n", 20, "Number of runs to list")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: m43 history [-n count] [file.m43]\n\n")
		fmt.Fprintf(os.Stderr, "Lists recent runs, or the runs of one program when a file is given.\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	m := loadProject()
	path, err := m.TraceDatabase()
	if err != nil {
		fatal("%v", err)
	}
	if path == "" {
		fatal("run history is disabled in m43.toml")
	}
	store, err := tracestore.Open(path)
	if err != nil {
		fatal("%v", err)
	}
	defer store.Close()

	ctx := context.Background()
	var runs []tracestore.Run
	if file := fs.Arg(0); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			fatal("%v", err)
		}
		runs, err = store.ForDigest(ctx, tracestore.Digest(string(data)))
		if err != nil {
			fatal("%v", err)
		}
		if len(runs) > *n {
			runs = runs[:*n]
		}
	} else {
		runs, err = store.Recent(ctx, *n)
		if err != nil {
			fatal("%v", err)
		}
	}
	printRuns(os.Stdout, runs)
}

// printRuns writes one line per run, newest first.
func printRuns(w io.Writer, runs []tracestore.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	for _, r := range runs {
		outcome := r.Outcome
		if r.Fault != 0 {
			outcome = fmt.Sprintf("%s(%d)", r.Outcome, r.Fault)
		}
		digest := r.Digest
		if len(digest) > 10 {
			digest = digest[:10]
		}
		fmt.Fprintf(w, "%4d  %s  %-10s  %-12s %6d steps  %s  %s\n",
			r.ID, r.At.Format("2006-01-02 15:04:05"), digest, outcome, r.Steps, r.Name,
			strings.Join(r.Output, " "))
	}
}
