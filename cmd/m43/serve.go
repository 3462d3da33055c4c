package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chazu/m43/server"
)

// ---------------------------------------------------------------------------
// m43 serve / m43 lsp
// ---------------------------------------------------------------------------

func handleServeCommand(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", 0, "Port to listen on (default from m43.toml, else 4343)")
	limit := fs.Int("limit", -1, "Per-session step limit (default from m43.toml, else 1000000)")
	ttl := fs.Duration("session-ttl", 30*time.Minute, "Close sessions idle for this long")
	verbosity := fs.Int("v", 0, "Log verbosity (1 = info, 2 = debug)")
	fs.Parse(args)

	m := loadProject()
	configureLogging(m, *verbosity)

	if *port == 0 {
		*port = m.Server.Port
	}
	opts := []server.ServerOption{server.WithSessionTTL(*ttl)}
	if *limit < 0 && m.Debug.StepLimit > 0 {
		*limit = m.Debug.StepLimit
	}
	if *limit >= 0 {
		opts = append(opts, server.WithStepLimit(*limit))
	}
	if store := openTraces(m); store != nil {
		defer store.Close()
		opts = append(opts, server.WithTraceStore(store))
	}

	srv := server.New(opts...)
	defer srv.Stop()
	if err := srv.ListenAndServe(fmt.Sprintf(":%d", *port)); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func handleLspCommand(args []string) {
	fs := flag.NewFlagSet("lsp", flag.ExitOnError)
	verbosity := fs.Int("v", 0, "Log verbosity (1 = info, 2 = debug)")
	fs.Parse(args)

	// stdout carries the protocol, so logs go to the manifest's file or stderr.
	configureLogging(loadProject(), *verbosity)

	if err := server.NewLSP().Run(); err != nil {
		fmt.Fprintf(os.Stderr, "LSP error: %v\n", err)
		os.Exit(1)
	}
}
