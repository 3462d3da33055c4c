package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/m43/pkg/parser"
)

// ---------------------------------------------------------------------------
// m43 fmt: canonical program formatter
// ---------------------------------------------------------------------------

// Format returns program text in canonical form, comments included.
func Format(source string) (string, error) {
	return parser.Format(source)
}

func handleFmtCommand(args []string) {
	checkMode := false
	var files []string

	for _, arg := range args {
		if arg == "--check" {
			checkMode = true
		} else if arg == "--help" || arg == "-h" {
			fmt.Fprintf(os.Stderr, "Usage: m43 fmt [--check] <files or directories...>\n\n")
			fmt.Fprintf(os.Stderr, "Format m43 programs to canonical style.\n\n")
			fmt.Fprintf(os.Stderr, "Options:\n")
			fmt.Fprintf(os.Stderr, "  --check   Check formatting without modifying files.\n")
			fmt.Fprintf(os.Stderr, "            Exits with code 1 if any files need formatting.\n\n")
			fmt.Fprintf(os.Stderr, "If no files are given, formats all .m43 files below the current directory.\n")
			os.Exit(0)
		} else {
			files = append(files, arg)
		}
	}

	if len(files) == 0 {
		files = []string{"."}
	}

	sources, err := collectSourceFiles(files)
	if err != nil {
		fatal("%v", err)
	}
	if len(sources) == 0 {
		fmt.Fprintf(os.Stderr, "No .m43 files found\n")
		os.Exit(0)
	}

	anyChanged := false
	for _, path := range sources {
		changed, err := formatFile(path, checkMode)
		if err != nil {
			fatal("formatting %s: %v", path, err)
		}
		if changed {
			anyChanged = true
		}
	}

	if checkMode && anyChanged {
		os.Exit(1)
	}
}

// formatFile formats a single program file.
// In check mode, returns true if the file would be changed.
// Otherwise, rewrites the file in place and returns true if it changed.
func formatFile(path string, checkMode bool) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	original := string(content)
	formatted, err := Format(original)
	if err != nil {
		return false, fmt.Errorf("parse error: %w", err)
	}
	if original == formatted {
		return false, nil
	}

	if checkMode {
		fmt.Printf("would format: %s\n", path)
		return true, nil
	}

	if err := os.WriteFile(path, []byte(formatted), 0644); err != nil {
		return false, err
	}
	fmt.Printf("formatted: %s\n", path)
	return true, nil
}

// collectSourceFiles resolves paths to a flat list of .m43 files.
// Directories are walked recursively, skipping hidden ones.
func collectSourceFiles(paths []string) ([]string, error) {
	var result []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %q: %w", p, err)
		}
		if !info.IsDir() {
			result = append(result, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(path, ".m43") {
				result = append(result, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}
