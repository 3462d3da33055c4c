// Package manifest handles m43.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/m43/tracestore"
	"github.com/chazu/m43/vm"
)

// FileName is the name of the project file.
const FileName = "m43.toml"

// Manifest represents an m43.toml project configuration.
type Manifest struct {
	Program Program      `toml:"program"`
	Debug   DebugConfig  `toml:"debug"`
	Server  ServerConfig `toml:"server"`
	Log     LogConfig    `toml:"log"`
	Trace   TraceConfig  `toml:"trace"`

	// Dir is the directory containing the m43.toml file (set at load time).
	Dir string `toml:"-"`
}

// Program names the program the project runs.
type Program struct {
	Name   string `toml:"name"`
	Source string `toml:"source"`
}

// DebugConfig configures debugger sessions.
type DebugConfig struct {
	// Breakpoints is the flat endpoint list passed to vm.NewDebugger.
	Breakpoints []int `toml:"breakpoints"`
	StepLimit   int   `toml:"step-limit"`
}

// ServerConfig configures the debug service.
type ServerConfig struct {
	Port int `toml:"port"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// TraceConfig configures the run history database.
type TraceConfig struct {
	Database string `toml:"database"`
	Disabled bool   `toml:"disabled"`
}

// Default returns the configuration used when no m43.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses an m43.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if _, err := vm.PairBreakpoints(m.Debug.Breakpoints); err != nil {
		return nil, fmt.Errorf("%s: debug.breakpoints: %w", path, err)
	}
	if m.Debug.StepLimit < 0 {
		return nil, fmt.Errorf("%s: debug.step-limit must not be negative", path)
	}

	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find an m43.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) applyDefaults() {
	if m.Program.Source == "" {
		m.Program.Source = "main.m43"
	}
	if m.Server.Port == 0 {
		m.Server.Port = 4343
	}
}

// SourcePath returns the absolute path of the program source.
func (m *Manifest) SourcePath() string {
	if filepath.IsAbs(m.Program.Source) || m.Dir == "" {
		return m.Program.Source
	}
	return filepath.Join(m.Dir, m.Program.Source)
}

// LogPath returns the log file path, or nil to log to stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.Log.File
	if !filepath.IsAbs(p) && m.Dir != "" {
		p = filepath.Join(m.Dir, p)
	}
	return &p
}

// TraceDatabase returns the run history path, falling back to ~/.m43/runs.db.
// It returns "" when tracing is disabled.
func (m *Manifest) TraceDatabase() (string, error) {
	if m.Trace.Disabled {
		return "", nil
	}
	if m.Trace.Database == "" {
		return tracestore.DefaultPath()
	}
	if filepath.IsAbs(m.Trace.Database) || m.Dir == "" {
		return m.Trace.Database, nil
	}
	return filepath.Join(m.Dir, m.Trace.Database), nil
}
