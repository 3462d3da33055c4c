// Package tracestore keeps a history of finished program runs in SQLite,
// keyed by a content digest of the program text.
package tracestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/tliron/commonlog"
	"github.com/zeebo/blake3"

	"github.com/chazu/m43/vm"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound indicates the requested run doesn't exist.
var ErrRunNotFound = errors.New("run not found")

var log = commonlog.GetLogger("m43.tracestore")

// Digest returns the printable content digest of program text.
func Digest(source string) string {
	sum := blake3.Sum256([]byte(source))
	return base58.Encode(sum[:])
}

// Run is one recorded execution.
type Run struct {
	ID      int64
	Digest  string
	Name    string
	Outcome string // "halted", "failed" or "paused"
	Fault   uint8  // 0 unless Outcome is "failed" or "paused"
	Steps   int
	Output  []string
	At      time.Time
}

// NewRun describes the outcome of a run. err is the value returned by Run.
func NewRun(name, source string, steps int, output []string, err error) Run {
	r := Run{
		Digest:  Digest(source),
		Name:    name,
		Outcome: "halted",
		Steps:   steps,
		Output:  output,
		At:      time.Now(),
	}
	if err != nil {
		r.Outcome = "failed"
		if f, ok := vm.FaultOf(err); ok {
			r.Fault = f.Code()
			if f == vm.FaultPaused {
				r.Outcome = "paused"
			}
		}
	}
	return r
}

// Store handles SQLite storage for runs.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		digest  TEXT NOT NULL,
		name    TEXT NOT NULL,
		outcome TEXT NOT NULL,
		fault   INTEGER NOT NULL,
		steps   INTEGER NOT NULL,
		output  TEXT NOT NULL,
		at      INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS runs_digest ON runs (digest)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index: %w", err)
	}
	return &Store{db: db}, nil
}

// DefaultPath is ~/.m43/runs.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}
	return filepath.Join(home, ".m43", "runs.db"), nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record persists a run and returns its ID.
func (s *Store) Record(ctx context.Context, r Run) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	output, err := json.Marshal(r.Output)
	if err != nil {
		return 0, fmt.Errorf("encoding output: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (digest, name, outcome, fault, steps, output, at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		r.Digest, r.Name, r.Outcome, r.Fault, r.Steps, string(output), r.At.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("saving run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("saving run: %w", err)
	}
	log.Debugf("recorded run %d for %s (%s)", id, r.Digest, r.Outcome)
	return id, nil
}

// Get loads one run by ID.
func (s *Store) Get(ctx context.Context, id int64) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, digest, name, outcome, fault, steps, output, at FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return r, err
}

// ForDigest lists the runs of one program, newest first.
func (s *Store) ForDigest(ctx context.Context, digest string) ([]Run, error) {
	return s.query(ctx,
		"SELECT id, digest, name, outcome, fault, steps, output, at FROM runs WHERE digest = ? ORDER BY id DESC",
		digest)
}

// Recent lists up to limit runs of any program, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	return s.query(ctx,
		"SELECT id, digest, name, outcome, fault, steps, output, at FROM runs ORDER BY id DESC LIMIT ?",
		limit)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r      Run
		output string
		at     int64
	)
	if err := sc.Scan(&r.ID, &r.Digest, &r.Name, &r.Outcome, &r.Fault, &r.Steps, &output, &at); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(output), &r.Output); err != nil {
		return Run{}, fmt.Errorf("decoding output of run %d: %w", r.ID, err)
	}
	r.At = time.Unix(0, at)
	return r, nil
}
