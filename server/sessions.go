package server

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/m43/vm"
)

var (
	errWorkerStopped = errors.New("server is shutting down")
	errNoInput       = errors.New("no input queued")
)

// Session is one debugger bound to the program text it was opened with.
// Everything except ID, Name and Source belongs to the worker goroutine.
type Session struct {
	ID     string
	Name   string
	Source string

	debugger   *vm.Debugger
	input      []vm.Value
	output     []string // produced since the last drain
	transcript []string // everything the program printed
	recorded   bool

	lastUsed atomic.Int64 // unix nanos
}

func (s *Session) read(string) (vm.Value, error) {
	if len(s.input) == 0 {
		return 0, errNoInput
	}
	v := s.input[0]
	s.input = s.input[1:]
	return v, nil
}

func (s *Session) write(text string) {
	s.output = append(s.output, text)
	s.transcript = append(s.transcript, text)
}

// drain returns and forgets the output produced since the previous call.
func (s *Session) drain() []string {
	out := s.output
	s.output = nil
	return out
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// SessionStore manages open debug sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	nextID   atomic.Uint64
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

// Create opens a debugger on g and registers it under a fresh ID.
// Queued input feeds Set cells that read from input.
func (s *SessionStore) Create(name, source string, g vm.Grid, breakpoints []int, input []vm.Value, opts ...vm.Option) (*Session, error) {
	session := &Session{
		ID:     fmt.Sprintf("s-%d", s.nextID.Add(1)),
		Name:   name,
		Source: source,
		input:  append([]vm.Value(nil), input...),
	}
	d, err := vm.NewDebugger(g, session.read, session.write, breakpoints, opts...)
	if err != nil {
		return nil, err
	}
	session.debugger = d
	session.touch()

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

// Get retrieves a session by ID and marks it as used.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if ok {
		session.touch()
	}
	return session, ok
}

// Destroy removes a session. It reports whether the session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len returns the number of open sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions that haven't been used within the TTL.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl).UnixNano()
	removed := 0
	for id, session := range s.sessions {
		if session.lastUsed.Load() < cutoff {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(ttl); n > 0 {
					log.Infof("closed %d idle sessions", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
