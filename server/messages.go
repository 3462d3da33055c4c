package server

import (
	"github.com/chazu/m43/vm"
)

// Request and response messages of m43.v1.DebugService. They travel as JSON
// with field names in lowerCamelCase.

type OpenRequest struct {
	Name        string     `json:"name,omitempty"`
	Source      string     `json:"source"`
	Breakpoints []int      `json:"breakpoints,omitempty"` // flat endpoint pairs
	Input       []vm.Value `json:"input,omitempty"`
}

type OpenResponse struct {
	SessionID   string          `json:"sessionId"`
	State       vm.Snapshot     `json:"state"`
	Breakpoints []vm.Breakpoint `json:"breakpoints"`
	Grid        string          `json:"grid"`
}

type StepRequest struct {
	SessionID string     `json:"sessionId"`
	Input     []vm.Value `json:"input,omitempty"`
}

type RunRequest struct {
	SessionID string     `json:"sessionId"`
	Input     []vm.Value `json:"input,omitempty"`
}

// ExecResponse reports the outcome of Step and Run. Fault is the numeric
// fault code, zero when the call succeeded.
type ExecResponse struct {
	State  vm.Snapshot `json:"state"`
	Output []string    `json:"output,omitempty"`
	Paused bool        `json:"paused,omitempty"`
	Fault  uint8       `json:"fault,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type StateRequest struct {
	SessionID string `json:"sessionId"`
}

type StateResponse struct {
	State       vm.Snapshot     `json:"state"`
	Breakpoints []vm.Breakpoint `json:"breakpoints"`
	Grid        string          `json:"grid"`
	Paused      bool            `json:"paused,omitempty"`
}

// BreakRequest adds the inclusive range [From, To], or removes breakpoint
// Remove when it is non-zero.
type BreakRequest struct {
	SessionID string `json:"sessionId"`
	From      int    `json:"from,omitempty"`
	To        int    `json:"to,omitempty"`
	Remove    int    `json:"remove,omitempty"`
}

type BreakResponse struct {
	ID          int             `json:"id,omitempty"`
	Breakpoints []vm.Breakpoint `json:"breakpoints"`
}

type CloseRequest struct {
	SessionID string `json:"sessionId"`
}

type CloseResponse struct {
	Steps  int      `json:"steps"`
	Status string   `json:"status"`
	Output []string `json:"output,omitempty"` // everything the program printed
}
