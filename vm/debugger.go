package vm

import (
	"context"
	"fmt"
)

// ---------------------------------------------------------------------------
// Debugger: breakpoint-aware stepping over one grid and one state
// ---------------------------------------------------------------------------

// Debugger provides controlled, inspectable execution of a program.
// Breakpoints are inclusive ranges of linear cursor positions; Run stops with
// FaultPaused when the cursor lands inside any enabled range.
type Debugger struct {
	interp      *Interpreter
	breakpoints []Breakpoint
	nextID      int

	paused      bool
	pauseReason string
}

// Breakpoint is an inclusive range of cursor positions.
type Breakpoint struct {
	ID     int  `json:"id" cbor:"1,keyasint"`
	From   int  `json:"from" cbor:"2,keyasint"`
	To     int  `json:"to" cbor:"3,keyasint"`
	Active bool `json:"active" cbor:"4,keyasint"`
}

// Contains reports whether pos falls inside the range.
func (b Breakpoint) Contains(pos int) bool {
	return pos >= b.From && pos <= b.To
}

// ---------------------------------------------------------------------------
// Debugger creation
// ---------------------------------------------------------------------------

// NewDebugger builds a debugger for g. The breakpoints slice is a flat list
// of range endpoints and must have even length; each pair (from, to) is an
// inclusive range, normalised so that from <= to.
func NewDebugger(g Grid, in InputFunc, out OutputFunc, breakpoints []int, opts ...Option) (*Debugger, error) {
	pairs, err := PairBreakpoints(breakpoints)
	if err != nil {
		return nil, err
	}
	interp, err := NewInterpreter(g, in, out, opts...)
	if err != nil {
		return nil, err
	}
	d := &Debugger{interp: interp}
	for _, p := range pairs {
		d.AddBreakpoint(p[0], p[1])
	}
	return d, nil
}

// ResumeDebugger rebuilds a debugger from a snapshot taken by State, so a
// saved session continues exactly where it stopped.
func ResumeDebugger(g Grid, in InputFunc, out OutputFunc, breakpoints []int, snap Snapshot, opts ...Option) (*Debugger, error) {
	d, err := NewDebugger(g, in, out, breakpoints, opts...)
	if err != nil {
		return nil, err
	}
	if err := d.interp.restore(snap); err != nil {
		return nil, err
	}
	return d, nil
}

// PairBreakpoints splits a flat endpoint list into [from, to] pairs.
func PairBreakpoints(flat []int) ([][2]int, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("%w: got %d endpoints", FaultBadBreakpoints, len(flat))
	}
	pairs := make([][2]int, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		from, to := flat[i], flat[i+1]
		if from > to {
			from, to = to, from
		}
		pairs = append(pairs, [2]int{from, to})
	}
	return pairs, nil
}

// ---------------------------------------------------------------------------
// Breakpoint management
// ---------------------------------------------------------------------------

// AddBreakpoint adds an enabled range and returns its ID.
func (d *Debugger) AddBreakpoint(from, to int) int {
	if from > to {
		from, to = to, from
	}
	d.nextID++
	d.breakpoints = append(d.breakpoints, Breakpoint{
		ID:     d.nextID,
		From:   from,
		To:     to,
		Active: true,
	})
	return d.nextID
}

// RemoveBreakpoint deletes the breakpoint with the given ID.
func (d *Debugger) RemoveBreakpoint(id int) error {
	for i, bp := range d.breakpoints {
		if bp.ID == id {
			d.breakpoints = append(d.breakpoints[:i], d.breakpoints[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no breakpoint with id %d", id)
}

// EnableBreakpoint re-enables a disabled breakpoint.
func (d *Debugger) EnableBreakpoint(id int) error {
	return d.setActive(id, true)
}

// DisableBreakpoint keeps a breakpoint but stops it from pausing Run.
func (d *Debugger) DisableBreakpoint(id int) error {
	return d.setActive(id, false)
}

func (d *Debugger) setActive(id int, active bool) error {
	for i := range d.breakpoints {
		if d.breakpoints[i].ID == id {
			d.breakpoints[i].Active = active
			return nil
		}
	}
	return fmt.Errorf("no breakpoint with id %d", id)
}

// Breakpoints returns a copy of all breakpoints in insertion order.
func (d *Debugger) Breakpoints() []Breakpoint {
	return append([]Breakpoint(nil), d.breakpoints...)
}

// FlatBreakpoints returns the enabled ranges in the flat endpoint form
// accepted by NewDebugger.
func (d *Debugger) FlatBreakpoints() []int {
	flat := make([]int, 0, 2*len(d.breakpoints))
	for _, bp := range d.breakpoints {
		if bp.Active {
			flat = append(flat, bp.From, bp.To)
		}
	}
	return flat
}

// HasBreakpoint reports whether pos lies inside any enabled range.
func (d *Debugger) HasBreakpoint(pos int) bool {
	for _, bp := range d.breakpoints {
		if bp.Active && bp.Contains(pos) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Execution control
// ---------------------------------------------------------------------------

// Step executes exactly one interpreter step.
func (d *Debugger) Step() error {
	d.paused = false
	d.pauseReason = ""
	return d.interp.Step()
}

// Run steps until the program halts, fails, or the cursor lands on a
// breakpoint. At least one step is taken, so calling Run again after a pause
// moves on from the breakpoint instead of stopping on it twice.
func (d *Debugger) Run() error {
	return d.RunContext(context.Background())
}

// RunContext is Run with caller-driven cancellation between steps.
func (d *Debugger) RunContext(ctx context.Context) error {
	d.paused = false
	d.pauseReason = ""
	for {
		if err := ctx.Err(); err != nil {
			return &stepError{fault: FaultCancelled, at: d.interp.state.Coords, cause: err}
		}
		if err := d.interp.Step(); err != nil {
			return err
		}
		if d.interp.status != Running {
			return nil
		}
		if d.HasBreakpoint(d.interp.state.Pos) {
			d.paused = true
			d.pauseReason = "breakpoint"
			d.interp.log.Debugf("paused at %s", d.interp.state.Coords)
			return &stepError{fault: FaultPaused, at: d.interp.state.Coords}
		}
	}
}

// IsPaused reports whether the last Run stopped on a breakpoint.
func (d *Debugger) IsPaused() bool { return d.paused }

// PauseReason describes why the last Run stopped early.
func (d *Debugger) PauseReason() string { return d.pauseReason }

// Status returns the interpreter lifecycle state.
func (d *Debugger) Status() Status { return d.interp.status }

// Steps returns the number of steps executed so far.
func (d *Debugger) Steps() int { return d.interp.steps }

// Grid returns the program being debugged.
func (d *Debugger) Grid() Grid { return d.interp.grid }

// Err returns the fault that ended execution, or nil.
func (d *Debugger) Err() error { return d.interp.fault }

// State returns a read-only snapshot of the current execution state.
func (d *Debugger) State() Snapshot {
	return d.interp.snapshot()
}
