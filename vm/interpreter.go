package vm

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Host hooks
// ---------------------------------------------------------------------------

// InputFunc asks the host for a value. It is called synchronously.
type InputFunc func(prompt string) (Value, error)

// OutputFunc hands text to the host. It is called synchronously.
type OutputFunc func(text string)

// InputPrompt is the prompt passed to the input hook by Set cells.
const InputPrompt = "value?"

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// Status is the lifecycle state of an execution.
type Status uint8

const (
	Running Status = iota
	Halted
	Failed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ---------------------------------------------------------------------------
// Interpreter: single-step grid execution
// ---------------------------------------------------------------------------

// Interpreter owns the execution state of one program over a read-only grid.
// It is not safe for concurrent use.
type Interpreter struct {
	grid   Grid
	state  State
	status Status
	fault  error // sticky once status is Failed
	steps  int

	in  InputFunc
	out OutputFunc

	stepLimit int
	profiler  *Profiler
	log       commonlog.Logger
}

// Option configures an Interpreter or a Debugger.
type Option func(*Interpreter)

// WithLogger replaces the default "m43.vm" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(i *Interpreter) { i.log = log }
}

// WithStepLimit bounds the number of steps. Zero means unlimited.
func WithStepLimit(n int) Option {
	return func(i *Interpreter) { i.stepLimit = n }
}

// NewInterpreter prepares g for execution with the cursor on its Start cell.
// A grid without a Start cell is rejected with FaultMissingStart.
// Nil hooks are replaced by ones that discard output and fail input.
func NewInterpreter(g Grid, in InputFunc, out OutputFunc, opts ...Option) (*Interpreter, error) {
	st, err := newState(g)
	if err != nil {
		return nil, err
	}
	i := &Interpreter{
		grid:  g,
		state: st,
		in:    in,
		out:   out,
		log:   commonlog.GetLogger("m43.vm"),
	}
	if i.in == nil {
		i.in = func(string) (Value, error) { return 0, fmt.Errorf("no input available") }
	}
	if i.out == nil {
		i.out = func(string) {}
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Interpret runs g to completion, calling the hooks as instructed.
func Interpret(g Grid, in InputFunc, out OutputFunc) error {
	i, err := NewInterpreter(g, in, out)
	if err != nil {
		return err
	}
	return i.Run()
}

// Grid returns the program being executed.
func (i *Interpreter) Grid() Grid { return i.grid }

// Status returns the current lifecycle state.
func (i *Interpreter) Status() Status { return i.status }

// Steps returns the number of steps executed so far.
func (i *Interpreter) Steps() int { return i.steps }

// State returns a copy of the execution state.
func (i *Interpreter) State() State { return i.state }

// Err returns the fault that ended the execution, or nil.
func (i *Interpreter) Err() error { return i.fault }

// Step executes exactly one cell and advances the cursor.
// Stepping a halted interpreter does nothing; stepping a failed one
// returns the original fault again.
func (i *Interpreter) Step() error {
	switch i.status {
	case Halted:
		return nil
	case Failed:
		return i.fault
	}

	if i.stepLimit > 0 && i.steps >= i.stepLimit {
		return i.fail(FaultStepLimit, nil)
	}

	w := i.grid.Width()
	cell := i.grid.At(i.state.Pos)
	if _, ok := cell.(End); ok {
		i.status = Halted
		return nil
	}

	if i.profiler != nil {
		i.profiler.RecordVisit(i.state.Pos)
	}
	if err := i.execute(cell); err != nil {
		return err
	}

	dx, dy := i.state.Dir.Delta()
	next := Coord{X: i.state.Coords.X + dx, Y: i.state.Coords.Y + dy}
	if !InBounds(i.grid, next) {
		return i.fail(FaultOutOfBounds, nil)
	}
	i.state.moveTo(next.Index(w), w)
	i.steps++

	if i.log.AllowLevel(commonlog.Debug) {
		i.log.Debugf("step %d: %s -> %s heading %s val=%d top=%d",
			i.steps, cellName(cell), next, i.state.Dir, i.state.Val, i.state.Top)
	}

	if _, ok := i.grid.At(i.state.Pos).(End); ok {
		i.status = Halted
		i.log.Debugf("halted at %s after %d steps", next, i.steps)
	}
	return nil
}

// Run steps until the program halts or fails.
func (i *Interpreter) Run() error {
	return i.RunContext(context.Background())
}

// RunContext is Run with caller-driven cancellation, checked between steps.
// A cancelled run leaves the interpreter Running so it can be resumed.
func (i *Interpreter) RunContext(ctx context.Context) error {
	for i.status == Running {
		if err := ctx.Err(); err != nil {
			return &stepError{fault: FaultCancelled, at: i.state.Coords, cause: err}
		}
		if err := i.Step(); err != nil {
			return err
		}
	}
	return i.fault
}

// execute applies the effect of one cell to the state.
func (i *Interpreter) execute(cell Block) error {
	s := &i.state
	switch b := cell.(type) {
	case nil:
	case Start:
		s.Dir = b.Dir
	case Redirect:
		s.Dir = b.Dir
	case Set:
		if !b.FromInput {
			s.Val = b.Value
			break
		}
		v, err := i.in(InputPrompt)
		if err != nil {
			return i.fail(FaultInput, err)
		}
		s.Val = v
	case Store:
		if err := s.push(s.Val); err != nil {
			return i.fail(FaultStorageOverflow, nil)
		}
	case OpAdd:
		if s.Top < 2 {
			return i.fail(FaultStorageOverflow, nil)
		}
		rhs, _ := s.pop()
		lhs, _ := s.pop()
		s.Val = lhs + rhs
	case Print:
		i.out(strconv.FormatInt(int64(s.Val), 10))
	case Display:
		i.out(displayText(s.Val))
	}
	return nil
}

func (i *Interpreter) fail(f Fault, cause error) error {
	i.status = Failed
	i.fault = &stepError{fault: f, at: i.state.Coords, cause: cause}
	i.log.Warningf("%v", i.fault)
	return i.fault
}

// displayText renders a value as the character it encodes.
func displayText(v Value) string {
	if v < 0 || v > utf8.MaxRune || !utf8.ValidRune(rune(v)) {
		return string(utf8.RuneError)
	}
	return string(rune(v))
}

func cellName(b Block) string {
	if b == nil {
		return "empty"
	}
	return b.String()
}
