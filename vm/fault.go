package vm

import (
	"errors"
	"fmt"
)

// Fault is the small discrete code reported by Step and Run. It is an error
// so callers can compare it with errors.Is.
type Fault uint8

const (
	FaultOutOfBounds     Fault = 1 // the cursor would leave the grid
	FaultStorageOverflow Fault = 2 // Store or OpAdd addressed outside storage
	FaultMissingStart    Fault = 3 // the grid has no Start cell
	FaultPaused          Fault = 4 // Run stopped on a breakpoint; resumable
	FaultBadBreakpoints  Fault = 5 // breakpoint list does not split into pairs
	FaultInput           Fault = 6 // the input hook failed
	FaultStepLimit       Fault = 7 // the configured step budget ran out
	FaultCancelled       Fault = 8 // the caller's context was done between steps
)

func (f Fault) Error() string {
	switch f {
	case FaultOutOfBounds:
		return "cursor moved off the grid"
	case FaultStorageOverflow:
		return "storage address out of range"
	case FaultMissingStart:
		return "program has no start cell"
	case FaultPaused:
		return "paused at breakpoint"
	case FaultBadBreakpoints:
		return "breakpoints must be in pairs"
	case FaultInput:
		return "input failed"
	case FaultStepLimit:
		return "step limit exceeded"
	case FaultCancelled:
		return "execution cancelled"
	}
	return fmt.Sprintf("fault %d", uint8(f))
}

// Code returns the numeric code, the form exposed across minimal boundaries.
func (f Fault) Code() uint8 {
	return uint8(f)
}

// Terminal reports whether the fault ends the execution for good.
// Pauses and cancellations can be resumed.
func (f Fault) Terminal() bool {
	return f != FaultPaused && f != FaultCancelled
}

// FaultOf extracts the Fault carried by err, if any.
func FaultOf(err error) (Fault, bool) {
	var f Fault
	if errors.As(err, &f) {
		return f, true
	}
	return 0, false
}

// stepError attaches the cursor position to a fault while keeping the fault
// reachable through errors.Is and errors.As.
type stepError struct {
	fault Fault
	at    Coord
	cause error
}

func (e *stepError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s at %s: %v", e.fault, e.at, e.cause)
	}
	return fmt.Sprintf("%s at %s", e.fault, e.at)
}

func (e *stepError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.fault, e.cause}
	}
	return []error{e.fault}
}
