// Package vm implements the m43 grid machine.
//
// This package contains:
//   - the cell vocabulary (Block) and grid representations
//   - the single-step Interpreter with its execution State
//   - the breakpoint-aware Debugger
//   - Snapshots for presentation and persistence
//   - a per-cell execution Profiler
package vm
