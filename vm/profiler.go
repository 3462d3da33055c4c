package vm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Profiler counts how often the cursor executes each cell. Cells executed at
// least HotThreshold times are marked hot, which is how loops show up.
// Counters are atomic so a profile can be read while a program runs.
type Profiler struct {
	cells sync.Map // position -> *CellProfile

	HotThreshold uint64 // Default: 100

	// OnHot is called once per cell, on the visit that makes it hot.
	OnHot func(pos int, profile *CellProfile)

	visits   uint64
	hotCount uint64
}

// CellProfile holds the counters of one cell.
type CellProfile struct {
	Visits uint64
	hot    atomic.Bool
}

// IsHot reports whether the cell crossed the hot threshold.
func (c *CellProfile) IsHot() bool { return c.hot.Load() }

// NewProfiler creates a profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: 100}
}

// WithProfiler records every executed cell in p.
func WithProfiler(p *Profiler) Option {
	return func(i *Interpreter) { i.profiler = p }
}

// RecordVisit counts one execution of the cell at pos.
// Returns true if this visit made the cell hot.
func (p *Profiler) RecordVisit(pos int) bool {
	val, _ := p.cells.LoadOrStore(pos, &CellProfile{})
	profile := val.(*CellProfile)

	count := atomic.AddUint64(&profile.Visits, 1)
	atomic.AddUint64(&p.visits, 1)

	if count >= p.HotThreshold && profile.hot.CompareAndSwap(false, true) {
		atomic.AddUint64(&p.hotCount, 1)
		if p.OnHot != nil {
			p.OnHot(pos, profile)
		}
		return true
	}
	return false
}

// Visits returns how many times the cell at pos was executed.
func (p *Profiler) Visits(pos int) uint64 {
	if val, ok := p.cells.Load(pos); ok {
		return atomic.LoadUint64(&val.(*CellProfile).Visits)
	}
	return 0
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Visits       uint64
	CellsVisited int
	HotCells     uint64
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	stats := ProfilerStats{
		Visits:   atomic.LoadUint64(&p.visits),
		HotCells: atomic.LoadUint64(&p.hotCount),
	}
	p.cells.Range(func(_, _ any) bool {
		stats.CellsVisited++
		return true
	})
	return stats
}

// CellCount pairs a position with its visit count.
type CellCount struct {
	Pos    int
	Visits uint64
}

// Top returns the n most executed cells, ties broken by position.
func (p *Profiler) Top(n int) []CellCount {
	var all []CellCount
	p.cells.Range(func(key, val any) bool {
		all = append(all, CellCount{Pos: key.(int), Visits: atomic.LoadUint64(&val.(*CellProfile).Visits)})
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].Visits != all[j].Visits {
			return all[i].Visits > all[j].Visits
		}
		return all[i].Pos < all[j].Pos
	})
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.cells.Range(func(key, _ any) bool {
		p.cells.Delete(key)
		return true
	})
	atomic.StoreUint64(&p.visits, 0)
	atomic.StoreUint64(&p.hotCount, 0)
}

// RenderHeat draws g with the visit count of each cell, laid out like
// RenderGrid. Hot cells are marked with '*'.
func (p *Profiler) RenderHeat(g Grid) string {
	var b strings.Builder
	w, h := g.Width(), g.Height()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pos := Coord{X: x, Y: y}.Index(w)
			cell := fmt.Sprintf("%d", p.Visits(pos))
			if val, ok := p.cells.Load(pos); ok && val.(*CellProfile).IsHot() {
				cell += "*"
			}
			fmt.Fprintf(&b, "%-7s", cell)
		}
		b.WriteString("\n")
	}
	return b.String()
}
