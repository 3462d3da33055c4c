package vm

// StorageSize is the capacity of the storage array.
const StorageSize = 16

// State is the mutable runtime record of one execution.
type State struct {
	Dir     Direction
	Pos     int // row-major index of the cursor
	Val     Value
	Storage [StorageSize]Value
	Top     int // number of occupied storage slots

	// Coords mirrors Pos for consumers that render in 2D.
	Coords Coord
}

// newState places the cursor on the first Start cell of g.
func newState(g Grid) (State, error) {
	idx, start, ok := FindStart(g)
	if !ok {
		return State{}, FaultMissingStart
	}
	return State{
		Dir:    start.Dir,
		Pos:    idx,
		Coords: CoordOf(idx, g.Width()),
	}, nil
}

func (s *State) moveTo(pos, width int) {
	s.Pos = pos
	s.Coords = CoordOf(pos, width)
}

func (s *State) push(v Value) error {
	if s.Top >= StorageSize {
		return FaultStorageOverflow
	}
	s.Storage[s.Top] = v
	s.Top++
	return nil
}

func (s *State) pop() (Value, error) {
	if s.Top <= 0 {
		return 0, FaultStorageOverflow
	}
	s.Top--
	v := s.Storage[s.Top]
	s.Storage[s.Top] = 0
	return v, nil
}
