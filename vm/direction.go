package vm

import "fmt"

// Direction is the travel direction of the execution cursor.
type Direction uint8

const (
	Up Direction = iota
	Down
	Left
	Right
)

// Delta returns the unit step for the direction. y grows downwards.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	}
	return 0, 0
}

// Symbol returns the single-letter form used by the inspection surface.
func (d Direction) Symbol() rune {
	switch d {
	case Up:
		return 'U'
	case Down:
		return 'D'
	case Left:
		return 'L'
	case Right:
		return 'R'
	}
	return '?'
}

// Arrow returns the arrow character used for the direction in program text.
func (d Direction) Arrow() rune {
	switch d {
	case Up:
		return '^'
	case Down:
		return 'v'
	case Left:
		return '<'
	case Right:
		return '>'
	}
	return '?'
}

// DirectionFromArrow is the inverse of Arrow.
func DirectionFromArrow(r rune) (Direction, bool) {
	switch r {
	case '^':
		return Up, true
	case 'v':
		return Down, true
	case '<':
		return Left, true
	case '>':
		return Right, true
	}
	return 0, false
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Left:
		return "Left"
	case Right:
		return "Right"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// DirectionFromSymbol is the inverse of Symbol.
func DirectionFromSymbol(r rune) (Direction, bool) {
	switch r {
	case 'U':
		return Up, true
	case 'D':
		return Down, true
	case 'L':
		return Left, true
	case 'R':
		return Right, true
	}
	return 0, false
}
