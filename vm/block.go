package vm

import "fmt"

// Value is the width of the accumulator and of every storage slot.
type Value int64

// Block is the instruction held by a grid cell. The set of blocks is closed;
// a nil Block is an empty cell that the cursor passes through.
type Block interface {
	block()
	fmt.Stringer
}

// Start marks the entry point and the initial travel direction.
type Start struct{ Dir Direction }

// Redirect sets the direction used to leave the cell.
type Redirect struct{ Dir Direction }

// End halts the program when the cursor reaches it.
type End struct{}

// Set loads a value into the accumulator. When FromInput is true the value
// comes from the host input hook and Value is ignored.
type Set struct {
	Value     Value
	FromInput bool
}

// Store pushes the accumulator onto storage.
type Store struct{}

// OpAdd pops the two topmost storage values into the accumulator as their sum.
type OpAdd struct{}

// Print writes the accumulator as a decimal number.
type Print struct{}

// Display writes the accumulator as a character.
type Display struct{}

func (Start) block()    {}
func (Redirect) block() {}
func (End) block()      {}
func (Set) block()      {}
func (Store) block()    {}
func (OpAdd) block()    {}
func (Print) block()    {}
func (Display) block()  {}

func (b Start) String() string    { return "Start(" + b.Dir.String() + ")" }
func (b Redirect) String() string { return "Redirect(" + b.Dir.String() + ")" }
func (End) String() string        { return "End" }
func (Store) String() string      { return "Store" }
func (OpAdd) String() string      { return "OpAdd" }
func (Print) String() string      { return "Print" }
func (Display) String() string    { return "Display" }

func (b Set) String() string {
	if b.FromInput {
		return "Set(input)"
	}
	return fmt.Sprintf("Set(%d)", b.Value)
}

// DescribeBlock returns a one-line, human readable explanation of a cell,
// used by the language server and the debug REPL.
func DescribeBlock(b Block) string {
	switch b := b.(type) {
	case nil:
		return "empty cell: the cursor passes through"
	case Start:
		return fmt.Sprintf("start: execution begins here heading %s", b.Dir)
	case Redirect:
		return fmt.Sprintf("redirect: leave this cell heading %s", b.Dir)
	case End:
		return "end: the program halts when the cursor arrives"
	case Set:
		if b.FromInput {
			return "set: read a value from input into the accumulator"
		}
		return fmt.Sprintf("set: load %d into the accumulator", b.Value)
	case Store:
		return "store: push the accumulator onto storage"
	case OpAdd:
		return "add: pop two storage values, accumulator = their sum"
	case Print:
		return "print: write the accumulator as a number"
	case Display:
		return "display: write the accumulator as a character"
	}
	return b.String()
}
