package vm

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// recorder captures every call to the output hook.
type recorder struct {
	out []string
}

func (r *recorder) write(text string) {
	r.out = append(r.out, text)
}

func constInput(values ...Value) InputFunc {
	return func(prompt string) (Value, error) {
		if len(values) == 0 {
			return 0, errors.New("input exhausted")
		}
		v := values[0]
		values = values[1:]
		return v, nil
	}
}

func mustInterp(t *testing.T, g Grid, in InputFunc, out OutputFunc, opts ...Option) *Interpreter {
	t.Helper()
	i, err := NewInterpreter(g, in, out, opts...)
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	return i
}

func stepN(t *testing.T, i *Interpreter, n int) {
	t.Helper()
	for k := 0; k < n; k++ {
		if err := i.Step(); err != nil {
			t.Fatalf("step %d: %v", k+1, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestHaltAfterOneStep(t *testing.T) {
	g := MustFixedGrid(1, 2, Start{Down}, End{})
	rec := &recorder{}
	i := mustInterp(t, g, nil, rec.write)

	if err := i.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if i.Status() != Halted {
		t.Errorf("status = %v, want halted", i.Status())
	}
	if i.Steps() != 1 {
		t.Errorf("steps = %d, want 1", i.Steps())
	}
	if len(rec.out) != 0 {
		t.Errorf("output calls = %v, want none", rec.out)
	}
}

func TestLiteralPrint(t *testing.T) {
	g := MustFixedGrid(4, 1, Start{Right}, Set{Value: 43}, Print{}, End{})
	rec := &recorder{}
	i := mustInterp(t, g, nil, rec.write)

	if err := i.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if i.Steps() != 3 {
		t.Errorf("steps = %d, want 3", i.Steps())
	}
	if !reflect.DeepEqual(rec.out, []string{"43"}) {
		t.Errorf("output = %q, want [\"43\"]", rec.out)
	}
}

func TestRedirectChangesExitDirection(t *testing.T) {
	g := MustFixedGrid(2, 2, Start{Right}, Redirect{Down}, nil, nil)
	i := mustInterp(t, g, nil, nil)

	stepN(t, i, 1)
	if got := i.State().Coords; got != (Coord{1, 0}) {
		t.Fatalf("after step 1 cursor at %v, want (1,0)", got)
	}
	stepN(t, i, 1)
	if got := i.State().Coords; got != (Coord{1, 1}) {
		t.Fatalf("after step 2 cursor at %v, want (1,1)", got)
	}
	if i.State().Dir != Down {
		t.Errorf("dir = %v, want Down", i.State().Dir)
	}
}

func TestOutOfBounds(t *testing.T) {
	g := MustFixedGrid(2, 2, Start{Right}, Redirect{Down}, nil, nil)
	i := mustInterp(t, g, nil, nil)

	err := i.Run()
	if !errors.Is(err, FaultOutOfBounds) {
		t.Fatalf("Run error = %v, want FaultOutOfBounds", err)
	}
	if i.Status() != Failed {
		t.Errorf("status = %v, want failed", i.Status())
	}
	// The cursor stays on the last on-grid cell.
	if got := i.State().Coords; got != (Coord{1, 1}) {
		t.Errorf("cursor at %v, want (1,1)", got)
	}
	if i.State().Pos != 3 {
		t.Errorf("pos = %d, want 3", i.State().Pos)
	}

	// Failure is sticky.
	if err2 := i.Step(); !errors.Is(err2, FaultOutOfBounds) {
		t.Errorf("Step after failure = %v, want FaultOutOfBounds", err2)
	}
}

func TestMissingStartIsConstructionError(t *testing.T) {
	g := MustFixedGrid(2, 1, Print{}, End{})
	_, err := NewInterpreter(g, nil, nil)
	if !errors.Is(err, FaultMissingStart) {
		t.Fatalf("NewInterpreter error = %v, want FaultMissingStart", err)
	}
	if err := Interpret(g, nil, nil); !errors.Is(err, FaultMissingStart) {
		t.Errorf("Interpret error = %v, want FaultMissingStart", err)
	}
}

func TestFirstStartWins(t *testing.T) {
	g := MustFixedGrid(3, 1, nil, Start{Left}, Start{Right})
	i := mustInterp(t, g, nil, nil)
	if i.State().Pos != 1 || i.State().Dir != Left {
		t.Errorf("start = pos %d dir %v, want pos 1 dir Left", i.State().Pos, i.State().Dir)
	}
}

func TestSteppingHaltedIsNoop(t *testing.T) {
	g := MustFixedGrid(1, 2, Start{Down}, End{})
	i := mustInterp(t, g, nil, nil)
	stepN(t, i, 1)
	before := i.State()
	if err := i.Step(); err != nil {
		t.Fatalf("Step on halted: %v", err)
	}
	if i.State() != before || i.Steps() != 1 {
		t.Error("Step on halted program changed state")
	}
}

// ---------------------------------------------------------------------------
// Storage discipline: Store pushes, OpAdd pops two
// ---------------------------------------------------------------------------

func TestStorePushesAndAddPops(t *testing.T) {
	g := MustFixedGrid(8, 1,
		Start{Right}, Set{Value: 5}, Store{}, Set{Value: 7}, Store{}, OpAdd{}, Print{}, End{})
	rec := &recorder{}
	i := mustInterp(t, g, nil, rec.write)

	stepN(t, i, 5) // through the second Store
	st := i.State()
	if st.Top != 2 || st.Storage[0] != 5 || st.Storage[1] != 7 {
		t.Fatalf("storage = %v top %d, want [5 7] top 2", st.Storage[:2], st.Top)
	}

	stepN(t, i, 1) // OpAdd
	st = i.State()
	if st.Val != 12 {
		t.Errorf("val = %d, want 12", st.Val)
	}
	if st.Top != 0 || st.Storage[0] != 0 || st.Storage[1] != 0 {
		t.Errorf("storage after OpAdd = %v top %d, want cleared", st.Storage[:2], st.Top)
	}

	if err := i.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(rec.out, []string{"12"}) {
		t.Errorf("output = %q, want [\"12\"]", rec.out)
	}
}

func TestStoreOverflow(t *testing.T) {
	// The cursor bounces between Start and the redirect, storing on every pass.
	g := MustFixedGrid(3, 1, Start{Right}, Store{}, Redirect{Left})
	i := mustInterp(t, g, nil, nil)

	err := i.Run()
	if !errors.Is(err, FaultStorageOverflow) {
		t.Fatalf("Run error = %v, want FaultStorageOverflow", err)
	}
	if i.State().Top != StorageSize {
		t.Errorf("top = %d, want %d", i.State().Top, StorageSize)
	}
}

func TestAddNeedsTwoOperands(t *testing.T) {
	g := MustFixedGrid(5, 1, Start{Right}, Store{}, OpAdd{}, Print{}, End{})
	rec := &recorder{}
	i := mustInterp(t, g, nil, rec.write)

	err := i.Run()
	if !errors.Is(err, FaultStorageOverflow) {
		t.Fatalf("Run error = %v, want FaultStorageOverflow", err)
	}
	if i.State().Top != 1 {
		t.Errorf("top = %d, want 1 (failed add must not consume)", i.State().Top)
	}
	if len(rec.out) != 0 {
		t.Errorf("output = %q, want none", rec.out)
	}
}

func TestDoubleProgram(t *testing.T) {
	rec := &recorder{}
	if err := DoubleProgram.Interpret(nil, rec.write); err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if !reflect.DeepEqual(rec.out, []string{"86"}) {
		t.Errorf("output = %q, want [\"86\"]", rec.out)
	}
}

func TestDemoProgram(t *testing.T) {
	rec := &recorder{}
	i := mustInterp(t, DemoProgram, nil, rec.write)

	err := i.Run()
	if !errors.Is(err, FaultStorageOverflow) {
		t.Fatalf("Run error = %v, want FaultStorageOverflow", err)
	}
	if got := i.State().Coords; got != (Coord{3, 1}) {
		t.Errorf("fault at %v, want (3,1)", got)
	}
	if !reflect.DeepEqual(rec.out, []string{"+"}) {
		t.Errorf("output = %q, want [\"+\"]", rec.out)
	}
	if i.Steps() != 8 {
		t.Errorf("steps = %d, want 8", i.Steps())
	}
}

// ---------------------------------------------------------------------------
// Host hooks
// ---------------------------------------------------------------------------

func TestSetFromInput(t *testing.T) {
	g := MustFixedGrid(4, 1, Start{Right}, Set{FromInput: true}, Print{}, End{})
	rec := &recorder{}
	var prompts []string
	in := func(prompt string) (Value, error) {
		prompts = append(prompts, prompt)
		return -9, nil
	}
	if err := Interpret(g, in, rec.write); err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if !reflect.DeepEqual(prompts, []string{InputPrompt}) {
		t.Errorf("prompts = %q", prompts)
	}
	if !reflect.DeepEqual(rec.out, []string{"-9"}) {
		t.Errorf("output = %q, want [\"-9\"]", rec.out)
	}
}

func TestInputFailure(t *testing.T) {
	g := MustFixedGrid(3, 1, Start{Right}, Set{FromInput: true}, End{})
	err := Interpret(g, constInput(), nil)
	if !errors.Is(err, FaultInput) {
		t.Fatalf("error = %v, want FaultInput", err)
	}
	if f, ok := FaultOf(err); !ok || f.Code() != 6 {
		t.Errorf("FaultOf = %v, %v", f, ok)
	}
}

func TestDisplayRendersCharacter(t *testing.T) {
	g := MustFixedGrid(6, 1, Start{Right}, Set{Value: 'A'}, Display{}, Set{Value: -1}, Display{}, End{})
	rec := &recorder{}
	if err := Interpret(g, nil, rec.write); err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if !reflect.DeepEqual(rec.out, []string{"A", "�"}) {
		t.Errorf("output = %q", rec.out)
	}
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestDeterminism(t *testing.T) {
	g := MustFixedGrid(6, 1, Start{Right}, Set{FromInput: true}, Store{}, Store{}, OpAdd{}, Print{})
	var runs [][]string
	var finals []State
	for k := 0; k < 3; k++ {
		rec := &recorder{}
		i := mustInterp(t, g, constInput(21), rec.write)
		_ = i.Run()
		runs = append(runs, rec.out)
		finals = append(finals, i.State())
	}
	for k := 1; k < len(runs); k++ {
		if !reflect.DeepEqual(runs[0], runs[k]) || finals[0] != finals[k] {
			t.Fatalf("run %d differs: %q %+v vs %q %+v", k, runs[k], finals[k], runs[0], finals[0])
		}
	}
	if !reflect.DeepEqual(runs[0], []string{"42"}) {
		t.Errorf("output = %q, want [\"42\"]", runs[0])
	}
}

func TestCursorStaysOnGrid(t *testing.T) {
	i := mustInterp(t, DemoProgram, nil, nil)
	for i.Status() == Running {
		st := i.State()
		if !InBounds(DemoProgram, st.Coords) || CoordOf(st.Pos, DemoProgram.Width()) != st.Coords {
			t.Fatalf("cursor off grid or coords out of sync: %+v", st)
		}
		if err := i.Step(); err != nil {
			break
		}
	}
	st := i.State()
	if !InBounds(DemoProgram, st.Coords) {
		t.Errorf("final cursor off grid: %v", st.Coords)
	}
}

func TestStepLimit(t *testing.T) {
	g := MustFixedGrid(2, 1, Redirect{Right}, Start{Left})
	i, err := NewInterpreter(g, nil, nil, WithStepLimit(10))
	if err != nil {
		t.Fatal(err)
	}
	if err := i.Run(); !errors.Is(err, FaultStepLimit) {
		t.Fatalf("Run error = %v, want FaultStepLimit", err)
	}
	if i.Steps() != 10 {
		t.Errorf("steps = %d, want 10", i.Steps())
	}
}

func TestRunContextCancelledIsResumable(t *testing.T) {
	g := MustFixedGrid(4, 1, Start{Right}, Set{Value: 1}, Print{}, End{})
	rec := &recorder{}
	i := mustInterp(t, g, nil, rec.write)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := i.RunContext(ctx)
	if !errors.Is(err, FaultCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("RunContext error = %v, want FaultCancelled wrapping context.Canceled", err)
	}
	if i.Status() != Running {
		t.Errorf("status = %v, want running", i.Status())
	}
	if err := i.Run(); err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
	if !reflect.DeepEqual(rec.out, []string{"1"}) {
		t.Errorf("output = %q", rec.out)
	}
}
