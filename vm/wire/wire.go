// Package wire encodes debugger state for storage and transport.
//
// Snapshots are canonical CBOR. Saved sessions are canonical CBOR wrapped in
// a zstd frame, so a paused debugging session can be written to disk and
// resumed later in another process.
package wire

import (
	"bytes"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/chazu/m43/pkg/parser"
	"github.com/chazu/m43/vm"
)

// SessionVersion is bumped when the Session layout changes incompatibly.
const SessionVersion = 1

// sessionMagic prefixes every saved session file.
var sessionMagic = []byte("m43s")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Session is everything needed to resume a debugging session: the program
// text, the enabled breakpoint ranges and the execution state.
type Session struct {
	Version     int         `cbor:"1,keyasint"`
	Source      string      `cbor:"2,keyasint"`
	Breakpoints []int       `cbor:"3,keyasint"`
	State       vm.Snapshot `cbor:"4,keyasint"`
}

// Capture records the state of d. source must be the text d's grid was
// parsed from.
func Capture(source string, d *vm.Debugger) *Session {
	return &Session{
		Version:     SessionVersion,
		Source:      source,
		Breakpoints: d.FlatBreakpoints(),
		State:       d.State(),
	}
}

// Resume parses the session's program and rebuilds its debugger.
func (s *Session) Resume(in vm.InputFunc, out vm.OutputFunc, opts ...vm.Option) (*vm.Debugger, error) {
	if s.Version != SessionVersion {
		return nil, fmt.Errorf("wire: session version %d, want %d", s.Version, SessionVersion)
	}
	g, err := parser.Parse(s.Source)
	if err != nil {
		return nil, fmt.Errorf("wire: session program: %w", err)
	}
	return vm.ResumeDebugger(g, in, out, s.Breakpoints, s.State, opts...)
}

// MarshalSnapshot serializes a Snapshot to CBOR bytes.
func MarshalSnapshot(s vm.Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (vm.Snapshot, error) {
	var s vm.Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return vm.Snapshot{}, fmt.Errorf("wire: unmarshal snapshot: %w", err)
	}
	return s, nil
}

// MarshalSession serializes a Session to compressed CBOR bytes.
func MarshalSession(s *Session) ([]byte, error) {
	raw, err := cborEncMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal session: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, append([]byte(nil), sessionMagic...)), nil
}

// UnmarshalSession deserializes a Session written by MarshalSession.
func UnmarshalSession(data []byte) (*Session, error) {
	if !bytes.HasPrefix(data, sessionMagic) {
		return nil, fmt.Errorf("wire: not a session file")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data[len(sessionMagic):], nil)
	if err != nil {
		return nil, fmt.Errorf("wire: decompress session: %w", err)
	}
	var s Session
	if err := cbor.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("wire: unmarshal session: %w", err)
	}
	return &s, nil
}

// SaveSession writes a session file.
func SaveSession(path string, s *Session) error {
	data, err := MarshalSession(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSession reads a session file written by SaveSession.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return UnmarshalSession(data)
}
