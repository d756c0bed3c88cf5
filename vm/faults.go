// Package vm executes version 3 Z-code story images: a fetch, decode,
// dispatch loop over a flat memory image, with an evaluation stack and
// call frames owned by the machine. One Machine is one game instance;
// instances share nothing.
package vm

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the memory layer and converted into
// faults by the step loop.
var (
	ErrOutOfBounds = errors.New("address out of bounds")
	ErrReadOnly    = errors.New("write outside dynamic memory")
)

// FaultCategory classifies fatal machine conditions.
type FaultCategory int

const (
	FaultImage      FaultCategory = iota // malformed or truncated story data
	FaultDecode                          // undefined opcode or malformed instruction
	FaultArithmetic                      // division or modulo by zero
	FaultStack                           // stack or frame overflow/underflow
	FaultHost                            // input source or save handler failure
)

func (c FaultCategory) String() string {
	switch c {
	case FaultImage:
		return "corrupt story"
	case FaultDecode:
		return "decode error"
	case FaultArithmetic:
		return "arithmetic fault"
	case FaultStack:
		return "stack fault"
	case FaultHost:
		return "host failure"
	default:
		return "unknown fault"
	}
}

// Fault is a fatal error: the run is over and the machine must not be
// stepped again. It records where execution stopped so the driver can
// report something actionable.
type Fault struct {
	Category FaultCategory
	PC       uint32
	Opcode   byte
	Err      error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s at pc=0x%05x (opcode 0x%02x): %v", f.Category, f.PC, f.Opcode, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// StoryProblem reports whether the fault points at the story file
// rather than at the interpreter or its limits. Drivers use this to
// word the failure for the player.
func (f *Fault) StoryProblem() bool {
	return f.Category == FaultImage || f.Category == FaultDecode
}

// fault wraps err into a Fault at the current instruction, leaving
// existing faults untouched.
func (m *Machine) fault(err error) error {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return err
	}
	cat := FaultImage
	switch {
	case errors.Is(err, errDivByZero):
		cat = FaultArithmetic
	case errors.Is(err, errStack):
		cat = FaultStack
	case errors.Is(err, errDecode):
		cat = FaultDecode
	case errors.Is(err, errHost):
		cat = FaultHost
	}
	return &Fault{Category: cat, PC: m.opPC, Opcode: m.opByte, Err: err}
}

var (
	errDivByZero = errors.New("division by zero")
	errStack     = errors.New("stack limit")
	errDecode    = errors.New("malformed instruction")
	errHost      = errors.New("host call failed")
)
