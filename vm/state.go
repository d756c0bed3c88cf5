package vm

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"go.zmach.net/zmach/zcode"
)

// snapshotSchema versions the save-state layout; bump it whenever the
// encoded shape changes.
const snapshotSchema uint16 = 1

// Snapshot is the complete resumable machine state: dynamic memory,
// program counter, both stacks, plus the story identity fields used
// to reject a restore against the wrong image. The layout is private
// to this interpreter, not a published save format.
type Snapshot struct {
	Schema   uint16
	Release  uint16
	Serial   []byte
	Checksum uint16

	PC      uint32
	Stack   []uint16
	Frames  []Frame
	Dynamic []byte
	Seed    int64

	// A read suspended at the batch boundary travels with the state,
	// so a restored machine still accepts Feed.
	Pending      bool
	PendingText  uint32
	PendingParse uint32
}

// Snapshot captures the current state. The returned value shares
// nothing with the machine.
func (m *Machine) Snapshot() *Snapshot {
	s := &Snapshot{
		Schema:   snapshotSchema,
		Release:  m.header.Release,
		Serial:   append([]byte(nil), m.header.Serial[:]...),
		Checksum: m.header.Checksum,
		PC:       m.pc,
		Stack:    append([]uint16(nil), m.stack.values...),
		Frames:   append([]Frame(nil), m.stack.frames...),
		Dynamic:  append([]byte(nil), m.mem.dynamic()...),
		Seed:     m.rng.seed,
	}
	if m.pending != nil {
		s.Pending = true
		s.PendingText = m.pending.textAddr
		s.PendingParse = m.pending.parseAddr
	}
	return s
}

// ApplySnapshot replaces the machine state with a snapshot, after
// checking it belongs to the loaded story.
func (m *Machine) ApplySnapshot(s *Snapshot) error {
	if err := m.checkSnapshot(s); err != nil {
		return &Fault{Category: FaultHost, PC: m.pc, Opcode: m.opByte, Err: err}
	}
	copy(m.mem.dynamic(), s.Dynamic)
	m.stack.values = append(m.stack.values[:0], s.Stack...)
	m.stack.frames = append(m.stack.frames[:0], s.Frames...)
	m.pc = s.PC
	m.pending = nil
	if s.Pending {
		m.pending = &pendingRead{textAddr: s.PendingText, parseAddr: s.PendingParse}
	}
	// Re-arming from the recorded seed restarts the random sequence
	// from its last reseed point.
	m.rng.reseed(s.Seed)
	m.streams = m.streams[:0]
	return nil
}

func (m *Machine) checkSnapshot(s *Snapshot) error {
	if s.Schema != snapshotSchema {
		return fmt.Errorf("save state schema %d, interpreter writes %d", s.Schema, snapshotSchema)
	}
	if s.Release != m.header.Release || string(s.Serial) != string(m.header.Serial[:]) || s.Checksum != m.header.Checksum {
		return fmt.Errorf("save state is for release %d serial %q, story is release %d serial %q",
			s.Release, s.Serial, m.header.Release, m.header.Serial[:])
	}
	if len(s.Dynamic) != len(m.mem.dynamic()) {
		return fmt.Errorf("save state dynamic memory is %d bytes, story wants %d", len(s.Dynamic), len(m.mem.dynamic()))
	}
	if s.PC >= m.mem.Size() {
		return fmt.Errorf("save state pc 0x%05x outside image: %w", s.PC, ErrOutOfBounds)
	}
	if len(s.Stack) > m.cfg.StackSize || len(s.Frames) > m.cfg.CallDepth {
		return fmt.Errorf("save state exceeds configured stack limits")
	}
	if int(zcode.HeaderSize) > len(s.Dynamic) {
		return fmt.Errorf("save state smaller than a header")
	}
	return nil
}

// WriteSnapshot encodes a snapshot to w.
func WriteSnapshot(w io.Writer, s *Snapshot) error {
	if err := msgpack.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("encode save state: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a snapshot from r. Identity validation happens
// in ApplySnapshot, against the machine doing the restore.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode save state: %w", err)
	}
	return &s, nil
}
