package vm

import (
	"fmt"
	"io"
	"strings"

	"go.zmach.net/zmach/zcode"
)

// Config bounds the machine-private stacks and fixes the random seed.
// The zero value picks the defaults.
type Config struct {
	StackSize int   // evaluation stack capacity in 16-bit entries
	CallDepth int   // maximum nested routine activations
	Seed      int64 // 0 seeds from the clock
}

const (
	DefaultStackSize = 1024
	DefaultCallDepth = 128
)

func (c Config) withDefaults() Config {
	if c.StackSize <= 0 {
		c.StackSize = DefaultStackSize
	}
	if c.CallDepth <= 0 {
		c.CallDepth = DefaultCallDepth
	}
	return c
}

// InputSource supplies command lines to the sread opcode. When the
// machine has no input source it suspends at the read boundary
// instead and waits for Feed.
type InputSource interface {
	ReadLine() (string, error)
}

// LineFunc adapts a function to an InputSource.
type LineFunc func() (string, error)

func (f LineFunc) ReadLine() (string, error) { return f() }

// Status reports why a batch of instructions stopped.
type Status int

const (
	Running       Status = iota
	AwaitingInput        // suspended at sread, resume with Feed
	Quit                 // the game executed quit
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case AwaitingInput:
		return "awaiting input"
	case Quit:
		return "quit"
	default:
		return "unknown status"
	}
}

// pendingRead is the suspended half of an sread: the machine stopped
// with these buffer addresses bound and resumes when a line arrives.
type pendingRead struct {
	textAddr  uint32
	parseAddr uint32
}

// memStream is one open output_stream 3 redirect: characters go into
// the table, the leading word receives the count on close.
type memStream struct {
	table uint32
	count uint16
}

// Machine is one running game instance: the memory image, the stacks,
// the program counter and the output plumbing. Instances share no
// state and a Machine is not safe for concurrent use.
type Machine struct {
	mem    *Memory
	header Header
	cfg    Config

	pc    uint32
	stack *Stack
	rng   rng

	// Current instruction, for fault reports.
	opPC   uint32
	opByte byte

	steps   uint64
	done    bool
	pending *pendingRead

	pristine []byte // dynamic memory as loaded, for restart

	out        io.Writer
	transcript io.Writer
	input      InputSource
	screenOn   bool
	streams    []memStream

	onMove    func(oldLoc, newLoc uint16)
	onStatus  func(location string, score, moves int16)
	saveFn    func(*Snapshot) error
	restoreFn func() (*Snapshot, error)
}

// New validates the image and builds a machine around a private copy
// of it. The loader owning the raw bytes may reuse them afterwards.
func New(image []byte, cfg Config) (*Machine, error) {
	h, err := ReadHeader(image)
	if err != nil {
		return nil, &Fault{Category: FaultImage, Err: err}
	}
	cfg = cfg.withDefaults()

	data := make([]byte, len(image))
	copy(data, image)

	m := &Machine{
		mem:      &Memory{data: data, staticBase: h.StaticMem},
		header:   h,
		cfg:      cfg,
		pc:       h.InitialPC,
		stack:    newStack(cfg.StackSize, cfg.CallDepth),
		rng:      newRNG(cfg.Seed),
		out:      io.Discard,
		screenOn: true,
	}
	m.pristine = make([]byte, h.StaticMem)
	copy(m.pristine, data[:h.StaticMem])
	return m, nil
}

// SetOutput directs screen output. Decoded text arrives in small
// writes; the sink buffers if it cares.
func (m *Machine) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	m.out = w
}

// SetTranscript attaches the stream 2 transcript sink.
func (m *Machine) SetTranscript(w io.Writer) { m.transcript = w }

// SetInput attaches a synchronous input source. Without one the
// machine suspends at sread and reports AwaitingInput.
func (m *Machine) SetInput(src InputSource) { m.input = src }

// SetLocationObserver registers a callback fired after any instruction
// that changes the player location global. A nil observer is valid.
func (m *Machine) SetLocationObserver(fn func(oldLoc, newLoc uint16)) { m.onMove = fn }

// SetStatusHandler receives the version 3 status line parts whenever
// the game requests a status refresh.
func (m *Machine) SetStatusHandler(fn func(location string, score, moves int16)) { m.onStatus = fn }

// SetSaveHandler wires the save opcode to the host. Without a handler
// save reports failure to the game.
func (m *Machine) SetSaveHandler(fn func(*Snapshot) error) { m.saveFn = fn }

// SetRestoreHandler wires the restore opcode to the host.
func (m *Machine) SetRestoreHandler(fn func() (*Snapshot, error)) { m.restoreFn = fn }

// ImageByte and ImageWord expose bounds-checked reads of the live
// image for tools riding a machine (disassembler, debug views).
func (m *Machine) ImageByte(addr uint32) (byte, error)   { return m.mem.Byte(addr) }
func (m *Machine) ImageWord(addr uint32) (uint16, error) { return m.mem.Word(addr) }

// ImageSize returns the loaded image size in bytes.
func (m *Machine) ImageSize() uint32 { return m.mem.Size() }

func (m *Machine) PC() uint32     { return m.pc }
func (m *Machine) Steps() uint64  { return m.steps }
func (m *Machine) Header() Header { return m.header }

// Frames returns the number of active routine activations.
func (m *Machine) Frames() int { return m.stack.frameCount() }

// Location returns the current player location object (global 0).
func (m *Machine) Location() uint16 {
	loc, _ := m.global(0)
	return loc
}

// Global reads global variable n (0..239).
func (m *Machine) Global(n int) (uint16, error) {
	if n < 0 || n >= zcode.GlobalCount {
		return 0, fmt.Errorf("global %d: %w", n, ErrOutOfBounds)
	}
	return m.global(byte(n))
}

// --- fetch ---

func (m *Machine) fetchByte() (byte, error) {
	b, err := m.mem.Byte(m.pc)
	if err != nil {
		return 0, err
	}
	m.pc++
	return b, nil
}

func (m *Machine) fetchWord() (uint16, error) {
	w, err := m.mem.Word(m.pc)
	if err != nil {
		return 0, err
	}
	m.pc += 2
	return w, nil
}

// --- variables ---

func (m *Machine) globalAddr(n byte) uint32 {
	return m.header.Globals + uint32(n)*2
}

func (m *Machine) global(n byte) (uint16, error) {
	return m.mem.Word(m.globalAddr(n))
}

// readVariable resolves a variable operand: 0 pops the stack, 1..15
// read the current frame's locals, 16.. read globals.
func (m *Machine) readVariable(v byte) (uint16, error) {
	switch {
	case v == zcode.VarStack:
		return m.stack.pop()
	case v < zcode.VarLocalLimit:
		p, err := m.stack.local(v)
		if err != nil {
			return 0, err
		}
		return *p, nil
	default:
		return m.global(v - zcode.VarLocalLimit)
	}
}

func (m *Machine) writeVariable(v byte, val uint16) error {
	switch {
	case v == zcode.VarStack:
		return m.stack.push(val)
	case v < zcode.VarLocalLimit:
		p, err := m.stack.local(v)
		if err != nil {
			return err
		}
		*p = val
		return nil
	default:
		return m.mem.WriteWord(m.globalAddr(v-zcode.VarLocalLimit), val)
	}
}

// addToVar adjusts a variable in place; variable 0 modifies the stack
// top without popping. Returns the new value.
func (m *Machine) addToVar(v uint16, delta int16) (uint16, error) {
	if v > 0xFF {
		return 0, fmt.Errorf("variable number %d: %w", v, errDecode)
	}
	n := byte(v)
	if n == zcode.VarStack {
		p, err := m.stack.peek()
		if err != nil {
			return 0, err
		}
		*p = uint16(int16(*p) + delta)
		return *p, nil
	}
	cur, err := m.readVariableNoPop(n)
	if err != nil {
		return 0, err
	}
	next := uint16(int16(cur) + delta)
	return next, m.writeVariable(n, next)
}

// readVariableNoPop is readVariable for indirect access where
// variable 0 must not pop (load, addToVar).
func (m *Machine) readVariableNoPop(v byte) (uint16, error) {
	if v == zcode.VarStack {
		p, err := m.stack.peek()
		if err != nil {
			return 0, err
		}
		return *p, nil
	}
	return m.readVariable(v)
}

// --- store and branch ---

// storeResult fetches the destination-variable byte and writes v there.
func (m *Machine) storeResult(v uint16) error {
	dst, err := m.fetchByte()
	if err != nil {
		return err
	}
	return m.writeVariable(dst, v)
}

// branch consumes the branch specifier and acts on it. Encoded
// offsets 0 and 1 return false/true from the current routine instead
// of jumping.
func (m *Machine) branch(cond bool) error {
	spec, err := m.fetchByte()
	if err != nil {
		return err
	}
	branchOnTrue := spec&0x80 != 0

	var offset int32
	if spec&0x40 != 0 {
		offset = int32(spec & 0x3F)
	} else {
		second, err := m.fetchByte()
		if err != nil {
			return err
		}
		raw := uint16(spec&0x3F)<<8 | uint16(second)
		if raw&0x2000 != 0 {
			raw |= 0xC000 // sign-extend the 14-bit offset
		}
		offset = int32(int16(raw))
	}

	if cond != branchOnTrue {
		return nil
	}
	if offset == 0 || offset == 1 {
		return m.returnValue(uint16(offset))
	}
	target := int64(m.pc) + int64(offset) - 2
	if target < 0 || target >= int64(m.mem.Size()) {
		return fmt.Errorf("branch to 0x%05x: %w", target, ErrOutOfBounds)
	}
	m.pc = uint32(target)
	return nil
}

// --- calls and returns ---

// callRoutine pushes a frame for the packed routine address and binds
// arguments to locals. Calling address 0 stores false immediately.
func (m *Machine) callRoutine(packed uint16, args []uint16) error {
	if packed == 0 {
		return m.storeResult(0)
	}
	storeVar, err := m.fetchByte()
	if err != nil {
		return err
	}
	addr := zcode.PackedAddress(packed)
	numLocals, err := m.mem.Byte(addr)
	if err != nil {
		return err
	}
	if numLocals > zcode.MaxLocals {
		return fmt.Errorf("routine at 0x%05x declares %d locals: %w", addr, numLocals, errDecode)
	}
	f := Frame{
		ReturnPC:  m.pc,
		NumLocals: numLocals,
		StackBase: m.stack.depth(),
		StoreVar:  storeVar,
	}
	// Locals start as their declared defaults, then arguments
	// overwrite locals 1..len(args).
	addr++
	for i := 0; i < int(numLocals); i++ {
		def, err := m.mem.Word(addr)
		if err != nil {
			return err
		}
		addr += 2
		if i < len(args) {
			f.Locals[i] = args[i]
		} else {
			f.Locals[i] = def
		}
	}
	if err := m.stack.pushFrame(f); err != nil {
		return err
	}
	m.pc = addr
	return nil
}

// returnValue pops the current frame and stores v at the caller.
func (m *Machine) returnValue(v uint16) error {
	f, err := m.stack.popFrame()
	if err != nil {
		return err
	}
	m.pc = f.ReturnPC
	return m.writeVariable(f.StoreVar, v)
}

// --- output plumbing ---

// printZSCII routes one output character. An open memory stream
// captures everything and suppresses the other streams.
func (m *Machine) printZSCII(code uint16) error {
	if len(m.streams) > 0 {
		return m.memStreamPut(code)
	}
	r, ok := zcode.ZSCIIRune(code)
	if !ok {
		return nil
	}
	m.writeOut(string(r))
	return nil
}

func (m *Machine) printString(s string) error {
	for _, r := range s {
		code := uint16(r)
		if r == '\n' {
			code = 13
		}
		if err := m.printZSCII(code); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) writeOut(s string) {
	if m.screenOn {
		io.WriteString(m.out, s)
	}
	if m.transcript != nil && m.transcriptOn() {
		io.WriteString(m.transcript, s)
	}
}

// transcriptOn reads the Flags 2 transcript bit, which the game may
// toggle at any time through output_stream 2 or direct header writes.
func (m *Machine) transcriptOn() bool {
	w, err := m.mem.Word(zcode.HdrFlags2)
	return err == nil && w&1 != 0
}

func (m *Machine) memStreamPut(code uint16) error {
	s := &m.streams[len(m.streams)-1]
	if err := m.mem.WriteByte(s.table+2+uint32(s.count), byte(code)); err != nil {
		return err
	}
	s.count++
	return nil
}

func (m *Machine) openMemStream(table uint32) error {
	if len(m.streams) >= 16 {
		return fmt.Errorf("output_stream 3 nested deeper than 16: %w", errDecode)
	}
	m.streams = append(m.streams, memStream{table: table})
	return nil
}

func (m *Machine) closeMemStream() error {
	if len(m.streams) == 0 {
		return fmt.Errorf("output_stream -3 with no open stream: %w", errDecode)
	}
	s := m.streams[len(m.streams)-1]
	m.streams = m.streams[:len(m.streams)-1]
	return m.mem.WriteWord(s.table, s.count)
}

// --- the step loop ---

// Step executes exactly one instruction. It returns io.EOF once the
// game has quit, ErrAwaitingInput while suspended at sread, and a
// *Fault on any fatal condition.
func (m *Machine) Step() error {
	if m.done {
		return io.EOF
	}
	if m.pending != nil {
		return ErrAwaitingInput
	}

	m.opPC = m.pc
	opcode, err := m.fetchByte()
	if err != nil {
		return m.fault(err)
	}
	m.opByte = opcode

	prevLoc, _ := m.global(0)

	switch zcode.FormOf(opcode) {
	case zcode.FormShort:
		err = m.stepShort(opcode)
	case zcode.FormVariable:
		err = m.stepVariable(opcode)
	default:
		err = m.stepLong(opcode)
	}
	if err != nil {
		return m.fault(err)
	}
	m.steps++

	if m.onMove != nil {
		if loc, lerr := m.global(0); lerr == nil && loc != prevLoc {
			m.onMove(prevLoc, loc)
		}
	}
	if m.done {
		return io.EOF
	}
	return nil
}

func (m *Machine) stepLong(opcode byte) error {
	// Bits 6 and 5 pick small constant vs. variable per operand.
	types := [2]zcode.OperandType{zcode.OperandSmall, zcode.OperandSmall}
	if opcode&0x40 != 0 {
		types[0] = zcode.OperandVariable
	}
	if opcode&0x20 != 0 {
		types[1] = zcode.OperandVariable
	}
	var args [2]uint16
	for i, t := range types {
		v, err := m.readOperand(t)
		if err != nil {
			return err
		}
		args[i] = v
	}
	return m.exec2OP(opcode&0x1F, args[:], 2)
}

func (m *Machine) stepShort(opcode byte) error {
	t := zcode.OperandType(opcode >> 4 & 0x3)
	num := opcode & 0x0F
	if t == zcode.OperandOmitted {
		return m.exec0OP(num)
	}
	arg, err := m.readOperand(t)
	if err != nil {
		return err
	}
	return m.exec1OP(num, arg)
}

func (m *Machine) stepVariable(opcode byte) error {
	typeByte, err := m.fetchByte()
	if err != nil {
		return err
	}
	var args [4]uint16
	n := 0
	for shift := 6; shift >= 0; shift -= 2 {
		t := zcode.OperandType(typeByte >> shift & 0x3)
		if t == zcode.OperandOmitted {
			break
		}
		v, err := m.readOperand(t)
		if err != nil {
			return err
		}
		args[n] = v
		n++
	}
	num := opcode & 0x1F
	if opcode&0x20 == 0 {
		// Bit 5 clear keeps the 2OP set with variable-form operands;
		// je picks up its extra operands this way.
		return m.exec2OP(num, args[:n], n)
	}
	return m.execVAR(num, args[:n], n)
}

func (m *Machine) readOperand(t zcode.OperandType) (uint16, error) {
	switch t {
	case zcode.OperandLarge:
		return m.fetchWord()
	case zcode.OperandSmall:
		b, err := m.fetchByte()
		return uint16(b), err
	case zcode.OperandVariable:
		v, err := m.fetchByte()
		if err != nil {
			return 0, err
		}
		return m.readVariable(v)
	default:
		return 0, fmt.Errorf("omitted operand fetched: %w", errDecode)
	}
}

// RunBatch executes at most limit instructions, in the spirit of a
// host that cannot leave the machine running indefinitely. It stops
// early when the game quits or suspends for input.
func (m *Machine) RunBatch(limit int) (Status, error) {
	for i := 0; i < limit; i++ {
		switch err := m.Step(); err {
		case nil:
		case io.EOF:
			return Quit, nil
		case ErrAwaitingInput:
			return AwaitingInput, nil
		default:
			return Running, err
		}
	}
	if m.pending != nil {
		return AwaitingInput, nil
	}
	return Running, nil
}

// Run steps until the game quits or faults. With a synchronous input
// source attached this plays the whole session.
func (m *Machine) Run() error {
	for {
		switch err := m.Step(); err {
		case nil:
		case io.EOF:
			return nil
		default:
			return err
		}
	}
}

// ErrAwaitingInput is returned by Step while the machine is suspended
// at a read instruction; resume with Feed.
var ErrAwaitingInput = fmt.Errorf("machine awaiting input")

// Feed completes a suspended sread with the player's line and leaves
// the machine runnable again.
func (m *Machine) Feed(line string) error {
	if m.pending == nil {
		return fmt.Errorf("machine is not awaiting input")
	}
	p := *m.pending
	m.pending = nil
	if err := m.acceptLine(p.textAddr, p.parseAddr, line); err != nil {
		return m.fault(err)
	}
	return nil
}

// restart rewinds to the freshly-loaded state, preserving only the
// Flags 2 word as the game may have toggled the transcript bit.
func (m *Machine) restart() error {
	flags2, err := m.mem.Word(zcode.HdrFlags2)
	if err != nil {
		return err
	}
	copy(m.mem.dynamic(), m.pristine)
	if err := m.mem.WriteWord(zcode.HdrFlags2, flags2); err != nil {
		return err
	}
	m.stack.reset()
	m.streams = m.streams[:0]
	m.pending = nil
	m.pc = m.header.InitialPC
	return nil
}

// Verify recomputes the header checksum over the live image, the same
// check the verify opcode performs.
func (m *Machine) Verify() (bool, error) { return m.verify() }

// verify recomputes the checksum the compiler left in the header: the
// sum of all bytes from 0x40 up to the declared file length. The sum
// is over the story as loaded, so the dynamic region comes from the
// pristine copy, not the live bytes the game has been writing to.
func (m *Machine) verify() (bool, error) {
	var sum uint16
	for addr := uint32(zcode.HeaderSize); addr < m.header.FileLen; addr++ {
		var b byte
		if addr < uint32(len(m.pristine)) {
			b = m.pristine[addr]
		} else {
			var err error
			if b, err = m.mem.Byte(addr); err != nil {
				return false, err
			}
		}
		sum += uint16(b)
	}
	return sum == m.header.Checksum, nil
}

// statusParts assembles the version 3 status line data.
func (m *Machine) statusParts() (string, int16, int16) {
	var location string
	if loc := m.Location(); loc != zcode.NullObject {
		if name, err := m.objectName(loc); err == nil {
			location = name
		}
	}
	score, _ := m.global(1)
	moves, _ := m.global(2)
	return location, int16(score), int16(moves)
}

// StatusLine renders the same line the status bar would show.
func (m *Machine) StatusLine() string {
	location, score, moves := m.statusParts()
	return fmt.Sprintf("%s  Score: %d  Moves: %d", strings.TrimSpace(location), score, moves)
}
