package vm

import (
	"fmt"

	"go.zmach.net/zmach/zcode"
)

// Memory is the flat story image. Every access is bounds checked;
// writes are confined to dynamic memory plus the Flags 2 header word,
// the only header field a running game may touch.
type Memory struct {
	data       []byte
	staticBase uint32
}

func (m *Memory) Size() uint32 { return uint32(len(m.data)) }

func (m *Memory) Byte(addr uint32) (byte, error) {
	if addr >= uint32(len(m.data)) {
		return 0, fmt.Errorf("read byte at 0x%05x: %w", addr, ErrOutOfBounds)
	}
	return m.data[addr], nil
}

func (m *Memory) Word(addr uint32) (uint16, error) {
	if addr+1 >= uint32(len(m.data)) || addr+1 < addr {
		return 0, fmt.Errorf("read word at 0x%05x: %w", addr, ErrOutOfBounds)
	}
	return zcode.Endian.Uint16(m.data[addr:]), nil
}

func (m *Memory) writable(addr uint32) bool {
	if addr == zcode.HdrFlags2 || addr == zcode.HdrFlags2+1 {
		return true
	}
	return addr >= zcode.HeaderSize && addr < m.staticBase
}

func (m *Memory) WriteByte(addr uint32, v byte) error {
	if addr >= uint32(len(m.data)) {
		return fmt.Errorf("write byte at 0x%05x: %w", addr, ErrOutOfBounds)
	}
	if !m.writable(addr) {
		return fmt.Errorf("write byte at 0x%05x: %w", addr, ErrReadOnly)
	}
	m.data[addr] = v
	return nil
}

func (m *Memory) WriteWord(addr uint32, v uint16) error {
	if addr+1 >= uint32(len(m.data)) || addr+1 < addr {
		return fmt.Errorf("write word at 0x%05x: %w", addr, ErrOutOfBounds)
	}
	if !m.writable(addr) || !m.writable(addr+1) {
		return fmt.Errorf("write word at 0x%05x: %w", addr, ErrReadOnly)
	}
	zcode.Endian.PutUint16(m.data[addr:], v)
	return nil
}

// dynamic returns the mutable region, header included. Snapshots and
// restart copy exactly this slice.
func (m *Memory) dynamic() []byte { return m.data[:m.staticBase] }
