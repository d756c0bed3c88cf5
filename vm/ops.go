package vm

import (
	"fmt"
	"strconv"

	"go.zmach.net/zmach/zcode"
)

// Opcode effects, one exec function per count class. Dispatch is a
// closed switch over the version 3 set: any number the table does not
// define is a fatal decode error, never a silent no-op, because
// instruction lengths depend on the opcode and guessing would execute
// data as code.

func undefinedOpcode(class zcode.Count, num byte) error {
	return fmt.Errorf("undefined %s opcode 0x%02x: %w", class, num, errDecode)
}

func needArgs(name string, got, want int) error {
	if got < want {
		return fmt.Errorf("%s wants %d operands, got %d: %w", name, want, got, errDecode)
	}
	return nil
}

// storeIndirect writes through a variable number held in an operand.
// Indirect access to variable 0 overwrites the stack top in place.
func (m *Machine) storeIndirect(v, val uint16) error {
	if v > 0xFF {
		return fmt.Errorf("variable number %d: %w", v, errDecode)
	}
	if byte(v) == zcode.VarStack {
		p, err := m.stack.peek()
		if err != nil {
			return err
		}
		*p = val
		return nil
	}
	return m.writeVariable(byte(v), val)
}

func (m *Machine) exec2OP(num byte, args []uint16, n int) error {
	if !zcode.Table2OP[num].Defined() {
		return undefinedOpcode(zcode.Count2OP, num)
	}
	if err := needArgs(zcode.Table2OP[num].Name, n, 2); err != nil {
		return err
	}
	a, b := args[0], args[1]

	switch num {
	case 0x01: // je
		cond := a == b || (n > 2 && a == args[2]) || (n > 3 && a == args[3])
		return m.branch(cond)
	case 0x02: // jl
		return m.branch(int16(a) < int16(b))
	case 0x03: // jg
		return m.branch(int16(a) > int16(b))
	case 0x04: // dec_chk
		v, err := m.addToVar(a, -1)
		if err != nil {
			return err
		}
		return m.branch(int16(v) < int16(b))
	case 0x05: // inc_chk
		v, err := m.addToVar(a, 1)
		if err != nil {
			return err
		}
		return m.branch(int16(v) > int16(b))
	case 0x06: // jin
		parent, err := m.parentOf(a)
		if err != nil {
			return err
		}
		return m.branch(parent == b)
	case 0x07: // test
		return m.branch(a&b == b)
	case 0x08: // or
		return m.storeResult(a | b)
	case 0x09: // and
		return m.storeResult(a & b)
	case 0x0A: // test_attr
		set, err := m.testAttr(a, b)
		if err != nil {
			return err
		}
		return m.branch(set)
	case 0x0B: // set_attr
		return m.setAttr(a, b, true)
	case 0x0C: // clear_attr
		return m.setAttr(a, b, false)
	case 0x0D: // store
		return m.storeIndirect(a, b)
	case 0x0E: // insert_obj
		return m.insertObj(a, b)
	case 0x0F: // loadw
		v, err := m.mem.Word(uint32(a) + 2*uint32(b))
		if err != nil {
			return err
		}
		return m.storeResult(v)
	case 0x10: // loadb
		v, err := m.mem.Byte(uint32(a) + uint32(b))
		if err != nil {
			return err
		}
		return m.storeResult(uint16(v))
	case 0x11: // get_prop
		v, err := m.getProp(a, b)
		if err != nil {
			return err
		}
		return m.storeResult(v)
	case 0x12: // get_prop_addr
		v, err := m.getPropAddr(a, b)
		if err != nil {
			return err
		}
		return m.storeResult(v)
	case 0x13: // get_next_prop
		v, err := m.getNextProp(a, b)
		if err != nil {
			return err
		}
		return m.storeResult(v)
	case 0x14: // add
		return m.storeResult(uint16(int16(a) + int16(b)))
	case 0x15: // sub
		return m.storeResult(uint16(int16(a) - int16(b)))
	case 0x16: // mul
		return m.storeResult(uint16(int16(a) * int16(b)))
	case 0x17: // div
		if b == 0 {
			return fmt.Errorf("div: %w", errDivByZero)
		}
		return m.storeResult(uint16(int16(a) / int16(b)))
	case 0x18: // mod
		if b == 0 {
			return fmt.Errorf("mod: %w", errDivByZero)
		}
		return m.storeResult(uint16(int16(a) % int16(b)))
	default:
		return undefinedOpcode(zcode.Count2OP, num)
	}
}

func (m *Machine) exec1OP(num byte, arg uint16) error {
	if !zcode.Table1OP[num].Defined() {
		return undefinedOpcode(zcode.Count1OP, num)
	}

	switch num {
	case 0x0: // jz
		return m.branch(arg == 0)
	case 0x1: // get_sibling
		sib, err := m.siblingOf(arg)
		if err != nil {
			return err
		}
		if err := m.storeResult(sib); err != nil {
			return err
		}
		return m.branch(sib != zcode.NullObject)
	case 0x2: // get_child
		child, err := m.childOf(arg)
		if err != nil {
			return err
		}
		if err := m.storeResult(child); err != nil {
			return err
		}
		return m.branch(child != zcode.NullObject)
	case 0x3: // get_parent
		parent, err := m.parentOf(arg)
		if err != nil {
			return err
		}
		return m.storeResult(parent)
	case 0x4: // get_prop_len
		length, err := m.propLen(arg)
		if err != nil {
			return err
		}
		return m.storeResult(length)
	case 0x5: // inc
		_, err := m.addToVar(arg, 1)
		return err
	case 0x6: // dec
		_, err := m.addToVar(arg, -1)
		return err
	case 0x7: // print_addr
		s, _, err := m.decodeString(uint32(arg))
		if err != nil {
			return err
		}
		return m.printString(s)
	case 0x9: // remove_obj
		return m.removeObj(arg)
	case 0xA: // print_obj
		name, err := m.objectName(arg)
		if err != nil {
			return err
		}
		return m.printString(name)
	case 0xB: // ret
		return m.returnValue(arg)
	case 0xC: // jump
		target := int64(m.pc) + int64(int16(arg)) - 2
		if target < 0 || target >= int64(m.mem.Size()) {
			return fmt.Errorf("jump to 0x%05x: %w", target, ErrOutOfBounds)
		}
		m.pc = uint32(target)
		return nil
	case 0xD: // print_paddr
		s, _, err := m.decodeString(zcode.PackedAddress(arg))
		if err != nil {
			return err
		}
		return m.printString(s)
	case 0xE: // load
		if arg > 0xFF {
			return fmt.Errorf("variable number %d: %w", arg, errDecode)
		}
		v, err := m.readVariableNoPop(byte(arg))
		if err != nil {
			return err
		}
		return m.storeResult(v)
	case 0xF: // not
		return m.storeResult(^arg)
	default:
		return undefinedOpcode(zcode.Count1OP, num)
	}
}

func (m *Machine) exec0OP(num byte) error {
	if !zcode.Table0OP[num].Defined() {
		return undefinedOpcode(zcode.Count0OP, num)
	}

	switch num {
	case 0x0: // rtrue
		return m.returnValue(1)
	case 0x1: // rfalse
		return m.returnValue(0)
	case 0x2: // print
		s, next, err := m.decodeString(m.pc)
		if err != nil {
			return err
		}
		m.pc = next
		return m.printString(s)
	case 0x3: // print_ret
		s, next, err := m.decodeString(m.pc)
		if err != nil {
			return err
		}
		m.pc = next
		if err := m.printString(s + "\n"); err != nil {
			return err
		}
		return m.returnValue(1)
	case 0x4: // nop
		return nil
	case 0x5: // save
		return m.opSave()
	case 0x6: // restore
		return m.opRestore()
	case 0x7: // restart
		return m.restart()
	case 0x8: // ret_popped
		v, err := m.stack.pop()
		if err != nil {
			return err
		}
		return m.returnValue(v)
	case 0x9: // pop
		_, err := m.stack.pop()
		return err
	case 0xA: // quit
		m.done = true
		return nil
	case 0xB: // new_line
		return m.printZSCII(13)
	case 0xC: // show_status
		if m.onStatus != nil {
			m.onStatus(m.statusParts())
		}
		return nil
	case 0xD: // verify
		ok, err := m.verify()
		if err != nil {
			return err
		}
		return m.branch(ok)
	default:
		return undefinedOpcode(zcode.Count0OP, num)
	}
}

func (m *Machine) execVAR(num byte, args []uint16, n int) error {
	if !zcode.TableVAR[num].Defined() {
		return undefinedOpcode(zcode.CountVAR, num)
	}

	switch num {
	case 0x00: // call
		if err := needArgs("call", n, 1); err != nil {
			return err
		}
		return m.callRoutine(args[0], args[1:n])
	case 0x01: // storew
		if err := needArgs("storew", n, 3); err != nil {
			return err
		}
		return m.mem.WriteWord(uint32(args[0])+2*uint32(args[1]), args[2])
	case 0x02: // storeb
		if err := needArgs("storeb", n, 3); err != nil {
			return err
		}
		return m.mem.WriteByte(uint32(args[0])+uint32(args[1]), byte(args[2]))
	case 0x03: // put_prop
		if err := needArgs("put_prop", n, 3); err != nil {
			return err
		}
		return m.putProp(args[0], args[1], args[2])
	case 0x04: // sread
		if err := needArgs("sread", n, 2); err != nil {
			return err
		}
		return m.opRead(uint32(args[0]), uint32(args[1]))
	case 0x05: // print_char
		if err := needArgs("print_char", n, 1); err != nil {
			return err
		}
		return m.printZSCII(args[0])
	case 0x06: // print_num
		if err := needArgs("print_num", n, 1); err != nil {
			return err
		}
		return m.printString(strconv.Itoa(int(int16(args[0]))))
	case 0x07: // random
		if err := needArgs("random", n, 1); err != nil {
			return err
		}
		return m.opRandom(int16(args[0]))
	case 0x08: // push
		if err := needArgs("push", n, 1); err != nil {
			return err
		}
		return m.stack.push(args[0])
	case 0x09: // pull
		if err := needArgs("pull", n, 1); err != nil {
			return err
		}
		v, err := m.stack.pop()
		if err != nil {
			return err
		}
		return m.storeIndirect(args[0], v)
	case 0x0A, 0x0B: // split_window, set_window
		// Single-window screen model.
		return nil
	case 0x13: // output_stream
		if err := needArgs("output_stream", n, 1); err != nil {
			return err
		}
		return m.opOutputStream(int16(args[0]), args[1:n])
	case 0x14: // input_stream
		return nil
	case 0x15: // sound_effect
		// Sound is out of scope; the bleep is dropped.
		return nil
	default:
		return undefinedOpcode(zcode.CountVAR, num)
	}
}

// opRead refreshes the status line, then either reads a line from the
// attached source or suspends the machine at this exact boundary.
func (m *Machine) opRead(textAddr, parseAddr uint32) error {
	if m.onStatus != nil {
		m.onStatus(m.statusParts())
	}
	if m.input == nil {
		m.pending = &pendingRead{textAddr: textAddr, parseAddr: parseAddr}
		return nil
	}
	line, err := m.input.ReadLine()
	if err != nil {
		return fmt.Errorf("read line: %v: %w", err, errHost)
	}
	return m.acceptLine(textAddr, parseAddr, line)
}

func (m *Machine) opRandom(n int16) error {
	switch {
	case n > 0:
		return m.storeResult(m.rng.roll(n))
	case n < 0:
		m.rng.reseed(int64(-n))
		return m.storeResult(0)
	default:
		m.rng.reseed(0)
		return m.storeResult(0)
	}
}

func (m *Machine) opOutputStream(stream int16, extra []uint16) error {
	switch stream {
	case 0:
		return nil
	case 1:
		m.screenOn = true
		return nil
	case -1:
		m.screenOn = false
		return nil
	case 2, -2:
		flags2, err := m.mem.Word(zcode.HdrFlags2)
		if err != nil {
			return err
		}
		if stream > 0 {
			flags2 |= 1
		} else {
			flags2 &^= 1
		}
		return m.mem.WriteWord(zcode.HdrFlags2, flags2)
	case 3:
		if err := needArgs("output_stream 3", len(extra)+1, 2); err != nil {
			return err
		}
		return m.openMemStream(uint32(extra[0]))
	case -3:
		return m.closeMemStream()
	default:
		return fmt.Errorf("output_stream %d: %w", stream, errDecode)
	}
}

// opSave snapshots with the program counter on the branch specifier,
// so a later restore re-runs this instruction's branch as taken.
func (m *Machine) opSave() error {
	if m.saveFn == nil {
		return m.branch(false)
	}
	snap := m.Snapshot()
	if err := m.saveFn(snap); err != nil {
		return m.branch(false)
	}
	return m.branch(true)
}

func (m *Machine) opRestore() error {
	if m.restoreFn == nil {
		return m.branch(false)
	}
	snap, err := m.restoreFn()
	if err != nil || snap == nil {
		return m.branch(false)
	}
	if err := m.ApplySnapshot(snap); err != nil {
		return err
	}
	// The restored program counter sits on the save instruction's
	// branch specifier; take it.
	return m.branch(true)
}
