// Package disasm decodes version 3 Z-code instructions from a story
// image into a printable listing. It shares the opcode tables with the
// executing machine, so anything it can list the machine can run.
package disasm

import (
	"fmt"
	"io"
	"strings"

	"go.zmach.net/zmach/vm"
	"go.zmach.net/zmach/zcode"
)

// Operand is one decoded operand with its source type.
type Operand struct {
	Type  zcode.OperandType
	Value uint16
}

func (o Operand) String() string {
	switch o.Type {
	case zcode.OperandVariable:
		return varName(byte(o.Value))
	case zcode.OperandSmall:
		return fmt.Sprintf("#%02x", o.Value)
	default:
		return fmt.Sprintf("#%04x", o.Value)
	}
}

func varName(v byte) string {
	switch {
	case v == zcode.VarStack:
		return "sp"
	case v < zcode.VarLocalLimit:
		return fmt.Sprintf("l%02d", v-1)
	default:
		return fmt.Sprintf("g%02d", v-zcode.VarLocalLimit)
	}
}

// Branch is a decoded branch specifier. Returns means the branch
// encodes a routine return instead of a jump.
type Branch struct {
	OnTrue   bool
	Returns  bool
	RetValue bool   // with Returns, true or false
	Target   uint32 // without Returns, absolute destination
}

// Instruction is one decoded instruction. Next is the address of the
// following instruction.
type Instruction struct {
	Addr   uint32
	Next   uint32
	Count  zcode.Count
	Num    byte
	Op     zcode.OpCode
	Args   []Operand
	Store  byte
	Branch *Branch
	Text   string
}

func (in *Instruction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%05x: %s", in.Addr, in.Op.Name)
	for _, a := range in.Args {
		sb.WriteByte(' ')
		sb.WriteString(a.String())
	}
	if in.Op.Store {
		fmt.Fprintf(&sb, " -> %s", varName(in.Store))
	}
	if in.Branch != nil {
		cond := "~"
		if in.Branch.OnTrue {
			cond = ""
		}
		if in.Branch.Returns {
			fmt.Fprintf(&sb, " ?%sret:%v", cond, in.Branch.RetValue)
		} else {
			fmt.Fprintf(&sb, " ?%s%05x", cond, in.Branch.Target)
		}
	}
	if in.Op.Text {
		fmt.Fprintf(&sb, " %q", in.Text)
	}
	return sb.String()
}

// Disassembler walks instructions in a loaded image. It rides a
// non-executing Machine for bounds-checked reads and string decoding.
type Disassembler struct {
	m *vm.Machine
}

// New validates the image and returns a disassembler over it.
func New(image []byte) (*Disassembler, error) {
	m, err := vm.New(image, vm.Config{})
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	return &Disassembler{m: m}, nil
}

// Entry returns the initial program counter.
func (d *Disassembler) Entry() uint32 { return d.m.Header().InitialPC }

// Decode decodes the single instruction at addr.
func (d *Disassembler) Decode(addr uint32) (*Instruction, error) {
	in := &Instruction{Addr: addr}

	opcode, err := d.m.ImageByte(addr)
	if err != nil {
		return nil, err
	}
	addr++

	switch zcode.FormOf(opcode) {
	case zcode.FormShort:
		t := zcode.OperandType(opcode >> 4 & 0x3)
		in.Num = opcode & 0x0F
		if t == zcode.OperandOmitted {
			in.Count = zcode.Count0OP
			in.Op = zcode.Table0OP[in.Num]
		} else {
			in.Count = zcode.Count1OP
			in.Op = zcode.Table1OP[in.Num]
			if addr, err = d.operand(in, t, addr); err != nil {
				return nil, err
			}
		}

	case zcode.FormVariable:
		in.Num = opcode & 0x1F
		if opcode&0x20 == 0 {
			in.Count = zcode.Count2OP
			in.Op = zcode.Table2OP[in.Num]
		} else {
			in.Count = zcode.CountVAR
			in.Op = zcode.TableVAR[in.Num]
		}
		types, err := d.m.ImageByte(addr)
		if err != nil {
			return nil, err
		}
		addr++
		for shift := 6; shift >= 0; shift -= 2 {
			t := zcode.OperandType(types >> shift & 0x3)
			if t == zcode.OperandOmitted {
				break
			}
			if addr, err = d.operand(in, t, addr); err != nil {
				return nil, err
			}
		}

	default: // long form
		in.Count = zcode.Count2OP
		in.Num = opcode & 0x1F
		in.Op = zcode.Table2OP[in.Num]
		for _, bit := range []byte{0x40, 0x20} {
			t := zcode.OperandSmall
			if opcode&bit != 0 {
				t = zcode.OperandVariable
			}
			if addr, err = d.operand(in, t, addr); err != nil {
				return nil, err
			}
		}
	}

	if !in.Op.Defined() {
		return nil, fmt.Errorf("undefined %v opcode 0x%02x at 0x%05x", in.Count, in.Num, in.Addr)
	}
	// The call store byte trails the operands like any other, so the
	// generic store handling covers it.
	if in.Op.Store {
		b, err := d.m.ImageByte(addr)
		if err != nil {
			return nil, err
		}
		in.Store = b
		addr++
	}
	if in.Op.Branch {
		if addr, err = d.branchSpec(in, addr); err != nil {
			return nil, err
		}
	}
	if in.Op.Text {
		s, next, err := d.m.DecodeText(addr)
		if err != nil {
			return nil, err
		}
		in.Text = s
		addr = next
	}
	in.Next = addr
	return in, nil
}

func (d *Disassembler) operand(in *Instruction, t zcode.OperandType, addr uint32) (uint32, error) {
	var v uint16
	switch t {
	case zcode.OperandLarge:
		w, err := d.m.ImageWord(addr)
		if err != nil {
			return 0, err
		}
		v = w
	default:
		b, err := d.m.ImageByte(addr)
		if err != nil {
			return 0, err
		}
		v = uint16(b)
	}
	in.Args = append(in.Args, Operand{Type: t, Value: v})
	return addr + uint32(t.Size()), nil
}

func (d *Disassembler) branchSpec(in *Instruction, addr uint32) (uint32, error) {
	spec, err := d.m.ImageByte(addr)
	if err != nil {
		return 0, err
	}
	addr++
	br := &Branch{OnTrue: spec&0x80 != 0}

	var offset int32
	if spec&0x40 != 0 {
		offset = int32(spec & 0x3F)
	} else {
		second, err := d.m.ImageByte(addr)
		if err != nil {
			return 0, err
		}
		addr++
		raw := uint16(spec&0x3F)<<8 | uint16(second)
		if raw&0x2000 != 0 {
			raw |= 0xC000
		}
		offset = int32(int16(raw))
	}
	if offset == 0 || offset == 1 {
		br.Returns = true
		br.RetValue = offset == 1
	} else {
		br.Target = uint32(int64(addr) + int64(offset) - 2)
	}
	in.Branch = br
	return addr, nil
}

// Listing decodes up to count instructions starting at addr and writes
// one line each to w. It stops at the first undecodable byte, noting
// the reason, since data interleaved with code is normal in images.
func (d *Disassembler) Listing(w io.Writer, addr uint32, count int) error {
	for i := 0; i < count; i++ {
		in, err := d.Decode(addr)
		if err != nil {
			fmt.Fprintf(w, "%05x: .data ; %v\n", addr, err)
			return nil
		}
		if _, err := fmt.Fprintln(w, in.String()); err != nil {
			return err
		}
		addr = in.Next
	}
	return nil
}
