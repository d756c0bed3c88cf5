package zbuild

import (
	"fmt"

	"go.zmach.net/zmach/zcode"
)

// Operand pairs a type code with its value for the encoders below.
type Operand struct {
	Type  zcode.OperandType
	Value uint16
}

func Large(v uint16) Operand  { return Operand{Type: zcode.OperandLarge, Value: v} }
func Small(v byte) Operand    { return Operand{Type: zcode.OperandSmall, Value: uint16(v)} }
func Variable(v byte) Operand { return Operand{Type: zcode.OperandVariable, Value: uint16(v)} }

// Join concatenates encoded fragments into one code block.
func Join(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Long2OP encodes a long-form 2OP instruction. Operands must be small
// constants or variables; use Var2OP when a large constant is needed.
func Long2OP(num byte, a, b Operand) []byte {
	if num > 0x1F {
		panic(fmt.Sprintf("2OP number 0x%02x out of range", num))
	}
	op := num
	if a.Type == zcode.OperandVariable {
		op |= 0x40
	} else if a.Type != zcode.OperandSmall {
		panic("long form takes small or variable operands")
	}
	if b.Type == zcode.OperandVariable {
		op |= 0x20
	} else if b.Type != zcode.OperandSmall {
		panic("long form takes small or variable operands")
	}
	return []byte{op, byte(a.Value), byte(b.Value)}
}

// Short1OP encodes a short-form 1OP instruction.
func Short1OP(num byte, a Operand) []byte {
	if num > 0x0F {
		panic(fmt.Sprintf("1OP number 0x%02x out of range", num))
	}
	out := []byte{0x80 | byte(a.Type)<<4 | num}
	return appendOperand(out, a)
}

// Short0OP encodes a short-form 0OP instruction.
func Short0OP(num byte) []byte {
	if num > 0x0F {
		panic(fmt.Sprintf("0OP number 0x%02x out of range", num))
	}
	return []byte{0xB0 | num}
}

// Var encodes a variable-form VAR instruction (opcode bit 5 set).
func Var(num byte, ops ...Operand) []byte {
	if num > 0x1F {
		panic(fmt.Sprintf("VAR number 0x%02x out of range", num))
	}
	return variableForm(0xE0|num, ops)
}

// Var2OP encodes a 2OP instruction in variable form (opcode bit 5
// clear), for large constants or more than two operands.
func Var2OP(num byte, ops ...Operand) []byte {
	if num > 0x1F {
		panic(fmt.Sprintf("2OP number 0x%02x out of range", num))
	}
	return variableForm(0xC0|num, ops)
}

func variableForm(op byte, ops []Operand) []byte {
	if len(ops) > 4 {
		panic("variable form carries at most four operands")
	}
	types := byte(0xFF)
	for i, o := range ops {
		shift := uint(6 - 2*i)
		types &^= 0b11 << shift
		types |= byte(o.Type) << shift
	}
	out := []byte{op, types}
	for _, o := range ops {
		out = appendOperand(out, o)
	}
	return out
}

func appendOperand(out []byte, o Operand) []byte {
	switch o.Type {
	case zcode.OperandLarge:
		return append(out, byte(o.Value>>8), byte(o.Value))
	case zcode.OperandSmall, zcode.OperandVariable:
		return append(out, byte(o.Value))
	default:
		return out
	}
}

// Store encodes a store-variable byte.
func Store(v byte) []byte { return []byte{v} }

// Branch encodes a branch specifier with a signed offset. Offsets 0
// and 1 have reserved meanings (return false, return true); encode
// them with BranchReturn.
func Branch(onTrue bool, offset int16) []byte {
	if offset == 0 || offset == 1 {
		panic("offsets 0 and 1 encode returns, use BranchReturn")
	}
	var flag byte
	if onTrue {
		flag = 0x80
	}
	if offset >= 2 && offset <= 63 {
		return []byte{flag | 0x40 | byte(offset)}
	}
	if offset < -8192 || offset > 8191 {
		panic(fmt.Sprintf("branch offset %d out of 14-bit range", offset))
	}
	raw := uint16(offset) & 0x3FFF
	return []byte{flag | byte(raw>>8), byte(raw)}
}

// BranchReturn encodes the short branch whose offset means "return
// false" (0) or "return true" (1) from the current routine.
func BranchReturn(onTrue, retTrue bool) []byte {
	var b byte = 0x40
	if onTrue {
		b |= 0x80
	}
	if retTrue {
		b |= 1
	}
	return []byte{b}
}

// ZText encodes an inline string for print and print_ret.
func ZText(s string) []byte {
	words := zcode.EncodeString(s)
	out := make([]byte, 0, len(words)*2)
	for _, w := range words {
		out = append(out, byte(w>>8), byte(w))
	}
	return out
}
