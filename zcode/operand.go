package zcode

// Form is the instruction encoding form, selected by the top two bits
// of the opcode byte.
type Form int

const (
	FormLong Form = iota
	FormShort
	FormVariable
)

func (f Form) String() string {
	switch f {
	case FormLong:
		return "long"
	case FormShort:
		return "short"
	case FormVariable:
		return "variable"
	default:
		return "unknown form"
	}
}

// FormOf decodes the form from the leading opcode byte.
func FormOf(opcode byte) Form {
	switch opcode >> 6 {
	case 0b11:
		return FormVariable
	case 0b10:
		return FormShort
	default:
		return FormLong
	}
}

// OperandType is the 2-bit operand type code used by the short form
// and by variable-form type bytes.
type OperandType byte

const (
	OperandLarge    OperandType = 0b00 // 16-bit constant
	OperandSmall    OperandType = 0b01 // 8-bit constant
	OperandVariable OperandType = 0b10 // variable reference
	OperandOmitted  OperandType = 0b11
)

func (ot OperandType) String() string {
	switch ot {
	case OperandLarge:
		return "large"
	case OperandSmall:
		return "small"
	case OperandVariable:
		return "variable"
	case OperandOmitted:
		return "omitted"
	default:
		return "unknown operand type"
	}
}

// Size returns the encoded size of an operand of this type in bytes.
func (ot OperandType) Size() int {
	switch ot {
	case OperandLarge:
		return 2
	case OperandSmall, OperandVariable:
		return 1
	default:
		return 0
	}
}
