package zcode

// Count is the operand count class of an opcode.
type Count int

const (
	Count0OP Count = iota
	Count1OP
	Count2OP
	CountVAR
)

func (c Count) String() string {
	switch c {
	case Count0OP:
		return "0OP"
	case Count1OP:
		return "1OP"
	case Count2OP:
		return "2OP"
	case CountVAR:
		return "VAR"
	default:
		return "unknown count"
	}
}

// OpCode describes one instruction of the version 3 set. A zero Name
// marks an opcode number with no defined effect; executing it is a
// fatal error, never a no-op.
type OpCode struct {
	Name   string
	Store  bool // trailing destination-variable byte
	Branch bool // trailing branch specifier
	Text   bool // inline Z-string literal follows the opcode
}

// Defined reports whether the opcode number has an effect in version 3.
func (oc OpCode) Defined() bool { return oc.Name != "" }

// Table0OP is indexed by the bottom four bits of a short-form opcode
// byte with operand type omitted.
var Table0OP = [16]OpCode{
	0x0: {Name: "rtrue"},
	0x1: {Name: "rfalse"},
	0x2: {Name: "print", Text: true},
	0x3: {Name: "print_ret", Text: true},
	0x4: {Name: "nop"},
	0x5: {Name: "save", Branch: true},
	0x6: {Name: "restore", Branch: true},
	0x7: {Name: "restart"},
	0x8: {Name: "ret_popped"},
	0x9: {Name: "pop"},
	0xA: {Name: "quit"},
	0xB: {Name: "new_line"},
	0xC: {Name: "show_status"},
	0xD: {Name: "verify", Branch: true},
	// 0xE, 0xF: version 5 and later.
}

// Table1OP is indexed by the bottom four bits of a short-form opcode
// byte with one operand.
var Table1OP = [16]OpCode{
	0x0: {Name: "jz", Branch: true},
	0x1: {Name: "get_sibling", Store: true, Branch: true},
	0x2: {Name: "get_child", Store: true, Branch: true},
	0x3: {Name: "get_parent", Store: true},
	0x4: {Name: "get_prop_len", Store: true},
	0x5: {Name: "inc"},
	0x6: {Name: "dec"},
	0x7: {Name: "print_addr"},
	// 0x8: call_1s, version 4.
	0x9: {Name: "remove_obj"},
	0xA: {Name: "print_obj"},
	0xB: {Name: "ret"},
	0xC: {Name: "jump"},
	0xD: {Name: "print_paddr"},
	0xE: {Name: "load", Store: true},
	0xF: {Name: "not", Store: true},
}

// Table2OP is indexed by the bottom five bits of a long-form opcode
// byte, or of a variable-form byte with bit 5 clear.
var Table2OP = [32]OpCode{
	0x01: {Name: "je", Branch: true},
	0x02: {Name: "jl", Branch: true},
	0x03: {Name: "jg", Branch: true},
	0x04: {Name: "dec_chk", Branch: true},
	0x05: {Name: "inc_chk", Branch: true},
	0x06: {Name: "jin", Branch: true},
	0x07: {Name: "test", Branch: true},
	0x08: {Name: "or", Store: true},
	0x09: {Name: "and", Store: true},
	0x0A: {Name: "test_attr", Branch: true},
	0x0B: {Name: "set_attr"},
	0x0C: {Name: "clear_attr"},
	0x0D: {Name: "store"},
	0x0E: {Name: "insert_obj"},
	0x0F: {Name: "loadw", Store: true},
	0x10: {Name: "loadb", Store: true},
	0x11: {Name: "get_prop", Store: true},
	0x12: {Name: "get_prop_addr", Store: true},
	0x13: {Name: "get_next_prop", Store: true},
	0x14: {Name: "add", Store: true},
	0x15: {Name: "sub", Store: true},
	0x16: {Name: "mul", Store: true},
	0x17: {Name: "div", Store: true},
	0x18: {Name: "mod", Store: true},
	// 0x19..0x1C: version 4 and later call forms.
}

// TableVAR is indexed by the bottom five bits of a variable-form
// opcode byte with bit 5 set.
var TableVAR = [32]OpCode{
	0x00: {Name: "call", Store: true},
	0x01: {Name: "storew"},
	0x02: {Name: "storeb"},
	0x03: {Name: "put_prop"},
	0x04: {Name: "sread"},
	0x05: {Name: "print_char"},
	0x06: {Name: "print_num"},
	0x07: {Name: "random", Store: true},
	0x08: {Name: "push"},
	0x09: {Name: "pull"},
	0x0A: {Name: "split_window"},
	0x0B: {Name: "set_window"},
	// 0x0C..0x12: version 4 and later.
	0x13: {Name: "output_stream"},
	0x14: {Name: "input_stream"},
	0x15: {Name: "sound_effect"},
}
