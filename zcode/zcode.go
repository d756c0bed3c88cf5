// Package zcode holds the static definitions of the version 3 Z-code
// story file format: header layout, instruction forms, opcode tables,
// text alphabets and the packed text encoding. Nothing in here touches
// machine state; the vm package builds on top of these definitions.
package zcode

import "encoding/binary"

// Endian is the byte order of every multi-byte field in a story file.
var Endian = binary.BigEndian

// Version is the only story file version this interpreter executes.
const Version = 3

// Header field offsets. The header is the first 64 bytes of the image.
const (
	HdrVersion    = 0x00
	HdrFlags1     = 0x01
	HdrRelease    = 0x02
	HdrHighMem    = 0x04
	HdrInitialPC  = 0x06
	HdrDictionary = 0x08
	HdrObjects    = 0x0A
	HdrGlobals    = 0x0C
	HdrStaticMem  = 0x0E
	HdrFlags2     = 0x10
	HdrSerial     = 0x12 // 6 ASCII digits.
	HdrAbbrevs    = 0x18
	HdrFileLen    = 0x1A
	HdrChecksum   = 0x1C

	HeaderSize = 0x40
)

// SerialLength is the size of the serial number field at HdrSerial.
const SerialLength = 6

// Object table layout, version 3: 31 property default words followed
// by 9-byte object entries.
const (
	PropDefaultCount  = 31
	ObjectEntrySize   = 9
	ObjectParentOff   = 4
	ObjectSiblingOff  = 5
	ObjectChildOff    = 6
	ObjectPropsOff    = 7
	MaxObjects        = 255
	MaxProperty       = 31
	NullObject        = 0
	AttributeCount    = 32
	AbbreviationCount = 96
)

// GlobalCount is the number of 16-bit global variables (variables
// 0x10..0xFF map onto globals 0..239).
const GlobalCount = 240

// Variable numbering: 0 is the evaluation stack top, 1..15 the current
// routine's locals, 16.. the globals.
const (
	VarStack       = 0
	VarLocalLimit  = 0x10
	MaxLocals      = 15
	MaxCallOperand = 4
)

// PackedAddress converts a packed routine or string address to a byte
// address. Version 3 packs by halving.
func PackedAddress(p uint16) uint32 { return uint32(p) * 2 }

// DictWordLength is the number of Z-characters in an encoded
// dictionary word (two words, four bytes, in version 3).
const (
	DictWordLength = 6
	DictEntryCodes = 4 // encoded bytes per entry prefix
)
