package vm

import (
	"fmt"

	"go.zmach.net/zmach/zcode"
)

// Header is the parsed, validated fixed prefix of the story image.
// Fields are read once at load time; the running game never changes
// them (Flags 2 excepted, which lives in raw memory).
type Header struct {
	Version    byte
	Release    uint16
	HighMem    uint32
	InitialPC  uint32
	Dictionary uint32
	Objects    uint32
	Globals    uint32
	StaticMem  uint32
	Abbrevs    uint32
	Serial     [zcode.SerialLength]byte
	FileLen    uint32
	Checksum   uint16
}

// ReadHeader parses the header and checks that every declared region
// fits inside the image. A bad header refuses to start the machine;
// nothing downstream re-validates these bounds.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < zcode.HeaderSize {
		return Header{}, fmt.Errorf("image is %d bytes, smaller than the header: %w", len(data), ErrOutOfBounds)
	}
	var h Header
	h.Version = data[zcode.HdrVersion]
	if h.Version != zcode.Version {
		return Header{}, fmt.Errorf("story version %d, interpreter handles version %d only", h.Version, zcode.Version)
	}
	h.Release = zcode.Endian.Uint16(data[zcode.HdrRelease:])
	h.HighMem = uint32(zcode.Endian.Uint16(data[zcode.HdrHighMem:]))
	h.InitialPC = uint32(zcode.Endian.Uint16(data[zcode.HdrInitialPC:]))
	h.Dictionary = uint32(zcode.Endian.Uint16(data[zcode.HdrDictionary:]))
	h.Objects = uint32(zcode.Endian.Uint16(data[zcode.HdrObjects:]))
	h.Globals = uint32(zcode.Endian.Uint16(data[zcode.HdrGlobals:]))
	h.StaticMem = uint32(zcode.Endian.Uint16(data[zcode.HdrStaticMem:]))
	h.Abbrevs = uint32(zcode.Endian.Uint16(data[zcode.HdrAbbrevs:]))
	copy(h.Serial[:], data[zcode.HdrSerial:zcode.HdrSerial+zcode.SerialLength])
	h.FileLen = uint32(zcode.Endian.Uint16(data[zcode.HdrFileLen:])) * 2
	h.Checksum = zcode.Endian.Uint16(data[zcode.HdrChecksum:])

	size := uint32(len(data))
	if h.FileLen == 0 {
		// Older story files leave the length field blank.
		h.FileLen = size
	}
	if h.FileLen > size {
		return Header{}, fmt.Errorf("header declares %d bytes, image holds %d: %w", h.FileLen, size, ErrOutOfBounds)
	}
	if h.StaticMem < zcode.HeaderSize || h.StaticMem > size {
		return Header{}, fmt.Errorf("static memory base 0x%05x outside image: %w", h.StaticMem, ErrOutOfBounds)
	}
	if h.InitialPC >= size {
		return Header{}, fmt.Errorf("initial pc 0x%05x outside image: %w", h.InitialPC, ErrOutOfBounds)
	}
	if h.Globals+zcode.GlobalCount*2 > size {
		return Header{}, fmt.Errorf("global table at 0x%05x overruns image: %w", h.Globals, ErrOutOfBounds)
	}
	if h.Objects+zcode.PropDefaultCount*2 > size {
		return Header{}, fmt.Errorf("object table at 0x%05x overruns image: %w", h.Objects, ErrOutOfBounds)
	}
	if h.Dictionary >= size {
		return Header{}, fmt.Errorf("dictionary at 0x%05x outside image: %w", h.Dictionary, ErrOutOfBounds)
	}
	if h.Abbrevs+zcode.AbbreviationCount*2 > size {
		return Header{}, fmt.Errorf("abbreviation table at 0x%05x overruns image: %w", h.Abbrevs, ErrOutOfBounds)
	}
	return h, nil
}
