package vm

import (
	"fmt"
	"strings"

	"go.zmach.net/zmach/zcode"
)

// Z-string decoding: three 5-bit characters per word, the word's high
// bit terminating the string. Abbreviation expansion recurses through
// decode with a depth cap so a self-referencing table is a decode
// error rather than a hang.

const maxAbbrevDepth = 2

// DecodeText decodes the terminated string at addr with the loaded
// story's abbreviation table and returns it with the address just past
// the terminating word. Tools (the disassembler, debug views) use this
// to show strings without running the machine.
func (m *Machine) DecodeText(addr uint32) (string, uint32, error) {
	s, next, err := m.decodeString(addr)
	if err != nil {
		return "", 0, m.fault(err)
	}
	return s, next, nil
}

// decodeString decodes the terminated string at addr and returns the
// address just past its last word.
func (m *Machine) decodeString(addr uint32) (string, uint32, error) {
	var sb strings.Builder
	next, err := m.decode(addr, 0, 0, &sb)
	return sb.String(), next, err
}

// decodeStringWords decodes exactly words words, the object-name
// context where the length is stored out of band.
func (m *Machine) decodeStringWords(addr, words uint32) (string, error) {
	var sb strings.Builder
	_, err := m.decode(addr, words, 0, &sb)
	return sb.String(), err
}

func (m *Machine) decode(addr, maxWords uint32, depth int, sb *strings.Builder) (uint32, error) {
	var codes []byte
	for read := uint32(0); ; read++ {
		if maxWords > 0 && read >= maxWords {
			break
		}
		w, err := m.mem.Word(addr)
		if err != nil {
			return 0, err
		}
		addr += 2
		codes = append(codes, byte(w>>10&0x1F), byte(w>>5&0x1F), byte(w&0x1F))
		if maxWords == 0 && w&0x8000 != 0 {
			break
		}
	}

	alphabet := 0
	for i := 0; i < len(codes); i++ {
		zc := codes[i]
		switch {
		case zc == zcode.ZCharSpace:
			sb.WriteByte(' ')

		case zc <= zcode.ZCharAbbrev3:
			if i+1 >= len(codes) {
				return 0, fmt.Errorf("abbreviation code %d at end of string: %w", zc, errDecode)
			}
			i++
			if err := m.expandAbbrev(zc, codes[i], depth, sb); err != nil {
				return 0, err
			}

		case zc == zcode.ZCharShiftA1:
			alphabet = 1
			continue
		case zc == zcode.ZCharShiftA2:
			alphabet = 2
			continue

		case alphabet == 2 && zc == zcode.ZCharEscape:
			if i+2 >= len(codes) {
				return 0, fmt.Errorf("truncated 10-bit literal: %w", errDecode)
			}
			code := uint16(codes[i+1])<<5 | uint16(codes[i+2])
			i += 2
			if r, ok := zcode.ZSCIIRune(code); ok {
				sb.WriteRune(r)
			}

		default:
			sb.WriteByte(zcode.Alphabets[alphabet][zc-6])
		}
		// Shifts last for a single character.
		alphabet = 0
	}
	return addr, nil
}

// expandAbbrev splices in abbreviation entry 32*(set-1)+index,
// recursively decoded.
func (m *Machine) expandAbbrev(set, index byte, depth int, sb *strings.Builder) error {
	if depth+1 > maxAbbrevDepth {
		return fmt.Errorf("abbreviation nesting deeper than %d: %w", maxAbbrevDepth, errDecode)
	}
	entry := m.header.Abbrevs + uint32(32*(set-1)+index)*2
	packed, err := m.mem.Word(entry)
	if err != nil {
		return err
	}
	// Abbreviation entries are word addresses.
	_, err = m.decode(uint32(packed)*2, 0, depth+1, sb)
	return err
}
